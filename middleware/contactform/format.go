package contactform

import (
	"strconv"
	"time"
)

// retryAfterSeconds formata Retry-After em segundos inteiros (mínimo 1).
func retryAfterSeconds(d time.Duration) string {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return strconv.Itoa(s)
}
