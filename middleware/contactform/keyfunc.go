package contactform

import (
	"net"
	"net/http"
	"strings"

	"contact-gateway/middleware/contactform/domain"
)

type KeyFunc func(r *http.Request) domain.Key

// DefaultKeyFunc identifica o cliente pela rede:
//
//   - com trustXFF, o primeiro hop do X-Forwarded-For, se for um IP válido
//   - senão, o host de RemoteAddr
//   - por fim, "unknown"
func DefaultKeyFunc(trustXFF bool) KeyFunc {
	return func(r *http.Request) domain.Key {
		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
					return domain.Key(ip.String())
				}
			}
		}

		remote := strings.TrimSpace(r.RemoteAddr)
		host, _, err := net.SplitHostPort(remote)
		if err != nil {
			host = remote
		}
		if ip := net.ParseIP(host); ip != nil {
			return domain.Key(ip.String())
		}
		return domain.UnknownKey
	}
}
