package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"contact-gateway/middleware/contactform/domain"

	"github.com/redis/go-redis/v9"
)

// RedisLedger guarda cada janela numa chave <prefix>:<ip> com JSON.
//
// O ciclo ler/decidir/gravar roda numa transação otimista (WATCH + MULTI):
// se outra instância alterar a chave no meio, a transação falha e é refeita,
// até maxRetries vezes. Esgotadas as tentativas, devolve ErrLedgerContention
// (o limiter nega). O TTL da chave faz o papel do janitor.
type RedisLedger struct {
	rdb *redis.Client

	prefix     string
	ttl        time.Duration
	maxRetries int
}

type RedisLedgerOption func(*RedisLedger)

func WithLedgerPrefix(prefix string) RedisLedgerOption {
	return func(s *RedisLedger) { s.prefix = strings.Trim(prefix, ":") }
}

// WithLedgerTTL deve ser >= janela do limiter.
func WithLedgerTTL(d time.Duration) RedisLedgerOption {
	return func(s *RedisLedger) { s.ttl = d }
}

func WithLedgerMaxRetries(n int) RedisLedgerOption {
	return func(s *RedisLedger) { s.maxRetries = n }
}

func NewRedisLedger(rdb *redis.Client, opts ...RedisLedgerOption) *RedisLedger {
	s := &RedisLedger{
		rdb:        rdb,
		prefix:     "contact:ledger",
		ttl:        time.Hour,
		maxRetries: 10,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxRetries <= 0 {
		s.maxRetries = 1
	}
	return s
}

func (s *RedisLedger) key(k domain.Key) string {
	return s.prefix + ":" + string(k)
}

// Update implementa domain.LedgerStore.
func (s *RedisLedger) Update(ctx context.Context, key domain.Key, fn domain.UpdateFunc) (domain.UsageWindow, error) {
	if s == nil || s.rdb == nil {
		return domain.UsageWindow{}, fmt.Errorf("%w: redis client not configured", domain.ErrLedgerUnavailable)
	}

	rkey := s.key(key)
	var next domain.UsageWindow

	txf := func(tx *redis.Tx) error {
		cur, ok, err := getWindow(ctx, tx, rkey)
		if err != nil {
			return err
		}
		next = fn(cur, ok)

		data, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rkey, data, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < s.maxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, rkey)
		if err == nil {
			return next, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			if err := backoff(ctx, i); err != nil {
				return domain.UsageWindow{}, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
			}
			continue
		}
		return domain.UsageWindow{}, fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	return domain.UsageWindow{}, fmt.Errorf("%w: key %s", domain.ErrLedgerContention, rkey)
}

// backoff espera um pouco (com jitter) antes de refazer a transação.
func backoff(ctx context.Context, attempt int) error {
	d := time.Duration(attempt+1)*time.Millisecond + time.Duration(rand.Int64N(int64(time.Millisecond)))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ping é usado pelo /healthz.
func (s *RedisLedger) Ping(ctx context.Context) error {
	if s == nil || s.rdb == nil {
		return fmt.Errorf("%w: redis client not configured", domain.ErrLedgerUnavailable)
	}
	return s.rdb.Ping(ctx).Err()
}

// getWindow trata chave ausente ou JSON inválido como "sem janela".
func getWindow(ctx context.Context, tx *redis.Tx, key string) (domain.UsageWindow, bool, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.UsageWindow{}, false, nil
	}
	if err != nil {
		return domain.UsageWindow{}, false, err
	}
	var w domain.UsageWindow
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.UsageWindow{}, false, nil
	}
	return w, true, nil
}
