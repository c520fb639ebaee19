package infra

import (
	"context"
	"errors"

	"contact-gateway/middleware/contactform/domain"
)

// MultiAuditSink grava em todos os sinks; um sink com erro não impede os demais.
type MultiAuditSink []domain.AuditSink

func (m MultiAuditSink) Record(ctx context.Context, rec domain.AuditRecord) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MultiStatsStore faz o mesmo para estatísticas.
type MultiStatsStore []domain.StatsStore

func (m MultiStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
