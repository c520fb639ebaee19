package infra

import (
	"context"

	"contact-gateway/middleware/contactform/domain"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricSubmissions    = "contact_submissions_total"
	MetricLedgerFailOpen = "contact_ledger_failopen_total"
)

// PrometheusStats expõe os desfechos como métricas. Os labels são apenas o
// outcome (conjunto fechado); a identidade nunca vira label.
type PrometheusStats struct {
	submissions *prometheus.CounterVec
	failOpen    prometheus.Counter
}

// NewPrometheusStats cria os coletores sem registrá-los; chame Register.
func NewPrometheusStats() *PrometheusStats {
	return &PrometheusStats{
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSubmissions,
				Help: "Total number of contact form submissions by outcome",
			},
			[]string{"outcome"},
		),
		failOpen: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricLedgerFailOpen,
				Help: "Total number of submissions allowed because the rate ledger was unavailable",
			},
		),
	}
}

func (m *PrometheusStats) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.submissions, m.failOpen} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	// séries zeradas para todos os outcomes aparecerem no primeiro scrape
	for _, o := range domain.Outcomes {
		m.submissions.WithLabelValues(string(o))
	}
	return nil
}

func (m *PrometheusStats) Record(_ context.Context, ev domain.StatsEvent) error {
	if ev.Outcome != "" {
		m.submissions.WithLabelValues(string(ev.Outcome)).Inc()
	}
	if ev.FailedOpen {
		m.failOpen.Inc()
	}
	return nil
}
