package outcome

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aasm-exporter/aasm/exporter/internal/scraper"
)

// Outcome is the result label of a scrape.
type Outcome string

const (
	Success Outcome = "success"
	Failure Outcome = "failure"
)

// StatusMetric counts scrapes by outcome.
const StatusMetric = "aasm_scrape_status_total"

// Tracker owns the persistent registry.
type Tracker struct {
	registry *prometheus.Registry
	status   *prometheus.CounterVec
}

// New builds a Tracker whose persistent registry holds the scrape status
// counter, build info, Go runtime metrics and any extra collectors.
func New(extra ...prometheus.Collector) (*Tracker, error) {
	status := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: StatusMetric,
		Help: "Number of scrapes by outcome.",
	}, []string{"outcome"})
	status.WithLabelValues(string(Success))
	status.WithLabelValues(string(Failure))

	reg := prometheus.NewRegistry()
	cs := append([]prometheus.Collector{
		status,
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
	}, extra...)
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return &Tracker{registry: reg, status: status}, nil
}

// Scrape runs s once and records the outcome. On success the result merges
// the persistent registry with the scrape's; on failure only the persistent
// registry is returned.
func (t *Tracker) Scrape(ctx context.Context, s scraper.Scraper) prometheus.Gatherer {
	reg, err := s.Scrape(ctx)
	if err != nil {
		slog.Warn("scrape failed", "scraper", s.Name(), "err", err)
		t.status.WithLabelValues(string(Failure)).Inc()
		return t.registry
	}
	t.status.WithLabelValues(string(Success)).Inc()
	return prometheus.Gatherers{t.registry, reg}
}
