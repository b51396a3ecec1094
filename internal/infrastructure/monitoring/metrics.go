// Package monitoring exports cache, breaker and rate limiter activity as
// Prometheus metrics.
package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/scripture-cache/internal/core/domain/ratelimit"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/breaker"
	"github.com/avatarctic/scripture-cache/internal/infrastructure/cache"
)

const namespace = "scripture_cache"

// Metrics groups the collectors. It implements cacheaside.Recorder.
type Metrics struct {
	lookups       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	breakerState  *prometheus.GaugeVec
	transitions   *prometheus.CounterVec
	rateDecisions *prometheus.CounterVec
	logger        *logrus.Logger
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer, logger *logrus.Logger) *Metrics {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Cache-aside lookups by category and result (hit, miss, error).",
		}, []string{"category", "result"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Latency of underlying fetches triggered by cache misses.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"category"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open).",
		}, []string{"breaker"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions.",
		}, []string{"breaker", "from", "to"}),
		rateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Rate limiter decisions by class and outcome.",
		}, []string{"class", "outcome"}),
		logger: logger,
	}
	reg.MustRegister(m.lookups, m.fetchDuration, m.breakerState, m.transitions, m.rateDecisions)
	return m
}

func (m *Metrics) ObserveLookup(category string, cached bool, latency time.Duration, err error) {
	switch {
	case cached:
		m.lookups.WithLabelValues(category, "hit").Inc()
		return
	case err != nil:
		m.lookups.WithLabelValues(category, "error").Inc()
	default:
		m.lookups.WithLabelValues(category, "miss").Inc()
	}
	m.fetchDuration.WithLabelValues(category).Observe(latency.Seconds())
}

// ObserveDecision counts one rate limiter decision.
func (m *Metrics) ObserveDecision(class ratelimit.Class, d ratelimit.Decision) {
	outcome := "allowed"
	switch {
	case d.FailOpen:
		outcome = "fail_open"
	case !d.Allowed:
		outcome = "rejected"
	}
	m.rateDecisions.WithLabelValues(string(class), outcome).Inc()
}

// WatchBreaker consumes b's events until ctx is done or the breaker is
// closed, keeping the state gauge and transition counter current.
func (m *Metrics) WatchBreaker(ctx context.Context, b *breaker.Breaker) {
	m.breakerState.WithLabelValues(b.Name()).Set(float64(b.State()))
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-b.Events():
				if !ok {
					return
				}
				m.breakerState.WithLabelValues(ev.Breaker).Set(float64(ev.To))
				m.transitions.WithLabelValues(ev.Breaker, ev.From.String(), ev.To.String()).Inc()
				if m.logger != nil {
					entry := m.logger.WithFields(logrus.Fields{
						"event_id": ev.ID.String(),
						"breaker":  ev.Breaker,
						"from":     ev.From.String(),
						"to":       ev.To.String(),
						"reason":   ev.Reason,
					})
					if ev.To == breaker.StateOpen {
						entry.Warn("Circuit opened")
					} else {
						entry.Info("Circuit transition")
					}
				}
			}
		}
	}()
}

// storeCollector reads cache store statistics at scrape time.
type storeCollector struct {
	stats       func() cache.Stats
	size        *prometheus.Desc
	hits        *prometheus.Desc
	misses      *prometheus.Desc
	evictions   *prometheus.Desc
	expirations *prometheus.Desc
	memory      *prometheus.Desc
}

// RegisterStore exposes the statistics of one cache store under name.
func RegisterStore(reg prometheus.Registerer, name string, stats func() cache.Stats) error {
	labels := prometheus.Labels{"store": name}
	desc := func(metric, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "store", metric), help, nil, labels)
	}
	return reg.Register(&storeCollector{
		stats:       stats,
		size:        desc("entries", "Entries currently held."),
		hits:        desc("hits_total", "Store hits."),
		misses:      desc("misses_total", "Store misses."),
		evictions:   desc("evictions_total", "Entries evicted by LRU pressure."),
		expirations: desc("expirations_total", "Entries removed after their TTL."),
		memory:      desc("memory_estimate_bytes", "Approximate memory held by entries."),
	})
}

func (c *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.size
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.expirations
	ch <- c.memory
}

func (c *storeCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.stats()
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(st.Size))
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(st.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(st.Misses))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(st.Evictions))
	ch <- prometheus.MustNewConstMetric(c.expirations, prometheus.CounterValue, float64(st.Expirations))
	ch <- prometheus.MustNewConstMetric(c.memory, prometheus.GaugeValue, float64(st.MemoryEstimate))
}
