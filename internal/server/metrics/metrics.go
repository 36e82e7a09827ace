// Package metrics owns the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "authkeeper"

// Token kinds used as the "kind" label.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
	KindAction  = "action"
)

type Metrics struct {
	registry *prometheus.Registry

	TokensIssued         *prometheus.CounterVec
	AuthFailures         *prometheus.CounterVec
	ActionTokensConsumed *prometheus.CounterVec
	PasswordHash         *prometheus.HistogramVec
	PurgedTokens         *prometheus.CounterVec
}

// New registers every collector, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TokensIssued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Tokens minted, by kind.",
		}, []string{"kind"}),
		AuthFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Failed authentication attempts, by operation.",
		}, []string{"op"}),
		ActionTokensConsumed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_tokens_consumed_total",
			Help:      "Action tokens successfully consumed, by purpose.",
		}, []string{"purpose"}),
		PasswordHash: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "password_hash_seconds",
			Help:      "Time spent hashing or verifying passwords, including queueing for a worker.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"op"}),
		PurgedTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purged_tokens_total",
			Help:      "Expired token records removed by the purge loop, by kind.",
		}, []string{"kind"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// The helpers below accept a nil receiver so that callers built without
// metrics need no guards.

func (m *Metrics) TokenIssued(kind string) {
	if m == nil {
		return
	}
	m.TokensIssued.WithLabelValues(kind).Inc()
}

func (m *Metrics) AuthFailed(op string) {
	if m == nil {
		return
	}
	m.AuthFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) ActionTokenConsumed(purpose string) {
	if m == nil {
		return
	}
	m.ActionTokensConsumed.WithLabelValues(purpose).Inc()
}

func (m *Metrics) ObservePasswordHash(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.PasswordHash.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) Purged(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.PurgedTokens.WithLabelValues(kind).Add(float64(n))
}
