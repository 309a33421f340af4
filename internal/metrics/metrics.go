// Package metrics exposes the service's Prometheus collectors. All methods
// are safe on a nil *Metrics so components can run without metrics wired.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "livebet"

// Metrics bundles the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	bets        *prometheus.CounterVec
	payments    *prometheus.CounterVec
	resolutions *prometheus.CounterVec
	staked      *prometheus.CounterVec
	requests    *prometheus.HistogramVec
}

// New creates and registers the collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		bets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bets_total",
			Help:      "Bet placement attempts by result.",
		}, []string{"result"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_confirmations_total",
			Help:      "Payment confirmations by result.",
		}, []string{"result"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Market resolution attempts by result code.",
		}, []string{"code"}),
		staked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staked_total",
			Help:      "Stake added to market pools by outcome.",
		}, []string{"outcome"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
	reg.MustRegister(m.bets, m.payments, m.resolutions, m.staked, m.requests)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// BetPlaced counts a bet attempt ("challenged", "placed", or an error code).
func (m *Metrics) BetPlaced(result string) {
	if m == nil {
		return
	}
	m.bets.WithLabelValues(result).Inc()
}

// PaymentConfirmed counts a confirmation attempt.
func (m *Metrics) PaymentConfirmed(result string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(result).Inc()
}

// Resolution counts a resolution attempt by result code ("ok" on success).
func (m *Metrics) Resolution(code string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(code).Inc()
}

// Staked adds amount to the staked counter for outcome.
func (m *Metrics) Staked(outcome string, amount float64) {
	if m == nil {
		return
	}
	m.staked.WithLabelValues(outcome).Add(amount)
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Observe(d.Seconds())
}
