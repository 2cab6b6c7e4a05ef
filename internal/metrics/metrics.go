// Package metrics holds the Prometheus collectors for gateway calls and
// authentication outcomes.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	GatewayRequests *prometheus.CounterVec
	GatewayLatency  *prometheus.HistogramVec
	Authentications *prometheus.CounterVec
}

// New creates the collectors and registers them on reg (the default
// registerer when reg is nil). Collectors that are already registered are
// reused, so several clients can share one registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		GatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alipayauth_gateway_requests_total",
			Help: "Gateway calls by method and outcome.",
		}, []string{"method", "outcome"}),
		GatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "alipayauth_gateway_request_duration_seconds",
			Help:    "Gateway call latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		Authentications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alipayauth_authentications_total",
			Help: "Authentication attempts by terminal outcome.",
		}, []string{"outcome"}),
	}

	var err error
	if m.GatewayRequests, err = register(reg, m.GatewayRequests); err != nil {
		return nil, err
	}
	if m.GatewayLatency, err = register(reg, m.GatewayLatency); err != nil {
		return nil, err
	}
	if m.Authentications, err = register(reg, m.Authentications); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveGateway records one gateway call.
func (m *Metrics) ObserveGateway(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.GatewayRequests.WithLabelValues(method, outcome).Inc()
	m.GatewayLatency.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveAuthentication records the terminal outcome of one authentication attempt.
func (m *Metrics) ObserveAuthentication(outcome string) {
	if m == nil {
		return
	}
	m.Authentications.WithLabelValues(outcome).Inc()
}
