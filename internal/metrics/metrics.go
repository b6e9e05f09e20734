// Package metrics holds the Prometheus collectors of the daemon. A nil
// *Metrics is valid and records nothing, which keeps tests and the CLI free
// of registry plumbing.
package metrics

import (
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	storeOps      *prom.CounterVec
	logins        *prom.CounterVec
	tokenFailures *prom.CounterVec
	httpRequests  *prom.CounterVec
	httpDuration  *prom.HistogramVec
	setupDone     prom.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prom.Registerer) *Metrics {
	m := &Metrics{
		storeOps: prom.NewCounterVec(prom.CounterOpts{
			Name: "loopa_store_operations_total",
			Help: "Document store operations by kind and outcome.",
		}, []string{"op", "result"}),
		logins: prom.NewCounterVec(prom.CounterOpts{
			Name: "loopa_auth_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"result"}),
		tokenFailures: prom.NewCounterVec(prom.CounterOpts{
			Name: "loopa_auth_token_failures_total",
			Help: "Rejected bearer tokens by reason.",
		}, []string{"reason"}),
		httpRequests: prom.NewCounterVec(prom.CounterOpts{
			Name: "loopa_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "loopa_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prom.DefBuckets,
		}, []string{"method", "route"}),
		setupDone: prom.NewGauge(prom.GaugeOpts{
			Name: "loopa_setup_done",
			Help: "1 once the setup wizard has completed.",
		}),
	}
	reg.MustRegister(m.storeOps, m.logins, m.tokenFailures, m.httpRequests, m.httpDuration, m.setupDone)
	return m
}

func (m *Metrics) StoreOp(op string, err error) {
	if m == nil {
		return
	}
	res := "ok"
	if err != nil {
		res = "error"
	}
	m.storeOps.WithLabelValues(op, res).Inc()
}

func (m *Metrics) Login(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) TokenFailure(reason string) {
	if m == nil {
		return
	}
	m.tokenFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) HTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) SetupDone(done bool) {
	if m == nil {
		return
	}
	if done {
		m.setupDone.Set(1)
		return
	}
	m.setupDone.Set(0)
}
