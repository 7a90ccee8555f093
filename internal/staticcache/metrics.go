package staticcache

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	routeStatic   = "static"
	routeFallback = "fallback"
	routeDenied   = "denied"
)

const (
	opGet         = "get"
	opGetMultiple = "get_multiple"
	opSet         = "set"
	opClear       = "clear"
	opIsEmpty     = "is_empty"
)

// Metrics holds the routing counters shared by all decorators of a process.
type Metrics struct {
	Operations *prometheus.CounterVec
	Errors     *prometheus.CounterVec
}

// NewMetrics creates and registers the routing metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "static_cache_operations_total",
		Help: "Cache operations by bin, operation and the path that served them",
	}, []string{"bin", "op", "route"})

	errors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "static_cache_errors_total",
		Help: "Cache operations that failed in the static store or the fallback",
	}, []string{"bin", "op"})

	reg.MustRegister(operations, errors)

	return &Metrics{
		Operations: operations,
		Errors:     errors,
	}
}

func (m *Metrics) observe(bin, op, route string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(bin, op, route).Inc()
}

func (m *Metrics) observeError(bin, op string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(bin, op).Inc()
}
