package middleware

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AchrafSoltani/onion"
)

// Metrics holds the request metrics recorded by its Handler.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlight        prometheus.Gauge
}

// NewMetrics creates the request metrics and registers them with reg. A nil
// reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onion_requests_total",
				Help: "Total requests",
			},
			[]string{"method", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "onion_request_duration_seconds",
				Help:    "Request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "onion_requests_in_flight",
				Help: "Requests currently being handled",
			},
		),
	}

	for _, c := range []prometheus.Collector{m.RequestsTotal, m.RequestDuration, m.InFlight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler records one observation per request. The status label is the
// status class ("2xx", "4xx", ...) of the final response.
func (m *Metrics) Handler() onion.HandlerFunc {
	return func(c *onion.Context, next onion.Next) error {
		start := time.Now()
		m.InFlight.Inc()
		defer m.InFlight.Dec()

		err := next()

		status := c.Response.Status()
		if err != nil {
			status = errorStatus(err)
		}

		method := c.Request.Method()
		m.RequestsTotal.WithLabelValues(method, strconv.Itoa(status/100)+"xx").Inc()
		m.RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

		return err
	}
}
