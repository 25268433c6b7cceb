package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AchrafSoltani/onion"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	var inFlight float64
	observe := func(c *onion.Context, next onion.Next) error {
		inFlight = testutil.ToFloat64(m.InFlight)
		return c.String(http.StatusOK, "ok")
	}
	fail := func(c *onion.Context, next onion.Next) error {
		return errors.New("down")
	}

	serve(httptest.NewRequest(http.MethodGet, "/", nil), m.Handler(), observe)
	serve(httptest.NewRequest(http.MethodGet, "/", nil), m.Handler(), observe)
	serve(httptest.NewRequest(http.MethodPost, "/", nil), m.Handler(), fail)
	serve(httptest.NewRequest(http.MethodGet, "/missing", nil), m.Handler())

	assert.Equal(t, float64(1), inFlight)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.InFlight))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "5xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "4xx")))

	families, err := reg.Gather()
	require.NoError(t, err)

	var duration *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "onion_request_duration_seconds" {
			duration = mf
		}
	}
	require.NotNil(t, duration)
	assert.Equal(t, dto.MetricType_HISTOGRAM, duration.GetType())

	var samples uint64
	for _, metric := range duration.GetMetric() {
		samples += metric.GetHistogram().GetSampleCount()
	}
	assert.Equal(t, uint64(4), samples)
}

func TestMetricsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	var already prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &already)
}
