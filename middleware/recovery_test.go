package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AchrafSoltani/onion"
)

func panics(v any) onion.HandlerFunc {
	return func(c *onion.Context, next onion.Next) error {
		panic(v)
	}
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	mw := RecoveryWithConfig(RecoveryConfig{Logger: slog.New(slog.NewJSONHandler(&buf, nil))})

	rec := serve(httptest.NewRequest(http.MethodGet, "/boom", nil), mw, panics("kaboom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":{"code":500,"message":"Internal Server Error"}}`, rec.Body.String())

	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), "kaboom")
	assert.Contains(t, buf.String(), "/boom")
}

func TestRecoveryDirectPanic(t *testing.T) {
	// Called outside a composed chain the panic is not converted to an error.
	mw := RecoveryWithConfig(RecoveryConfig{Logger: discardLogger(), DisablePrintStack: true})
	c := onion.NewContext(httptest.NewRequest(http.MethodGet, "/", nil))

	err := mw(c, func() error { panic("raw") })
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, c.Response.Status())
}

func TestRecoveryLetsAbortThrough(t *testing.T) {
	mw := RecoveryWithConfig(RecoveryConfig{Logger: discardLogger()})

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		serve(httptest.NewRequest(http.MethodGet, "/", nil), mw, panics(http.ErrAbortHandler))
	})
}

func TestRecoveryPassesErrors(t *testing.T) {
	boom := errors.New("plain error")
	mw := RecoveryWithConfig(RecoveryConfig{Logger: discardLogger()})
	c := onion.NewContext(httptest.NewRequest(http.MethodGet, "/", nil))

	err := mw(c, func() error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestRecoveryWithHandler(t *testing.T) {
	// Silence the default logger for this test.
	prev := slog.Default()
	slog.SetDefault(discardLogger())
	t.Cleanup(func() { slog.SetDefault(prev) })

	var gotValue any
	mw := RecoveryWithHandler(func(c *onion.Context, v any, stack []byte) error {
		gotValue = v
		return c.String(http.StatusServiceUnavailable, "try later")
	})

	rec := serve(httptest.NewRequest(http.MethodGet, "/", nil), mw, panics("custom"))

	assert.Equal(t, "custom", gotValue)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "try later", rec.Body.String())
}

func TestDebugRecovery(t *testing.T) {
	prev := slog.Default()
	slog.SetDefault(discardLogger())
	t.Cleanup(func() { slog.SetDefault(prev) })

	rec := serve(httptest.NewRequest(http.MethodGet, "/", nil), DebugRecovery(), panics(errors.New("nil map write")))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body struct {
		Error struct {
			Panic string `json:"panic"`
			Stack string `json:"stack"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "nil map write", body.Error.Panic)
	assert.NotEmpty(t, body.Error.Stack)
}
