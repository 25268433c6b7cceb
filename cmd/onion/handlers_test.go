package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AchrafSoltani/onion"
	"github.com/AchrafSoltani/onion/middleware"
)

func demoApp() *onion.App {
	app := onion.New(onion.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	app.Use(middleware.RequestID())
	app.Use(responseTime)
	app.Use(routes(middleware.JWT([]byte("secret"))))
	return app
}

func get(app *onion.App, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	app := demoApp()

	rec := get(app, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"`+onion.Version+`"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Response-Time"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = get(app, "/", http.Header{"Accept": {"text/html"}})
	assert.Equal(t, "<h1>onion</h1>", rec.Body.String())

	rec = get(app, "/", nil)
	assert.Equal(t, "onion", rec.Body.String())

	rec = get(app, "/back", http.Header{"Referer": {"/health"}})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/health", rec.Header().Get("Location"))

	rec = get(app, "/download", nil)
	assert.Equal(t, "hello from a stream\n", rec.Body.String())
	assert.Equal(t, "attachment; filename=hello.txt", rec.Header().Get("Content-Disposition"))

	rec = get(app, "/teapot", nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec = get(app, "/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIRequiresToken(t *testing.T) {
	app := demoApp()

	rec := get(app, "/api/whoami", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	rec = get(app, "/api/whoami", http.Header{"Authorization": {"Bearer " + token}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"subject":"alice"`)
}
