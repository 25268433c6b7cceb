package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/AchrafSoltani/onion"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// serve runs req through an app built from handlers.
func serve(req *http.Request, handlers ...onion.HandlerFunc) *httptest.ResponseRecorder {
	app := onion.New(onion.WithLogger(discardLogger()))
	app.Use(handlers...)

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func ok(body string) onion.HandlerFunc {
	return func(c *onion.Context, next onion.Next) error {
		return c.String(http.StatusOK, body)
	}
}
