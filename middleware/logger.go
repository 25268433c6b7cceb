// Package middleware provides built-in handlers for onion applications.
package middleware

import (
	"log/slog"
	"time"

	"github.com/AchrafSoltani/onion"
)

// LoggerConfig defines the configuration for Logger middleware.
type LoggerConfig struct {
	// Logger receives one entry per request. Defaults to slog.Default().
	Logger *slog.Logger

	// SkipPaths is a list of paths to skip logging.
	SkipPaths []string

	// Level is the level for successful requests. Client and server errors
	// are logged at Warn and Error.
	Level slog.Level
}

// Logger returns a Logger middleware writing to logger.
func Logger(logger *slog.Logger) onion.HandlerFunc {
	return LoggerWithConfig(LoggerConfig{Logger: logger, Level: slog.LevelInfo})
}

// LoggerWithConfig returns a Logger middleware with the given configuration.
// The entry is written on the way out, so it sees the final status.
func LoggerWithConfig(config LoggerConfig) onion.HandlerFunc {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	skipPaths := make(map[string]bool)
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *onion.Context, next onion.Next) error {
		if skipPaths[c.Request.Path()] {
			return next()
		}

		start := time.Now()
		err := next()

		status := c.Response.Status()
		if err != nil {
			status = errorStatus(err)
		}

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method()),
			slog.String("path", c.Request.Path()),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.Request.RemoteIP()),
		}
		if id := c.GetString(RequestIDKey); id != "" {
			attrs = append(attrs, slog.String("request_id", id))
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}

		level := config.Level
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		config.Logger.LogAttrs(c.Context(), level, "request", attrs...)

		return err
	}
}

// LoggerWithSkipPaths returns a logger that skips certain paths.
func LoggerWithSkipPaths(logger *slog.Logger, paths ...string) onion.HandlerFunc {
	return LoggerWithConfig(LoggerConfig{Logger: logger, SkipPaths: paths})
}
