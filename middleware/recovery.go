package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/AchrafSoltani/onion"
)

// RecoveryConfig defines the configuration for Recovery middleware.
type RecoveryConfig struct {
	// StackSize is the maximum size of the stack trace to capture.
	StackSize int

	// DisableStackAll disables capturing stack traces from all goroutines.
	DisableStackAll bool

	// DisablePrintStack disables logging stack traces.
	DisablePrintStack bool

	// Logger receives the panic entries. Defaults to slog.Default().
	Logger *slog.Logger

	// Handler is a custom handler called when a panic occurs.
	// If nil, a default JSON error response is set.
	Handler func(*onion.Context, any, []byte) error
}

// DefaultRecoveryConfig is the default recovery configuration.
var DefaultRecoveryConfig = RecoveryConfig{
	StackSize:         4 << 10, // 4 KB
	DisableStackAll:   false,
	DisablePrintStack: false,
}

// Recovery returns a Recovery middleware with default configuration.
// It recovers from panics downstream, logs the panic and stack trace, and
// answers with a 500 error.
func Recovery() onion.HandlerFunc {
	return RecoveryWithConfig(DefaultRecoveryConfig)
}

// RecoveryWithConfig returns a Recovery middleware with the given configuration.
//
// The dispatcher already turns panics into *onion.PanicError values, so this
// handler catches both a raw panic and a PanicError returned by next.
func RecoveryWithConfig(config RecoveryConfig) onion.HandlerFunc {
	if config.StackSize == 0 {
		config.StackSize = DefaultRecoveryConfig.StackSize
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	recovered := func(c *onion.Context, value any, stack []byte) error {
		if !config.DisablePrintStack {
			config.Logger.Error("panic recovered",
				"panic", value,
				"path", c.Request.Path(),
				"stack", string(stack),
			)
		}

		if config.Handler != nil {
			if err := config.Handler(c, value, stack); err == nil {
				return nil
			}
		}

		return sendDefaultPanicResponse(c)
	}

	return func(c *onion.Context, next onion.Next) (err error) {
		defer func() {
			if r := recover(); r != nil {
				if e, ok := r.(error); ok && errors.Is(e, http.ErrAbortHandler) {
					panic(r)
				}
				stack := make([]byte, config.StackSize)
				stack = stack[:runtime.Stack(stack, !config.DisableStackAll)]
				err = recovered(c, r, stack)
			}
		}()

		err = next()

		var pe *onion.PanicError
		if errors.As(err, &pe) {
			stack := pe.Stack
			if len(stack) > config.StackSize {
				stack = stack[:config.StackSize]
			}
			return recovered(c, pe.Value, stack)
		}
		return err
	}
}

// sendDefaultPanicResponse sets a default 500 error response.
func sendDefaultPanicResponse(c *onion.Context) error {
	if c.Response.HeaderSent() {
		return nil
	}

	return c.JSON(http.StatusInternalServerError, onion.M{
		"error": onion.M{
			"code":    http.StatusInternalServerError,
			"message": "Internal Server Error",
		},
	})
}

// RecoveryWithHandler returns a Recovery middleware with a custom handler.
func RecoveryWithHandler(handler func(*onion.Context, any, []byte) error) onion.HandlerFunc {
	config := DefaultRecoveryConfig
	config.Handler = handler
	return RecoveryWithConfig(config)
}

// DebugRecovery returns a Recovery middleware that includes panic details in the response.
// ONLY use this in development mode.
func DebugRecovery() onion.HandlerFunc {
	return RecoveryWithHandler(func(c *onion.Context, recovered any, stack []byte) error {
		return c.JSON(http.StatusInternalServerError, onion.M{
			"error": onion.M{
				"code":    http.StatusInternalServerError,
				"message": "Internal Server Error",
				"panic":   fmt.Sprintf("%v", recovered),
				"stack":   string(stack),
			},
		})
	})
}
