package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/AchrafSoltani/onion"
)

// CORSConfig defines the configuration for CORS middleware.
type CORSConfig struct {
	// AllowOrigins is a list of origins that may access the resource.
	// Use "*" to allow any origin, or specify explicit origins.
	AllowOrigins []string

	// AllowMethods is a list of methods that are allowed.
	AllowMethods []string

	// AllowHeaders is a list of headers that are allowed in requests.
	AllowHeaders []string

	// ExposeHeaders is a list of headers that browsers are allowed to access.
	ExposeHeaders []string

	// AllowCredentials indicates whether the request can include user credentials.
	AllowCredentials bool

	// MaxAge indicates how long the results of a preflight request can be cached.
	MaxAge int
}

// DefaultCORSConfig is the default CORS configuration.
var DefaultCORSConfig = CORSConfig{
	AllowOrigins: []string{"*"},
	AllowMethods: []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
		http.MethodOptions,
		http.MethodHead,
	},
	AllowHeaders: []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-Requested-With",
	},
	ExposeHeaders:    []string{},
	AllowCredentials: false,
	MaxAge:           86400, // 24 hours
}

// CORS returns a CORS middleware with the given configuration. Preflight
// requests are answered with 204 without calling downstream handlers.
func CORS(config CORSConfig) onion.HandlerFunc {
	allowAllOrigins := false
	allowedOrigins := make(map[string]bool)
	for _, origin := range config.AllowOrigins {
		if origin == "*" {
			allowAllOrigins = true
			break
		}
		allowedOrigins[origin] = true
	}

	allowMethodsHeader := strings.Join(config.AllowMethods, ", ")
	allowHeadersHeader := strings.Join(config.AllowHeaders, ", ")
	exposeHeadersHeader := strings.Join(config.ExposeHeaders, ", ")
	maxAgeHeader := strconv.Itoa(config.MaxAge)

	return func(c *onion.Context, next onion.Next) error {
		res := c.Response
		origin := c.Request.Get("Origin")

		// The answer depends on Origin unless every origin gets "*".
		if !allowAllOrigins || config.AllowCredentials {
			if err := res.Vary("Origin"); err != nil {
				return err
			}
		}

		var allowedOrigin string
		if origin != "" {
			if allowAllOrigins {
				if config.AllowCredentials {
					allowedOrigin = origin
				} else {
					allowedOrigin = "*"
				}
			} else if allowedOrigins[origin] {
				allowedOrigin = origin
			}
		}

		if allowedOrigin != "" {
			res.Set("Access-Control-Allow-Origin", allowedOrigin)

			if config.AllowCredentials {
				res.Set("Access-Control-Allow-Credentials", "true")
			}

			if exposeHeadersHeader != "" {
				res.Set("Access-Control-Expose-Headers", exposeHeadersHeader)
			}
		}

		if c.Request.Method() == http.MethodOptions {
			if allowedOrigin != "" {
				res.Set("Access-Control-Allow-Methods", allowMethodsHeader)
				res.Set("Access-Control-Allow-Headers", allowHeadersHeader)
				res.Set("Access-Control-Max-Age", maxAgeHeader)
			}

			return res.SetStatus(http.StatusNoContent)
		}

		return next()
	}
}

// CORSDefault returns a CORS middleware with default configuration.
func CORSDefault() onion.HandlerFunc {
	return CORS(DefaultCORSConfig)
}

// AllowOrigins creates a CORS config with specific allowed origins.
func AllowOrigins(origins ...string) CORSConfig {
	config := DefaultCORSConfig
	config.AllowOrigins = origins
	return config
}

// AllowOriginsWithCredentials creates a CORS config with specific origins and credentials.
func AllowOriginsWithCredentials(origins ...string) CORSConfig {
	config := DefaultCORSConfig
	config.AllowOrigins = origins
	config.AllowCredentials = true
	return config
}
