package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/AchrafSoltani/onion"
)

// AuthConfig defines the configuration for Auth middleware.
type AuthConfig struct {
	// Validator is the function that validates the token/credentials.
	// It receives the token string and should return user data and error.
	Validator func(token string) (any, error)

	// TokenLookup is a string in the format of "<source>:<name>" that is used
	// to extract token from the request.
	// Possible values:
	//   - "header:Authorization" (default)
	//   - "header:X-API-Key"
	//   - "query:token"
	//   - "cookie:token"
	TokenLookup string

	// AuthScheme is the authentication scheme (e.g., "Bearer").
	// Only used when TokenLookup is a header.
	AuthScheme string

	// ContextKey is the key used to store the user data in the context.
	ContextKey string

	// Skipper defines a function to skip this middleware.
	Skipper func(*onion.Context) bool

	// ErrorHandler is called when authentication fails.
	ErrorHandler func(*onion.Context, error) error
}

// DefaultAuthConfig is the default auth configuration.
var DefaultAuthConfig = AuthConfig{
	TokenLookup: "header:Authorization",
	AuthScheme:  "Bearer",
	ContextKey:  "user",
	Skipper:     nil,
}

// Auth returns an Auth middleware with the given validator.
func Auth(validator func(token string) (any, error)) onion.HandlerFunc {
	config := DefaultAuthConfig
	config.Validator = validator
	return AuthWithConfig(config)
}

// AuthWithConfig returns an Auth middleware with the given configuration.
// It panics on an invalid configuration, at construction time.
func AuthWithConfig(config AuthConfig) onion.HandlerFunc {
	if config.Validator == nil {
		panic("auth middleware requires a validator function")
	}
	if config.TokenLookup == "" {
		config.TokenLookup = DefaultAuthConfig.TokenLookup
	}
	if config.ContextKey == "" {
		config.ContextKey = DefaultAuthConfig.ContextKey
	}

	source, name, ok := strings.Cut(config.TokenLookup, ":")
	if !ok {
		panic("invalid TokenLookup format, expected <source>:<name>")
	}

	var extractor func(*onion.Context) string
	switch source {
	case "header":
		extractor = headerExtractor(name, config.AuthScheme)
	case "query":
		extractor = queryExtractor(name)
	case "cookie":
		extractor = cookieExtractor(name)
	default:
		panic("invalid token source: " + source)
	}

	fail := func(c *onion.Context, err *onion.HTTPError) error {
		if config.ErrorHandler != nil {
			return config.ErrorHandler(c, err)
		}
		return err
	}

	return func(c *onion.Context, next onion.Next) error {
		if config.Skipper != nil && config.Skipper(c) {
			return next()
		}

		token := extractor(c)
		if token == "" {
			return fail(c, onion.ErrUnauthorized("missing or invalid token"))
		}

		user, err := config.Validator(token)
		if err != nil {
			return fail(c, onion.WrapError(http.StatusUnauthorized, "invalid token", err))
		}

		c.Set(config.ContextKey, user)

		return next()
	}
}

// headerExtractor creates a token extractor from a header.
func headerExtractor(header, scheme string) func(*onion.Context) string {
	return func(c *onion.Context) string {
		auth := c.Request.Get(header)
		if auth == "" {
			return ""
		}

		if scheme != "" {
			prefix := scheme + " "
			if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
				return auth[len(prefix):]
			}
			return ""
		}

		return auth
	}
}

// queryExtractor creates a token extractor from a query parameter.
func queryExtractor(name string) func(*onion.Context) string {
	return func(c *onion.Context) string {
		return c.Request.Query(name)
	}
}

// cookieExtractor creates a token extractor from a cookie.
func cookieExtractor(name string) func(*onion.Context) string {
	return func(c *onion.Context) string {
		cookie, err := c.Request.Raw().Cookie(name)
		if err != nil {
			return ""
		}
		return cookie.Value
	}
}

// JWTValidator returns a validator that accepts HMAC-SHA256 signed JWTs
// issued with secret. The token's claims become the user value.
func JWTValidator(secret []byte, opts ...jwt.ParserOption) func(token string) (any, error) {
	opts = append([]jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}, opts...)
	parser := jwt.NewParser(opts...)

	return func(token string) (any, error) {
		claims := jwt.MapClaims{}
		parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
			return secret, nil
		})
		if err != nil {
			return nil, fmt.Errorf("parsing token: %w", err)
		}
		if !parsed.Valid {
			return nil, fmt.Errorf("token is not valid")
		}
		return claims, nil
	}
}

// JWT returns an Auth middleware that validates bearer JWTs signed with
// secret and stores their claims under "claims".
func JWT(secret []byte) onion.HandlerFunc {
	config := DefaultAuthConfig
	config.Validator = JWTValidator(secret)
	config.ContextKey = "claims"
	return AuthWithConfig(config)
}

// APIKey returns an API key authentication middleware.
func APIKey(validator func(key string) (any, error)) onion.HandlerFunc {
	return AuthWithConfig(AuthConfig{
		Validator:   validator,
		TokenLookup: "header:X-API-Key",
		AuthScheme:  "",
		ContextKey:  "api_key_user",
	})
}

// SkipPaths returns a skipper that skips the given paths.
func SkipPaths(paths ...string) func(*onion.Context) bool {
	pathMap := make(map[string]bool)
	for _, path := range paths {
		pathMap[path] = true
	}
	return func(c *onion.Context) bool {
		return pathMap[c.Request.Path()]
	}
}

// BasicAuth returns a Basic authentication middleware.
func BasicAuth(validator func(username, password string) (any, error)) onion.HandlerFunc {
	return func(c *onion.Context, next onion.Next) error {
		username, password, ok := c.Request.Raw().BasicAuth()
		if !ok {
			return onion.ErrUnauthorized("authentication required").
				WithHeader("WWW-Authenticate", `Basic realm="Restricted"`)
		}

		user, err := validator(username, password)
		if err != nil {
			return onion.ErrUnauthorized("invalid credentials").
				WithHeader("WWW-Authenticate", `Basic realm="Restricted"`)
		}

		c.Set("user", user)
		return next()
	}
}
