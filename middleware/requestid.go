package middleware

import (
	"github.com/google/uuid"

	"github.com/AchrafSoltani/onion"
)

const (
	// RequestIDHeader is the header carrying the request ID.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the Context store key holding the request ID.
	RequestIDKey = "request_id"
)

// RequestID returns middleware that assigns a unique ID to each request. An
// incoming X-Request-ID header is reused, otherwise a UUID is generated. The
// ID is stored under RequestIDKey, echoed in the response header and attached
// to the request logger.
func RequestID() onion.HandlerFunc {
	return func(c *onion.Context, next onion.Next) error {
		id := c.Request.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(RequestIDKey, id)
		c.Response.Set(RequestIDHeader, id)
		c.SetLogger(c.Logger().With("request_id", id))

		return next()
	}
}
