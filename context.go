package onion

import (
	"context"
	"errors"
	"html"
	"io"
	"log/slog"
	"net/http"
)

// M is a shorthand for map[string]any.
type M map[string]any

// Context carries one request through the handler chain. It owns the request
// view and the response state. A Context is used by one chain invocation at a
// time and is not safe for concurrent use.
type Context struct {
	Request  *Request
	Response *Response

	app    *App
	ctx    context.Context
	store  map[string]any
	logger *slog.Logger
}

// NewContext creates a Context for r with a fresh Response.
func NewContext(r *http.Request) *Context {
	c := &Context{
		Request:  NewRequest(r),
		Response: NewResponse(),
		ctx:      r.Context(),
		store:    make(map[string]any),
		logger:   slog.Default(),
	}
	c.Response.onError = c.OnError
	return c
}

// App returns the application instance, or nil for a standalone Context.
func (c *Context) App() *App {
	return c.app
}

// Context returns the request's context.Context.
func (c *Context) Context() context.Context {
	return c.ctx
}

// WithContext replaces the context.Context seen by downstream handlers.
func (c *Context) WithContext(ctx context.Context) *Context {
	c.ctx = ctx
	return c
}

// Logger returns the request logger.
func (c *Context) Logger() *slog.Logger {
	return c.logger
}

// SetLogger replaces the request logger, e.g. to add request-scoped attributes.
func (c *Context) SetLogger(l *slog.Logger) {
	if l != nil {
		c.logger = l
	}
}

// Get retrieves a value from the context store.
func (c *Context) Get(key string) any {
	return c.store[key]
}

// Set stores a value in the context store.
func (c *Context) Set(key string, value any) {
	c.store[key] = value
}

// GetString retrieves a string value from the context store.
func (c *Context) GetString(key string) string {
	if val, ok := c.store[key].(string); ok {
		return val
	}
	return ""
}

// GetInt retrieves an int value from the context store.
func (c *Context) GetInt(key string) int {
	if val, ok := c.store[key].(int); ok {
		return val
	}
	return 0
}

// Throw returns an HTTPError for code. It is meant to be returned from a
// handler: return c.Throw(403, "").
func (c *Context) Throw(code int, msg string) error {
	return NewHTTPError(code, msg)
}

// Redirect redirects to url. The url "back" resolves to the Referrer header,
// then to alt, then to "/". The status becomes 302 unless a redirect status
// was already set, and the body is an HTML or plain-text notice depending on
// what the client accepts.
func (c *Context) Redirect(url string, alt ...string) {
	res := c.Response
	if url == "back" {
		url = c.Request.Get("Referrer")
		if url == "" && len(alt) > 0 {
			url = alt[0]
		}
		if url == "" {
			url = "/"
		}
	}
	res.Set("Location", url)

	if !StatusRedirect[res.Status()] {
		res.MustSetStatus(http.StatusFound)
	}

	if _, ok := c.Request.Accepts("html"); ok {
		escaped := html.EscapeString(url)
		res.SetType("text/html; charset=utf-8")
		res.SetBody(`Redirecting to <a href="` + escaped + `">` + escaped + `</a>.`)
		return
	}

	res.SetType("text/plain; charset=utf-8")
	res.SetBody("Redirecting to " + url + ".")
}

// OnError is the Context's error channel. Errors that escape the chain and
// stream read errors end up here. Server errors are logged. If the response
// has not been sent yet it is replaced by an error response.
func (c *Context) OnError(err error) {
	if err == nil {
		return
	}

	code, msg, expose := statusFromError(err)
	if !expose {
		c.logger.Error("request failed",
			"method", c.Request.Method(),
			"path", c.Request.Path(),
			"status", code,
			"error", err.Error(),
		)
		msg = StatusText(code)
	}

	res := c.Response
	if res.HeaderSent() {
		return
	}

	res.reset()
	res.MustSetStatus(code)

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		for k, v := range httpErr.Header {
			res.SetValues(k, v)
		}
	}
	if httpErr != nil && c.app != nil && c.app.debug && httpErr.Err != nil {
		res.SetBody(M{"error": M{"code": code, "message": msg, "debug": httpErr.Err.Error()}})
		return
	}
	res.SetType("text")
	res.SetBody(msg)
}

// JSON sets a JSON body with the given status code.
func (c *Context) JSON(code int, data any) error {
	if err := c.Response.SetStatus(code); err != nil {
		return err
	}
	c.Response.SetType("json")
	c.Response.SetBody(data)
	return nil
}

// String sets a plain text body with the given status code.
func (c *Context) String(code int, s string) error {
	if err := c.Response.SetStatus(code); err != nil {
		return err
	}
	c.Response.SetType("text")
	c.Response.SetBody(s)
	return nil
}

// HTML sets an HTML body with the given status code.
func (c *Context) HTML(code int, markup string) error {
	if err := c.Response.SetStatus(code); err != nil {
		return err
	}
	c.Response.SetType("html")
	c.Response.SetBody(markup)
	return nil
}

// Blob sets a binary body with the given status code and content type.
func (c *Context) Blob(code int, contentType string, data []byte) error {
	if err := c.Response.SetStatus(code); err != nil {
		return err
	}
	c.Response.SetType(contentType)
	c.Response.SetBody(data)
	return nil
}

// Stream sets a stream body. The response takes ownership of r.
func (c *Context) Stream(code int, contentType string, r io.Reader) error {
	if err := c.Response.SetStatus(code); err != nil {
		return err
	}
	c.Response.SetType(contentType)
	c.Response.SetBody(r)
	return nil
}

// NoContent clears the body with a 204 status.
func (c *Context) NoContent() error {
	return c.Response.SetStatus(http.StatusNoContent)
}

// Error sets an error JSON body.
func (c *Context) Error(code int, message string) error {
	return c.JSON(code, M{
		"error": M{
			"code":    code,
			"message": message,
		},
	})
}
