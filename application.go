// Package onion is an HTTP middleware core for Go.
//
// Handlers are composed into an onion: code before next() runs outer to
// inner, code after next() runs inner to outer. Every handler shares one
// Context per request, whose Response keeps status, body and entity headers
// consistent while handlers mutate it. When the chain returns, the App writes
// the final response state to the wire.
//
// Example usage:
//
//	app := onion.New()
//	app.Use(middleware.Logger(logger))
//	app.Use(middleware.Recovery())
//
//	app.Use(func(c *onion.Context, next onion.Next) error {
//	    if err := next(); err != nil {
//	        return err
//	    }
//	    c.Response.Set("X-Powered-By", "onion")
//	    return nil
//	})
//
//	app.Use(func(c *onion.Context, next onion.Next) error {
//	    c.Response.SetBody(onion.M{"status": "ok"})
//	    return nil
//	})
//
//	app.RunWithGracefulShutdown(":8080")
package onion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
)

// Version is the current version of onion.
const Version = "0.1.0"

// App is the main application instance.
type App struct {
	handlers   []HandlerFunc
	config     *Config
	onStart    []func(*App) error
	onShutdown []func(*App) error
	server     *http.Server
	debug      bool
	logger     *slog.Logger
	mounts     map[string]http.Handler

	once     sync.Once
	composed HandlerFunc
	err      error
}

// Option is a function that configures the App.
type Option func(*App)

// New creates a new application.
func New(opts ...Option) *App {
	app := &App{
		config: DefaultConfig(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(app)
	}

	return app
}

// WithDebug enables debug mode. Error responses then include the wrapped
// error of an HTTPError.
func WithDebug(debug bool) Option {
	return func(a *App) {
		a.debug = debug
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *App) {
		a.config = cfg
		a.debug = cfg.Debug
	}
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Debug returns whether debug mode is enabled.
func (a *App) Debug() bool {
	return a.debug
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Use appends handlers to the chain. Handlers added after the first request
// was served are not picked up by ServeHTTP; use Handler to rebuild.
func (a *App) Use(h ...HandlerFunc) *App {
	a.handlers = append(a.handlers, h...)
	return a
}

// OnStart registers a callback to run when the app starts.
func (a *App) OnStart(fn func(*App) error) {
	a.onStart = append(a.onStart, fn)
}

// OnShutdown registers a callback to run when the app shuts down.
func (a *App) OnShutdown(fn func(*App) error) {
	a.onShutdown = append(a.onShutdown, fn)
}

// Mount serves h for pattern (http.ServeMux syntax) next to the handler
// chain. Mounted handlers bypass the chain, e.g. a metrics endpoint. They are
// served through Handler and Run, not through ServeHTTP.
func (a *App) Mount(pattern string, h http.Handler) {
	if a.mounts == nil {
		a.mounts = make(map[string]http.Handler)
	}
	a.mounts[pattern] = h
}

// Handler composes the current handler list into an http.Handler. An invalid
// handler list is reported here, before any request is served.
func (a *App) Handler() (http.Handler, error) {
	fn, err := Compose(a.handlers)
	if err != nil {
		return nil, err
	}
	chain := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.handle(fn, w, r)
	})
	if len(a.mounts) == 0 {
		return chain, nil
	}

	mux := http.NewServeMux()
	mux.Handle("/", chain)
	for pattern, h := range a.mounts {
		mux.Handle(pattern, h)
	}
	return mux, nil
}

// ServeHTTP implements the http.Handler interface. The chain is composed on
// the first request.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.once.Do(func() {
		a.composed, a.err = Compose(a.handlers)
	})
	if a.err != nil {
		a.logger.Error("invalid handler chain", "error", a.err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	a.handle(a.composed, w, r)
}

// NewContext creates the Context for one request.
func (a *App) NewContext(w http.ResponseWriter, r *http.Request) *Context {
	c := NewContext(r)
	c.app = a
	c.logger = a.logger
	c.Response.flush = func() {
		writeHeader(w, c.Response)
		if err := http.NewResponseController(w).Flush(); err != nil {
			a.logger.Debug("flush failed", "error", err)
		}
	}
	return c
}

func (a *App) handle(fn HandlerFunc, w http.ResponseWriter, r *http.Request) {
	c := a.NewContext(w, r)
	res := c.Response

	// Adopted streams are closed when the client goes away mid-response.
	stop := context.AfterFunc(r.Context(), res.finish)
	defer func() {
		stop()
		res.finish()
	}()

	if err := fn(c, nil); err != nil {
		c.OnError(err)
	}

	a.respond(c, w)
}

// respond writes the final response state.
func (a *App) respond(c *Context, w http.ResponseWriter) {
	res := c.Response
	if res.HeaderSent() && !res.Writable() {
		return
	}

	status := res.Status()

	if StatusEmpty[status] {
		res.SetBody(nil)
		writeHeader(w, res)
		return
	}

	if res.BodyKind() == BodyJSON {
		data, err := json.Marshal(res.Body())
		if err != nil {
			c.OnError(WrapError(http.StatusInternalServerError, "", fmt.Errorf("encoding response body: %w", err)))
			status = res.Status()
		} else {
			res.SetBody(data)
		}
	}

	// Without a body the status message is sent, for HEAD too.
	var msg string
	if res.BodyKind() == BodyNone {
		msg = res.Message()
		if msg == "" {
			msg = strconv.Itoa(status)
		}
		res.SetType("text")
		res.SetLength(int64(len(msg)))
	}

	if c.Request.Method() == http.MethodHead {
		writeHeader(w, res)
		return
	}

	var err error
	switch res.BodyKind() {
	case BodyNone:
		writeHeader(w, res)
		_, err = io.WriteString(w, msg)

	case BodyText:
		writeHeader(w, res)
		_, err = io.WriteString(w, res.Body().(string))

	case BodyBinary:
		writeHeader(w, res)
		_, err = w.Write(res.Body().([]byte))

	case BodyStream:
		writeHeader(w, res)
		_, err = io.Copy(w, res.reader())
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Debug("writing response failed", "path", c.Request.Path(), "error", err)
	}
}

// writeHeader commits the response headers and status. The response becomes
// immutable from here on.
func writeHeader(w http.ResponseWriter, res *Response) {
	if res.HeaderSent() {
		return
	}
	h := w.Header()
	for k, v := range res.header {
		h[k] = append([]string(nil), v...)
	}
	res.markHeaderSent()
	w.WriteHeader(res.Status())
}

func (a *App) newServer(addr string) (*http.Server, error) {
	if addr == "" {
		addr = a.config.Addr()
	}

	handler, err := a.Handler()
	if err != nil {
		return nil, err
	}

	for _, fn := range a.onStart {
		if err := fn(a); err != nil {
			return nil, fmt.Errorf("onStart callback failed: %w", err)
		}
	}

	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  a.config.ReadTimeout,
		WriteTimeout: a.config.WriteTimeout,
		IdleTimeout:  a.config.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(a.logger.Handler(), slog.LevelError),
	}, nil
}

// Run starts the HTTP server on the given address. An empty address uses the
// configured host and port.
func (a *App) Run(addr string) error {
	server, err := a.newServer(addr)
	if err != nil {
		return err
	}
	a.server = server

	a.logger.Info("starting server", "address", server.Addr)

	return a.server.ListenAndServe()
}

// RunWithGracefulShutdown starts the server with graceful shutdown on SIGINT/SIGTERM.
func (a *App) RunWithGracefulShutdown(addr string) error {
	server, err := a.newServer(addr)
	if err != nil {
		return err
	}
	a.server = server

	serverErrors := make(chan error, 1)

	go func() {
		a.logger.Info("starting server", "address", server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		a.logger.Info("received signal, starting graceful shutdown", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
		defer cancel()

		if err := a.Shutdown(ctx); err != nil {
			a.logger.Error("graceful shutdown failed", "error", err)
			return a.server.Close()
		}

		a.logger.Info("server stopped gracefully")
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (a *App) Shutdown(ctx context.Context) error {
	for _, fn := range a.onShutdown {
		if err := fn(a); err != nil {
			a.logger.Error("onShutdown callback failed", "error", err)
		}
	}

	if a.server != nil {
		return a.server.Shutdown(ctx)
	}
	return nil
}
