package onion

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
)

// Next invokes the remainder of the handler chain. It returns once every
// downstream handler has returned.
type Next func() error

// HandlerFunc is a unit of request-processing logic. Code before the call to
// next runs on the way in, code after it runs on the way out.
type HandlerFunc func(c *Context, next Next) error

// Compose chains handlers into a single HandlerFunc. The composed function
// accepts an optional terminal continuation (which may be nil) that runs after
// the last handler calls next.
//
// A nil handler fails immediately with ErrInvalidHandler. The returned function
// has the HandlerFunc signature, so a composed chain can itself be used as a
// handler inside another chain.
func Compose(handlers []HandlerFunc) (HandlerFunc, error) {
	for i, h := range handlers {
		if h == nil {
			return nil, fmt.Errorf("%w: handler at index %d is nil", ErrInvalidHandler, i)
		}
	}

	// Own a copy, later changes to the caller's slice must not alter the chain.
	chain := make([]HandlerFunc, len(handlers))
	copy(chain, handlers)

	return func(c *Context, terminal Next) error {
		d := &dispatcher{
			handlers: chain,
			terminal: terminal,
			ctx:      c,
			index:    -1,
		}
		return d.dispatch(0)
	}, nil
}

// MustCompose is like Compose but panics on an invalid handler list.
func MustCompose(handlers ...HandlerFunc) HandlerFunc {
	fn, err := Compose(handlers)
	if err != nil {
		panic(err)
	}
	return fn
}

// dispatcher walks one invocation of a composed chain. index is the position
// of the last dispatched handler and only ever moves forward.
type dispatcher struct {
	handlers []HandlerFunc
	terminal Next
	ctx      *Context
	index    int
}

func (d *dispatcher) dispatch(i int) (err error) {
	if i <= d.index {
		return ErrNextCalledMultipleTimes
	}
	d.index = i

	var fn HandlerFunc
	switch {
	case i < len(d.handlers):
		fn = d.handlers[i]
	case i == len(d.handlers) && d.terminal != nil:
		terminal := d.terminal
		fn = func(*Context, Next) error { return terminal() }
	}
	if fn == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			if isAbort(r) {
				panic(r)
			}
			err = newPanicError(r)
		}
	}()

	return fn(d.ctx, func() error { return d.dispatch(i + 1) })
}

// isAbort reports whether r is http.ErrAbortHandler, which must keep
// unwinding so net/http aborts the response.
func isAbort(r any) bool {
	err, ok := r.(error)
	return ok && errors.Is(err, http.ErrAbortHandler)
}

func newPanicError(r any) *PanicError {
	if pe, ok := r.(*PanicError); ok {
		return pe
	}
	return &PanicError{Value: r, Stack: debug.Stack()}
}
