package onion

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext() *Context {
	return NewContext(httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestComposeOnionOrder(t *testing.T) {
	var order []int
	fn := MustCompose(
		func(c *Context, next Next) error {
			order = append(order, 1)
			err := next()
			order = append(order, 6)
			return err
		},
		func(c *Context, next Next) error {
			order = append(order, 2)
			err := next()
			order = append(order, 5)
			return err
		},
		func(c *Context, next Next) error {
			order = append(order, 3)
			err := next()
			order = append(order, 4)
			return err
		},
	)

	require.NoError(t, fn(newTestContext(), nil))
	if diff := cmp.Diff([]int{1, 2, 3, 4, 5, 6}, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestComposeTerminal(t *testing.T) {
	var order []string
	fn := MustCompose(func(c *Context, next Next) error {
		order = append(order, "a")
		return next()
	})

	err := fn(newTestContext(), func() error {
		order = append(order, "terminal")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "terminal"}, order)
}

func TestComposeEmptyChain(t *testing.T) {
	fn, err := Compose(nil)
	require.NoError(t, err)

	// No handlers and no terminal.
	assert.NoError(t, fn(newTestContext(), nil))

	called := false
	err = fn(newTestContext(), func() error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called, "terminal should run for an empty chain")
}

func TestComposeTerminalError(t *testing.T) {
	boom := errors.New("boom")
	fn := MustCompose(func(c *Context, next Next) error { return next() })

	err := fn(newTestContext(), func() error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestComposeNextCalledTwice(t *testing.T) {
	calls := 0
	fn := MustCompose(
		func(c *Context, next Next) error {
			if err := next(); err != nil {
				return err
			}
			return next()
		},
		func(c *Context, next Next) error {
			calls++
			return nil
		},
	)

	err := fn(newTestContext(), nil)
	assert.ErrorIs(t, err, ErrNextCalledMultipleTimes)
	assert.Equal(t, 1, calls, "downstream handler must run once")
}

func TestComposeNextCalledTwiceCaught(t *testing.T) {
	// The error can be handled by an outer handler like any other error.
	var caught error
	fn := MustCompose(
		func(c *Context, next Next) error {
			caught = next()
			return nil
		},
		func(c *Context, next Next) error {
			_ = next()
			return next()
		},
	)

	require.NoError(t, fn(newTestContext(), nil))
	assert.ErrorIs(t, caught, ErrNextCalledMultipleTimes)
}

func TestComposeShortCircuit(t *testing.T) {
	reached := false
	fn := MustCompose(
		func(c *Context, next Next) error {
			c.Response.SetBody("stopped")
			return nil
		},
		func(c *Context, next Next) error {
			reached = true
			return next()
		},
	)

	terminal := false
	require.NoError(t, fn(newTestContext(), func() error {
		terminal = true
		return nil
	}))
	assert.False(t, reached)
	assert.False(t, terminal)
}

func TestComposePanicAndErrorAreEquivalent(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		handler HandlerFunc
	}{
		{"returned", func(c *Context, next Next) error { return boom }},
		{"panicked", func(c *Context, next Next) error { panic(boom) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen error
			fn := MustCompose(
				func(c *Context, next Next) error {
					seen = next()
					return seen
				},
				tt.handler,
			)

			err := fn(newTestContext(), nil)
			assert.ErrorIs(t, err, boom)
			assert.ErrorIs(t, seen, boom)
		})
	}
}

func TestComposePanicValue(t *testing.T) {
	fn := MustCompose(func(c *Context, next Next) error {
		panic("kaboom")
	})

	err := fn(newTestContext(), nil)
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestComposeUpstreamRecovers(t *testing.T) {
	fn := MustCompose(
		func(c *Context, next Next) error {
			if err := next(); err != nil {
				c.Response.SetBody("recovered")
			}
			return nil
		},
		func(c *Context, next Next) error {
			panic("downstream")
		},
	)

	c := newTestContext()
	require.NoError(t, fn(c, nil))
	assert.Equal(t, "recovered", c.Response.Body())
	assert.Equal(t, http.StatusOK, c.Response.Status())
}

func TestComposeAbortHandlerKeepsPanicking(t *testing.T) {
	fn := MustCompose(
		func(c *Context, next Next) error { return next() },
		func(c *Context, next Next) error { panic(http.ErrAbortHandler) },
	)

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		_ = fn(newTestContext(), nil)
	})
}

func TestComposeRejectsNilHandler(t *testing.T) {
	ok := func(c *Context, next Next) error { return next() }

	fn, err := Compose([]HandlerFunc{ok, nil})
	assert.Nil(t, fn)
	assert.ErrorIs(t, err, ErrInvalidHandler)
	assert.Contains(t, err.Error(), "index 1")

	assert.Panics(t, func() { MustCompose(nil) })
}

func TestComposeCopiesHandlers(t *testing.T) {
	var order []string
	handlers := []HandlerFunc{
		func(c *Context, next Next) error {
			order = append(order, "original")
			return next()
		},
	}
	fn, err := Compose(handlers)
	require.NoError(t, err)

	handlers[0] = func(c *Context, next Next) error {
		order = append(order, "replaced")
		return next()
	}

	require.NoError(t, fn(newTestContext(), nil))
	assert.Equal(t, []string{"original"}, order)
}

func TestComposeNested(t *testing.T) {
	var order []string
	step := func(name string) HandlerFunc {
		return func(c *Context, next Next) error {
			order = append(order, name+">")
			err := next()
			order = append(order, "<"+name)
			return err
		}
	}

	inner := MustCompose(step("b"), step("c"))
	outer := MustCompose(step("a"), inner, step("d"))

	require.NoError(t, outer(newTestContext(), nil))
	want := []string{"a>", "b>", "c>", "d>", "<d", "<c", "<b", "<a"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("nested order mismatch (-want +got):\n%s", diff)
	}
}

func TestComposeReusable(t *testing.T) {
	count := 0
	fn := MustCompose(func(c *Context, next Next) error {
		count++
		return next()
	})

	for range 3 {
		require.NoError(t, fn(newTestContext(), nil))
	}
	assert.Equal(t, 3, count)
}
