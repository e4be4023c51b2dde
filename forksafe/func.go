package forksafe

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument reports a caller mistake.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrNotForkSafe is returned by CallNoCheck for functions that were never wrapped.
var ErrNotForkSafe = fmt.Errorf("%w: function is not fork-safe, was it registered?", ErrInvalidArgument)

// Void is the argument type of wrapped functions that take none.
type Void = struct{}

// Decorator turns functions into fork-safe Funcs. Obtain one from Register.
type Decorator struct {
	c *Coordinator
}

// Func is a function guarded by fork detection.
// Only Apply, Apply0 and Wrap produce a usable Func.
type Func[A, R any] struct {
	fn       func(A) R
	strategy Strategy
}

// Apply wraps fn so that every Call first runs fork detection.
func Apply[A, R any](d Decorator, fn func(A) R) *Func[A, R] {
	if d.c == nil {
		panic("forksafe: Decorator was not obtained from Register")
	}
	if fn == nil {
		panic("forksafe: nil function")
	}
	return &Func[A, R]{fn: fn, strategy: d.c.strategy}
}

// Apply0 wraps a function that takes no argument.
func Apply0[R any](d Decorator, fn func() R) *Func[Void, R] {
	if fn == nil {
		panic("forksafe: nil function")
	}
	return Apply(d, func(Void) R { return fn() })
}

// Wrap registers afterInChild with c and wraps fn.
func Wrap[A, R any](c *Coordinator, afterInChild Hook, fn func(A) R) *Func[A, R] {
	return Apply(c.Register(afterInChild), fn)
}

// WrapDefault is Wrap on the process-wide coordinator.
func WrapDefault[A, R any](afterInChild Hook, fn func(A) R) *Func[A, R] {
	return Wrap(std, afterInChild, fn)
}

// Call runs fork detection, then fn. f must come from Apply, Apply0 or Wrap.
func (f *Func[A, R]) Call(arg A) R {
	if !f.ForkSafe() {
		panic("forksafe: Func was not produced by Apply")
	}
	f.strategy.Check()
	return f.fn(arg)
}

// ForkSafe reports whether f carries fork detection.
func (f *Func[A, R]) ForkSafe() bool {
	return f != nil && f.fn != nil && f.strategy != nil
}

// CallNoCheck runs f without fork detection for this one call. It fails with
// ErrNotForkSafe when f was not produced by Apply or Wrap.
func CallNoCheck[A, R any](f *Func[A, R], arg A) (R, error) {
	if !f.ForkSafe() {
		var zero R
		return zero, ErrNotForkSafe
	}
	return f.fn(arg), nil
}
