package enrich

import (
	"context"
	"sync"
	"time"
)

// Future is the handle to a result computed in the background. It resolves
// exactly once.
type Future struct {
	once sync.Once
	done chan struct{}
	res  Result
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future that is already resolved to r.
func Resolved(r Result) *Future {
	f := newFuture()
	f.resolve(r)
	return f
}

// Pending returns an unresolved future and the function that resolves it.
// Calls after the first are ignored.
func Pending() (*Future, func(Result)) {
	f := newFuture()
	return f, f.resolve
}

func (f *Future) resolve(r Result) {
	f.once.Do(func() {
		f.res = r
		close(f.done)
	})
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Ready reports whether the result is available without blocking.
func (f *Future) Ready() bool {
	if f == nil {
		return false
	}
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the result resolves, ctx is done, or timeout elapses.
// A timeout of zero or less waits without limit. When the wait is abandoned
// the fail-open zero Result is returned with ok false.
func (f *Future) Wait(ctx context.Context, timeout time.Duration) (res Result, ok bool) {
	if f == nil {
		return Result{}, false
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case <-f.done:
		return f.res, true
	case <-ctx.Done():
		return Result{}, false
	}
}
