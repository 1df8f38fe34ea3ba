package fraud

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadyWaiting is returned by Register when a wait for the key is
// already in flight.
var ErrAlreadyWaiting = errors.New("fraud: a wait is already registered for this key")

// Future is a single-assignment value.
type Future[V any] struct {
	done  chan struct{}
	once  sync.Once
	value V
}

func newFuture[V any]() *Future[V] {
	return &Future[V]{done: make(chan struct{})}
}

// Done is closed once the value is set.
func (f *Future[V]) Done() <-chan struct{} { return f.done }

// Value returns the resolved value. Only meaningful after Done is closed.
func (f *Future[V]) Value() V { return f.value }

// Wait blocks until the value is set or ctx ends.
func (f *Future[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-f.done:
		return f.value, nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

func (f *Future[V]) set(v V) bool {
	set := false
	f.once.Do(func() {
		f.value = v
		close(f.done)
		set = true
	})
	return set
}

// Correlator matches asynchronous responses to waiting requests by key.
// At most one wait per key is in flight.
type Correlator[K comparable, V any] struct {
	mu      sync.Mutex
	pending map[K]*Future[V]
}

func NewCorrelator[K comparable, V any]() *Correlator[K, V] {
	return &Correlator[K, V]{pending: make(map[K]*Future[V])}
}

// Register opens a wait for key.
func (c *Correlator[K, V]) Register(key K) (*Future[V], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.pending[key]; exists {
		return nil, ErrAlreadyWaiting
	}
	f := newFuture[V]()
	c.pending[key] = f
	return f, nil
}

// Resolve hands v to the waiter for key. It reports false when nobody is
// waiting, including when an earlier delivery already resolved the key.
func (c *Correlator[K, V]) Resolve(key K, v V) bool {
	c.mu.Lock()
	f, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	return f.set(v)
}

// Forget drops the wait for key if it still belongs to f. Safe to call after
// Resolve.
func (c *Correlator[K, V]) Forget(key K, f *Future[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.pending[key]; ok && current == f {
		delete(c.pending, key)
	}
}

// Pending returns the number of open waits.
func (c *Correlator[K, V]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
