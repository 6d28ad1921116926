package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrAdmissionRejected indicates a delivery was turned away before any
	// network attempt: the waiting queue was full, or no slot freed within
	// the admission timeout. Callers should treat it as back-pressure.
	ErrAdmissionRejected = errors.New("dispatch: admission rejected")

	// ErrDispatcherClosed indicates a delivery was attempted after Close.
	ErrDispatcherClosed = errors.New("dispatch: dispatcher closed")
)

// gate bounds concurrent deliveries. Up to maxConcurrent callers hold a
// permit at once; at most queueCapacity further callers wait for one, each
// for no longer than the admission timeout.
type gate struct {
	sem     *semaphore.Weighted
	permits int64
	timeout time.Duration

	mu       sync.Mutex
	waiting  int
	capacity int
	closed   bool
}

func newGate(maxConcurrent, queueCapacity int, timeout time.Duration) *gate {
	return &gate{
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		permits:  int64(maxConcurrent),
		timeout:  timeout,
		capacity: queueCapacity,
	}
}

// acquire reserves a delivery slot. The returned release function is safe to
// call more than once; exactly one call returns the permit.
func (g *gate) acquire(ctx context.Context) (func(), error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, ErrDispatcherClosed
	}
	if g.sem.TryAcquire(1) {
		g.mu.Unlock()
		return g.releaseOnce(), nil
	}
	if g.waiting >= g.capacity {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: %d callers already waiting", ErrAdmissionRejected, g.capacity)
	}
	g.waiting++
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.waiting--
		g.mu.Unlock()
	}()

	waitCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: no slot freed within %s", ErrAdmissionRejected, g.timeout)
	}
	return g.releaseOnce(), nil
}

func (g *gate) releaseOnce() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			g.sem.Release(1)
		})
	}
}

// close stops new admissions and blocks until every permit is returned, which
// means all admitted deliveries have finished. The context bounds the wait.
// Callers already queued when close begins are still served in order.
func (g *gate) close(ctx context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.mu.Unlock()

	if err := g.sem.Acquire(ctx, g.permits); err != nil {
		return fmt.Errorf("waiting for in-flight deliveries: %w", err)
	}
	return nil
}
