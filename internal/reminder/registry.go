package reminder

import (
	"context"
	"sync"
)

// Registry maps a reminder id to the cancel handle of its live wait
// goroutine. Membership implies a live worker exists for that id; absence
// implies none does. All operations are atomic under one mutex, which is
// what upholds "at most one live wait per reminder".
type Registry struct {
	mu   sync.Mutex
	live map[int64]context.CancelFunc
	wg   sync.WaitGroup
}

func NewRegistry() *Registry {
	return &Registry{live: make(map[int64]context.CancelFunc)}
}

// Schedule spawns run in a new goroutine unless id is already live.
// It reports whether a goroutine was actually started, so calling it twice
// for the same id (e.g. a re-run reconciliation) is a safe no-op.
//
// run must call Deregister(id) before returning.
func (r *Registry) Schedule(parent context.Context, id int64, run func(ctx context.Context)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[id]; ok {
		return false
	}
	ctx, cancel := context.WithCancel(parent)
	r.live[id] = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		run(ctx)
	}()
	return true
}

// Cancel removes the entry and signals the worker. It reports whether an
// entry was found (a miss is an expected outcome, not an error).
func (r *Registry) Cancel(id int64) bool {
	r.mu.Lock()
	cancel, ok := r.live[id]
	if ok {
		delete(r.live, id)
	}
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Deregister is the worker's self-removal on natural completion
// (delivered, or found its row already gone). Idempotent.
func (r *Registry) Deregister(id int64) {
	r.mu.Lock()
	delete(r.live, id)
	r.mu.Unlock()
}

// Len reports the number of live workers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// CancelAll signals every live worker and clears the registry.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(r.live))
	for id, c := range r.live {
		cancels = append(cancels, c)
		delete(r.live, id)
	}
	r.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

// Wait blocks until every worker goroutine has exited or ctx is done.
func (r *Registry) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
