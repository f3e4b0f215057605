package batcher

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned when a timer is requested after Stop (or before Start).
var ErrStopped = errors.New("scheduler not running")

type activeTimer struct {
	cancel context.CancelFunc
}

// timerRegistry owns the conversation → timer map. Its lifetime is bounded by
// start/stop; stop cancels every timer and waits for their goroutines.
type timerRegistry struct {
	mu      sync.Mutex
	timers  map[int64]*activeTimer
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func newTimerRegistry() *timerRegistry {
	return &timerRegistry{timers: make(map[int64]*activeTimer)}
}

func (r *timerRegistry) start(parent context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.ctx, r.cancel = context.WithCancel(parent)
	r.running = true
}

// ensure starts run in its own goroutine unless a timer already exists for id.
// created is false when the call was a no-op.
func (r *timerRegistry) ensure(id int64, run func(ctx context.Context, t *activeTimer)) (created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return false, ErrStopped
	}
	if _, ok := r.timers[id]; ok {
		return false, nil
	}

	ctx, cancel := context.WithCancel(r.ctx)
	t := &activeTimer{cancel: cancel}
	r.timers[id] = t

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		run(ctx, t)
	}()
	return true, nil
}

// remove drops t from the map if it is still the registered timer for id.
func (r *timerRegistry) remove(id int64, t *activeTimer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.timers[id]; ok && cur == t {
		delete(r.timers, id)
		return true
	}
	return false
}

func (r *timerRegistry) has(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[id]
	return ok
}

func (r *timerRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// stop cancels all timers and blocks until every tick goroutine has returned.
func (r *timerRegistry) stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.timers = make(map[int64]*activeTimer)
	r.mu.Unlock()

	r.wg.Wait()
}
