// Package worker serializes work per key on dedicated goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrStopped is returned when work is submitted after Stop.
var ErrStopped = errors.New("dispatcher stopped")

// Config controls queue sizing and idle shutdown.
type Config struct {
	QueueSize   int
	IdleTimeout time.Duration
}

type job struct {
	ctx    context.Context
	fn     func(context.Context) error
	result chan error
}

type queue struct {
	jobs    chan job
	pending int
}

// Dispatcher runs submitted functions one at a time per key, in submission
// order. Each key gets its own goroutine that exits after IdleTimeout with
// nothing queued.
type Dispatcher struct {
	cfg Config

	mu      sync.Mutex
	queues  map[string]*queue
	stopped bool
	quit    chan struct{}
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	return &Dispatcher{
		cfg:    cfg,
		queues: make(map[string]*queue),
		quit:   make(chan struct{}),
	}
}

// Do runs fn on the queue for key and waits for it to finish.
// Calls for the same key never overlap.
func (d *Dispatcher) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	q, err := d.acquire(key)
	if err != nil {
		return err
	}

	j := job{ctx: ctx, fn: fn, result: make(chan error, 1)}
	select {
	case q.jobs <- j:
	case <-ctx.Done():
		d.release(q)
		return ctx.Err()
	}

	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		// The job still runs; its result is dropped.
		return ctx.Err()
	}
}

// Active returns the number of keys with a live goroutine.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

// Stop prevents new submissions and waits for queued work to drain.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.quit)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) acquire(key string) (*queue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return nil, ErrStopped
	}

	q, ok := d.queues[key]
	if !ok {
		q = &queue{jobs: make(chan job, d.cfg.QueueSize)}
		d.queues[key] = q
		d.wg.Add(1)
		go d.run(key, q)
	}
	q.pending++
	return q, nil
}

func (d *Dispatcher) release(q *queue) {
	d.mu.Lock()
	q.pending--
	d.mu.Unlock()
}

func (d *Dispatcher) run(key string, q *queue) {
	defer d.wg.Done()

	idle := time.NewTimer(d.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case j := <-q.jobs:
			d.finish(key, q, j)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(d.cfg.IdleTimeout)
		case <-idle.C:
			if d.retire(key, q) {
				return
			}
			idle.Reset(d.cfg.IdleTimeout)
		case <-d.quit:
			d.drain(key, q)
			return
		}
	}
}

// drain runs whatever is still queued after Stop and then retires the queue.
func (d *Dispatcher) drain(key string, q *queue) {
	for !d.retire(key, q) {
		select {
		case j := <-q.jobs:
			d.finish(key, q, j)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (d *Dispatcher) finish(key string, q *queue, j job) {
	j.result <- d.execute(key, j)
	d.release(q)
}

func (d *Dispatcher) retire(key string, q *queue) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if q.pending > 0 {
		return false
	}
	delete(d.queues, key)
	return true
}

func (d *Dispatcher) execute(key string, j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Worker job panicked", "key", key, "panic", r)
			err = fmt.Errorf("worker job for %s panicked: %v", key, r)
		}
	}()
	if err := j.ctx.Err(); err != nil {
		return err
	}
	return j.fn(j.ctx)
}
