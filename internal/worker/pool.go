// Package worker runs background tasks off the request path.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Task is a unit of background work.
type Task func(ctx context.Context) error

type job struct {
	name string
	fn   Task
}

// Pool executes fire-and-forget tasks on a fixed set of goroutines and
// bounds synchronous work submitted through Do. Task errors and panics are
// logged and never reach the submitter.
type Pool struct {
	queue  chan job
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	succeeded atomic.Int64
	failed    atomic.Int64
}

// New starts a pool with concurrency workers and a queue of queueSize.
func New(concurrency, queueSize int) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		queue:  make(chan job, queueSize),
		sem:    semaphore.NewWeighted(int64(concurrency)),
		ctx:    ctx,
		cancel: cancel,
	}
	for range concurrency {
		p.wg.Add(1)
		go p.loop()
	}
	return p
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for j := range p.queue {
		p.run(j)
	}
}

// Go schedules fn and returns immediately. When the queue is full the task
// runs on its own goroutine instead of blocking the caller. Tasks submitted
// after Close are dropped with a warning.
func (p *Pool) Go(name string, fn Task) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		zap.L().Warn("worker: pool closed, task dropped", zap.String("task", name))
		return
	}

	j := job{name: name, fn: fn}
	select {
	case p.queue <- j:
	default:
		zap.L().Debug("worker: queue full, running task inline", zap.String("task", name))
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(j)
		}()
	}
}

// Do runs fn once a slot is free and returns its error. It gives up when ctx
// is done before a slot frees up. Panics in fn are returned as errors.
func (p *Pool) Do(ctx context.Context, fn Task) (err error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return eris.Wrap(err, "worker: acquire slot")
	}
	defer p.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("worker: task panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func (p *Pool) run(j job) {
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			zap.L().Error("worker: task panicked",
				zap.String("task", j.name),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	if err := j.fn(p.ctx); err != nil {
		p.failed.Add(1)
		zap.L().Error("worker: task failed", zap.String("task", j.name), zap.Error(err))
		return
	}
	p.succeeded.Add(1)
}

// Stats returns the number of finished background tasks by outcome.
func (p *Pool) Stats() (succeeded, failed int64) {
	return p.succeeded.Load(), p.failed.Load()
}

// Close stops accepting tasks and waits for queued ones to finish. If ctx
// ends first, running tasks see their context cancelled and Close returns
// ctx's error.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return eris.Wrap(ctx.Err(), "worker: close")
	}
}
