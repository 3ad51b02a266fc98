// Package pool runs detached analysis tasks on a fixed number of goroutines.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/Intelligenter/internal/metrics"
)

var (
	// ErrPoolSaturated is returned by Submit when the queue is full.
	ErrPoolSaturated = errors.New("pool: queue is full")
	// ErrPoolClosed is returned once Shutdown has been called.
	ErrPoolClosed = errors.New("pool: closed")
)

// Task is a unit of work. It receives the pool's run context, not the
// context of whoever submitted it.
type Task func(ctx context.Context) error

// Handle tracks a submitted task.
type Handle struct {
	name string
	done chan struct{}
	err  error
}

func newHandle(name string) *Handle {
	return &Handle{name: name, done: make(chan struct{})}
}

// Name is the label the task was submitted with.
func (h *Handle) Name() string { return h.name }

// Done is closed when the task has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the task error. It is only meaningful after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or ctx ends. Giving up on the wait
// does not cancel the task.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) finish(err error) {
	h.err = err
	close(h.done)
}

type job struct {
	task   Task
	handle *Handle
}

// WorkerPool manages a fixed-size pool of goroutines fed by a bounded queue.
type WorkerPool struct {
	size   int
	queue  chan job
	quit   chan struct{}
	logger *zap.Logger

	wg sync.WaitGroup
	// mu is held shared by senders so Shutdown can wait out in-flight sends.
	mu       sync.RWMutex
	started  bool
	closed   bool
	shutdown sync.Once
}

// NewWorkerPool creates a pool of size workers with room for queueSize
// waiting tasks.
func NewWorkerPool(size, queueSize int, logger *zap.Logger) *WorkerPool {
	if size < 1 {
		size = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &WorkerPool{
		size:   size,
		queue:  make(chan job, queueSize),
		quit:   make(chan struct{}),
		logger: logger,
	}
}

// Start launches the workers. Tasks run with a context derived from ctx
// with cancellation removed, so they outlive the caller that submitted them.
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	runCtx := context.WithoutCancel(ctx)
	p.logger.Info("Starting worker pool", zap.Int("pool_size", p.size), zap.Int("queue_size", cap(p.queue)))

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(runCtx, i)
	}
}

// Submit enqueues task without blocking.
func (p *WorkerPool) Submit(name string, task Task) (*Handle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrPoolClosed
	}

	h := newHandle(name)
	select {
	case p.queue <- job{task: task, handle: h}:
		return h, nil
	default:
		return nil, ErrPoolSaturated
	}
}

// SubmitWait enqueues task, waiting for queue capacity until ctx ends.
func (p *WorkerPool) SubmitWait(ctx context.Context, name string, task Task) (*Handle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrPoolClosed
	}

	h := newHandle(name)
	select {
	case p.queue <- job{task: task, handle: h}:
		return h, nil
	case <-p.quit:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops accepting tasks, lets the workers drain the queue and waits
// for them until ctx ends. Tasks still queued when ctx ends are failed with
// ErrPoolClosed.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.shutdown.Do(func() {
		close(p.quit)
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		p.logger.Info("Worker pool stopped")
	case <-ctx.Done():
		err = fmt.Errorf("pool: shutdown: %w", ctx.Err())
	}

	p.abandonQueued()
	return err
}

func (p *WorkerPool) abandonQueued() {
	for {
		select {
		case j := <-p.queue:
			j.handle.finish(ErrPoolClosed)
		default:
			return
		}
	}
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.Debug("Worker started", zap.Int("worker_id", id))

	for {
		select {
		case j := <-p.queue:
			p.run(ctx, id, j)
		case <-p.quit:
			// Drain whatever was queued before shutdown.
			for {
				select {
				case j := <-p.queue:
					p.run(ctx, id, j)
				default:
					p.logger.Debug("Worker shutting down", zap.Int("worker_id", id))
					return
				}
			}
		}
	}
}

func (p *WorkerPool) run(ctx context.Context, id int, j job) {
	metrics.WorkersActive.Inc()
	start := time.Now()

	err := p.safeRun(ctx, j)

	metrics.WorkersActive.Dec()
	if err != nil {
		p.logger.Warn("Task finished with error",
			zap.Int("worker_id", id),
			zap.String("task", j.handle.name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
	}
	j.handle.finish(err)
}

func (p *WorkerPool) safeRun(ctx context.Context, j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Worker panic recovered",
				zap.String("task", j.handle.name),
				zap.Any("panic", r),
			)
			err = fmt.Errorf("pool: task %s panicked: %v", j.handle.name, r)
		}
	}()
	return j.task(ctx)
}
