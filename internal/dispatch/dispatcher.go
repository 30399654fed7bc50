package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

// ErrStopped is returned by Shutdown when called more than once.
var ErrStopped = errors.New("dispatcher already stopped")

// Task is a unit of detached work. Its error is logged and discarded.
type Task func(ctx context.Context) error

type Dispatcher struct {
	taskCh  chan Task
	workers int
	logger  *slog.Logger

	// mutex guards closed against concurrent Submit and Shutdown.
	mutex  sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	submitted atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// New creates a dispatcher with the given worker count and queue capacity.
// Values below one are raised to one.
func New(workers, queueSize int, logger *slog.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		taskCh:  make(chan Task, max(queueSize, 1)),
		workers: max(workers, 1),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	d.logger.Info("Dispatcher started",
		slog.Int("workers", d.workers),
		slog.Int("queue_size", cap(d.taskCh)))

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
}

// Submit enqueues task without blocking. It reports false when the task was
// dropped because the queue is full or the dispatcher is shutting down.
func (d *Dispatcher) Submit(task Task) bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	if d.closed {
		d.dropped.Add(1)
		return false
	}

	select {
	case d.taskCh <- task:
		d.submitted.Add(1)
		return true
	default:
		d.dropped.Add(1)
		d.logger.Debug("Task queue full, dropping task")
		return false
	}
}

// Shutdown stops intake and waits for queued and running tasks. If ctx ends
// first, running tasks see their context cancelled and ctx.Err is returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mutex.Lock()
	if d.closed {
		d.mutex.Unlock()
		return ErrStopped
	}
	d.closed = true
	close(d.taskCh)
	d.mutex.Unlock()

	d.logger.Info("Draining background tasks", slog.Int("pending", len(d.taskCh)))

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		d.logger.Info("Dispatcher stopped",
			slog.String("submitted", humanize.Comma(d.submitted.Load())),
			slog.String("dropped", humanize.Comma(d.dropped.Load())),
			slog.String("failed", humanize.Comma(d.failed.Load())))
		return nil
	case <-ctx.Done():
		d.cancel()
		return fmt.Errorf("waiting for background tasks: %w", ctx.Err())
	}
}

// Stats returns the submitted, dropped and failed task counts.
func (d *Dispatcher) Stats() (submitted, dropped, failed int64) {
	return d.submitted.Load(), d.dropped.Load(), d.failed.Load()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for task := range d.taskCh {
		d.execute(task)
	}
}

func (d *Dispatcher) execute(task Task) {
	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			d.logger.Error("Background task panicked", slog.Any("panic", r))
		}
	}()

	if err := task(d.ctx); err != nil {
		d.failed.Add(1)
		d.logger.Debug("Background task failed", slog.Any("err", err))
	}
}
