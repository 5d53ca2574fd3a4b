package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xxxsen/common/logutil"

	appErr "github.com/kvander/bookdex/internal/pkg/errors"
)

// Task is one independently schedulable unit of work. Run may return
// follow-up tasks; they are dispatched only after Run succeeds, which is
// how ordering dependencies between stages are enforced.
type Task struct {
	Name string
	Run  func(ctx context.Context) ([]Task, error)
}

type Dispatcher struct {
	queue   chan Task
	workers int

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		queue:   make(chan Task, queueSize),
		workers: workers,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
}

// Submit enqueues a task without blocking. A full queue is reported to
// the caller instead of stalling the request path.
func (d *Dispatcher) Submit(task Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("dispatcher stopped: %w", appErr.ErrInternal)
	}
	select {
	case d.queue <- task:
		return nil
	default:
		return fmt.Errorf("task queue full: %w", appErr.ErrTooMany)
	}
}

// Stop rejects further submissions and waits for queued tasks to drain.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	for task := range d.queue {
		select {
		case <-ctx.Done():
			logutil.GetLogger(ctx).Info("worker dropping task on shutdown",
				zap.Int("worker", id), zap.String("task", task.Name))
			continue
		default:
		}
		d.runTask(ctx, id, task)
	}
}

func (d *Dispatcher) runTask(ctx context.Context, workerID int, task Task) {
	logger := logutil.GetLogger(ctx).With(
		zap.Int("worker", workerID),
		zap.String("task", task.Name),
	)
	start := time.Now()
	followups, err := task.Run(ctx)
	if err != nil {
		logger.Error("task failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return
	}
	logger.Info("task finished", zap.Duration("duration", time.Since(start)))
	for _, next := range followups {
		if err := d.Submit(next); err != nil {
			// A full queue from inside a worker would otherwise drop the
			// chained stage; run it on this worker instead.
			logger.Warn("inline follow-up, queue unavailable",
				zap.String("next", next.Name), zap.Error(err))
			d.runTask(ctx, workerID, next)
		}
	}
}
