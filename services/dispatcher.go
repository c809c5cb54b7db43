package services

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type dispatchJob struct {
	name string
	run  func(ctx context.Context)
}

// Dispatcher runs fan-out jobs on a fixed pool of goroutines so the triggering request can
// return before delivery finishes. Jobs are attempted once.
type Dispatcher struct {
	jobs chan dispatchJob
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
}

func NewDispatcher(workers, queueSize int, log *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		jobs:   make(chan dispatchJob, queueSize),
		ctx:    ctx,
		cancel: cancel,
		log:    log.Named("dispatcher"),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.log.Info("🚚 Fan-out dispatcher started", zap.Int("workers", workers), zap.Int("queue_size", queueSize))
	return d
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for job := range d.jobs {
		d.run(id, job)
	}
}

func (d *Dispatcher) run(id int, job dispatchJob) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("fan-out job panicked",
				zap.Int("worker", id),
				zap.String("job", job.name),
				zap.Any("panic", r))
		}
	}()
	job.run(d.ctx)
}

// Submit enqueues job without blocking. It returns false, and logs, when the queue is
// full or the dispatcher is shut down.
func (d *Dispatcher) Submit(name string, job func(ctx context.Context)) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("dispatcher closed, dropping job", zap.String("job", name))
		return false
	}

	select {
	case d.jobs <- dispatchJob{name: name, run: job}:
		return true
	default:
		d.log.Warn("fan-out queue full, dropping job", zap.String("job", name))
		return false
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish. If ctx expires first
// the in-flight jobs see their context cancelled.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		d.log.Info("⏹️ Fan-out dispatcher drained")
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}
