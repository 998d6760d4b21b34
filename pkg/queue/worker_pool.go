package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// WorkerPool is an in-process Scheduler backed by a bounded channel.
// Enqueue blocks while the buffer is full, which pushes back on submitters.
type WorkerPool struct {
	jobs    chan Job
	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewWorkerPool creates a pool whose queue holds up to buffer jobs.
func NewWorkerPool(buffer int) *WorkerPool {
	if buffer <= 0 {
		buffer = 64
	}
	return &WorkerPool{jobs: make(chan Job, buffer)}
}

// Enqueue hands a job to the pool.
func (p *WorkerPool) Enqueue(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", job.ContentID, ctx.Err())
	}
}

// Start launches the workers. Handlers run detached from ctx cancellation so
// a started job always reaches its terminal write.
func (p *WorkerPool) Start(ctx context.Context, concurrency int, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler required")
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.started {
		return fmt.Errorf("worker pool already started")
	}
	p.started = true
	jobCtx := context.WithoutCancel(ctx)
	for i := 0; i < concurrency; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.run(jobCtx, handler, job)
			}
		}()
	}
	return nil
}

func (p *WorkerPool) run(ctx context.Context, handler Handler, job Job) {
	if err := runHandler(ctx, handler, job); err != nil {
		slog.Warn("job failed", "job_id", job.ID, "content_id", job.ContentID, "err", err)
	}
}

// Close stops intake, lets workers drain queued jobs and waits for them.
func (p *WorkerPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}
