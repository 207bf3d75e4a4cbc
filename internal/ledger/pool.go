package ledger

import (
	"context"
	"sync"
)

// Pool is a bounded worker pool for transfer execution. A fixed number of
// workers drain a job channel, capping how many transfers run concurrently
// regardless of how many requests arrive.
type Pool struct {
	jobs chan func()
	wg   sync.WaitGroup

	closeOnce sync.Once
}

// DefaultPoolWorkers matches the historical executor width.
const DefaultPoolWorkers = 10

// NewPool starts a pool with the given number of workers.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = DefaultPoolWorkers
	}

	p := &Pool{
		jobs: make(chan func()),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job()
			}
		}()
	}
	return p
}

// Submit runs fn on a pool worker and blocks until it finishes. The context
// is honored while the job is queued; once a worker picks it up the job runs
// to completion.
func (p *Pool) Submit(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)

	wrapped := func() { done <- fn() }

	select {
	case p.jobs <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	}

	return <-done
}

// Close stops the workers after the queued jobs drain.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}
