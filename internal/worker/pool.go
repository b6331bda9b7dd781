// internal/worker/pool.go
package worker

import (
	"sync"
)

// Pool runs tasks with bounded concurrency
type Pool struct {
	wg      sync.WaitGroup
	workers chan struct{}
}

// NewPool creates a new worker pool with the specified number of workers
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		workers: make(chan struct{}, size),
	}
}

// Submit blocks until a worker is free, then runs task on it
func (p *Pool) Submit(task func()) {
	p.workers <- struct{}{} // Acquire a worker
	p.wg.Add(1)

	go func() {
		defer func() {
			<-p.workers // Release the worker
			p.wg.Done()
		}()

		task()
	}()
}

// Wait waits for all submitted tasks to complete
func (p *Pool) Wait() {
	p.wg.Wait()
}
