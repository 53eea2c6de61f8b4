package optimize

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// workerPool runs evaluation jobs on a fixed set of goroutines. Each job is
// one full backtest; concurrency never reaches inside a single run.
type workerPool struct {
	workers   int
	taskQueue chan func()
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	running   atomic.Bool
}

// newWorkerPool creates a pool. Zero workers defaults to runtime.NumCPU().
func newWorkerPool(parent context.Context, workers int) *workerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(parent)
	return &workerPool{
		workers:   workers,
		taskQueue: make(chan func(), workers*4),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (p *workerPool) start() {
	if p.running.Swap(true) {
		return
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			task()
		}
	}
}

// submit blocks until a worker accepts the task or the pool's context is
// cancelled. Returns false on cancellation.
func (p *workerPool) submit(task func()) bool {
	if !p.running.Load() {
		return false
	}
	select {
	case <-p.ctx.Done():
		return false
	case p.taskQueue <- task:
		return true
	}
}

// stop drains the queue and waits for in-flight tasks.
func (p *workerPool) stop() {
	if !p.running.Swap(false) {
		return
	}
	close(p.taskQueue)
	p.wg.Wait()
	p.cancel()
}

// abort cancels in-flight work and waits.
func (p *workerPool) abort() {
	if !p.running.Swap(false) {
		return
	}
	p.cancel()
	close(p.taskQueue)
	p.wg.Wait()
}
