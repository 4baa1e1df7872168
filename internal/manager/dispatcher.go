package manager

import (
	"fmt"
	"sync"

	"collab-drive/pkg/logger"
)

// Dispatcher is the small pool of background workers that executes all
// store and transport calls. Nothing runs on the caller's goroutine;
// results come back through status observers, and failures never
// propagate across the worker boundary.
type Dispatcher struct {
	tasks     chan func()
	wg        sync.WaitGroup
	closeOnce sync.Once
	logger    *logger.Logger
}

// NewDispatcher starts a pool with the given worker count. A count of
// zero or less falls back to four workers.
func NewDispatcher(workers int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}

	d := &Dispatcher{
		tasks:  make(chan func(), 64),
		logger: logger.NewWithComponent("dispatcher"),
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for task := range d.tasks {
		d.run(task)
	}
}

// run executes one task, containing panics so a misbehaving operation
// cannot take a worker down.
func (d *Dispatcher) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error(fmt.Sprintf("Recovered panic in background task: %v", r))
		}
	}()
	task()
}

// Submit queues a task for background execution. Blocks when the queue
// is full rather than dropping work.
func (d *Dispatcher) Submit(task func()) {
	d.tasks <- task
}

// Close stops accepting tasks and waits for in-flight work to finish.
// In-flight operations run to completion; there is no cancellation.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.tasks)
	})
	d.wg.Wait()
}
