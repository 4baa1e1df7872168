package manager

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatcher_RunsSubmittedTasks(t *testing.T) {
	d := NewDispatcher(2)

	var count int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		d.Submit(func() {
			defer wg.Done()
			atomic.AddInt64(&count, 1)
		})
	}
	wg.Wait()
	d.Close()

	assert.Equal(t, int64(50), atomic.LoadInt64(&count))
}

func TestDispatcher_CloseWaitsForInFlightWork(t *testing.T) {
	d := NewDispatcher(1)

	var done int64
	d.Submit(func() { atomic.AddInt64(&done, 1) })
	d.Submit(func() { atomic.AddInt64(&done, 1) })
	d.Close()

	assert.Equal(t, int64(2), atomic.LoadInt64(&done), "Close must drain queued tasks")
}

func TestDispatcher_RecoversPanics(t *testing.T) {
	d := NewDispatcher(1)

	var after int64
	d.Submit(func() { panic("boom") })
	d.Submit(func() { atomic.AddInt64(&after, 1) })
	d.Close()

	assert.Equal(t, int64(1), atomic.LoadInt64(&after), "A panicking task must not kill the worker")
}

func TestDispatcher_CloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(1)
	d.Close()
	assert.NotPanics(t, func() { d.Close() })
}

func TestDispatcher_DefaultWorkerCount(t *testing.T) {
	d := NewDispatcher(0)
	defer d.Close()

	done := make(chan struct{})
	d.Submit(func() { close(done) })
	<-done
}
