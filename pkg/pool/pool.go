// Package pool runs tasks on a bounded set of short-lived goroutines.
//
// No worker idles: a goroutine is started when a task is queued and exits once the
// queue is empty. When the queue is full the submitting goroutine runs the task itself,
// so submission never blocks on and never rejects work.
package pool

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/glorpus-work/pkgconnect/internal/logger"
)

// Defaults used when Options leave a field at zero.
const (
	DefaultMaxWorkers = 2
	DefaultQueueSize  = 64
)

// Options configure a Pool.
type Options struct {
	MaxWorkers int
	QueueSize  int
}

// ErrClosed is returned when a task is enqueued after Close.
var ErrClosed = fmt.Errorf("pool is closed")

// Pool is a bounded, zero-idle worker pool with caller-runs overflow.
type Pool struct {
	sem   *semaphore.Weighted
	queue chan *Task
	wg    sync.WaitGroup

	// mu orders worker starts before a final Wait.
	mu     sync.RWMutex
	closed bool
}

// New creates a pool.
func New(opts Options) *Pool {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = DefaultMaxWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return &Pool{
		sem:   semaphore.NewWeighted(int64(opts.MaxWorkers)),
		queue: make(chan *Task, opts.QueueSize),
	}
}

// Submit schedules fn. If the queue is full fn runs before Submit returns.
// After Close the returned task is already cancelled.
func (p *Pool) Submit(fn func()) *Task {
	t := NewTask(fn)
	_ = p.Enqueue(t)
	return t
}

// Enqueue schedules a task created with NewTask. If the queue is full t runs before
// Enqueue returns. After Close, t is cancelled and ErrClosed is returned.
func (p *Pool) Enqueue(t *Task) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		t.Cancel()
		return ErrClosed
	}
	select {
	case p.queue <- t:
		p.spawn()
		p.mu.RUnlock()
	default:
		p.mu.RUnlock()
		logger.Debug("Pool queue full, running task on caller")
		t.run()
	}
	return nil
}

// Close rejects further tasks. Queued tasks still run.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Pending returns the number of queued tasks not yet picked up.
func (p *Pool) Pending() int {
	return len(p.queue)
}

// Wait blocks until every worker started so far has exited. Tasks enqueued while Wait
// runs may start new workers; call Close first for a final Wait.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) spawn() {
	if !p.sem.TryAcquire(1) {
		return
	}
	p.wg.Add(1)
	go p.work()
}

// work drains the queue, then gives its slot back. A task queued between the last
// receive and the release would otherwise be stranded, so the queue is checked again.
func (p *Pool) work() {
	defer p.wg.Done()
	for {
		p.drain()
		p.sem.Release(1)
		if len(p.queue) == 0 || !p.sem.TryAcquire(1) {
			return
		}
	}
}

func (p *Pool) drain() {
	for {
		select {
		case t := <-p.queue:
			t.run()
		default:
			return
		}
	}
}

const (
	statePending int32 = iota
	stateRunning
	stateDone
	stateCancelled
)

// Task is a handle to a submitted function.
type Task struct {
	fn    func()
	state atomic.Int32
	done  chan struct{}
}

// NewTask wraps fn in a pending task. It runs once passed to Enqueue, unless cancelled first.
func NewTask(fn func()) *Task {
	return &Task{fn: fn, done: make(chan struct{})}
}

// Cancel prevents the task from starting. It returns false if the task already started.
func (t *Task) Cancel() bool {
	if t.state.CompareAndSwap(statePending, stateCancelled) {
		close(t.done)
		return true
	}
	return false
}

// Cancelled reports whether Cancel succeeded.
func (t *Task) Cancelled() bool {
	return t.state.Load() == stateCancelled
}

// Done is closed when the task has finished or was cancelled.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) run() {
	if !t.state.CompareAndSwap(statePending, stateRunning) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Pool task panicked", logger.Fields{"panic": fmt.Sprint(r)})
		}
		t.state.Store(stateDone)
		close(t.done)
	}()
	t.fn()
}
