package receiver

import (
	"container/list"
	"sync"
	"time"
)

// executor is the single-threaded cooperative scheduler from §5: a
// dedicated goroutine runs every task FIFO, so the consumer handle is ever
// touched from exactly one place. It is modeled as an unbounded task queue
// rather than a fixed-size channel so that a task posting more work onto
// the executor from inside itself (a very common pattern here — PollTask
// reschedules itself, CommitTask reschedules retries) never blocks waiting
// for queue space.
type executor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   *list.List
	closed  bool
	stopped chan struct{}
}

func newExecutor() *executor {
	e := &executor{queue: list.New(), stopped: make(chan struct{})}
	e.cond = sync.NewCond(&e.mu)
	go e.run()
	return e
}

// Post enqueues fn to run on the executor goroutine. Safe to call from any
// goroutine, including the executor's own — this is how tasks reschedule
// themselves and how off-executor callers (demand signals, pause/resume,
// async commit callbacks) hand work back to the confined thread.
func (e *executor) Post(fn func()) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.queue.PushBack(fn)
	e.cond.Signal()
	e.mu.Unlock()
}

// PostDelayed runs fn once after d elapses, posted onto the executor like
// any other task so it still runs FIFO with whatever else is queued at the
// moment its timer fires.
func (e *executor) PostDelayed(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() { e.Post(fn) })
}

// PostPeriodic arms a ticker on an auxiliary goroutine that merely posts fn
// onto the executor on every tick — the ticking itself runs off-executor,
// matching §5's "periodic commit timer (on an auxiliary scheduler)". The
// returned stop func must be called at most once; a second call panics.
func (e *executor) PostPeriodic(d time.Duration, fn func()) (stop func()) {
	ticker := time.NewTicker(d)
	stopCh := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				e.Post(fn)
			case <-stopCh:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(stopCh) }
}

func (e *executor) run() {
	for {
		e.mu.Lock()
		for e.queue.Len() == 0 && !e.closed {
			e.cond.Wait()
		}
		if e.queue.Len() == 0 && e.closed {
			e.mu.Unlock()
			close(e.stopped)
			return
		}
		front := e.queue.Remove(e.queue.Front()).(func())
		e.mu.Unlock()
		front()
	}
}

// requestShutdown marks the executor closed (so it drains whatever is
// already queued, then stops) without waiting for that to happen. Safe to
// call from the executor's own goroutine, which Shutdown is not: a task
// running on the executor goroutine that blocked on <-e.stopped would be
// waiting for its own run() loop to come back around and close it.
func (e *executor) requestShutdown() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.cond.Broadcast()
	e.mu.Unlock()
}

// Shutdown drains whatever is already queued, then stops the goroutine, and
// blocks until that has happened. Tasks posted after Shutdown is called are
// silently dropped. Must only be called from outside the executor goroutine
// (see requestShutdown for the in-goroutine equivalent).
func (e *executor) Shutdown() {
	e.requestShutdown()
	<-e.stopped
}
