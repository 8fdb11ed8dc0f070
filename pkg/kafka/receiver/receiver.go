// Package receiver implements the event-serialization core that bridges a
// non-thread-safe, polling broker consumer to a reactive, demand-driven
// downstream sink.
//
// All broker-consumer calls are confined to a single goroutine (the
// executor, see executor.go) so the underlying client never has to be
// thread-safe beyond its documented Wakeup/Close exceptions. Demand flows in
// from Demand(n), batches flow out through the Sink, and offsets are
// committed on a schedule or on acknowledgement depending on AckMode.
package receiver

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	_logger "kafka-receiver-go/pkg/logger"
)

// Receiver is the event-serialization core (§2-§5). Construct one with New,
// call Start once, feed it demand with Demand, and shut it down with Stop.
type Receiver struct {
	config *ReceiverConfig
	logger *_logger.Logger

	consumer Consumer
	sink     Sink

	metrics    *Collector
	deadLetter DeadLetterSink
	audit      CommitAuditSink

	exec  *executor
	state *loopState
	batch CommittableBatch

	subscribeTask *subscribeTask
	commitTask    *commitTask
	closeTask     *closeTask

	atMostOnce *atMostOnceOffsets

	pollScheduled atomic.Bool

	pollStop   func()
	commitStop func()

	manualAssignment []TopicPartition

	started  atomic.Bool
	stopping atomic.Bool
	stopped  chan struct{}
}

// Option configures optional Receiver collaborators beyond ReceiverConfig.
type Option func(*Receiver)

// WithMetrics attaches a Prometheus collector (see metrics.go).
func WithMetrics(c *Collector) Option {
	return func(r *Receiver) { r.metrics = c }
}

// WithDeadLetter attaches a sink for offsets whose commit is abandoned
// after exhausting retries (see deadletter.go).
func WithDeadLetter(d DeadLetterSink) Option {
	return func(r *Receiver) { r.deadLetter = d }
}

// WithAudit attaches a durable record of every commit attempt (see
// audit.go).
func WithAudit(a CommitAuditSink) Option {
	return func(r *Receiver) { r.audit = a }
}

// WithManualAssignment records the partitions this receiver was statically
// assigned (as opposed to subscribed to a consumer group), so Stop knows to
// synthesize a revoke for them during shutdown.
func WithManualAssignment(parts []TopicPartition) Option {
	return func(r *Receiver) { r.manualAssignment = parts }
}

// New builds a Receiver. The consumer must not yet be subscribed/assigned;
// Start does that as its first act, the same ordering pkg/kafka/connection.go
// uses (connect, then RegisterService).
func New(cfg *ReceiverConfig, consumer Consumer, sink Sink, log *_logger.Logger, opts ...Option) (*Receiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new receiver: %w", err)
	}
	if consumer == nil {
		return nil, fmt.Errorf("new receiver: consumer is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("new receiver: sink is required")
	}

	r := &Receiver{
		config:     cfg,
		logger:     log,
		consumer:   consumer,
		sink:       sink,
		exec:       newExecutor(),
		state:      newLoopState(),
		batch:      newCommittableBatch(cfg.MaxDeferredCommits > 0),
		atMostOnce: newAtMostOnceOffsets(),
		stopped:    make(chan struct{}),
	}
	r.subscribeTask = &subscribeTask{r: r}
	r.commitTask = &commitTask{r: r}
	r.closeTask = &closeTask{r: r}

	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Start subscribes/assigns the consumer and arms the poll loop. It must be
// called exactly once.
func (r *Receiver) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	r.exec.Post(r.subscribeTask.run)
	r.pollStop = func() {}
	r.commitStop = r.commitTask.scheduleIfRequired()
	r.schedulePoll()
}

// Demand records n additional batches of downstream capacity (§3). Safe to
// call from any goroutine. If the loop is currently paused-by-us, it also
// wakes the consumer directly rather than waiting for the current poll's
// timeout to elapse (§5: "downstream request signal ... and, if currently
// paused, consumer.wakeup()").
func (r *Receiver) Demand(n uint64) {
	if n == 0 {
		return
	}
	requested := r.state.addRequested(n)
	if r.metrics != nil {
		r.metrics.SetDemandOutstanding(requested)
	}
	r.exec.Post(r.schedulePoll)
	if r.isPausedByUs() {
		r.consumer.Wakeup()
	}
}

// Ack acknowledges a single record's offset under AckMode ManualAck (§6.4
// GLOSSARY: "Ack-mode ... commits only once downstream code acknowledges an
// offset"). Safe to call from any goroutine; the actual CommittableBatch
// mutation and commit arming happen on the executor goroutine, the same
// confinement Demand/Pause/Resume use. A no-op for any other AckMode, since
// AutoAck acks its own batches immediately on emission and AtMostOnce/
// ExactlyOnce never wait on a downstream ack at all.
func (r *Receiver) Ack(tp TopicPartition, offset int64) {
	if r.config.AckMode != ManualAck {
		return
	}
	r.exec.Post(func() {
		r.batch.Ack(tp, offset)
		r.commitTask.markPending()
	})
}

// Pause instructs the receiver to stop delivering records for parts until a
// matching Resume, independent of backpressure-driven pausing, and surviving
// rebalances for partitions that remain assigned (§4.1, §6.2).
func (r *Receiver) Pause(parts []TopicPartition) {
	r.state.addPausedByUser(parts)
	r.exec.Post(func() {
		r.consumer.Pause(parts)
	})
}

// Resume undoes a prior user-initiated Pause for parts.
func (r *Receiver) Resume(parts []TopicPartition) {
	r.state.removePausedByUser(parts)
	r.exec.Post(func() {
		if r.state.requested.Load() > 0 && !r.isPausedByUs() {
			r.consumer.Resume(parts)
		}
	})
}

// Stop runs CloseTask (§4.5) and blocks until it completes or the deadline
// passes, whichever is first.
func (r *Receiver) Stop(deadline time.Duration) error {
	if !r.stopping.CompareAndSwap(false, true) {
		select {
		case <-r.stopped:
			return nil
		case <-time.After(deadline):
			return fmt.Errorf("receiver stop: close task did not complete within deadline")
		}
	}

	errCh := make(chan error, 1)
	until := time.Now().Add(deadline)
	r.exec.Post(func() {
		errCh <- r.closeTask.run(until)
	})

	select {
	case err := <-errCh:
		return err
	case <-time.After(deadline + time.Second):
		return fmt.Errorf("receiver stop: close task did not complete within deadline")
	}
}

// emitTerminal reports a non-retriable broker error to the sink and stops
// the loop, matching §4.1/§4.2's "emit a terminal error and stop" behavior.
func (r *Receiver) emitTerminal(err error) {
	r.state.active.Store(false)
	r.sink.EmitError(err, func(error) bool { return false })
}
