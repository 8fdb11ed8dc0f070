package receiver

import (
	"context"
	"sync"
	"time"
)

// commitTask implements §4.3: coalesced offset commits with per-ack-mode
// dispatch and a bounded retry backoff.
type commitTask struct {
	r *Receiver
}

// runIfRequired is the entry point PollTask and the periodic commit timer
// both call. force is true for the synchronous at-most-once commit-ahead
// path and for RebalanceHandler/CloseTask's drain loops; otherwise a commit
// only actually dispatches if one is pending and none is already in flight.
// The returned bool is only meaningful to the AtMostOnce synchronous path:
// it reports whether CommitSync succeeded, so commitAhead knows whether the
// offsets it's about to mark "committed ahead" actually reached the broker.
func (t *commitTask) runIfRequired(force bool) bool {
	r := t.r

	if r.config.AckMode == ExactlyOnce {
		// §4.3/§9: exactly-once defers committing to the transactional
		// producer; this dispatch path is a deliberate no-op for that mode.
		return false
	}

	if r.state.retrying.Load() && !force {
		return false
	}

	if !force && !r.state.isPending.Load() {
		return false
	}
	r.state.isPending.Store(false)

	if r.state.inProgress.Load() > 0 && !force {
		return false
	}

	args := r.batch.GetAndClearOffsets()
	if args == nil {
		return false
	}
	if len(args.Offsets) == 0 {
		// Nothing to send, but emitters riding on this snapshot still
		// complete, as a successful commit of no offsets.
		for _, e := range args.Emitters {
			e.complete(nil)
		}
		return false
	}

	r.state.inProgress.Add(1)
	ctx := context.Background()

	switch r.config.AckMode {
	case AtMostOnce:
		// Synchronous: the caller (commitAhead) blocks on this completing
		// before the batch is handed downstream.
		err := r.consumer.CommitSync(ctx, args.Offsets)
		r.state.inProgress.Add(-1)
		t.onResult(ctx, args, err)
		return err == nil
	default:
		r.consumer.CommitAsync(args.Offsets, func(_ map[TopicPartition]int64, err error) {
			r.state.inProgress.Add(-1)
			r.exec.Post(func() { t.onResult(ctx, args, err) })
		})
		return false
	}
}

func (t *commitTask) onResult(ctx context.Context, args *CommitArgs, err error) {
	if err == nil {
		t.onSuccess(ctx, args)
		return
	}
	t.onFailure(ctx, args, err)
}

func (t *commitTask) onSuccess(ctx context.Context, args *CommitArgs) {
	r := t.r
	r.state.consecutiveFailures = 0
	r.state.retrying.Store(false)

	if r.metrics != nil {
		r.metrics.ObserveCommit(true)
		r.metrics.SetConsecutiveFailures(0)
	}
	if r.audit != nil {
		r.audit.RecordCommit(ctx, r.config.InstanceID, args.Offsets, nil)
	}
	for _, e := range args.Emitters {
		e.complete(nil)
	}
}

func (t *commitTask) onFailure(ctx context.Context, args *CommitArgs, err error) {
	r := t.r

	if r.metrics != nil {
		r.metrics.ObserveCommit(false)
	}

	giveUp := !r.config.IsRetriableException(err)
	if !giveUp {
		r.state.consecutiveFailures++
		giveUp = r.state.consecutiveFailures >= r.config.MaxCommitAttempts
	}
	if r.metrics != nil {
		r.metrics.SetConsecutiveFailures(r.state.consecutiveFailures)
	}

	if giveUp {
		r.logger.Error(ctx, "kafka receiver commit failed, giving up", "attempts", r.state.consecutiveFailures, "error", err, "instance", r.config.InstanceID)
		r.batch.RestoreOffsets(args, false)
		if r.audit != nil {
			r.audit.RecordCommit(ctx, r.config.InstanceID, args.Offsets, err)
		}
		if r.deadLetter != nil {
			r.deadLetter.Forward(ctx, args.Offsets, err)
		}
		for _, e := range args.Emitters {
			e.complete(err)
		}
		r.state.consecutiveFailures = 0
		r.state.retrying.Store(false)
		if r.metrics != nil {
			r.metrics.SetConsecutiveFailures(0)
		}
		if len(args.Emitters) == 0 {
			r.emitTerminal(err)
		}
		return
	}

	r.logger.Debug(ctx, "kafka receiver commit retry scheduled", "attempt", r.state.consecutiveFailures, "error", err, "instance", r.config.InstanceID)
	if r.audit != nil {
		r.audit.RecordCommit(ctx, r.config.InstanceID, args.Offsets, err)
	}
	r.batch.RestoreOffsets(args, true)
	r.state.retrying.Store(true)
	r.exec.PostDelayed(r.config.CommitRetryInterval, func() {
		r.state.retrying.Store(false)
		r.state.isPending.Store(true)
		t.runIfRequired(false)
	})
}

// scheduleIfRequired arms the periodic commit timer described in §5 and
// marks a commit pending on each tick for AckModes that commit on a
// schedule rather than purely on demand.
func (t *commitTask) scheduleIfRequired() (stop func()) {
	r := t.r
	if r.config.CommitInterval <= 0 || r.config.AckMode == ExactlyOnce {
		return func() {}
	}
	return r.exec.PostPeriodic(r.config.CommitInterval, func() {
		r.state.isPending.Store(true)
		t.runIfRequired(false)
	})
}

// waitFor blocks until no commit is in flight or the deadline passes. Only
// CloseTask calls it, on the executor goroutine; async commit callbacks
// decrement inProgress from the broker client's goroutine, so the count
// drops here even though their success/failure handling is posted onto the
// executor and runs after CloseTask returns.
func (t *commitTask) waitFor(deadline time.Time) bool {
	for time.Now().Before(deadline) {
		if t.r.state.inProgress.Load() == 0 {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return t.r.state.inProgress.Load() == 0
}

// markPending flags that uncommitted offsets exist and a commit should run
// at the next opportunity. Called whenever CommittableBatch accumulates a
// newly-ackable offset.
func (t *commitTask) markPending() {
	t.r.state.isPending.Store(true)
}

// atMostOnceOffsets tracks offsets committed ahead of emission (§8) so
// CloseTask can log any optimistic advance whose batch never actually made
// it downstream before shutdown; the commit itself is not reversed.
// onCommit/onEmitted only ever run on
// the executor goroutine, but undoCommitAhead is also read from CloseTask
// (itself on the executor) and may be inspected by callers/tests from
// outside it, so the maps are mutex-guarded rather than assumed confined.
type atMostOnceOffsets struct {
	mu        sync.Mutex
	committed map[TopicPartition]int64
	delivered map[TopicPartition]int64
}

func newAtMostOnceOffsets() *atMostOnceOffsets {
	return &atMostOnceOffsets{
		committed: make(map[TopicPartition]int64),
		delivered: make(map[TopicPartition]int64),
	}
}

func (a *atMostOnceOffsets) onCommit(tp TopicPartition, offset int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.committed[tp] = offset
}

func (a *atMostOnceOffsets) onEmitted(tp TopicPartition, offset int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delivered[tp] = offset
}

// undoCommitAhead reports the offsets that were committed but never
// confirmed delivered — the gap CloseTask must not silently paper over.
func (a *atMostOnceOffsets) undoCommitAhead() map[TopicPartition]int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	gap := make(map[TopicPartition]int64)
	for tp, committed := range a.committed {
		delivered, ok := a.delivered[tp]
		if !ok || delivered < committed {
			gap[tp] = committed
		}
	}
	return gap
}
