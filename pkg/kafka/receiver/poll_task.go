package receiver

import (
	"context"
)

// schedulePoll is the "scheduled" flip flag from §4.2: at most one pollTask
// run is ever pending. schedulePoll is a no-op if one is already pending; the run
// itself clears the flag as its first action.
func (r *Receiver) schedulePoll() {
	if r.pollScheduled.CompareAndSwap(false, true) {
		r.exec.Post(r.runPoll)
	}
}

// runPoll is one PollTask iteration (§4.2).
func (r *Receiver) runPoll() {
	r.pollScheduled.Store(false)

	if !r.state.active.Load() {
		return
	}

	ctx := context.Background()

	// Step 2: run a due commit opportunistically so it isn't queued behind
	// further polls.
	r.commitTask.runIfRequired(false)

	// Step 3: effective demand.
	effective := r.state.requested.Load()
	if r.config.MaxDeferredCommits > 0 && r.batch.DeferredCount() >= r.config.MaxDeferredCommits {
		effective = 0
	}
	if r.state.retrying.Load() {
		effective = 0
	}

	// Step 4: pause/resume decision.
	switch {
	case effective > 0 && !r.state.awaitingTransaction.Load():
		if r.isPausedByUs() {
			r.clearPausedByUs()
			r.resumeAssignmentExceptUser(ctx)
		}
	case effective > 0 && r.state.awaitingTransaction.Load():
		r.logger.Debug(ctx, "kafka receiver pausing: awaiting transaction", "instance", r.config.InstanceID)
		r.pauseFullAssignment(ctx)
	default:
		reason := "backpressure"
		if r.config.MaxDeferredCommits > 0 && r.batch.DeferredCount() >= r.config.MaxDeferredCommits {
			reason = "deferred-commits"
		} else if r.state.retrying.Load() {
			reason = "retrying"
		}
		r.logger.Debug(ctx, "kafka receiver pausing", "reason", reason, "instance", r.config.InstanceID)
		r.pauseFullAssignment(ctx)
	}

	// Step 5: poll.
	batch, err := r.consumer.Poll(ctx, r.config.PollTimeout)
	if err != nil {
		if err == ErrWakeup {
			batch = RecordBatch{}
		} else if r.state.active.Load() {
			r.logger.Error(ctx, "kafka receiver poll failed", "error", err, "instance", r.config.InstanceID)
			r.emitTerminal(err)
			return
		} else {
			return
		}
	}

	// Step 6: reschedule before emitting, so commits/close stay interleaved
	// cooperatively instead of waiting behind emission.
	if r.state.active.Load() {
		r.schedulePoll()
	}

	if batch.Empty() {
		return
	}

	r.handleBatch(ctx, batch)
}

// handleBatch is step 7: register with CommittableBatch, emit downstream,
// decrement demand by one.
func (r *Receiver) handleBatch(ctx context.Context, batch RecordBatch) {
	if r.config.AckMode == AtMostOnce {
		// commitAhead already registers and immediately acks the batch's
		// offsets as part of driving the synchronous commit — registering it
		// again here would double-book every record in CommittableBatch.
		r.commitAhead(ctx, batch)
	} else {
		r.batch.AddUncommitted(batch, nil)
	}

	if r.metrics != nil {
		r.metrics.ObserveBatch(len(batch.Records))
	}

	remaining := r.state.decrementRequested()
	if r.metrics != nil {
		r.metrics.SetDemandOutstanding(remaining)
	}

	r.sink.EmitNext(batch, func(err error) bool {
		return r.state.active.Load() && r.config.IsTransientEmitConflict(err)
	})

	if r.config.AckMode == AutoAck {
		for _, rec := range batch.Records {
			r.batch.Ack(rec.TopicPartition, rec.Offset)
		}
		r.commitTask.markPending()
	}
	if r.config.AckMode == AtMostOnce {
		for tp, off := range batch.HighestOffsets() {
			r.atMostOnce.onEmitted(tp, off)
		}
	}
}

// commitAhead implements the at-most-once round-trip property from §8:
// commitSync completes before the batch is emitted downstream. It registers
// the batch's offsets, acks every record immediately (there is no
// downstream ack under AT_MOST_ONCE — the batch is considered "done" the
// instant it's committed) so CommittableBatch actually advances its
// watermark, then forces CommitTask's synchronous dispatch path before
// returning control to handleBatch for emission. onCommit is only recorded
// when that synchronous commit actually succeeded — a failed or retried
// commit must not be mistaken for a closed commit-ahead gap at shutdown.
func (r *Receiver) commitAhead(ctx context.Context, batch RecordBatch) {
	r.batch.AddUncommitted(batch, nil)
	for _, rec := range batch.Records {
		r.batch.Ack(rec.TopicPartition, rec.Offset)
	}
	r.commitTask.markPending()
	if r.commitTask.runIfRequired(true) {
		for tp, off := range batch.HighestOffsets() {
			r.atMostOnce.onCommit(tp, off)
		}
	}
}

func (r *Receiver) pauseFullAssignment(ctx context.Context) {
	r.checkAndSetPausedByUs()
	r.consumer.Pause(r.consumer.Assignment())
}

func (r *Receiver) resumeAssignmentExceptUser(ctx context.Context) {
	assignment := r.consumer.Assignment()
	userPaused := r.state.pausedByUserSet()
	resume := make([]TopicPartition, 0, len(assignment))
	for _, tp := range assignment {
		if _, ok := userPaused[tp]; !ok {
			resume = append(resume, tp)
		}
	}
	r.consumer.Resume(resume)
}

// checkAndSetPausedByUs is the check-and-set from §4.2/§9: on the 0→1 edge,
// if demand has arrived since r was computed, wake the consumer so the next
// poll observes it immediately instead of blocking out the new demand.
func (r *Receiver) checkAndSetPausedByUs() {
	r.state.pausedByUsMu.Lock()
	was := r.state.pausedByUs
	r.state.pausedByUs = true
	r.state.pausedByUsMu.Unlock()

	if !was && r.state.requested.Load() > 0 && !r.state.retrying.Load() {
		r.consumer.Wakeup()
	}
}

func (r *Receiver) clearPausedByUs() {
	r.state.pausedByUsMu.Lock()
	r.state.pausedByUs = false
	r.state.pausedByUsMu.Unlock()
}

func (r *Receiver) isPausedByUs() bool {
	r.state.pausedByUsMu.Lock()
	defer r.state.pausedByUsMu.Unlock()
	return r.state.pausedByUs
}
