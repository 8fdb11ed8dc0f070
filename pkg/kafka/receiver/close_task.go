package receiver

import (
	"context"
	"time"
)

// closeTask implements §4.5: a deadline-bounded, at-most-3-attempt shutdown
// that drains in-flight commits and, for AT_MOST_ONCE, logs any offset
// committed ahead of a batch that never actually reached the sink.
type closeTask struct {
	r *Receiver
}

const maxCloseAttempts = 3

// run stops accepting new demand, force-commits whatever is outstanding,
// and closes the underlying consumer. It must only ever be invoked once,
// from Receiver.Stop via the executor.
func (t *closeTask) run(deadline time.Time) error {
	r := t.r
	ctx := context.Background()

	r.state.active.Store(false)
	if r.pollStop != nil {
		r.pollStop()
	}
	if r.commitStop != nil {
		r.commitStop()
	}

	if len(r.manualAssignment) > 0 {
		r.onPartitionsRevoked(ctx, r.manualAssignment)
	}

	if gap := r.atMostOnce.undoCommitAhead(); len(gap) > 0 {
		r.logger.Error(ctx, "kafka receiver shutting down with offsets committed ahead of delivery", "partitions", len(gap), "instance", r.config.InstanceID)
	}

	var lastErr error
	for attempt := 1; attempt <= maxCloseAttempts; attempt++ {
		r.state.isPending.Store(true)
		r.commitTask.runIfRequired(true)

		if !r.commitTask.waitFor(deadline) {
			r.logger.Error(ctx, "kafka receiver close timed out waiting for in-flight commit", "attempt", attempt, "instance", r.config.InstanceID)
		}

		err := r.consumer.Close(ctx)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err

		if err == ErrWakeup && attempt < maxCloseAttempts {
			r.logger.Debug(ctx, "kafka receiver close woken up, retrying", "attempt", attempt, "instance", r.config.InstanceID)
			continue
		}
		if attempt == maxCloseAttempts {
			r.logger.Error(ctx, "kafka receiver close failed after retries", "attempts", attempt, "error", err, "instance", r.config.InstanceID)
			break
		}
	}

	// requestShutdown, not Shutdown: this task is itself running on the
	// executor goroutine, so blocking here for the goroutine to stop would
	// deadlock against itself.
	r.exec.requestShutdown()
	close(r.stopped)
	return lastErr
}
