package receiver

import (
	"context"
	"time"
)

// handleRebalanceRevoked implements §4.4: before giving the partitions up,
// force a commit of whatever offsets are ready, then wait (bounded by
// maxDelayRebalance) for all in-flight work (on any partition) to drain,
// force-committing periodically while it waits so a long revoke doesn't
// strand anything that becomes ready mid-wait.
func (r *Receiver) handleRebalanceRevoked(ctx context.Context, revoked []TopicPartition) {
	// §4.4 step 1: an empty revocation or AT_MOST_ONCE (which never defers a
	// commit past emission) has nothing to force or drain.
	if len(revoked) > 0 && r.config.AckMode != AtMostOnce {
		r.state.isPending.Store(true)
		r.commitTask.runIfRequired(true)

		if r.state.active.Load() && r.config.MaxDelayRebalance > 0 {
			deadline := time.Now().Add(r.config.MaxDelayRebalance)
			ticker := r.config.CommitIntervalDuringDelay
			if ticker <= 0 {
				ticker = r.config.MaxDelayRebalance
			}

			if r.batch.InPipeline() > 0 || r.state.awaitingTransaction.Load() {
				for time.Now().Before(deadline) {
					if !r.state.active.Load() {
						break
					}
					time.Sleep(ticker)
					r.state.isPending.Store(true)
					r.commitTask.runIfRequired(true)
					if r.batch.InPipeline() == 0 && !r.state.awaitingTransaction.Load() {
						break
					}
				}
			}
		}
	}

	r.state.removePausedByUser(revoked)

	for _, l := range r.config.RevokeListeners {
		l(ctx, revoked)
	}

	r.logger.Info(ctx, "kafka receiver partitions revoked", "count", len(revoked), "instance", r.config.InstanceID)
}
