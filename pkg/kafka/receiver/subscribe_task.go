package receiver

import (
	"context"
)

// subscribeTask runs exactly once at construction (§4.1): it installs a
// rebalance listener and hands the consumer to the user-supplied
// subscription procedure.
type subscribeTask struct {
	r *Receiver
}

func (t *subscribeTask) run() {
	r := t.r
	ctx := context.Background()

	listener := &rebalanceListener{r: r}
	if err := r.config.Subscriber(r.consumer, listener); err != nil {
		r.logger.Error(ctx, "kafka receiver subscribe failed", "error", err, "instance", r.config.InstanceID)
		if r.state.active.Load() {
			r.emitTerminal(err)
		}
	}
}

// rebalanceListener adapts broker rebalance callbacks (run inside a Poll,
// on the executor goroutine) onto the receiver's internal hooks.
type rebalanceListener struct {
	r *Receiver
}

func (l *rebalanceListener) OnAssigned(ctx context.Context, assigned SeekableAssignment) {
	l.r.onPartitionsAssigned(ctx, assigned)
}

func (l *rebalanceListener) OnRevoked(ctx context.Context, revoked []TopicPartition) {
	l.r.onPartitionsRevoked(ctx, revoked)
}

// onPartitionsAssigned implements the assignment hook contract from §4.1.
func (r *Receiver) onPartitionsAssigned(ctx context.Context, assigned SeekableAssignment) {
	parts := assigned.Partitions()

	if r.isPausedByUs() && len(parts) > 0 {
		// The loop must not leak demand it has throttled: newly assigned
		// partitions join the pause immediately.
		r.consumer.Pause(parts)
	}

	pauseForUser := make([]TopicPartition, 0, len(parts))
	for _, tp := range parts {
		if r.state.isPausedByUser(tp) {
			pauseForUser = append(pauseForUser, tp)
		}
	}
	if len(pauseForUser) > 0 {
		r.consumer.Pause(pauseForUser)
	}
	r.state.retainPausedByUser(r.consumer.Assignment())

	for _, l := range r.config.AssignListeners {
		l(ctx, assigned)
	}

	r.logDiagnostics(ctx, parts)
}

// onPartitionsRevoked implements the revocation hook contract from §4.1: it
// delegates to RebalanceHandler (§4.4) and then informs CommittableBatch.
func (r *Receiver) onPartitionsRevoked(ctx context.Context, revoked []TopicPartition) {
	r.handleRebalanceRevoked(ctx, revoked)
	r.batch.PartitionsRevoked(revoked)
}

// logDiagnostics is optional diagnostic logging (§4.1) that must tolerate
// broker errors.
func (r *Receiver) logDiagnostics(ctx context.Context, parts []TopicPartition) {
	for _, tp := range parts {
		pos, err := r.consumer.Position(tp, r.config.PollTimeout)
		if err != nil {
			r.logger.Debug(ctx, "kafka receiver position lookup failed", "topic", tp.Topic, "partition", tp.Partition, "error", err)
			continue
		}
		r.logger.Debug(ctx, "kafka receiver partition assigned", "topic", tp.Topic, "partition", tp.Partition, "position", pos)
	}
}
