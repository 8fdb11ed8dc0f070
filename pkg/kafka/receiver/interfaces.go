package receiver

import (
	"context"
	"errors"
	"time"
)

// ErrWakeup is surfaced by Consumer.Poll/CommitSync when a blocking call is
// interrupted by Wakeup. It is a normal control-flow signal (§7) and is
// never propagated downstream.
var ErrWakeup = errors.New("kafka: consumer woken up")

// CommitCallback is invoked, on an arbitrary broker-client goroutine, once
// an async commit resolves (§6.1 commitAsync contract).
type CommitCallback func(offsets map[TopicPartition]int64, err error)

// Consumer is the broker-client contract this receiver drives (§6.1). Every
// method except Wakeup and Close must be called from the receiver's single
// executor goroutine — this is the confinement invariant (§5, §8 property 1).
type Consumer interface {
	// Poll blocks up to timeout for the next batch. A wakeup is reported as
	// ErrWakeup with a zero-value batch, not a fatal error.
	Poll(ctx context.Context, timeout time.Duration) (RecordBatch, error)

	Pause(parts []TopicPartition)
	Resume(parts []TopicPartition)
	Assignment() []TopicPartition

	CommitSync(ctx context.Context, offsets map[TopicPartition]int64) error
	CommitAsync(offsets map[TopicPartition]int64, cb CommitCallback)

	// Wakeup is the one documented thread-safe method besides Close (§6.1).
	// It causes an in-progress or next Poll/CommitSync to return ErrWakeup.
	Wakeup()

	Close(ctx context.Context) error

	Subscribe(topics []string, listener RebalanceListener) error
	Assign(parts []TopicPartition) error

	Position(tp TopicPartition, timeout time.Duration) (int64, error)
	Committed(parts []TopicPartition, timeout time.Duration) (map[TopicPartition]int64, error)
}

// RebalanceListener is installed on the consumer at subscribe time. The
// broker client invokes OnAssigned/OnRevoked from inside a later Poll call,
// on the executor goroutine (§4.1).
type RebalanceListener interface {
	OnAssigned(ctx context.Context, assigned SeekableAssignment)
	OnRevoked(ctx context.Context, revoked []TopicPartition)
}

// SeekableAssignment is handed to user assign-listeners so they can
// reposition newly assigned partitions before polling resumes (§4.1).
type SeekableAssignment interface {
	Partitions() []TopicPartition
	Seek(tp TopicPartition, offset int64)
}

// AssignListener / RevokeListener are the user-supplied hooks configured in
// §6.4 (assignListeners / revokeListeners).
type AssignListener func(ctx context.Context, parts SeekableAssignment)
type RevokeListener func(ctx context.Context, parts []TopicPartition)

// EmitFailureHandler is consulted by the sink on a transient emission
// conflict (§6.2); returning true asks the sink to retry the emission.
type EmitFailureHandler func(err error) bool

// Sink is the external, demand-driven consumer of record batches (§6.2).
type Sink interface {
	EmitNext(batch RecordBatch, handler EmitFailureHandler)
	EmitError(err error, handler EmitFailureHandler)
}

// RetriablePredicate classifies a commit error as retriable or not
// (§6.4 isRetriableException).
type RetriablePredicate func(err error) bool

// IsTransientEmitConflict reports whether err is the "non-serialized"
// transient emission kind the emit-failure handler retries (§4.2, §6.2).
type IsTransientEmitConflict func(err error) bool
