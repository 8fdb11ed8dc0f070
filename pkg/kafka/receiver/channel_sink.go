package receiver

// ChannelSink is a Sink that delivers batches and terminal errors over Go
// channels instead of a real downstream reactive library, so a caller can
// run the receiver end to end (in tests, or a minimal program) without
// wiring a separate sink dependency. It never asks to retry a transient
// emission conflict: a buffered channel send either succeeds immediately or
// blocks until the consumer drains it, so there is nothing "conflicting" to
// retry in the first place.
type ChannelSink struct {
	batches chan RecordBatch
	errs    chan error
}

// NewChannelSink builds a ChannelSink whose Batches/Errors channels are
// buffered to hold buffer pending items before EmitNext/EmitError block.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{
		batches: make(chan RecordBatch, buffer),
		errs:    make(chan error, buffer),
	}
}

// Batches is the channel PollTask's emitted batches arrive on, in order.
func (s *ChannelSink) Batches() <-chan RecordBatch { return s.batches }

// Errors is the channel terminal errors (§7) arrive on.
func (s *ChannelSink) Errors() <-chan error { return s.errs }

func (s *ChannelSink) EmitNext(batch RecordBatch, _ EmitFailureHandler) {
	s.batches <- batch
}

func (s *ChannelSink) EmitError(err error, _ EmitFailureHandler) {
	s.errs <- err
}
