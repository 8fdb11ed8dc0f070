package receiver

import "testing"

func tp(topic string, partition int32) TopicPartition {
	return TopicPartition{Topic: topic, Partition: partition}
}

func TestCommittableBatchInOrderAck(t *testing.T) {
	b := newCommittableBatch(false)
	partition := tp("orders", 0)

	b.AddUncommitted(RecordBatch{Records: []Record{
		{TopicPartition: partition, Offset: 10},
		{TopicPartition: partition, Offset: 11},
		{TopicPartition: partition, Offset: 12},
	}}, nil)

	b.Ack(partition, 10)
	b.Ack(partition, 11)
	b.Ack(partition, 12)

	args := b.GetAndClearOffsets()
	if args == nil {
		t.Fatal("expected offsets to commit")
	}
	if got := args.Offsets[partition]; got != 13 {
		t.Fatalf("expected watermark 13, got %d", got)
	}
	if b.InPipeline() != 0 {
		t.Fatalf("expected empty pipeline, got %d", b.InPipeline())
	}
}

func TestCommittableBatchOutOfOrderDefersUntilContiguous(t *testing.T) {
	b := newCommittableBatch(true)
	partition := tp("orders", 0)

	b.AddUncommitted(RecordBatch{Records: []Record{
		{TopicPartition: partition, Offset: 10},
		{TopicPartition: partition, Offset: 11},
		{TopicPartition: partition, Offset: 12},
	}}, nil)

	b.Ack(partition, 12)
	if b.DeferredCount() != 1 {
		t.Fatalf("expected 1 deferred ack, got %d", b.DeferredCount())
	}
	if args := b.GetAndClearOffsets(); args != nil {
		t.Fatalf("expected no committable offsets yet, got %v", args)
	}

	b.Ack(partition, 10)
	b.Ack(partition, 11)

	if b.DeferredCount() != 0 {
		t.Fatalf("expected deferred count to drain once contiguous, got %d", b.DeferredCount())
	}
	args := b.GetAndClearOffsets()
	if args == nil || args.Offsets[partition] != 13 {
		t.Fatalf("expected watermark 13 once contiguous, got %v", args)
	}
}

func TestCommittableBatchGetAndClearOnlyReturnsNewWatermarks(t *testing.T) {
	b := newCommittableBatch(false)
	partition := tp("orders", 0)

	b.AddUncommitted(RecordBatch{Records: []Record{{TopicPartition: partition, Offset: 5}}}, nil)
	b.Ack(partition, 5)

	first := b.GetAndClearOffsets()
	if first == nil || first.Offsets[partition] != 6 {
		t.Fatalf("expected first snapshot to carry offset 6, got %v", first)
	}

	if second := b.GetAndClearOffsets(); second != nil {
		t.Fatalf("expected no new offsets without further acks, got %v", second)
	}
}

func TestCommittableBatchRestoreOffsetsReplaysOnNextSnapshot(t *testing.T) {
	b := newCommittableBatch(false)
	partition := tp("orders", 0)

	b.AddUncommitted(RecordBatch{Records: []Record{{TopicPartition: partition, Offset: 5}}}, nil)
	b.Ack(partition, 5)

	args := b.GetAndClearOffsets()
	if args == nil {
		t.Fatal("expected offsets")
	}

	b.RestoreOffsets(args, true)

	replay := b.GetAndClearOffsets()
	if replay == nil || replay.Offsets[partition] != 6 {
		t.Fatalf("expected restored offset to reappear in next snapshot, got %v", replay)
	}
}

func TestCommittableBatchPartitionsRevokedDropsState(t *testing.T) {
	b := newCommittableBatch(true)
	partition := tp("orders", 0)

	b.AddUncommitted(RecordBatch{Records: []Record{
		{TopicPartition: partition, Offset: 1},
		{TopicPartition: partition, Offset: 2},
	}}, nil)
	b.Ack(partition, 2)

	b.PartitionsRevoked([]TopicPartition{partition})

	if b.InPipeline() != 0 {
		t.Fatalf("expected pipeline count cleared, got %d", b.InPipeline())
	}
	if b.DeferredCount() != 0 {
		t.Fatalf("expected deferred count cleared, got %d", b.DeferredCount())
	}
}

func TestCommitCallbackEmitterCompletesOnce(t *testing.T) {
	e := NewCommitCallbackEmitter()
	e.complete(nil)
	e.complete(errExampleForTest)

	if err := e.Wait(); err != nil {
		t.Fatalf("expected first completion (nil) to win, got %v", err)
	}
}

var errExampleForTest = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
