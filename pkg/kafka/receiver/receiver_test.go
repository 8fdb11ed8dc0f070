package receiver

import (
	"context"
	"testing"
	"time"

	"kafka-receiver-go/pkg/kafka/receiver/internal/faketest"
	_logger "kafka-receiver-go/pkg/logger"
)

type fakeSink struct {
	batches chan RecordBatch
	errs    chan error
}

func newFakeSink() *fakeSink {
	return &fakeSink{batches: make(chan RecordBatch, 16), errs: make(chan error, 16)}
}

func (s *fakeSink) EmitNext(batch RecordBatch, _ EmitFailureHandler) {
	s.batches <- batch
}

func (s *fakeSink) EmitError(err error, _ EmitFailureHandler) {
	s.errs <- err
}

func testConfig() *ReceiverConfig {
	cfg := DefaultReceiverConfig()
	cfg.PollTimeout = 10 * time.Millisecond
	cfg.CommitInterval = 10 * time.Millisecond
	cfg.CommitRetryInterval = 10 * time.Millisecond
	cfg.CloseTimeout = time.Second
	cfg.Subscriber = func(c Consumer, l RebalanceListener) error {
		return c.Subscribe(nil, l)
	}
	return cfg
}

func TestReceiverDeliversOnDemandAndCommitsAutoAck(t *testing.T) {
	partition := tp("orders", 0)
	consumer := faketest.New([]TopicPartition{partition})
	consumer.Enqueue(Record{TopicPartition: partition, Offset: 0})

	sink := newFakeSink()
	log := _logger.New(_logger.Config{Level: "error"})

	r, err := New(testConfig(), consumer, sink, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Start(context.Background())
	defer r.Stop(time.Second)

	r.Demand(1)

	select {
	case batch := <-sink.batches:
		if len(batch.Records) != 1 || batch.Records[0].Offset != 0 {
			t.Fatalf("unexpected batch: %+v", batch)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(consumer.Commits) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(consumer.Commits) == 0 {
		t.Fatal("expected an offset commit for the auto-acked record")
	}
}

func TestReceiverDoesNotPollWithoutDemand(t *testing.T) {
	partition := tp("orders", 0)
	consumer := faketest.New([]TopicPartition{partition})
	consumer.Enqueue(Record{TopicPartition: partition, Offset: 0})

	sink := newFakeSink()
	log := _logger.New(_logger.Config{Level: "error"})

	r, err := New(testConfig(), consumer, sink, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Start(context.Background())
	defer r.Stop(time.Second)

	select {
	case batch := <-sink.batches:
		t.Fatalf("expected no emission without demand, got %+v", batch)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReceiverPauseSurvivesUntilResume(t *testing.T) {
	partition := tp("orders", 0)
	other := tp("orders", 1)
	consumer := faketest.New([]TopicPartition{partition, other})
	consumer.Enqueue(Record{TopicPartition: other, Offset: 0})

	sink := newFakeSink()
	log := _logger.New(_logger.Config{Level: "error"})

	r, err := New(testConfig(), consumer, sink, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Start(context.Background())
	defer r.Stop(time.Second)

	r.Pause([]TopicPartition{other})
	r.Demand(1)

	select {
	case batch := <-sink.batches:
		t.Fatalf("expected paused partition to withhold records, got %+v", batch)
	case <-time.After(100 * time.Millisecond):
	}

	r.Resume([]TopicPartition{other})

	select {
	case batch := <-sink.batches:
		if len(batch.Records) != 1 {
			t.Fatalf("unexpected batch after resume: %+v", batch)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch after resume")
	}
}

func TestReceiverAtMostOnceCommitsBeforeEmission(t *testing.T) {
	partition := tp("orders", 0)
	consumer := faketest.New([]TopicPartition{partition})
	consumer.Enqueue(Record{TopicPartition: partition, Offset: 7})

	sink := newFakeSink()
	log := _logger.New(_logger.Config{Level: "error"})

	cfg := testConfig()
	cfg.AckMode = AtMostOnce

	r, err := New(cfg, consumer, sink, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Start(context.Background())
	defer r.Stop(time.Second)

	r.Demand(1)

	select {
	case batch := <-sink.batches:
		if len(batch.Records) != 1 || batch.Records[0].Offset != 7 {
			t.Fatalf("unexpected batch: %+v", batch)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
	}

	// commitAhead commits synchronously before EmitNext is called, so the
	// commit must already be visible by the time the batch reaches the sink.
	if len(consumer.Commits) == 0 {
		t.Fatal("expected the offset to be committed ahead of emission")
	}
	if got := consumer.Commits[0][partition]; got != 8 {
		t.Fatalf("expected committed offset 8, got %d", got)
	}

	// onEmitted runs on the executor goroutine right after the channel send
	// above; give it a moment to land before asserting the gap closed.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(r.atMostOnce.undoCommitAhead()) == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if gap := r.atMostOnce.undoCommitAhead(); len(gap) != 0 {
		t.Fatalf("expected no commit-ahead gap once the batch was delivered, got %v", gap)
	}
}

func TestReceiverManualAckCommitsOnlyAfterAck(t *testing.T) {
	partition := tp("orders", 0)
	consumer := faketest.New([]TopicPartition{partition})
	consumer.Enqueue(Record{TopicPartition: partition, Offset: 3})

	sink := newFakeSink()
	log := _logger.New(_logger.Config{Level: "error"})

	cfg := testConfig()
	cfg.AckMode = ManualAck

	r, err := New(cfg, consumer, sink, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Start(context.Background())
	defer r.Stop(time.Second)

	r.Demand(1)

	var batch RecordBatch
	select {
	case batch = <-sink.batches:
		if len(batch.Records) != 1 {
			t.Fatalf("unexpected batch: %+v", batch)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
	}

	// No ack yet: nothing should be committed even after several poll cycles.
	time.Sleep(50 * time.Millisecond)
	if len(consumer.Commits) != 0 {
		t.Fatalf("expected no commit before Ack, got %v", consumer.Commits)
	}

	rec := batch.Records[0]
	r.Ack(rec.TopicPartition, rec.Offset)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(consumer.Commits) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(consumer.Commits) == 0 {
		t.Fatal("expected a commit after Ack")
	}
	if got := consumer.Commits[0][partition]; got != 4 {
		t.Fatalf("expected committed offset 4, got %d", got)
	}
}

func TestChannelSinkDeliversBatchesAndErrors(t *testing.T) {
	partition := tp("orders", 0)
	consumer := faketest.New([]TopicPartition{partition})
	consumer.Enqueue(Record{TopicPartition: partition, Offset: 0})

	sink := NewChannelSink(4)
	log := _logger.New(_logger.Config{Level: "error"})

	r, err := New(testConfig(), consumer, sink, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Start(context.Background())
	defer r.Stop(time.Second)

	r.Demand(1)

	select {
	case batch := <-sink.Batches():
		if len(batch.Records) != 1 {
			t.Fatalf("unexpected batch: %+v", batch)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch on ChannelSink")
	}

	sink.EmitError(errExampleForTest, nil)
	select {
	case err := <-sink.Errors():
		if err != errExampleForTest {
			t.Fatalf("unexpected error on ChannelSink: %v", err)
		}
	default:
		t.Fatal("expected the emitted error on ChannelSink.Errors")
	}
}
