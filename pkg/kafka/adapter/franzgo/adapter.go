// Package franzgo adapts a github.com/twmb/franz-go client onto the
// receiver.Consumer contract: a kgo.Client configured for consumer-group
// membership with auto-commit disabled, driven entirely by the pull-style,
// single-goroutine-confined receiver core instead of kgo's own background
// fetch/commit loop.
package franzgo

import (
	"context"
	"fmt"
	"sync"
	"time"

	receiver "kafka-receiver-go/pkg/kafka/receiver"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// Config is the connection-level subset of knobs this adapter needs;
// ReceiverConfig carries the receiver-level knobs.
type Config struct {
	Brokers []string
	Group   string
}

// Adapter wraps a *kgo.Client as a receiver.Consumer. Every method except
// Wakeup/Close is only ever called from the receiver's executor goroutine,
// matching kgo.Client's own confinement expectations for PollFetches.
type Adapter struct {
	cfg    Config
	client *kgo.Client

	listener receiver.RebalanceListener

	positionsMu sync.Mutex
	positions   map[receiver.TopicPartition]int64

	// cancelMu/cancel/wakeupCh back Wakeup's interruption of an in-flight
	// Poll (§9: the pause/resume race prevention Wakeup exists for only
	// works if it can cut a blocking poll short, not merely wait it out).
	cancelMu sync.Mutex
	cancel   context.CancelFunc
	wakeupCh chan struct{}
}

// New dials brokers and disables the client's own auto-commit so offset
// management is entirely driven by the receiver core instead of kgo's
// background loop.
func New(cfg Config, topics []string) (*Adapter, error) {
	a := &Adapter{cfg: cfg, positions: make(map[receiver.TopicPartition]int64), wakeupCh: make(chan struct{}, 1)}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsAssigned(a.onAssigned),
		kgo.OnPartitionsRevoked(a.onRevoked),
		kgo.OnPartitionsLost(a.onRevoked),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("franzgo adapter: new client: %w", err)
	}
	if err := client.Ping(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("franzgo adapter: ping: %w", err)
	}
	a.client = client
	return a, nil
}

// EnsureTopics creates any of topics that don't already exist, the same
// kadm.CreateTopic call a producer makes before its first publish,
// reused here so an operator can point this receiver at a brand-new
// dead-letter or source topic without a separate provisioning step.
func (a *Adapter) EnsureTopics(ctx context.Context, topics []string, partitions int32) error {
	// kadm.Client.Close also closes the wrapped kgo.Client, so the admin
	// handle here is deliberately never closed — it borrows a.client,
	// which this adapter's own Close owns.
	admin := kadm.NewClient(a.client)

	for _, topic := range topics {
		if _, err := admin.CreateTopic(ctx, partitions, -1, nil, topic); err != nil {
			return fmt.Errorf("franzgo adapter: create topic %s: %w", topic, err)
		}
	}
	return nil
}

func (a *Adapter) onAssigned(ctx context.Context, _ *kgo.Client, assigned map[string][]int32) {
	if a.listener == nil {
		return
	}
	a.listener.OnAssigned(ctx, &seekableAssignment{client: a.client, assigned: toTopicPartitions(assigned)})
}

func (a *Adapter) onRevoked(ctx context.Context, _ *kgo.Client, revoked map[string][]int32) {
	if a.listener == nil {
		return
	}
	a.listener.OnRevoked(ctx, toTopicPartitions(revoked))
}

func toTopicPartitions(m map[string][]int32) []receiver.TopicPartition {
	out := make([]receiver.TopicPartition, 0)
	for topic, parts := range m {
		for _, p := range parts {
			out = append(out, receiver.TopicPartition{Topic: topic, Partition: p})
		}
	}
	return out
}

// Subscribe satisfies receiver.Consumer; the subscription itself already
// happened in New via kgo.ConsumeTopics, so this only records the listener
// the rebalance callbacks above forward to.
func (a *Adapter) Subscribe(_ []string, listener receiver.RebalanceListener) error {
	a.listener = listener
	return nil
}

// Assign is not supported by this adapter: franz-go's consumer-group mode
// (what New wires up) only supports group subscription, not static
// partition assignment without also disabling group membership at
// construction time.
func (a *Adapter) Assign(parts []receiver.TopicPartition) error {
	return fmt.Errorf("franzgo adapter: static Assign unsupported in consumer-group mode")
}

func (a *Adapter) Poll(ctx context.Context, timeout time.Duration) (receiver.RecordBatch, error) {
	select {
	case <-a.wakeupCh:
		return receiver.RecordBatch{}, receiver.ErrWakeup
	default:
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	a.cancelMu.Lock()
	a.cancel = cancel
	a.cancelMu.Unlock()
	defer func() {
		a.cancelMu.Lock()
		a.cancel = nil
		a.cancelMu.Unlock()
		cancel()
	}()

	fetches := a.client.PollFetches(pollCtx)
	if fetches.IsClientClosed() {
		return receiver.RecordBatch{}, fmt.Errorf("franzgo adapter: client closed")
	}

	var woken bool
	fetches.EachError(func(_ string, _ int32, err error) {
		if err == context.Canceled || err == context.DeadlineExceeded {
			woken = true
		}
	})
	if woken && fetches.NumRecords() == 0 {
		return receiver.RecordBatch{}, receiver.ErrWakeup
	}

	var records []receiver.Record
	fetches.EachRecord(func(rec *kgo.Record) {
		headers := make(map[string][]byte, len(rec.Headers))
		for _, h := range rec.Headers {
			headers[h.Key] = h.Value
		}
		tp := receiver.TopicPartition{Topic: rec.Topic, Partition: rec.Partition}
		records = append(records, receiver.Record{
			TopicPartition: tp,
			Offset:         rec.Offset,
			Key:            rec.Key,
			Value:          rec.Value,
			Headers:        headers,
			Timestamp:      rec.Timestamp,
		})

		a.positionsMu.Lock()
		a.positions[tp] = rec.Offset + 1
		a.positionsMu.Unlock()
	})

	return receiver.RecordBatch{Records: records}, nil
}

func (a *Adapter) Pause(parts []receiver.TopicPartition) {
	for _, tp := range parts {
		a.client.PauseFetchPartitions(map[string][]int32{tp.Topic: {tp.Partition}})
	}
}

func (a *Adapter) Resume(parts []receiver.TopicPartition) {
	for _, tp := range parts {
		a.client.ResumeFetchPartitions(map[string][]int32{tp.Topic: {tp.Partition}})
	}
}

func (a *Adapter) Assignment() []receiver.TopicPartition {
	out := make([]receiver.TopicPartition, 0)
	for topic, parts := range a.client.AssignedPartitions() {
		for _, p := range parts {
			out = append(out, receiver.TopicPartition{Topic: topic, Partition: p})
		}
	}
	return out
}

func (a *Adapter) CommitSync(ctx context.Context, offsets map[receiver.TopicPartition]int64) error {
	toCommit := toKgoOffsets(offsets)
	var commitErr error
	a.client.CommitOffsetsSync(ctx, toCommit, func(_ *kgo.Client, _ *kmsg.OffsetCommitRequest, _ *kmsg.OffsetCommitResponse, err error) {
		commitErr = err
	})
	return commitErr
}

func (a *Adapter) CommitAsync(offsets map[receiver.TopicPartition]int64, cb receiver.CommitCallback) {
	toCommit := toKgoOffsets(offsets)
	a.client.CommitOffsets(context.Background(), toCommit, func(_ *kgo.Client, _ *kmsg.OffsetCommitRequest, _ *kmsg.OffsetCommitResponse, err error) {
		cb(offsets, err)
	})
}

// Wakeup interrupts an in-flight Poll immediately by cancelling its
// per-call timeout context, and leaves a mark for the case where Wakeup
// lands between two Poll calls rather than during one, so the next Poll
// still returns ErrWakeup instead of blocking a full PollTimeout.
func (a *Adapter) Wakeup() {
	select {
	case a.wakeupCh <- struct{}{}:
	default:
	}

	a.cancelMu.Lock()
	cancel := a.cancel
	a.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (a *Adapter) Close(_ context.Context) error {
	a.client.Close()
	return nil
}

// Position returns the last position this adapter observed for tp from its
// own poll bookkeeping. kgo does not expose per-partition consume position
// as a direct query outside of the fetch stream itself, so this is a
// best-effort diagnostic value (§4.1 only ever logs it), not an
// authoritative broker round-trip.
func (a *Adapter) Position(tp receiver.TopicPartition, _ time.Duration) (int64, error) {
	a.positionsMu.Lock()
	defer a.positionsMu.Unlock()
	return a.positions[tp], nil
}

func (a *Adapter) Committed(parts []receiver.TopicPartition, timeout time.Duration) (map[receiver.TopicPartition]int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req := kmsg.NewOffsetFetchRequest()
	req.Group = a.cfg.Group
	topics := make(map[string][]int32)
	for _, tp := range parts {
		topics[tp.Topic] = append(topics[tp.Topic], tp.Partition)
	}
	for topic, partitions := range topics {
		t := kmsg.NewOffsetFetchRequestTopic()
		t.Topic = topic
		t.Partitions = partitions
		req.Topics = append(req.Topics, t)
	}

	resp, err := req.RequestWith(ctx, a.client)
	out := make(map[receiver.TopicPartition]int64, len(parts))
	if err != nil {
		return out, fmt.Errorf("franzgo adapter: fetch committed offsets: %w", err)
	}
	for _, topic := range resp.Topics {
		for _, p := range topic.Partitions {
			out[receiver.TopicPartition{Topic: topic.Topic, Partition: p.Partition}] = p.Offset
		}
	}
	return out, nil
}

type seekableAssignment struct {
	client   *kgo.Client
	assigned []receiver.TopicPartition
}

func (s *seekableAssignment) Partitions() []receiver.TopicPartition { return s.assigned }

func (s *seekableAssignment) Seek(tp receiver.TopicPartition, offset int64) {
	s.client.SetOffsets(map[string]map[int32]kgo.EpochOffset{
		tp.Topic: {tp.Partition: kgo.EpochOffset{Epoch: -1, Offset: offset}},
	})
}

func toKgoOffsets(offsets map[receiver.TopicPartition]int64) map[string]map[int32]kgo.EpochOffset {
	out := make(map[string]map[int32]kgo.EpochOffset)
	for tp, offset := range offsets {
		if out[tp.Topic] == nil {
			out[tp.Topic] = make(map[int32]kgo.EpochOffset)
		}
		out[tp.Topic][tp.Partition] = kgo.EpochOffset{Epoch: -1, Offset: offset}
	}
	return out
}
