// Package faketest provides an in-memory receiver.Consumer for deterministic
// tests of confinement, demand and pause/resume behavior without a real
// broker.
package faketest

import (
	"context"
	"sync"
	"time"

	receiver "kafka-receiver-go/pkg/kafka/receiver"
)

// Consumer is a minimal, single-goroutine-safe fake of receiver.Consumer.
// Each Poll hands out, as one batch, every record queued with Enqueue whose
// partition is not paused; records of paused partitions stay queued.
type Consumer struct {
	mu sync.Mutex

	queue      []receiver.Record
	paused     map[receiver.TopicPartition]struct{}
	assignment []receiver.TopicPartition
	positions  map[receiver.TopicPartition]int64

	wakeupCh chan struct{}
	closed   bool

	Commits       []map[receiver.TopicPartition]int64
	FailNextSync  error
	FailNextAsync error
}

// New builds a fake Consumer already assigned to parts.
func New(parts []receiver.TopicPartition) *Consumer {
	return &Consumer{
		paused:     make(map[receiver.TopicPartition]struct{}),
		assignment: parts,
		positions:  make(map[receiver.TopicPartition]int64),
		wakeupCh:   make(chan struct{}, 1),
	}
}

// Enqueue appends records that a subsequent Poll will return.
func (c *Consumer) Enqueue(records ...receiver.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, records...)
}

func (c *Consumer) Poll(ctx context.Context, timeout time.Duration) (receiver.RecordBatch, error) {
	select {
	case <-c.wakeupCh:
		return receiver.RecordBatch{}, receiver.ErrWakeup
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var batch []receiver.Record
	var rest []receiver.Record
	for _, rec := range c.queue {
		if _, ok := c.paused[rec.TopicPartition]; ok {
			rest = append(rest, rec)
			continue
		}
		batch = append(batch, rec)
	}
	c.queue = rest

	return receiver.RecordBatch{Records: batch}, nil
}

func (c *Consumer) Pause(parts []receiver.TopicPartition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tp := range parts {
		c.paused[tp] = struct{}{}
	}
}

func (c *Consumer) Resume(parts []receiver.TopicPartition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tp := range parts {
		delete(c.paused, tp)
	}
}

func (c *Consumer) Assignment() []receiver.TopicPartition {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]receiver.TopicPartition, len(c.assignment))
	copy(out, c.assignment)
	return out
}

func (c *Consumer) CommitSync(ctx context.Context, offsets map[receiver.TopicPartition]int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailNextSync != nil {
		err := c.FailNextSync
		c.FailNextSync = nil
		return err
	}
	c.Commits = append(c.Commits, offsets)
	for tp, off := range offsets {
		c.positions[tp] = off
	}
	return nil
}

func (c *Consumer) CommitAsync(offsets map[receiver.TopicPartition]int64, cb receiver.CommitCallback) {
	c.mu.Lock()
	if c.FailNextAsync != nil {
		err := c.FailNextAsync
		c.FailNextAsync = nil
		c.mu.Unlock()
		cb(offsets, err)
		return
	}
	c.Commits = append(c.Commits, offsets)
	for tp, off := range offsets {
		c.positions[tp] = off
	}
	c.mu.Unlock()
	cb(offsets, nil)
}

func (c *Consumer) Wakeup() {
	select {
	case c.wakeupCh <- struct{}{}:
	default:
	}
}

func (c *Consumer) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Consumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Consumer) Subscribe(topics []string, listener receiver.RebalanceListener) error {
	c.mu.Lock()
	assignment := make([]receiver.TopicPartition, len(c.assignment))
	copy(assignment, c.assignment)
	c.mu.Unlock()
	listener.OnAssigned(context.Background(), &seekableAssignment{parts: assignment, c: c})
	return nil
}

func (c *Consumer) Assign(parts []receiver.TopicPartition) error {
	c.mu.Lock()
	c.assignment = parts
	c.mu.Unlock()
	return nil
}

func (c *Consumer) Position(tp receiver.TopicPartition, timeout time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positions[tp], nil
}

func (c *Consumer) Committed(parts []receiver.TopicPartition, timeout time.Duration) (map[receiver.TopicPartition]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[receiver.TopicPartition]int64, len(parts))
	for _, tp := range parts {
		out[tp] = c.positions[tp]
	}
	return out, nil
}

// Revoke simulates a rebalance revoking parts, invoking listener.OnRevoked.
func (c *Consumer) Revoke(listener receiver.RebalanceListener, parts []receiver.TopicPartition) {
	listener.OnRevoked(context.Background(), parts)
}

type seekableAssignment struct {
	parts []receiver.TopicPartition
	c     *Consumer
}

func (s *seekableAssignment) Partitions() []receiver.TopicPartition { return s.parts }

func (s *seekableAssignment) Seek(tp receiver.TopicPartition, offset int64) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.c.positions[tp] = offset
}
