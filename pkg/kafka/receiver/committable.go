package receiver

import "sync"

// CommitCallbackEmitter lets a manual-ack caller block until the offset it
// registered has actually been committed (or the commit has been given up
// on). Success/Failure complete it exactly once.
type CommitCallbackEmitter struct {
	done chan error
	once sync.Once
}

// NewCommitCallbackEmitter creates an emitter ready to be passed to
// AddUncommitted.
func NewCommitCallbackEmitter() *CommitCallbackEmitter {
	return &CommitCallbackEmitter{done: make(chan error, 1)}
}

func (e *CommitCallbackEmitter) complete(err error) {
	e.once.Do(func() { e.done <- err })
}

// Wait blocks until the commit this emitter rides on succeeds or fails.
func (e *CommitCallbackEmitter) Wait() error {
	return <-e.done
}

// CommitArgs is the snapshot-and-reset view returned by
// CommittableBatch.GetAndClearOffsets (§6.3): the offsets to commit plus any
// per-commit callback emitters riding along with them.
type CommitArgs struct {
	Offsets  map[TopicPartition]int64
	Emitters []*CommitCallbackEmitter
}

// CommittableBatch accumulates uncommitted offsets between commit runs
// (§6.3). It is specified only by contract: a caller must never reach into
// its internals, only snapshot-and-clear, restore, and query counts.
type CommittableBatch interface {
	// AddUncommitted records that batch's records are now in-pipeline.
	// emitter may be nil; when non-nil it is completed once the offsets
	// this batch contributes are committed or surrendered.
	AddUncommitted(batch RecordBatch, emitter *CommitCallbackEmitter)

	// Ack marks a single offset as processed by downstream code. It is the
	// dataflow hook §2 calls "record-processing acks"; under AUTO_ACK the
	// receiver calls it itself immediately after emission.
	Ack(tp TopicPartition, offset int64)

	InPipeline() int
	DeferredCount() int

	GetAndClearOffsets() *CommitArgs
	RestoreOffsets(args *CommitArgs, retry bool)
	PartitionsRevoked(parts []TopicPartition)

	OutOfOrderCommits() bool
}

// newCommittableBatch builds the default CommittableBatch. outOfOrder should
// be true iff maxDeferredCommits > 0 (§6.3).
func newCommittableBatch(outOfOrder bool) CommittableBatch {
	return &committableBatch{
		outOfOrder: outOfOrder,
		queue:      make(map[TopicPartition][]int64),
		acked:      make(map[TopicPartition]map[int64]struct{}),
		advanced:   make(map[TopicPartition]int64),
		lastSent:   make(map[TopicPartition]int64),
	}
}

// committableBatch tracks, per partition, the FIFO of offsets added but not
// yet resolved. An Ack at the head of the queue advances the commit
// watermark (and any acks waiting behind it that are now contiguous); an Ack
// that lands ahead of the head is a deferred (out-of-order) commit.
type committableBatch struct {
	mu sync.Mutex

	outOfOrder bool

	queue    map[TopicPartition][]int64
	acked    map[TopicPartition]map[int64]struct{}
	advanced map[TopicPartition]int64
	lastSent map[TopicPartition]int64

	deferred        int
	inPipelineCount int

	pendingEmitters []*CommitCallbackEmitter
}

func (c *committableBatch) AddUncommitted(batch RecordBatch, emitter *CommitCallbackEmitter) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, rec := range batch.Records {
		tp := rec.TopicPartition
		c.queue[tp] = append(c.queue[tp], rec.Offset)
		c.inPipelineCount++
	}
	if emitter != nil {
		c.pendingEmitters = append(c.pendingEmitters, emitter)
	}
}

func (c *committableBatch) Ack(tp TopicPartition, offset int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := c.queue[tp]
	if len(q) == 0 {
		return
	}

	if q[0] != offset {
		// Out of order: downstream acked an offset that isn't at the head
		// of the partition's queue yet. Record it and defer.
		set := c.acked[tp]
		if set == nil {
			set = make(map[int64]struct{})
			c.acked[tp] = set
		}
		set[offset] = struct{}{}
		c.deferred++
		return
	}

	// In-order: advance the watermark past offset, and past anything
	// already acked that is now contiguous.
	q = q[1:]
	c.inPipelineCount--
	c.advanced[tp] = offset + 1

	for len(q) > 0 {
		next := q[0]
		set := c.acked[tp]
		if set == nil {
			break
		}
		if _, ok := set[next]; !ok {
			break
		}
		delete(set, next)
		c.deferred--
		q = q[1:]
		c.inPipelineCount--
		c.advanced[tp] = next + 1
	}
	c.queue[tp] = q
}

func (c *committableBatch) InPipeline() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inPipelineCount
}

func (c *committableBatch) DeferredCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deferred
}

func (c *committableBatch) OutOfOrderCommits() bool {
	return c.outOfOrder
}

func (c *committableBatch) GetAndClearOffsets() *CommitArgs {
	c.mu.Lock()
	defer c.mu.Unlock()

	offsets := make(map[TopicPartition]int64)
	for tp, adv := range c.advanced {
		if adv != c.lastSent[tp] {
			offsets[tp] = adv
			c.lastSent[tp] = adv
		}
	}

	emitters := c.pendingEmitters
	c.pendingEmitters = nil

	if len(offsets) == 0 && len(emitters) == 0 {
		return nil
	}
	return &CommitArgs{Offsets: offsets, Emitters: emitters}
}

func (c *committableBatch) RestoreOffsets(args *CommitArgs, retry bool) {
	if args == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for tp, off := range args.Offsets {
		// advanced[tp] only ever grows, so rewinding lastSent makes the
		// next snapshot include it again regardless of whether a newer
		// ack has moved the watermark further in the meantime.
		c.lastSent[tp] = off - 1
	}
	_ = retry // both paths restore identically; retry only affects CommitTask's own state
}

func (c *committableBatch) PartitionsRevoked(parts []TopicPartition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, tp := range parts {
		c.inPipelineCount -= len(c.queue[tp])
		c.deferred -= len(c.acked[tp])
		delete(c.queue, tp)
		delete(c.acked, tp)
		delete(c.advanced, tp)
		delete(c.lastSent, tp)
	}
}
