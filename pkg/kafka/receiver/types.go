// Package receiver implements the event-serialization core that bridges a
// non-thread-safe, polling broker consumer to a reactive, demand-driven
// downstream sink. See the package doc in receiver.go for the full picture.
package receiver

import "time"

// TopicPartition identifies a single partition of a topic.
type TopicPartition struct {
	Topic     string
	Partition int32
}

// Record is a single broker record, translated from whatever wire format
// the underlying adapter (pkg/kafka/adapter/...) speaks.
type Record struct {
	TopicPartition
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string][]byte
	Timestamp time.Time
}

// RecordBatch is the unit returned by one Poll call: one or more records
// across one or more assigned partitions.
type RecordBatch struct {
	Records []Record
}

// Empty reports whether the batch carries no records.
func (b RecordBatch) Empty() bool {
	return len(b.Records) == 0
}

// HighestOffsets returns, for every partition present in the batch, the
// offset one past the highest record seen — the form a commit call expects.
func (b RecordBatch) HighestOffsets() map[TopicPartition]int64 {
	out := make(map[TopicPartition]int64, len(b.Records))
	for _, r := range b.Records {
		if cur, ok := out[r.TopicPartition]; !ok || r.Offset+1 > cur {
			out[r.TopicPartition] = r.Offset + 1
		}
	}
	return out
}
