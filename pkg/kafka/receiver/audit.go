package receiver

import (
	"context"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// CommitAuditSink records the outcome of every offset-commit attempt for
// later reconciliation. It is a narrower, purpose-built counterpart to
// pkg/postgres's generic DatabaseClient abstraction: this package only ever
// needs "insert one row per commit attempt", so it talks to *gorm.DB
// directly rather than through that interface.
type CommitAuditSink interface {
	RecordCommit(ctx context.Context, instanceID string, offsets map[TopicPartition]int64, cause error)
}

// CommitAuditRecord is the row persisted for each partition touched by a
// single commit attempt.
type CommitAuditRecord struct {
	ID         uint64 `gorm:"primaryKey"`
	InstanceID string `gorm:"index"`
	Topic      string `gorm:"index"`
	Partition  int32
	Offset     int64
	Succeeded  bool
	Cause      string
	CommittedAt time.Time
}

func (CommitAuditRecord) TableName() string { return "kafka_receiver_commit_audit" }

// GormCommitAudit persists CommitAuditRecord rows via GORM. Migrate must be
// run once at startup by the caller (cmd/kafkareceiver wires this).
type GormCommitAudit struct {
	db *gorm.DB
}

// NewGormCommitAudit wraps an already-connected *gorm.DB.
func NewGormCommitAudit(db *gorm.DB) *GormCommitAudit {
	return &GormCommitAudit{db: db}
}

// OpenPostgresAudit dials Postgres via gorm's postgres driver and builds a
// GormCommitAudit against it, running the migration before returning.
func OpenPostgresAudit(dsn string) (*GormCommitAudit, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	audit := NewGormCommitAudit(db)
	if err := audit.Migrate(); err != nil {
		return nil, err
	}
	return audit, nil
}

// Migrate creates the audit table if it does not already exist.
func (a *GormCommitAudit) Migrate() error {
	return a.db.AutoMigrate(&CommitAuditRecord{})
}

func (a *GormCommitAudit) RecordCommit(ctx context.Context, instanceID string, offsets map[TopicPartition]int64, cause error) {
	if len(offsets) == 0 {
		return
	}

	rows := make([]CommitAuditRecord, 0, len(offsets))
	causeStr := ""
	if cause != nil {
		causeStr = cause.Error()
	}
	now := time.Now()
	for tp, offset := range offsets {
		rows = append(rows, CommitAuditRecord{
			InstanceID:  instanceID,
			Topic:       tp.Topic,
			Partition:   tp.Partition,
			Offset:      offset,
			Succeeded:   cause == nil,
			Cause:       causeStr,
			CommittedAt: now,
		})
	}

	// Best-effort: an audit-trail write failure must never block or fail
	// the commit path it is observing.
	_ = a.db.WithContext(ctx).Create(&rows).Error
}
