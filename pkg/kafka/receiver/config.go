package receiver

import (
	"fmt"
	"os"
	"time"

	_errors "kafka-receiver-go/pkg/errors"
	_validator "kafka-receiver-go/pkg/validator"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// AckMode is the offset-commit policy described in §6.4 / GLOSSARY.
type AckMode int

const (
	// AtMostOnce commits offsets ahead of emission: a crash can lose
	// records but never redelivers one already handed downstream.
	AtMostOnce AckMode = iota
	// ExactlyOnce defers committing to the transactional producer path;
	// CommitTask's own dispatch becomes a no-op for this mode (§4.3, §9).
	ExactlyOnce
	// AutoAck commits periodically/asynchronously once records are
	// emitted, with no explicit downstream acknowledgement required.
	AutoAck
	// ManualAck commits only once downstream code acknowledges an offset
	// via Receiver.Ack.
	ManualAck
)

func (m AckMode) String() string {
	switch m {
	case AtMostOnce:
		return "at_most_once"
	case ExactlyOnce:
		return "exactly_once"
	case AutoAck:
		return "auto_ack"
	case ManualAck:
		return "manual_ack"
	default:
		return "unknown"
	}
}

// ReceiverConfig carries every gate §6.4 lists as visible to the core, plus
// the handful of collaborators (subscriber procedure, listeners, error
// classifiers) the spec calls out as configuration rather than code.
type ReceiverConfig struct {
	Brokers []string `json:"brokers" yaml:"brokers" validate:"required,min=1"`
	Group   string   `json:"group" yaml:"group" validate:"required"`
	Topics  []string `json:"topics" yaml:"topics"`

	PollTimeout               time.Duration `json:"poll_timeout" yaml:"poll_timeout" validate:"required,gt=0"`
	CommitInterval            time.Duration `json:"commit_interval" yaml:"commit_interval" validate:"gte=0"`
	CommitRetryInterval       time.Duration `json:"commit_retry_interval" yaml:"commit_retry_interval" validate:"required,gt=0"`
	MaxCommitAttempts         int           `json:"max_commit_attempts" yaml:"max_commit_attempts" validate:"required,gt=0"`
	MaxDeferredCommits        int           `json:"max_deferred_commits" yaml:"max_deferred_commits" validate:"gte=0"`
	MaxDelayRebalance         time.Duration `json:"max_delay_rebalance" yaml:"max_delay_rebalance" validate:"gte=0"`
	CommitIntervalDuringDelay time.Duration `json:"commit_interval_during_delay" yaml:"commit_interval_during_delay" validate:"gte=0"`
	CloseTimeout              time.Duration `json:"close_timeout" yaml:"close_timeout" validate:"required,gt=0"`

	AckMode AckMode `json:"ack_mode" yaml:"ack_mode"`

	// InstanceID correlates log lines to one receiver
	// instance; DefaultReceiverConfig seeds it with a fresh uuid.
	InstanceID string `json:"instance_id" yaml:"instance_id"`

	// Subscriber is called once, from SubscribeTask, with the raw consumer
	// and the rebalance listener SubscribeTask installed — it decides
	// whether to Subscribe(topics) or Assign(partitions). Configuration
	// parsing/wiring of this procedure is itself out of scope (§1); the
	// field only carries the already-constructed collaborator.
	Subscriber func(c Consumer, listener RebalanceListener) error `json:"-" yaml:"-"`

	AssignListeners []AssignListener `json:"-" yaml:"-"`
	RevokeListeners []RevokeListener `json:"-" yaml:"-"`

	IsRetriableException   RetriablePredicate      `json:"-" yaml:"-"`
	IsTransientEmitConflict IsTransientEmitConflict `json:"-" yaml:"-"`
}

// DefaultReceiverConfig mirrors the rest of the repo's Default*Config
// constructors (pkg/kafka/config.go, pkg/rabbitmq/config.go, ...).
func DefaultReceiverConfig() *ReceiverConfig {
	return &ReceiverConfig{
		Brokers:                   []string{"localhost:9092"},
		Group:                     "kafka-receiver",
		Topics:                    []string{},
		PollTimeout:               200 * time.Millisecond,
		CommitInterval:            5 * time.Second,
		CommitRetryInterval:       500 * time.Millisecond,
		MaxCommitAttempts:         5,
		MaxDeferredCommits:        0,
		MaxDelayRebalance:         0,
		CommitIntervalDuringDelay: 250 * time.Millisecond,
		CloseTimeout:              15 * time.Second,
		AckMode:                   AutoAck,
		InstanceID:                uuid.New().String(),
		IsRetriableException:      func(error) bool { return true },
		IsTransientEmitConflict:   func(error) bool { return false },
	}
}

// LoadReceiverConfig reads the YAML-representable subset of ReceiverConfig
// from path and layers it over DefaultReceiverConfig. Callbacks
// (Subscriber, listeners, predicates) are never serialized — the caller
// wires those in code after loading, the same split pkg/jwt and
// pkg/database/postgres/config leave between declarative config and
// constructed collaborators.
func LoadReceiverConfig(path string) (*ReceiverConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read receiver config: %w", err)
	}

	cfg := DefaultReceiverConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse receiver config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration the way pkg/kafka/config.go does, but
// delegates the field-level checks to the validator/v10 struct tags above
// via this repo's own error-registry-backed validator, then rejects nil
// callbacks with the hand-rolled "if == nil" chain the tags can't cover.
func (c *ReceiverConfig) Validate() error {
	v := _validator.NewValidator(_errors.NewErrorRegistry())
	if errs, err := v.Validate(c, "en"); err != nil {
		return fmt.Errorf("validate receiver config: %w", err)
	} else if len(errs) > 0 {
		return fmt.Errorf("invalid receiver config: %w", errs)
	}

	if c.Subscriber == nil {
		return fmt.Errorf("subscriber is required")
	}
	if c.IsRetriableException == nil {
		return fmt.Errorf("is_retriable_exception predicate is required")
	}
	if c.IsTransientEmitConflict == nil {
		return fmt.Errorf("is_transient_emit_conflict predicate is required")
	}
	if c.MaxDelayRebalance > 0 && c.CommitIntervalDuringDelay <= 0 {
		return fmt.Errorf("commit_interval_during_delay must be greater than 0 when max_delay_rebalance is set")
	}
	return nil
}
