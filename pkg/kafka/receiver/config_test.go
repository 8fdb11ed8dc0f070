package receiver

import "testing"

func validConfig() *ReceiverConfig {
	cfg := DefaultReceiverConfig()
	cfg.Subscriber = func(Consumer, RebalanceListener) error { return nil }
	return cfg
}

func TestReceiverConfigValidateAcceptsDefaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config (with subscriber set) to validate, got %v", err)
	}
}

func TestReceiverConfigValidateRejectsMissingBrokers(t *testing.T) {
	cfg := validConfig()
	cfg.Brokers = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for missing brokers")
	}
}

func TestReceiverConfigValidateRequiresSubscriber(t *testing.T) {
	cfg := validConfig()
	cfg.Subscriber = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for missing subscriber")
	}
}

func TestReceiverConfigValidateRequiresCommitIntervalDuringDelay(t *testing.T) {
	cfg := validConfig()
	cfg.MaxDelayRebalance = 0
	cfg.CommitIntervalDuringDelay = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected delay-less config to validate, got %v", err)
	}

	cfg.MaxDelayRebalance = 1000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error when max_delay_rebalance is set without commit_interval_during_delay")
	}
}

func TestAckModeString(t *testing.T) {
	cases := map[AckMode]string{
		AtMostOnce:  "at_most_once",
		ExactlyOnce: "exactly_once",
		AutoAck:     "auto_ack",
		ManualAck:   "manual_ack",
	}
	for mode, want := range cases {
		if got := mode.String(); got != want {
			t.Fatalf("AckMode(%d).String() = %q, want %q", mode, got, want)
		}
	}
}
