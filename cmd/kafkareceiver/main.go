// Command kafkareceiver wires the receiver core against a real franz-go
// consumer, exposing Prometheus metrics and a couple of operator-facing
// subcommands, in the same "cobra root + flags + YAML config" shape
// internal/cli/cli.go uses.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kafka-receiver-go/pkg/kafka/adapter/franzgo"
	"kafka-receiver-go/pkg/kafka/receiver"
	_logger "kafka-receiver-go/pkg/logger"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	if err := buildCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildCLI() *cobra.Command {
	root := &cobra.Command{
		Use:     "kafkareceiver",
		Short:   "Demand-driven Kafka consumer bridge",
		Version: "1.0.0",
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/receiver.yaml", "receiver config file path")

	root.AddCommand(buildRunCommand())
	root.AddCommand(buildStatusCommand())

	return root
}

func buildRunCommand() *cobra.Command {
	var metricsAddr string
	var topics []string
	var group string
	var brokers []string
	var auditDSN string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the receiver and its metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReceiver(brokers, group, topics, metricsAddr, auditDSN)
		},
	}

	cmd.Flags().StringSliceVar(&brokers, "brokers", []string{"localhost:9092"}, "Kafka seed brokers")
	cmd.Flags().StringVar(&group, "group", "kafka-receiver", "Kafka consumer group")
	cmd.Flags().StringSliceVar(&topics, "topics", nil, "Kafka topics to subscribe")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Prometheus /metrics listen address")
	cmd.Flags().StringVar(&auditDSN, "audit-dsn", "", "Postgres DSN for the commit audit trail (disabled if empty)")

	return cmd
}

func buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the resolved receiver configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := receiver.LoadReceiverConfig(configFile)
			if err != nil {
				cfg = receiver.DefaultReceiverConfig()
			}
			fmt.Printf("config file: %s\n", configFile)
			fmt.Printf("ack mode: %s\n", cfg.AckMode)
			fmt.Printf("group: %s\n", cfg.Group)
			fmt.Printf("brokers: %v\n", cfg.Brokers)
			return nil
		},
	}
}

func runReceiver(brokers []string, group string, topics []string, metricsAddr, auditDSN string) error {
	log := _logger.New(_logger.Config{Level: "info", Format: "json"})

	cfg, err := receiver.LoadReceiverConfig(configFile)
	if err != nil {
		log.Info(context.Background(), "no config file found, using defaults", "path", configFile)
		cfg = receiver.DefaultReceiverConfig()
	}
	if len(brokers) > 0 {
		cfg.Brokers = brokers
	}
	if group != "" {
		cfg.Group = group
	}

	consumerAdapter, err := franzgo.New(franzgo.Config{Brokers: cfg.Brokers, Group: cfg.Group}, topics)
	if err != nil {
		return fmt.Errorf("connect franz-go consumer: %w", err)
	}
	if err := consumerAdapter.EnsureTopics(context.Background(), topics, 1); err != nil {
		log.Info(context.Background(), "topic provisioning skipped", "error", err)
	}

	cfg.Subscriber = func(c receiver.Consumer, listener receiver.RebalanceListener) error {
		return c.Subscribe(topics, listener)
	}

	metrics := receiver.NewCollector()
	sink := &logSink{log: log}

	opts := []receiver.Option{receiver.WithMetrics(metrics)}
	if auditDSN != "" {
		audit, err := receiver.OpenPostgresAudit(auditDSN)
		if err != nil {
			return fmt.Errorf("open audit trail: %w", err)
		}
		opts = append(opts, receiver.WithAudit(audit))
	}

	r, err := receiver.New(cfg, consumerAdapter, sink, log, opts...)
	if err != nil {
		return fmt.Errorf("new receiver: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	r.Start(ctx)
	r.Demand(^uint64(0))

	go func() {
		if err := receiver.StartServer(metricsAddr); err != nil {
			log.Error(ctx, "metrics server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info(context.Background(), "shutting down")
	return r.Stop(cfg.CloseTimeout)
}

// logSink is the default downstream for the run command: it simply logs
// every batch. Real deployments wire their own receiver.Sink and call
// receiver.New directly instead of going through this binary.
type logSink struct {
	log *_logger.Logger
}

func (s *logSink) EmitNext(batch receiver.RecordBatch, _ receiver.EmitFailureHandler) {
	s.log.Debug(context.Background(), "batch received", "records", len(batch.Records))
}

func (s *logSink) EmitError(err error, _ receiver.EmitFailureHandler) {
	s.log.Error(context.Background(), "receiver terminated", "error", err)
}
