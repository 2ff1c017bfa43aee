package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kafkarouter/internal/kafka"
	"kafkarouter/internal/metrics"
	"kafkarouter/internal/mqtt"
	"kafkarouter/internal/router"
	"kafkarouter/internal/rules"
	"kafkarouter/internal/server"
)

const shutdownTimeout = 5 * time.Second

func runRouter(parent context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := a.cfg
	logger := a.logger
	logger.Info().Str("version", version).Msg("Starting kafka-router")

	table, err := rules.Load(cfg.Rules, cfg.Router.DLQTopic, logger)
	if err != nil {
		return err
	}
	if table.Len() == 0 {
		return router.ErrNoRules
	}

	sink, err := metrics.NewPrometheusSink(cfg.Metrics.Prefix, version)
	if err != nil {
		return err
	}

	consumer, err := kafka.NewConsumer(cfg.Consumer, logger)
	if err != nil {
		return err
	}
	producer, err := kafka.NewProducer(cfg.Producer, kafka.TopicOptions{
		AutoCreate:        cfg.Router.Topics.AutoCreate,
		DefaultPartitions: cfg.Router.Topics.DefaultPartitions,
		ReplicationFactor: cfg.Router.Topics.ReplicationFactor,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := producer.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing producer")
		}
	}()

	engine := router.NewEngine(table, consumer, producer, sink, router.Options{
		DLQMode:        cfg.Router.DLQMode,
		DryRun:         cfg.Router.DryRun,
		IdleTimeout:    cfg.Router.IdleTimeout,
		DLQID:          cfg.Router.DLQID,
		ConsumerConfig: cfg.Consumer,
	}, logger)

	if cfg.MQTT.Enabled() {
		notifier := mqtt.NewNotifier(cfg.MQTT, logger)
		if err := notifier.Connect(ctx); err != nil {
			logger.Warn().Err(err).Msg("Dead letter notifications disabled")
		} else {
			engine.SetNotifier(notifier)
			defer notifier.Disconnect()
		}
	}

	srv := server.New(cfg.Metrics.Port, sink.Handler(), engine, table, logger)
	if err := srv.Start(); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := engine.Run(ctx); err != nil {
		return err
	}
	logger.Info().Msg("kafka-router stopped")
	return nil
}
