// Package router implements the consume, match, enrich, produce and commit
// cycle. The Engine is single threaded: one record is fully processed, and its
// offset committed, before the next one is polled.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"kafkarouter/internal/rules"
	"kafkarouter/pkg/types"
)

// DefaultPollTimeout bounds a single poll of the consumer.
const DefaultPollTimeout = time.Second

// Options are the engine settings fixed at startup.
type Options struct {
	// DLQMode disables offset commits and enables the idle timeout.
	DLQMode bool
	// DryRun evaluates and annotates records but never publishes them.
	DryRun bool
	// IdleTimeout stops a DLQ mode run once no record arrived for this long.
	IdleTimeout time.Duration
	// PollTimeout defaults to DefaultPollTimeout.
	PollTimeout time.Duration
	// DLQID is the explicit diagnostic header namespace, see ResolveDLQID.
	DLQID string
	// ConsumerConfig is the transport configuration of the consumer; it is
	// checked for manual offset commits before anything is consumed.
	ConsumerConfig map[string]string
}

// Engine drives records from a Consumer through a RouteTable to a Producer.
type Engine struct {
	table     *rules.RouteTable
	consumer  Consumer
	producer  Producer
	metrics   MetricsSink
	notifier  DeadLetterNotifier
	annotator *Annotator
	opts      Options
	logger    zerolog.Logger

	running        atomic.Bool
	state          atomic.Int32
	lastRecordTime time.Time
	now            func() time.Time
}

// NewEngine creates an engine. Nothing is validated or consumed until Run.
func NewEngine(table *rules.RouteTable, consumer Consumer, producer Producer, metrics MetricsSink, opts Options, logger zerolog.Logger) *Engine {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	return &Engine{
		table:    table,
		consumer: consumer,
		producer: producer,
		metrics:  metrics,
		opts:     opts,
		logger:   logger.With().Str("component", "Engine").Logger(),
		now:      time.Now,
	}
}

// SetNotifier registers a notifier for records sent to the dead-letter topic.
func (e *Engine) SetNotifier(n DeadLetterNotifier) {
	e.notifier = n
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Stop asks the engine to drain after the record currently being processed.
// It is safe to call from any goroutine.
func (e *Engine) Stop() {
	e.running.Store(false)
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	e.logger.Info().Str("state", s.String()).Msg("Router state changed")
}

// Run validates the configuration, subscribes and routes records until ctx
// is cancelled, Stop is called, the DLQ idle timeout expires, or a fatal error
// occurs. A nil return means a graceful drain.
func (e *Engine) Run(ctx context.Context) error {
	e.setState(Starting)
	if err := e.start(); err != nil {
		e.setState(Stopped)
		return err
	}

	topics := e.table.Topics()
	if err := e.consumer.Subscribe(topics); err != nil {
		e.setState(Stopped)
		return fmt.Errorf("failed to subscribe to %v: %w", topics, err)
	}
	e.logger.Info().Strs("topics", topics).Int("rules", e.table.Len()).
		Bool("dlq_mode", e.opts.DLQMode).Bool("dry_run", e.opts.DryRun).Msg("Subscribed to source topics")

	e.lastRecordTime = e.now()
	e.running.Store(true)
	e.setState(Running)

	err := e.loop(ctx)

	e.setState(Draining)
	e.logger.Info().Msg("Closing the consumer")
	if closeErr := e.consumer.Close(); closeErr != nil {
		e.logger.Error().Err(closeErr).Msg("Error closing consumer")
		if err == nil {
			err = fmt.Errorf("failed to close consumer: %w", closeErr)
		}
	}
	e.setState(Stopped)
	return err
}

// start performs the checks of the Starting state.
func (e *Engine) start() error {
	if e.table == nil || e.table.Len() == 0 {
		return ErrNoRules
	}
	if err := ValidateConsumerConfig(e.opts.ConsumerConfig); err != nil {
		return err
	}
	id, err := ResolveDLQID(e.opts.DLQID, e.opts.ConsumerConfig)
	if err != nil {
		return &ConfigError{Setting: "dlq", Err: err}
	}
	e.annotator = NewAnnotator(id)
	return nil
}

func (e *Engine) loop(ctx context.Context) error {
	// In-flight records are finished even when ctx is cancelled mid-cycle.
	cycleCtx := context.WithoutCancel(ctx)

	for e.running.Load() {
		if ctx.Err() != nil {
			e.logger.Warn().Msg("Termination requested, draining")
			return nil
		}

		rec, err := e.consumer.Poll(ctx, e.opts.PollTimeout)
		if err != nil {
			if errors.Is(err, types.ErrPartitionEOF) {
				e.lastRecordTime = e.now()
				e.logger.Debug().Msg("End of partition reached")
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			return fmt.Errorf("consumer poll failed: %w", err)
		}

		if rec == nil {
			e.checkIdle()
			continue
		}

		e.lastRecordTime = e.now()
		if err := e.process(cycleCtx, rec); err != nil {
			return err
		}
	}
	return nil
}

// checkIdle stops a DLQ mode run that has been idle for IdleTimeout.
func (e *Engine) checkIdle() {
	if !e.opts.DLQMode {
		return
	}
	idle := e.now().Sub(e.lastRecordTime)
	if idle >= e.opts.IdleTimeout {
		e.logger.Warn().Dur("timeout", e.opts.IdleTimeout).Dur("idle", idle).Msg("Timeout since last message consumed")
		e.Stop()
	}
}

// process runs one record through evaluation, publication and commit.
func (e *Engine) process(ctx context.Context, rec *types.Record) error {
	started := e.now()
	defer func() { e.metrics.ObserveProcessingTime(e.now().Sub(started)) }()

	e.metrics.MessageConsumed()
	e.logger.Debug().Str("topic", rec.Topic).Int("partition", rec.Partition).Int64("offset", rec.Offset).Msg("Consumed message")

	outcome := e.table.Evaluate(rec)
	dc := newDLQContext(rec, outcome)
	dc.prepare(e.annotator, rec, outcome)

	if outcome.Kind == rules.Errored {
		e.logger.Warn().Err(outcome.Err).Str("rule", outcome.Rule).Str("topic", rec.Topic).
			Int("partition", rec.Partition).Int64("offset", rec.Offset).Msg("Message could not be evaluated")
	}

	if dc.destination != "" {
		if err := e.publish(ctx, rec, dc, outcome); err != nil {
			return err
		}
	}

	e.report(outcome, dc)
	return e.commit(ctx, rec)
}

func (e *Engine) publish(ctx context.Context, rec *types.Record, dc *dlqContext, outcome rules.Outcome) error {
	if e.opts.DryRun {
		e.logger.Debug().Str("destination_topic", dc.destination).Msg("Skipping producing message as dry-run mode is on")
		return nil
	}

	e.logger.Debug().Str("destination_topic", dc.destination).Msg("Producing message")
	if err := e.producer.Produce(ctx, dc.destination, rec.Value, rec.Key, dc.headers); err != nil {
		return fmt.Errorf("failed to produce %s[%d]@%d to %s: %w", rec.Topic, rec.Partition, rec.Offset, dc.destination, err)
	}
	if err := e.producer.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush %s[%d]@%d to %s: %w", rec.Topic, rec.Partition, rec.Offset, dc.destination, err)
	}
	e.metrics.MessageProduced()

	if e.notifier != nil && dc.destination == e.table.Fallback() {
		e.notify(ctx, rec, dc, outcome)
	}
	return nil
}

func (e *Engine) notify(ctx context.Context, rec *types.Record, dc *dlqContext, outcome rules.Outcome) {
	reason := UnmatchedMessage
	switch outcome.Kind {
	case rules.Errored:
		reason = outcome.Err.Err.Error()
	case rules.Matched:
		reason = "Message matched a rule targeting the DLQ topic."
	}
	notice := types.DeadLetterNotice{
		SourceTopic:      rec.Topic,
		Partition:        rec.Partition,
		Offset:           rec.Offset,
		DestinationTopic: dc.destination,
		Rule:             outcome.Rule,
		Reason:           reason,
		Timestamp:        e.now().UTC(),
	}
	if err := e.notifier.NotifyDeadLetter(ctx, notice); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to send dead letter notification")
	}
}

// report records the disposition of a record in logs and metrics.
func (e *Engine) report(outcome rules.Outcome, dc *dlqContext) {
	dlqTopic := e.table.Fallback()

	switch {
	case dc.matched && dc.destination != "" && dc.destination == dlqTopic:
		e.metrics.MessageUnrouted()
	case dc.matched && dc.destination == "":
		e.logger.Warn().Str("rule", outcome.Rule).Msg("The message could not be evaluated and there is no DLQ topic. The message will no longer be processed.")
		e.metrics.MessageUnrouted()
	case dc.matched:
		e.logger.Debug().Str("rule", outcome.Rule).Msg("The message was successfully matched to a rule")
	default:
		event := e.logger.Warn()
		if dlqTopic != "" {
			event.Str("dlq_topic", dlqTopic).Msg("The message did not match any configured rules. It has been sent to the DLQ topic.")
		} else {
			event.Msg("The message did not match any configured rules. The message will no longer be processed.")
		}
		e.metrics.MessageUnrouted()
	}
}

func (e *Engine) commit(ctx context.Context, rec *types.Record) error {
	if e.opts.DLQMode {
		return nil
	}
	e.logger.Debug().Msg("Committing the message in the consumer")
	if err := e.consumer.Commit(ctx, rec); err != nil {
		return fmt.Errorf("failed to commit %s[%d]@%d: %w", rec.Topic, rec.Partition, rec.Offset, err)
	}
	e.metrics.MessageCommitted()
	return nil
}
