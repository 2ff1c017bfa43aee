package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"kafkarouter/pkg/types"
)

// messageReader is the part of *kafka.Reader the consumer relies on.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer is a consumer group member with explicit offset commits.
type Consumer struct {
	settings  *Settings
	logger    zerolog.Logger
	newReader func(kafka.ReaderConfig) messageReader

	mu     sync.Mutex
	reader messageReader
}

// NewConsumer creates a consumer from a client configuration map. It does
// not connect until Subscribe.
func NewConsumer(cfg map[string]string, logger zerolog.Logger) (*Consumer, error) {
	settings, err := ParseSettings(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid consumer configuration: %w", err)
	}
	if settings.GroupID == "" {
		return nil, fmt.Errorf("invalid consumer configuration: group.id is required")
	}

	logger = logger.With().Str("component", "KafkaConsumer").Logger()
	if len(settings.Ignored) > 0 {
		logger.Debug().Strs("keys", settings.Ignored).Msg("Ignoring consumer settings without a kafka-go equivalent")
	}

	return &Consumer{
		settings: settings,
		logger:   logger,
		newReader: func(rc kafka.ReaderConfig) messageReader {
			return kafka.NewReader(rc)
		},
	}, nil
}

// readerConfig builds the group reader configuration for topics.
// CommitInterval stays zero, which makes CommitMessages synchronous.
func (c *Consumer) readerConfig(topics []string) kafka.ReaderConfig {
	return kafka.ReaderConfig{
		Brokers:     c.settings.Brokers,
		GroupID:     c.settings.GroupID,
		GroupTopics: topics,
		Dialer:      c.settings.Dialer(),
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: c.settings.StartOffset,
		Logger:      kafkaLogger(c.logger, zerolog.TraceLevel),
		ErrorLogger: kafkaLogger(c.logger, zerolog.ErrorLevel),
	}
}

// Subscribe joins the consumer group for topics.
func (c *Consumer) Subscribe(topics []string) error {
	if len(topics) == 0 {
		return errors.New("no topics to subscribe to")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reader != nil {
		return errors.New("consumer is already subscribed")
	}

	c.reader = c.newReader(c.readerConfig(topics))
	c.logger.Info().Strs("brokers", c.settings.Brokers).Str("group_id", c.settings.GroupID).
		Strs("topics", topics).Msg("Kafka consumer subscribed")
	return nil
}

func (c *Consumer) current() (messageReader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reader == nil {
		return nil, errors.New("consumer is not subscribed")
	}
	return c.reader, nil
}

// Poll waits up to timeout for the next record. An expired wait returns a
// nil record and a nil error.
func (c *Consumer) Poll(ctx context.Context, timeout time.Duration) (*types.Record, error) {
	reader, err := c.current()
	if err != nil {
		return nil, err
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := reader.FetchMessage(pollCtx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}
	return toRecord(msg), nil
}

// Commit synchronously commits the offset following rec.
func (c *Consumer) Commit(ctx context.Context, rec *types.Record) error {
	reader, err := c.current()
	if err != nil {
		return err
	}
	msg := kafka.Message{Topic: rec.Topic, Partition: rec.Partition, Offset: rec.Offset}
	if err := reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to commit offset: %w", err)
	}
	return nil
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reader == nil {
		return nil
	}
	c.logger.Info().Msg("Closing Kafka consumer")
	err := c.reader.Close()
	c.reader = nil
	return err
}

func toRecord(msg kafka.Message) *types.Record {
	rec := &types.Record{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Time:      msg.Time,
	}
	if len(msg.Headers) > 0 {
		rec.Headers = make(types.Headers, len(msg.Headers))
		for i, h := range msg.Headers {
			rec.Headers[i] = types.Header{Key: h.Key, Value: h.Value}
		}
	}
	return rec
}

func toKafkaHeaders(headers types.Headers) []kafka.Header {
	if len(headers) == 0 {
		return nil
	}
	out := make([]kafka.Header, len(headers))
	for i, h := range headers {
		out[i] = kafka.Header{Key: h.Key, Value: h.Value}
	}
	return out
}
