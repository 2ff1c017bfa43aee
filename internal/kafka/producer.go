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

const (
	createRetries = 3
	createBackoff = 200 * time.Millisecond
)

// TopicOptions controls creation of destination topics that do not exist.
type TopicOptions struct {
	AutoCreate        bool
	DefaultPartitions int
	ReplicationFactor int
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes records synchronously: Produce returns once the broker
// has acknowledged the write with the configured acks.
type Producer struct {
	writer    messageWriter
	settings  *Settings
	topics    TopicOptions
	dialAdmin func(ctx context.Context) (topicAdmin, error)
	backoff   time.Duration
	logger    zerolog.Logger

	createdTopics map[string]bool
	topicMutex    sync.Mutex
}

// NewProducer creates a producer from a client configuration map.
func NewProducer(cfg map[string]string, topics TopicOptions, logger zerolog.Logger) (*Producer, error) {
	settings, err := ParseSettings(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid producer configuration: %w", err)
	}

	logger = logger.With().Str("component", "KafkaProducer").Logger()
	if len(settings.Ignored) > 0 {
		logger.Debug().Strs("keys", settings.Ignored).Msg("Ignoring producer settings without a kafka-go equivalent")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(settings.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: settings.RequiredAcks,
		BatchSize:    1,
		Transport:    settings.Transport(),
		Logger:       kafkaLogger(logger, zerolog.TraceLevel),
		ErrorLogger:  kafkaLogger(logger, zerolog.ErrorLevel),
	}

	p := &Producer{
		writer:        writer,
		settings:      settings,
		topics:        topics,
		backoff:       createBackoff,
		logger:        logger,
		createdTopics: make(map[string]bool),
	}
	p.dialAdmin = func(ctx context.Context) (topicAdmin, error) {
		return dialController(ctx, p.settings)
	}

	logger.Info().Strs("brokers", settings.Brokers).Bool("auto_create_topics", topics.AutoCreate).
		Msg("Kafka producer initialized")
	return p, nil
}

// Produce writes one record to topic and waits for the acknowledgement.
func (p *Producer) Produce(ctx context.Context, topic string, value, key []byte, headers types.Headers) error {
	msg := kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: toKafkaHeaders(headers),
	}

	err := p.writer.WriteMessages(ctx, msg)
	if err == nil {
		return nil
	}
	if !isUnknownTopic(err) || !p.topics.AutoCreate {
		return fmt.Errorf("failed to write message to %s: %w", topic, err)
	}

	if createErr := p.createTopicIfNeeded(ctx, topic); createErr != nil {
		return fmt.Errorf("failed to create topic %s: %w", topic, createErr)
	}

	for attempt := 1; attempt <= createRetries; attempt++ {
		if err = sleep(ctx, time.Duration(attempt)*p.backoff); err != nil {
			break
		}
		err = p.writer.WriteMessages(ctx, msg)
		if err == nil || !isUnknownTopic(err) {
			break
		}
		p.logger.Warn().Str("topic", topic).Int("attempt", attempt).Msg("Topic not available yet, retrying")
	}
	if err != nil {
		return fmt.Errorf("failed to write message to %s after topic creation: %w", topic, err)
	}
	return nil
}

// Flush is a confirmation point. Writes are synchronous, so nothing is
// ever pending when it is called.
func (p *Producer) Flush(ctx context.Context) error {
	return ctx.Err()
}

// Close releases the writer's connections.
func (p *Producer) Close() error {
	p.logger.Info().Msg("Closing Kafka producer")
	return p.writer.Close()
}

// createTopicIfNeeded creates topic once per producer lifetime. A topic
// created concurrently by someone else counts as created.
func (p *Producer) createTopicIfNeeded(ctx context.Context, topic string) error {
	p.topicMutex.Lock()
	defer p.topicMutex.Unlock()
	if p.createdTopics[topic] {
		return nil
	}

	admin, err := p.dialAdmin(ctx)
	if err != nil {
		return err
	}
	defer admin.Close()

	p.logger.Info().Str("topic", topic).Int("partitions", p.topics.DefaultPartitions).
		Int("replication_factor", p.topics.ReplicationFactor).Msg("Creating Kafka topic")

	err = admin.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     p.topics.DefaultPartitions,
		ReplicationFactor: p.topics.ReplicationFactor,
	})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return err
	}

	p.createdTopics[topic] = true
	return nil
}

func isUnknownTopic(err error) bool {
	if errors.Is(err, kafka.UnknownTopicOrPartition) {
		return true
	}
	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, e := range writeErrs {
			if e != nil && errors.Is(e, kafka.UnknownTopicOrPartition) {
				return true
			}
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
