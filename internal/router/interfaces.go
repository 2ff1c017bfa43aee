package router

import (
	"context"
	"time"

	"kafkarouter/pkg/types"
)

// Consumer is the source side of the transport. Auto commit must be disabled;
// offsets only advance through Commit.
type Consumer interface {
	Subscribe(topics []string) error
	// Poll waits at most timeout for the next record. An empty poll returns
	// (nil, nil). types.ErrPartitionEOF is informational.
	Poll(ctx context.Context, timeout time.Duration) (*types.Record, error)
	Commit(ctx context.Context, rec *types.Record) error
	Close() error
}

// Producer is the sink side of the transport. A delivery failure must be
// reported by Produce or, at the latest, by the following Flush.
type Producer interface {
	Produce(ctx context.Context, topic string, value, key []byte, headers types.Headers) error
	Flush(ctx context.Context) error
}

// MetricsSink receives the router's counters and timings.
type MetricsSink interface {
	MessageConsumed()
	MessageCommitted()
	MessageProduced()
	MessageUnrouted()
	ObserveProcessingTime(d time.Duration)
}

// DeadLetterNotifier is told about every record published to the dead-letter
// topic. Failures are logged and never stop routing.
type DeadLetterNotifier interface {
	NotifyDeadLetter(ctx context.Context, notice types.DeadLetterNotice) error
}
