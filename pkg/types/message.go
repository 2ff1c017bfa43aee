package types

import (
	"errors"
	"time"
)

// ErrPartitionEOF is reported by a consumer that reached the end of a partition.
// It is informational and never routed.
var ErrPartitionEOF = errors.New("end of partition reached")

// Header is a single record header. Names are not required to be unique.
type Header struct {
	Key   string
	Value []byte
}

// Headers is an ordered header sequence. Insertion order is significant and the
// last header with a given name is the authoritative one for reads.
type Headers []Header

// Get returns the value of the last header named key.
func (h Headers) Get(key string) ([]byte, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Key == key {
			return h[i].Value, true
		}
	}
	return nil, false
}

// Values returns every value stored under key, in order.
func (h Headers) Values(key string) [][]byte {
	var values [][]byte
	for _, header := range h {
		if header.Key == key {
			values = append(values, header.Value)
		}
	}
	return values
}

// Upsert removes every header named key and appends key=value at the end.
// Unrelated headers keep their relative order. The receiver is not modified.
func (h Headers) Upsert(key string, value []byte) Headers {
	out := make(Headers, 0, len(h)+1)
	for _, header := range h {
		if header.Key != key {
			out = append(out, header)
		}
	}
	return append(out, Header{Key: key, Value: value})
}

// Clone returns a copy whose backing array is not shared with h.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	copy(out, h)
	return out
}

// Record represents a Kafka record as seen by the router.
type Record struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   Headers
	Time      time.Time
}

// DeadLetterNotice describes a record that was diverted to the dead-letter topic.
type DeadLetterNotice struct {
	SourceTopic      string    `json:"source_topic"`
	Partition        int       `json:"partition"`
	Offset           int64     `json:"offset"`
	DestinationTopic string    `json:"destination_topic"`
	Rule             string    `json:"rule,omitempty"`
	Reason           string    `json:"reason"`
	Timestamp        time.Time `json:"timestamp"`
}
