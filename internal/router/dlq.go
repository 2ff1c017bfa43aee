// This file contains the dead letter queue handling: identifier resolution and
// the diagnostic headers attached to records bound for the dead-letter topic.

package router

import (
	"errors"
	"strconv"

	"kafkarouter/internal/rules"
	"kafkarouter/pkg/types"
)

// UnmatchedMessage is the diagnostic text attached to records no rule matched.
const UnmatchedMessage = "Message not matched to any routing rules."

// Diagnostic header suffixes. The full header name is "<dlq-id>.<suffix>".
const (
	HeaderTopic      = "topic"
	HeaderPartition  = "partition"
	HeaderOffset     = "offset"
	HeaderMessage    = "message"
	HeaderStacktrace = "stacktrace"
)

// ErrNoDLQID is returned when none of the dead-letter identifier sources is set.
var ErrNoDLQID = errors.New("unable to resolve the DLQ identifier: set KAFKA_ROUTER_DLQ_ID, KAFKA_CONSUMER_CLIENT_ID or KAFKA_CONSUMER_GROUP_ID")

// ResolveDLQID picks the namespace for diagnostic headers: the explicit
// identifier, else the consumer client.id, else the consumer group.id.
func ResolveDLQID(explicit string, consumerConfig map[string]string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if clientID := consumerConfig["client.id"]; clientID != "" {
		return clientID, nil
	}
	if groupID := consumerConfig["group.id"]; groupID != "" {
		return groupID, nil
	}
	return "", ErrNoDLQID
}

// Annotator writes diagnostic headers for records diverted to the dead-letter
// topic. Header writes are upserts, so repeated annotation never duplicates a
// diagnostic header.
type Annotator struct {
	id string
}

// NewAnnotator creates an annotator for the resolved identifier.
func NewAnnotator(id string) *Annotator {
	return &Annotator{id: id}
}

// ID returns the header namespace.
func (a *Annotator) ID() string {
	return a.id
}

// HeaderName returns the full name of a diagnostic header.
func (a *Annotator) HeaderName(suffix string) string {
	return a.id + "." + suffix
}

// Unmatched annotates headers for a record that no rule matched.
func (a *Annotator) Unmatched(headers types.Headers, rec *types.Record) types.Headers {
	headers = a.origin(headers, rec)
	return headers.Upsert(a.HeaderName(HeaderMessage), []byte(UnmatchedMessage))
}

// Errored annotates headers for a record whose evaluation raised err.
func (a *Annotator) Errored(headers types.Headers, rec *types.Record, err *rules.MatchError) types.Headers {
	headers = a.origin(headers, rec)
	headers = headers.Upsert(a.HeaderName(HeaderMessage), []byte(err.Err.Error()))
	return headers.Upsert(a.HeaderName(HeaderStacktrace), []byte(err.Trace()))
}

func (a *Annotator) origin(headers types.Headers, rec *types.Record) types.Headers {
	headers = headers.Upsert(a.HeaderName(HeaderTopic), []byte(rec.Topic))
	headers = headers.Upsert(a.HeaderName(HeaderPartition), []byte(strconv.Itoa(rec.Partition)))
	return headers.Upsert(a.HeaderName(HeaderOffset), []byte(strconv.FormatInt(rec.Offset, 10)))
}

// dlqContext is the per-record routing state. It lives for one cycle only.
type dlqContext struct {
	destination string
	matched     bool
	headers     types.Headers
}

func newDLQContext(rec *types.Record, outcome rules.Outcome) *dlqContext {
	return &dlqContext{
		destination: outcome.Destination,
		matched:     outcome.Handled(),
		headers:     rec.Headers.Clone(),
	}
}

// prepare applies the diagnostic headers the outcome calls for.
func (c *dlqContext) prepare(a *Annotator, rec *types.Record, outcome rules.Outcome) {
	switch outcome.Kind {
	case rules.Errored:
		c.headers = a.Errored(c.headers, rec, outcome.Err)
	case rules.Unmatched:
		if c.destination != "" {
			c.headers = a.Unmatched(c.headers, rec)
		}
	}
}
