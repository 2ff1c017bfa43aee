// Package kafka adapts github.com/segmentio/kafka-go to the router's Consumer
// and Producer capabilities. Client settings are given as librdkafka style
// dotted keys (bootstrap.servers, group.id, security.protocol, ...), the
// same keys accepted through KAFKA_CONSUMER_* and KAFKA_PRODUCER_*.
package kafka

import (
	"crypto/tls"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"kafkarouter/pkg/validation"
)

const dialTimeout = 10 * time.Second

// Security protocols understood by ParseSettings.
const (
	ProtocolPlaintext     = "PLAINTEXT"
	ProtocolSSL           = "SSL"
	ProtocolSASLPlaintext = "SASL_PLAINTEXT"
	ProtocolSASLSSL       = "SASL_SSL"
)

// knownKeys are the settings this package acts on. enable.auto.commit is
// checked by the router itself.
var knownKeys = map[string]bool{
	"bootstrap.servers":       true,
	"group.id":                true,
	"client.id":               true,
	"auto.offset.reset":       true,
	"enable.auto.commit":      true,
	"security.protocol":       true,
	"sasl.mechanism":          true,
	"sasl.mechanisms":         true,
	"sasl.username":           true,
	"sasl.password":           true,
	"ssl.keystore.location":   true,
	"ssl.keystore.password":   true,
	"ssl.key.password":        true,
	"ssl.truststore.location": true,
	"ssl.truststore.password": true,
	"acks":                    true,
	"request.required.acks":   true,
}

// Settings is the parsed form of a client configuration map.
type Settings struct {
	Brokers      []string
	ClientID     string
	GroupID      string
	StartOffset  int64
	RequiredAcks kafka.RequiredAcks
	Protocol     string
	TLS          *tls.Config
	SASL         sasl.Mechanism
	// Ignored lists keys that have no kafka-go equivalent.
	Ignored []string
}

// ParseSettings translates a client configuration map. Certificate files
// are read when the protocol requires TLS.
func ParseSettings(cfg map[string]string) (*Settings, error) {
	brokers, err := validation.ValidateBootstrapServers(cfg["bootstrap.servers"])
	if err != nil {
		return nil, fmt.Errorf("bootstrap.servers: %w", err)
	}

	s := &Settings{
		Brokers:  brokers,
		ClientID: cfg["client.id"],
		GroupID:  cfg["group.id"],
	}

	if s.StartOffset, err = parseOffsetReset(cfg["auto.offset.reset"]); err != nil {
		return nil, err
	}

	acks := cfg["acks"]
	if acks == "" {
		acks = cfg["request.required.acks"]
	}
	if s.RequiredAcks, err = parseAcks(acks); err != nil {
		return nil, err
	}

	s.Protocol = strings.ToUpper(cfg["security.protocol"])
	if s.Protocol == "" {
		s.Protocol = ProtocolPlaintext
	}
	switch s.Protocol {
	case ProtocolPlaintext:
	case ProtocolSSL, ProtocolSASLSSL:
		if s.TLS, err = loadTLSConfig(cfg); err != nil {
			return nil, err
		}
	case ProtocolSASLPlaintext:
	default:
		return nil, fmt.Errorf("security.protocol %q is not supported", cfg["security.protocol"])
	}

	if s.Protocol == ProtocolSASLPlaintext || s.Protocol == ProtocolSASLSSL {
		if s.SASL, err = parseSASL(cfg); err != nil {
			return nil, err
		}
	}

	for key := range cfg {
		if !knownKeys[key] {
			s.Ignored = append(s.Ignored, key)
		}
	}
	sort.Strings(s.Ignored)
	return s, nil
}

func parseOffsetReset(value string) (int64, error) {
	switch strings.ToLower(value) {
	case "", "latest", "largest", "end":
		return kafka.LastOffset, nil
	case "earliest", "smallest", "beginning":
		return kafka.FirstOffset, nil
	}
	return 0, fmt.Errorf("auto.offset.reset %q is not supported", value)
}

func parseAcks(value string) (kafka.RequiredAcks, error) {
	switch strings.ToLower(value) {
	case "", "all", "-1":
		return kafka.RequireAll, nil
	case "1":
		return kafka.RequireOne, nil
	case "0":
		return kafka.RequireNone, nil
	}
	return 0, fmt.Errorf("acks %q is not supported", value)
}

func parseSASL(cfg map[string]string) (sasl.Mechanism, error) {
	mechanism := cfg["sasl.mechanism"]
	if mechanism == "" {
		mechanism = cfg["sasl.mechanisms"]
	}
	username, password := cfg["sasl.username"], cfg["sasl.password"]
	if username == "" {
		return nil, fmt.Errorf("sasl.username is required for %s", cfg["security.protocol"])
	}

	switch strings.ToUpper(mechanism) {
	case "", "PLAIN":
		return plain.Mechanism{Username: username, Password: password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, username, password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, username, password)
	}
	return nil, fmt.Errorf("sasl.mechanism %q is not supported", mechanism)
}

// Dialer returns a dialer for consumer group and admin connections.
func (s *Settings) Dialer() *kafka.Dialer {
	return &kafka.Dialer{
		ClientID:      s.ClientID,
		Timeout:       dialTimeout,
		DualStack:     true,
		TLS:           s.TLS,
		SASLMechanism: s.SASL,
	}
}

// Transport returns the round tripper used by writers.
func (s *Settings) Transport() *kafka.Transport {
	return &kafka.Transport{
		ClientID:    s.ClientID,
		DialTimeout: dialTimeout,
		TLS:         s.TLS,
		SASL:        s.SASL,
	}
}

// kafkaLogger forwards kafka-go's internal logging to zerolog.
func kafkaLogger(logger zerolog.Logger, level zerolog.Level) kafka.Logger {
	return kafka.LoggerFunc(func(msg string, args ...interface{}) {
		logger.WithLevel(level).Msgf(msg, args...)
	})
}
