package kafka

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"

	"github.com/segmentio/kafka-go"
)

type topicAdmin interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	Close() error
}

// TopicStatus describes a topic as seen by the cluster.
type TopicStatus struct {
	Topic      string
	Exists     bool
	Partitions int
}

// dialBroker connects to the first reachable bootstrap broker.
func dialBroker(ctx context.Context, s *Settings) (*kafka.Conn, error) {
	dialer := s.Dialer()
	var lastErr error
	for _, broker := range s.Brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err == nil {
			return conn, nil
		}
		lastErr = fmt.Errorf("failed to connect to Kafka broker %s: %w", broker, err)
	}
	return nil, lastErr
}

// dialController connects to the cluster controller, which must receive
// topic creation requests.
func dialController(ctx context.Context, s *Settings) (*kafka.Conn, error) {
	conn, err := dialBroker(ctx, s)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return nil, fmt.Errorf("failed to look up controller: %w", err)
	}
	address := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	controllerConn, err := s.Dialer().DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to controller %s: %w", address, err)
	}
	return controllerConn, nil
}

// CheckTopics connects with cfg and reports whether each topic exists.
func CheckTopics(ctx context.Context, cfg map[string]string, topics []string) ([]TopicStatus, error) {
	settings, err := ParseSettings(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := dialBroker(ctx, settings)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return nil, fmt.Errorf("failed to read cluster metadata: %w", err)
	}
	return topicStatuses(partitions, topics), nil
}

func topicStatuses(partitions []kafka.Partition, topics []string) []TopicStatus {
	counts := make(map[string]int)
	for _, p := range partitions {
		counts[p.Topic]++
	}

	statuses := make([]TopicStatus, 0, len(topics))
	seen := make(map[string]bool)
	for _, topic := range topics {
		if seen[topic] {
			continue
		}
		seen[topic] = true
		n, ok := counts[topic]
		statuses = append(statuses, TopicStatus{Topic: topic, Exists: ok, Partitions: n})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Topic < statuses[j].Topic })
	return statuses
}
