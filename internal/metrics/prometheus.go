// Package metrics exposes router counters to Prometheus.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusSink counts router activity on its own registry. Every metric
// name starts with the configured prefix, which is prepended verbatim.
type PrometheusSink struct {
	registry *prometheus.Registry

	processingTime    prometheus.Summary
	versionInfo       *prometheus.GaugeVec
	consumedMessages  prometheus.Counter
	committedMessages prometheus.Counter
	nonRoutedMessages prometheus.Counter
	producedMessages  prometheus.Counter
}

// NewPrometheusSink registers the router metrics and records version.
func NewPrometheusSink(prefix, version string) (*PrometheusSink, error) {
	s := &PrometheusSink{
		registry: prometheus.NewRegistry(),
		processingTime: prometheus.NewSummary(prometheus.SummaryOpts{
			Name: prefix + "processing_time_seconds",
			Help: "Time spent processing message.",
		}),
		versionInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "run_version_info",
			Help: "The currently running version.",
		}, []string{"version"}),
		consumedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "consumer_message_count_total",
			Help: "The count of messages consumed.",
		}),
		committedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "consumer_message_committed_count_total",
			Help: "The count of messages processed and committed.",
		}),
		nonRoutedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "non_routed_error_count_total",
			Help: "The count of messages that were not routed to a rule destination.",
		}),
		producedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "producer_message_count_total",
			Help: "The count of messages produced.",
		}),
	}

	for _, c := range []prometheus.Collector{
		s.processingTime,
		s.versionInfo,
		s.consumedMessages,
		s.committedMessages,
		s.nonRoutedMessages,
		s.producedMessages,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := s.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric with prefix %q: %w", prefix, err)
		}
	}

	s.versionInfo.WithLabelValues(version).Set(1)
	return s, nil
}

// Registry returns the registry holding the router metrics.
func (s *PrometheusSink) Registry() *prometheus.Registry {
	return s.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (s *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

func (s *PrometheusSink) MessageConsumed()  { s.consumedMessages.Inc() }
func (s *PrometheusSink) MessageCommitted() { s.committedMessages.Inc() }
func (s *PrometheusSink) MessageProduced()  { s.producedMessages.Inc() }
func (s *PrometheusSink) MessageUnrouted()  { s.nonRoutedMessages.Inc() }

// ObserveProcessingTime records the time one record took from poll to commit.
func (s *PrometheusSink) ObserveProcessingTime(d time.Duration) {
	s.processingTime.Observe(d.Seconds())
}
