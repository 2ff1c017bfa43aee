package types

import "time"

// Config represents the complete router configuration
type Config struct {
	Router   RouterConfig      `mapstructure:"router"`
	Consumer map[string]string `mapstructure:"consumer"`
	Producer map[string]string `mapstructure:"producer"`
	Rules    []RuleDefinition  `mapstructure:"-"`
	Metrics  MetricsConfig     `mapstructure:"metrics"`
	MQTT     MQTTConfig        `mapstructure:"mqtt"`
	Logging  LoggingConfig     `mapstructure:"logging"`
}

// RouterConfig holds routing behaviour settings
type RouterConfig struct {
	DLQTopic    string        `mapstructure:"dlq_topic_name"`
	DLQMode     bool          `mapstructure:"dlq_mode"`
	DryRun      bool          `mapstructure:"dry_run_mode"`
	IdleTimeout time.Duration `mapstructure:"-"`
	DLQID       string        `mapstructure:"dlq_id"`
	Topics      struct {
		AutoCreate        bool `mapstructure:"auto_create_topics"`
		DefaultPartitions int  `mapstructure:"default_partitions"`
		ReplicationFactor int  `mapstructure:"replication_factor"`
	} `mapstructure:"topics"`
}

// RuleDefinition is one raw rule declaration. Key is the full declaration
// identifier (e.g. KAFKA_ROUTER_RULE_ORDERS) and decides evaluation order.
type RuleDefinition struct {
	Key      string
	Document string
}

// MetricsConfig holds Prometheus exposition settings
type MetricsConfig struct {
	Prefix string `mapstructure:"prometheus_prefix"`
	Port   int    `mapstructure:"prometheus_port"`
}

// MQTTConfig holds the optional dead-letter notification target
type MQTTConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	UseTLS   bool   `mapstructure:"use_tls"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
	QoS      byte   `mapstructure:"qos"`
}

// Enabled reports whether dead-letter notices should be mirrored to MQTT.
func (c MQTTConfig) Enabled() bool {
	return c.Host != ""
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

// RuleKeyPrefix is the namespace of rule declarations. It is stripped from the
// declaration key to form the rule name.
const RuleKeyPrefix = "KAFKA_ROUTER_RULE_"
