// Package config loads router settings from an optional YAML file and the
// process environment. Environment variables always win over the file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"kafkarouter/pkg/types"
	"kafkarouter/pkg/validation"
)

// Environment prefixes scanned for transport settings.
const (
	ConsumerEnvPrefix = "KAFKA_CONSUMER_"
	ProducerEnvPrefix = "KAFKA_PRODUCER_"
)

const (
	DefaultTimeoutMS         = 500
	DefaultPrometheusPort    = 8000
	DefaultPartitions        = 3
	DefaultReplicationFactor = 1
	DefaultMQTTTopic         = "kafka-router/dlq"
	DefaultMQTTClientID      = "kafka-router-{random}"
	DefaultLogLevel          = "WARN"
)

// envBindings maps each scalar setting to the variable that overrides it.
var envBindings = map[string]string{
	"router.dlq_topic_name":            "KAFKA_ROUTER_DLQ_TOPIC_NAME",
	"router.dlq_mode":                  "KAFKA_ROUTER_DLQ_MODE",
	"router.dry_run_mode":              "KAFKA_ROUTER_DRY_RUN_MODE",
	"router.timeout_ms":                "KAFKA_ROUTER_TIMEOUT_MS",
	"router.dlq_id":                    "KAFKA_ROUTER_DLQ_ID",
	"router.topics.auto_create_topics": "KAFKA_ROUTER_AUTO_CREATE_TOPICS",
	"router.topics.default_partitions": "KAFKA_ROUTER_DEFAULT_PARTITIONS",
	"router.topics.replication_factor": "KAFKA_ROUTER_REPLICATION_FACTOR",
	"metrics.prometheus_prefix":        "KAFKA_ROUTER_PROMETHEUS_PREFIX",
	"metrics.prometheus_port":          "KAFKA_ROUTER_PROMETHEUS_PORT",
	"mqtt.host":                        "KAFKA_ROUTER_MQTT_HOST",
	"mqtt.port":                        "KAFKA_ROUTER_MQTT_PORT",
	"mqtt.use_tls":                     "KAFKA_ROUTER_MQTT_USE_TLS",
	"mqtt.username":                    "KAFKA_ROUTER_MQTT_USERNAME",
	"mqtt.password":                    "KAFKA_ROUTER_MQTT_PASSWORD",
	"mqtt.client_id":                   "KAFKA_ROUTER_MQTT_CLIENT_ID",
	"mqtt.topic":                       "KAFKA_ROUTER_MQTT_TOPIC",
	"mqtt.qos":                         "KAFKA_ROUTER_MQTT_QOS",
	"logging.level":                    "LOG_LEVEL",
	"logging.console":                  "KAFKA_ROUTER_LOG_CONSOLE",
}

// LoadDotenv loads variables from .env style files without overriding the
// ones already set. Missing files are ignored.
func LoadDotenv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// GetConfigPath returns the configuration file named by CONFIG_FILE, or ""
// when the router is configured from the environment alone.
func GetConfigPath() string {
	return os.Getenv("CONFIG_FILE")
}

// Load reads the configuration with full validation, including the
// existence of referenced certificate files.
func Load(configPath string) (*types.Config, error) {
	return load(configPath, os.Environ(), false)
}

// LoadForValidation loads the configuration without touching certificate
// files, for offline rule checks.
func LoadForValidation(configPath string) (*types.Config, error) {
	return load(configPath, os.Environ(), true)
}

// LoadRules returns the rule declarations of the file and the environment
// without reading or validating any other setting.
func LoadRules(configPath string) ([]types.RuleDefinition, error) {
	v := viper.New()
	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}
	return collectRules(v.Get("rules"), os.Environ())
}

func readConfigFile(v *viper.Viper, configPath string) error {
	if configPath == "" {
		return nil
	}
	if err := validation.ValidateConfigPath(configPath); err != nil {
		return fmt.Errorf("invalid config path: %w", err)
	}
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}
	return nil
}

func load(configPath string, environ []string, skipFileChecks bool) (*types.Config, error) {
	v := viper.New()
	applyDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	cfg := &types.Config{}
	if err := readSettings(v, cfg); err != nil {
		return nil, err
	}

	cfg.Consumer = flatten(v.GetStringMap("consumer"))
	cfg.Producer = flatten(v.GetStringMap("producer"))
	overlayEnv(cfg.Consumer, environ, ConsumerEnvPrefix)
	overlayEnv(cfg.Producer, environ, ProducerEnvPrefix)

	rules, err := collectRules(v.Get("rules"), environ)
	if err != nil {
		return nil, err
	}
	cfg.Rules = rules

	if err := validate(cfg, skipFileChecks); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("router.timeout_ms", DefaultTimeoutMS)
	v.SetDefault("router.topics.default_partitions", DefaultPartitions)
	v.SetDefault("router.topics.replication_factor", DefaultReplicationFactor)
	v.SetDefault("metrics.prometheus_port", DefaultPrometheusPort)
	v.SetDefault("mqtt.topic", DefaultMQTTTopic)
	v.SetDefault("mqtt.client_id", DefaultMQTTClientID)
	v.SetDefault("logging.level", DefaultLogLevel)
}

// readSettings copies scalar settings into cfg. Values are parsed strictly
// instead of through viper's lenient casts, so a typo is an error rather
// than a silent zero.
func readSettings(v *viper.Viper, cfg *types.Config) error {
	var err error
	r := &cfg.Router

	r.DLQTopic = v.GetString("router.dlq_topic_name")
	r.DLQID = v.GetString("router.dlq_id")
	if r.DLQMode, err = boolSetting(v, "router.dlq_mode"); err != nil {
		return err
	}
	if r.DryRun, err = boolSetting(v, "router.dry_run_mode"); err != nil {
		return err
	}
	timeoutMS, err := intSetting(v, "router.timeout_ms")
	if err != nil {
		return err
	}
	if timeoutMS < 0 {
		return settingError("router.timeout_ms", fmt.Errorf("must not be negative, got %d", timeoutMS))
	}
	r.IdleTimeout = time.Duration(timeoutMS) * time.Millisecond

	if r.Topics.AutoCreate, err = boolSetting(v, "router.topics.auto_create_topics"); err != nil {
		return err
	}
	if r.Topics.DefaultPartitions, err = intSetting(v, "router.topics.default_partitions"); err != nil {
		return err
	}
	if r.Topics.ReplicationFactor, err = intSetting(v, "router.topics.replication_factor"); err != nil {
		return err
	}

	cfg.Metrics.Prefix = v.GetString("metrics.prometheus_prefix")
	if cfg.Metrics.Port, err = intSetting(v, "metrics.prometheus_port"); err != nil {
		return err
	}

	m := &cfg.MQTT
	m.Host = v.GetString("mqtt.host")
	m.Username = v.GetString("mqtt.username")
	m.Password = v.GetString("mqtt.password")
	m.ClientID = v.GetString("mqtt.client_id")
	m.Topic = v.GetString("mqtt.topic")
	if m.UseTLS, err = boolSetting(v, "mqtt.use_tls"); err != nil {
		return err
	}
	if m.Port, err = intSetting(v, "mqtt.port"); err != nil {
		return err
	}
	if m.Port == 0 {
		m.Port = 1883
		if m.UseTLS {
			m.Port = 8883
		}
	}
	qos, err := intSetting(v, "mqtt.qos")
	if err != nil {
		return err
	}
	if qos < 0 || qos > 2 {
		return settingError("mqtt.qos", fmt.Errorf("must be 0, 1 or 2, got %d", qos))
	}
	m.QoS = byte(qos)

	cfg.Logging.Level = v.GetString("logging.level")
	if cfg.Logging.Console, err = boolSetting(v, "logging.console"); err != nil {
		return err
	}
	return nil
}

func settingError(key string, err error) error {
	if env, ok := envBindings[key]; ok {
		return fmt.Errorf("%s (%s): %w", env, key, err)
	}
	return fmt.Errorf("%s: %w", key, err)
}

func boolSetting(v *viper.Viper, key string) (bool, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return false, nil
	}
	b, err := ParseBool(raw)
	if err != nil {
		return false, settingError(key, err)
	}
	return b, nil
}

func intSetting(v *viper.Viper, key string) (int, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, settingError(key, fmt.Errorf("%q is not an integer", raw))
	}
	return n, nil
}

// collectRules gathers rule documents from the file's rules section and
// from KAFKA_ROUTER_RULE_* variables, the latter replacing file entries with
// the same key. The result is sorted by key.
func collectRules(fromFile any, environ []string) ([]types.RuleDefinition, error) {
	docs := map[string]string{}

	if section, ok := fromFile.(map[string]any); ok {
		for name, raw := range section {
			key := strings.ToUpper(name)
			if !strings.HasPrefix(key, types.RuleKeyPrefix) {
				key = types.RuleKeyPrefix + key
			}
			switch doc := raw.(type) {
			case string:
				docs[key] = doc
			default:
				encoded, err := json.Marshal(doc)
				if err != nil {
					return nil, fmt.Errorf("rule %s in config file: %w", name, err)
				}
				docs[key] = string(encoded)
			}
		}
	}

	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, types.RuleKeyPrefix) || key == types.RuleKeyPrefix {
			continue
		}
		docs[key] = value
	}

	keys := make([]string, 0, len(docs))
	for key := range docs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	defs := make([]types.RuleDefinition, 0, len(keys))
	for _, key := range keys {
		defs = append(defs, types.RuleDefinition{Key: key, Document: docs[key]})
	}
	return defs, nil
}

var sslPathKeys = []string{"ssl.keystore.location", "ssl.truststore.location"}

// validate checks configuration for required fields and logical consistency.
func validate(cfg *types.Config, skipFileChecks bool) error {
	servers, ok := cfg.Consumer["bootstrap.servers"]
	if !ok {
		return fmt.Errorf("consumer bootstrap.servers is required (KAFKA_CONSUMER_BOOTSTRAP_SERVERS)")
	}
	if _, err := validation.ValidateBootstrapServers(servers); err != nil {
		return fmt.Errorf("invalid consumer configuration: %w", err)
	}
	if _, ok := cfg.Producer["bootstrap.servers"]; !ok {
		cfg.Producer["bootstrap.servers"] = servers
	}
	if _, err := validation.ValidateBootstrapServers(cfg.Producer["bootstrap.servers"]); err != nil {
		return fmt.Errorf("invalid producer configuration: %w", err)
	}

	if !skipFileChecks {
		for _, section := range []map[string]string{cfg.Consumer, cfg.Producer} {
			for _, key := range sslPathKeys {
				if path := section[key]; path != "" {
					if err := validation.ValidateSSLFilePath(path); err != nil {
						return fmt.Errorf("invalid %s: %w", key, err)
					}
				}
			}
		}
	}

	if cfg.Router.DLQTopic != "" {
		if err := validation.ValidateTopicName(cfg.Router.DLQTopic); err != nil {
			return fmt.Errorf("invalid DLQ topic: %w", err)
		}
	}
	if cfg.Router.Topics.DefaultPartitions < 1 {
		return fmt.Errorf("default partitions must be at least 1, got %d", cfg.Router.Topics.DefaultPartitions)
	}
	if cfg.Router.Topics.ReplicationFactor < 1 {
		return fmt.Errorf("replication factor must be at least 1, got %d", cfg.Router.Topics.ReplicationFactor)
	}
	if err := validation.ValidatePort(cfg.Metrics.Port); err != nil {
		return fmt.Errorf("invalid Prometheus port: %w", err)
	}

	if cfg.MQTT.Enabled() {
		if err := validation.ValidateHost(cfg.MQTT.Host); err != nil {
			return fmt.Errorf("invalid MQTT broker configuration: %w", err)
		}
		if err := validation.ValidatePort(cfg.MQTT.Port); err != nil {
			return fmt.Errorf("invalid MQTT broker configuration: %w", err)
		}
		cfg.MQTT.Username = validation.SanitizeUsername(cfg.MQTT.Username)
		cfg.MQTT.Password = validation.SanitizePassword(cfg.MQTT.Password)
		cfg.MQTT.ClientID = validation.SanitizeClientID(cfg.MQTT.ClientID, "kafka-router")
	}

	if _, err := ParseLevel(cfg.Logging.Level); err != nil {
		return settingError("logging.level", err)
	}
	return nil
}
