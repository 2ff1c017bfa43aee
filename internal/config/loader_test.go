package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kafkarouter/pkg/types"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("KAFKA_CONSUMER_BOOTSTRAP_SERVERS", "localhost:9092")
	t.Setenv("KAFKA_CONSUMER_GROUP_ID", "router")
	t.Setenv("KAFKA_CONSUMER_ENABLE_AUTO_COMMIT", "false")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromEnvironment(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("KAFKA_PRODUCER_ACKS", "all")
	t.Setenv("KAFKA_ROUTER_RULE_B_SHIPPING", `{"source_topic":"in","destination_topic":"ship"}`)
	t.Setenv("KAFKA_ROUTER_RULE_A_ORDERS", `{"source_topic":"in","destination_topic":"orders"}`)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"bootstrap.servers":  "localhost:9092",
		"group.id":           "router",
		"enable.auto.commit": "false",
	}, cfg.Consumer)
	assert.Equal(t, "all", cfg.Producer["acks"])
	assert.Equal(t, "localhost:9092", cfg.Producer["bootstrap.servers"])

	require.Len(t, cfg.Rules, 2)
	assert.Equal(t, "KAFKA_ROUTER_RULE_A_ORDERS", cfg.Rules[0].Key)
	assert.Equal(t, "KAFKA_ROUTER_RULE_B_SHIPPING", cfg.Rules[1].Key)

	assert.Equal(t, 500*time.Millisecond, cfg.Router.IdleTimeout)
	assert.False(t, cfg.Router.DLQMode)
	assert.False(t, cfg.Router.DryRun)
	assert.Empty(t, cfg.Router.DLQTopic)
	assert.Equal(t, 3, cfg.Router.Topics.DefaultPartitions)
	assert.Equal(t, 1, cfg.Router.Topics.ReplicationFactor)
	assert.Equal(t, 8000, cfg.Metrics.Port)
	assert.Equal(t, "WARN", cfg.Logging.Level)
	assert.False(t, cfg.MQTT.Enabled())
}

func TestLoadRouterSettings(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("KAFKA_ROUTER_DLQ_TOPIC_NAME", "router.dlq")
	t.Setenv("KAFKA_ROUTER_DLQ_MODE", "yes")
	t.Setenv("KAFKA_ROUTER_DRY_RUN_MODE", "T")
	t.Setenv("KAFKA_ROUTER_TIMEOUT_MS", "2500")
	t.Setenv("KAFKA_ROUTER_DLQ_ID", "billing")
	t.Setenv("KAFKA_ROUTER_PROMETHEUS_PREFIX", "router")
	t.Setenv("KAFKA_ROUTER_PROMETHEUS_PORT", "9100")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "router.dlq", cfg.Router.DLQTopic)
	assert.True(t, cfg.Router.DLQMode)
	assert.True(t, cfg.Router.DryRun)
	assert.Equal(t, 2500*time.Millisecond, cfg.Router.IdleTimeout)
	assert.Equal(t, "billing", cfg.Router.DLQID)
	assert.Equal(t, "router", cfg.Metrics.Prefix)
	assert.Equal(t, 9100, cfg.Metrics.Port)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		errContains string
	}{
		{"bad boolean", map[string]string{"KAFKA_ROUTER_DLQ_MODE": "maybe"}, "KAFKA_ROUTER_DLQ_MODE"},
		{"bad timeout", map[string]string{"KAFKA_ROUTER_TIMEOUT_MS": "soon"}, "not an integer"},
		{"negative timeout", map[string]string{"KAFKA_ROUTER_TIMEOUT_MS": "-1"}, "must not be negative"},
		{"bad dlq topic", map[string]string{"KAFKA_ROUTER_DLQ_TOPIC_NAME": "dead letters"}, "invalid DLQ topic"},
		{"bad broker", map[string]string{"KAFKA_CONSUMER_BOOTSTRAP_SERVERS": "localhost"}, "invalid consumer configuration"},
		{"bad producer broker", map[string]string{"KAFKA_PRODUCER_BOOTSTRAP_SERVERS": "kafka:0"}, "invalid producer configuration"},
		{"bad log level", map[string]string{"LOG_LEVEL": "LOUD"}, "unknown log level"},
		{"bad qos", map[string]string{"KAFKA_ROUTER_MQTT_QOS": "3"}, "must be 0, 1 or 2"},
		{"bad port", map[string]string{"KAFKA_ROUTER_PROMETHEUS_PORT": "0"}, "invalid Prometheus port"},
		{"bad partitions", map[string]string{"KAFKA_ROUTER_DEFAULT_PARTITIONS": "0"}, "default partitions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestLoadRequiresBootstrapServers(t *testing.T) {
	t.Setenv("KAFKA_CONSUMER_GROUP_ID", "router")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bootstrap.servers is required")
}

func TestLoadFromFileWithEnvOverrides(t *testing.T) {
	path := writeFile(t, "router.yaml", `
router:
  dlq_topic_name: file-dlq
  dry_run_mode: true
consumer:
  bootstrap.servers: kafka:9092
  group_id: file-group
  enable.auto.commit: false
producer:
  acks: all
rules:
  orders: '{"source_topic":"in","destination_topic":"orders"}'
  shipping:
    source_topic: in
    destination_topic: shipping
`)
	t.Setenv("KAFKA_ROUTER_DLQ_TOPIC_NAME", "env-dlq")
	t.Setenv("KAFKA_CONSUMER_GROUP_ID", "env-group")
	t.Setenv("KAFKA_ROUTER_RULE_ORDERS", `{"source_topic":"in","destination_topic":"env-orders"}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-dlq", cfg.Router.DLQTopic)
	assert.True(t, cfg.Router.DryRun)
	assert.Equal(t, "kafka:9092", cfg.Consumer["bootstrap.servers"])
	assert.Equal(t, "env-group", cfg.Consumer["group.id"])
	assert.Equal(t, "false", cfg.Consumer["enable.auto.commit"])
	assert.Equal(t, "all", cfg.Producer["acks"])

	require.Len(t, cfg.Rules, 2)
	assert.Equal(t, types.RuleDefinition{
		Key:      "KAFKA_ROUTER_RULE_ORDERS",
		Document: `{"source_topic":"in","destination_topic":"env-orders"}`,
	}, cfg.Rules[0])
	assert.Equal(t, "KAFKA_ROUTER_RULE_SHIPPING", cfg.Rules[1].Key)
	assert.JSONEq(t, `{"source_topic":"in","destination_topic":"shipping"}`, cfg.Rules[1].Document)
}

func TestLoadMissingConfigFile(t *testing.T) {
	setBaseEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config path")
}

func TestLoadChecksCertificateFiles(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("KAFKA_CONSUMER_SECURITY_PROTOCOL", "SSL")
	t.Setenv("KAFKA_CONSUMER_SSL_KEYSTORE_LOCATION", filepath.Join(t.TempDir(), "client.p12"))

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ssl.keystore.location")

	cfg, err := LoadForValidation("")
	require.NoError(t, err)
	assert.Equal(t, "SSL", cfg.Consumer["security.protocol"])
}

func TestLoadMQTTSettings(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("KAFKA_ROUTER_MQTT_HOST", "mqtt.local")
	t.Setenv("KAFKA_ROUTER_MQTT_USE_TLS", "1")
	t.Setenv("KAFKA_ROUTER_MQTT_USERNAME", " rou\x01ter\x1f ")
	t.Setenv("KAFKA_ROUTER_MQTT_QOS", "1")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.MQTT.Enabled())
	assert.Equal(t, 8883, cfg.MQTT.Port)
	assert.Equal(t, "router", cfg.MQTT.Username)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, DefaultMQTTTopic, cfg.MQTT.Topic)
	assert.Equal(t, DefaultMQTTClientID, cfg.MQTT.ClientID)
}

func TestLoadMQTTUsernameFromFileIsSanitized(t *testing.T) {
	setBaseEnv(t)
	path := writeFile(t, "router.yaml", `
mqtt:
  host: mqtt.local
  username: "\trouter\0 "
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "router", cfg.MQTT.Username)
	assert.Equal(t, 1883, cfg.MQTT.Port)
}

func TestLoadRulesIgnoresTransportSettings(t *testing.T) {
	t.Setenv("KAFKA_CONSUMER_BOOTSTRAP_SERVERS", "")
	require.NoError(t, os.Unsetenv("KAFKA_CONSUMER_BOOTSTRAP_SERVERS"))

	defs, err := LoadRules("")
	require.NoError(t, err)
	assert.Empty(t, defs)

	path := writeFile(t, "router.yaml", `
rules:
  b_file:
    source_topic: in
    destination_topic: out
`)
	t.Setenv("KAFKA_ROUTER_RULE_A_ENV", `{"source_topic":"in","destination_topic":"env"}`)

	defs, err = LoadRules(path)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "KAFKA_ROUTER_RULE_A_ENV", defs[0].Key)
	assert.Equal(t, "KAFKA_ROUTER_RULE_B_FILE", defs[1].Key)
}

func TestLoadDotenv(t *testing.T) {
	path := writeFile(t, ".env", "KAFKA_ROUTER_DOTENV_PROBE=loaded\n")
	t.Cleanup(func() { os.Unsetenv("KAFKA_ROUTER_DOTENV_PROBE") })

	require.NoError(t, LoadDotenv(path, filepath.Join(t.TempDir(), "absent.env")))
	assert.Equal(t, "loaded", os.Getenv("KAFKA_ROUTER_DOTENV_PROBE"))
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("CONFIG_FILE", "/etc/kafka-router/router.yaml")
	assert.Equal(t, "/etc/kafka-router/router.yaml", GetConfigPath())

	t.Setenv("CONFIG_FILE", "")
	assert.Empty(t, GetConfigPath())
}
