package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileValidRules(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"topics only", `{"source_topic":"in","destination_topic":"out"}`},
		{"regexp alias", `{"source_topic":"in","destination_topic":"out","regexp":"^ORDER"}`},
		{"body_regexp", `{"source_topic":"in","destination_topic":"out","body_regexp":"^ORDER"}`},
		{"jmespath alias", `{"source_topic":"in","destination_topic":"out","jmespath":"a.b","regexp":"x"}`},
		{"path_expression", `{"source_topic":"in","destination_topic":"out","path_expression":"a.b","body_regexp":"x"}`},
		{"header pair", `{"source_topic":"in","destination_topic":"out","header":"h","header_regexp":"v"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := Compile("KAFKA_ROUTER_RULE_VALID", tt.doc)
			require.NoError(t, err)
			assert.Equal(t, "VALID", rule.Name)
			assert.Equal(t, "KAFKA_ROUTER_RULE_VALID", rule.Key)
			assert.Equal(t, "in", rule.SourceTopic)
			assert.Equal(t, "out", rule.DestinationTopic)
		})
	}
}

func TestCompileRejectsInvalidRules(t *testing.T) {
	tests := []struct {
		name        string
		doc         string
		errContains string
	}{
		{"not json", `{"source_topic":`, "not valid JSON"},
		{"trailing data", `{"source_topic":"in","destination_topic":"out"} {}`, "trailing data"},
		{"not an object", `["in","out"]`, "is not a valid rule"},
		{"missing destination", `{"source_topic":"in"}`, "is not a valid rule"},
		{"missing source", `{"destination_topic":"out"}`, "is not a valid rule"},
		{"empty source", `{"source_topic":"","destination_topic":"out"}`, "is not a valid rule"},
		{"wrong type", `{"source_topic":1,"destination_topic":"out"}`, "is not a valid rule"},
		{"unknown property", `{"source_topic":"in","destination_topic":"out","extra":true}`, "is not a valid rule"},
		{"header without regexp", `{"source_topic":"in","destination_topic":"out","header":"h"}`, "is not a valid rule"},
		{"header regexp without header", `{"source_topic":"in","destination_topic":"out","header_regexp":"h"}`, "is not a valid rule"},
		{"both body aliases", `{"source_topic":"in","destination_topic":"out","regexp":"a","body_regexp":"b"}`, "is not a valid rule"},
		{"both path aliases", `{"source_topic":"in","destination_topic":"out","jmespath":"a","path_expression":"b"}`, "is not a valid rule"},
		{"bad regexp", `{"source_topic":"in","destination_topic":"out","regexp":"(unclosed"}`, "invalid body regexp"},
		{"bad header regexp", `{"source_topic":"in","destination_topic":"out","header":"h","header_regexp":"[z-a]"}`, "invalid header regexp"},
		{"bad path expression", `{"source_topic":"in","destination_topic":"out","jmespath":"a.[","regexp":"x"}`, "invalid path expression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := Compile("KAFKA_ROUTER_RULE_BAD", tt.doc)
			assert.Nil(t, rule)
			require.Error(t, err)

			var schemaErr *SchemaError
			require.ErrorAs(t, err, &schemaErr)
			assert.Equal(t, "KAFKA_ROUTER_RULE_BAD", schemaErr.Rule)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}
