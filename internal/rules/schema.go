package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/jmespath/go-jmespath"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"kafkarouter/pkg/types"
)

// ruleSchema is the contract every rule document must satisfy.
const ruleSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "kafka-router rule",
  "type": "object",
  "properties": {
    "source_topic":      {"type": "string", "minLength": 1},
    "destination_topic": {"type": "string", "minLength": 1},
    "regexp":            {"type": "string", "minLength": 1},
    "body_regexp":       {"type": "string", "minLength": 1},
    "jmespath":          {"type": "string", "minLength": 1},
    "path_expression":   {"type": "string", "minLength": 1},
    "header":            {"type": "string", "minLength": 1},
    "header_regexp":     {"type": "string", "minLength": 1}
  },
  "required": ["source_topic", "destination_topic"],
  "additionalProperties": false,
  "dependencies": {
    "header": ["header_regexp"],
    "header_regexp": ["header"]
  },
  "not": {
    "anyOf": [
      {"required": ["regexp", "body_regexp"]},
      {"required": ["jmespath", "path_expression"]}
    ]
  }
}`

const schemaURL = "rule-schema.json"

// DefaultMatchTimeout bounds a single regular expression evaluation.
const DefaultMatchTimeout = time.Second

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource(schemaURL, strings.NewReader(ruleSchema)); err != nil {
		panic(fmt.Sprintf("rules: invalid embedded schema: %v", err))
	}
	return compiler.MustCompile(schemaURL)
}

// SchemaError reports a rule declaration that cannot be accepted.
type SchemaError struct {
	Rule string
	Err  error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s is not a valid rule: %v", e.Rule, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// document mirrors the accepted JSON properties of a rule.
type document struct {
	SourceTopic      string `json:"source_topic"`
	DestinationTopic string `json:"destination_topic"`
	Regexp           string `json:"regexp"`
	BodyRegexp       string `json:"body_regexp"`
	JMESPath         string `json:"jmespath"`
	PathExpression   string `json:"path_expression"`
	Header           string `json:"header"`
	HeaderRegexp     string `json:"header_regexp"`
}

// Compile validates a rule document and converts it into a Rule. key is the
// raw declaration identifier; the rule name is key without RuleKeyPrefix.
// Any failure is returned as a *SchemaError.
func Compile(key, raw string) (*Rule, error) {
	name := strings.TrimPrefix(key, types.RuleKeyPrefix)

	decoder := json.NewDecoder(bytes.NewReader([]byte(raw)))
	decoder.UseNumber()
	var instance interface{}
	if err := decoder.Decode(&instance); err != nil {
		return nil, &SchemaError{Rule: key, Err: fmt.Errorf("not valid JSON: %w", err)}
	}
	if decoder.More() {
		return nil, &SchemaError{Rule: key, Err: errors.New("not valid JSON: trailing data after document")}
	}

	if err := compiledSchema.Validate(instance); err != nil {
		return nil, &SchemaError{Rule: key, Err: err}
	}

	var doc document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, &SchemaError{Rule: key, Err: err}
	}

	rule := &Rule{
		Name:             name,
		Key:              key,
		SourceTopic:      doc.SourceTopic,
		DestinationTopic: doc.DestinationTopic,
		HeaderName:       doc.Header,
	}

	if pattern := firstNonEmpty(doc.BodyRegexp, doc.Regexp); pattern != "" {
		re, err := compileRegexp(pattern)
		if err != nil {
			return nil, &SchemaError{Rule: key, Err: fmt.Errorf("invalid body regexp %q: %w", pattern, err)}
		}
		rule.BodyRegexp = re
	}

	if doc.HeaderRegexp != "" {
		re, err := compileRegexp(doc.HeaderRegexp)
		if err != nil {
			return nil, &SchemaError{Rule: key, Err: fmt.Errorf("invalid header regexp %q: %w", doc.HeaderRegexp, err)}
		}
		rule.HeaderRegexp = re
	}

	if expr := firstNonEmpty(doc.PathExpression, doc.JMESPath); expr != "" {
		jp, err := jmespath.Compile(expr)
		if err != nil {
			return nil, &SchemaError{Rule: key, Err: fmt.Errorf("invalid path expression %q: %w", expr, err)}
		}
		rule.PathExpression = jp
		rule.pathSource = expr
	}

	return rule, nil
}

func compileRegexp(pattern string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = DefaultMatchTimeout
	return re, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
