// Package rules compiles routing rule declarations and evaluates records
// against them. A RouteTable holds the rules in evaluation order and reports a
// tagged Outcome for every record; it never publishes or commits anything.
package rules

import (
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/dlclark/regexp2"
	"github.com/jmespath/go-jmespath"

	"kafkarouter/pkg/types"
)

// Rule is an immutable predicate plus destination. Unset predicates are
// satisfied; a rule with only topics set matches every record on SourceTopic.
type Rule struct {
	Name             string
	Key              string
	SourceTopic      string
	DestinationTopic string
	BodyRegexp       *regexp2.Regexp
	HeaderName       string
	HeaderRegexp     *regexp2.Regexp
	PathExpression   *jmespath.JMESPath

	pathSource string
}

// MatchError is raised when a record cannot be evaluated, e.g. a body that is
// not JSON under a rule with a path expression. It is not a plain mismatch.
type MatchError struct {
	Rule  string
	Err   error
	Stack []byte
}

func newMatchError(rule string, err error) *MatchError {
	return &MatchError{Rule: rule, Err: err, Stack: debug.Stack()}
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("rule %s: %v", e.Rule, e.Err)
}

func (e *MatchError) Unwrap() error {
	return e.Err
}

// Trace renders the error with the stack captured where it was raised.
func (e *MatchError) Trace() string {
	return fmt.Sprintf("%s\n\n%s", e.Error(), e.Stack)
}

// Match reports whether rec satisfies every configured predicate. The only
// error it returns is a *MatchError.
func (r *Rule) Match(rec *types.Record) (bool, error) {
	if rec.Topic != r.SourceTopic {
		return false, nil
	}

	if r.HeaderName != "" {
		ok, err := r.matchHeader(rec.Headers)
		if err != nil || !ok {
			return false, err
		}
	}

	if r.BodyRegexp == nil {
		return true, nil
	}

	subject, ok, err := r.subject(rec.Value)
	if err != nil {
		return false, err
	}
	if !ok || subject == "" {
		return false, nil
	}

	matched, err := r.BodyRegexp.MatchString(subject)
	if err != nil {
		return false, newMatchError(r.Name, fmt.Errorf("body regexp: %w", err))
	}
	return matched, nil
}

func (r *Rule) matchHeader(headers types.Headers) (bool, error) {
	for _, value := range headers.Values(r.HeaderName) {
		matched, err := r.HeaderRegexp.MatchString(string(value))
		if err != nil {
			return false, newMatchError(r.Name, fmt.Errorf("header regexp: %w", err))
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

// subject resolves the string the body regexp is tested against. ok is false
// when the path expression selects nothing.
func (r *Rule) subject(value []byte) (string, bool, error) {
	if r.PathExpression == nil {
		return string(value), true, nil
	}

	var data interface{}
	if err := json.Unmarshal(value, &data); err != nil {
		return "", false, newMatchError(r.Name, fmt.Errorf("body is not valid JSON: %w", err))
	}

	result, err := r.PathExpression.Search(data)
	if err != nil {
		return "", false, newMatchError(r.Name, fmt.Errorf("path expression %q: %w", r.pathSource, err))
	}

	switch v := result.(type) {
	case nil:
		return "", false, nil
	case string:
		return v, true, nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", false, newMatchError(r.Name, fmt.Errorf("path expression %q: %w", r.pathSource, err))
		}
		return string(encoded), true, nil
	}
}

// Describe returns a flat view of the rule for logs and the /rules endpoint.
func (r *Rule) Describe() map[string]string {
	d := map[string]string{
		"name":              r.Name,
		"source_topic":      r.SourceTopic,
		"destination_topic": r.DestinationTopic,
	}
	if r.BodyRegexp != nil {
		d["body_regexp"] = r.BodyRegexp.String()
	}
	if r.HeaderName != "" {
		d["header"] = r.HeaderName
		d["header_regexp"] = r.HeaderRegexp.String()
	}
	if r.pathSource != "" {
		d["path_expression"] = r.pathSource
	}
	return d
}
