package rules

import (
	"errors"
	"sort"

	"github.com/rs/zerolog"

	"kafkarouter/pkg/types"
)

// OutcomeKind tags the result of evaluating a record.
type OutcomeKind int

const (
	// Unmatched means no rule was satisfied.
	Unmatched OutcomeKind = iota
	// Matched means a rule was satisfied and selected the destination.
	Matched
	// Errored means a rule could not evaluate the record.
	Errored
)

func (k OutcomeKind) String() string {
	switch k {
	case Matched:
		return "matched"
	case Errored:
		return "errored"
	default:
		return "unmatched"
	}
}

// Outcome is the routing decision for one record. Destination is empty when
// the record should not be published anywhere.
type Outcome struct {
	Kind        OutcomeKind
	Destination string
	Rule        string
	Err         *MatchError
}

// Handled reports whether a rule took responsibility for the record. Errored
// records count as handled so that no further rules see unparseable content.
func (o Outcome) Handled() bool {
	return o.Kind != Unmatched
}

// RouteTable is an ordered rule set plus the derived subscription topics.
// It is read-only once the router starts.
type RouteTable struct {
	rules    []*Rule
	topics   []string
	seen     map[string]struct{}
	fallback string
	logger   zerolog.Logger
}

// NewRouteTable creates an empty table. fallback is the dead-letter topic and
// may be empty.
func NewRouteTable(fallback string, logger zerolog.Logger) *RouteTable {
	return &RouteTable{
		seen:     make(map[string]struct{}),
		fallback: fallback,
		logger:   logger.With().Str("component", "RouteTable").Logger(),
	}
}

// Load compiles every definition in ascending lexical order of its key and
// returns the resulting table. The first invalid definition aborts loading.
func Load(defs []types.RuleDefinition, fallback string, logger zerolog.Logger) (*RouteTable, error) {
	sorted := make([]types.RuleDefinition, len(defs))
	copy(sorted, defs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	table := NewRouteTable(fallback, logger)
	for i, def := range sorted {
		if i > 0 && sorted[i-1].Key == def.Key {
			return nil, &SchemaError{Rule: def.Key, Err: errors.New("declared more than once")}
		}
		rule, err := Compile(def.Key, def.Document)
		if err != nil {
			return nil, err
		}
		table.Add(rule)
	}
	return table, nil
}

// Add appends rule and records its source topic if it is new.
func (t *RouteTable) Add(rule *Rule) {
	t.logger.Debug().Str("rule", rule.Name).Str("source_topic", rule.SourceTopic).
		Str("destination_topic", rule.DestinationTopic).Msg("Adding routing rule")
	t.rules = append(t.rules, rule)
	if _, ok := t.seen[rule.SourceTopic]; !ok {
		t.seen[rule.SourceTopic] = struct{}{}
		t.topics = append(t.topics, rule.SourceTopic)
	}
}

// Rules returns the rules in evaluation order.
func (t *RouteTable) Rules() []*Rule {
	out := make([]*Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Topics returns the deduplicated source topics to subscribe to.
func (t *RouteTable) Topics() []string {
	out := make([]string, len(t.topics))
	copy(out, t.topics)
	return out
}

// Len returns the number of rules.
func (t *RouteTable) Len() int {
	return len(t.rules)
}

// Fallback returns the dead-letter topic used for unhandled records.
func (t *RouteTable) Fallback() string {
	return t.fallback
}

// Evaluate runs the rules in order; the first satisfied rule wins and a
// matching error stops evaluation.
func (t *RouteTable) Evaluate(rec *types.Record) Outcome {
	for _, rule := range t.rules {
		matched, err := rule.Match(rec)
		if err != nil {
			var matchErr *MatchError
			if !errors.As(err, &matchErr) {
				matchErr = newMatchError(rule.Name, err)
			}
			t.logger.Debug().Err(err).Str("rule", rule.Name).Msg("Rule could not evaluate message")
			return Outcome{Kind: Errored, Destination: t.fallback, Rule: rule.Name, Err: matchErr}
		}
		if matched {
			t.logger.Debug().Str("rule", rule.Name).Str("destination_topic", rule.DestinationTopic).Msg("Message matched rule")
			return Outcome{Kind: Matched, Destination: rule.DestinationTopic, Rule: rule.Name}
		}
	}
	return Outcome{Kind: Unmatched, Destination: t.fallback}
}
