package policy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Operator is a closed set of argument comparison operators. Unrecognized
// values are rejected when a rule is created or loaded, never at evaluation.
type Operator string

const (
	OpEquals       Operator = "equals"
	OpNotEquals    Operator = "not_equals"
	OpContains     Operator = "contains"
	OpNotContains  Operator = "not_contains"
	OpMatchesRegex Operator = "matches_regex"
	OpExists       Operator = "exists"
	OpNotExists    Operator = "not_exists"
	OpGreaterThan  Operator = "greater_than"
	OpLessThan     Operator = "less_than"
)

// ParseOperator validates a stored operator string against the closed set.
func ParseOperator(s string) (Operator, error) {
	op := Operator(strings.ToLower(strings.TrimSpace(s)))
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpNotContains, OpMatchesRegex,
		OpExists, OpNotExists, OpGreaterThan, OpLessThan:
		return op, nil
	}
	return "", fmt.Errorf("unknown operator: %q", s)
}

// Action is the decision a matching rule produces.
type Action string

const (
	ActionAllow               Action = "allow"
	ActionDeny                Action = "deny"
	ActionRequireConfirmation Action = "require_confirmation"
)

// ParseAction validates a stored action string against the closed set.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case ActionAllow, ActionDeny, ActionRequireConfirmation:
		return a, nil
	}
	return "", fmt.Errorf("unknown action: %q", s)
}

// rank orders actions by restrictiveness. Deny always wins.
func (a Action) rank() int {
	switch a {
	case ActionDeny:
		return 2
	case ActionRequireConfirmation:
		return 1
	default:
		return 0
	}
}

// Outranks reports whether a is strictly more restrictive than b.
func (a Action) Outranks(b Action) bool {
	return a.rank() > b.rank()
}

// Rule is one argument-level predicate plus the action taken when it matches.
type Rule struct {
	ID           string   `json:"id"`
	PolicyID     string   `json:"policy_id"`
	ArgumentName string   `json:"argument_name"`
	Operator     Operator `json:"operator"`
	Value        string   `json:"value"`
	Action       Action   `json:"action"`
	Reason       string   `json:"reason,omitempty"`
}

// Validate checks the rule at creation/load time: the operator and action must
// belong to their closed sets, regex patterns must compile, and numeric
// operators must carry a numeric operand.
func (r Rule) Validate() error {
	if r.ArgumentName == "" {
		return fmt.Errorf("argument_name is required")
	}
	if _, err := ParseOperator(string(r.Operator)); err != nil {
		return err
	}
	if _, err := ParseAction(string(r.Action)); err != nil {
		return err
	}
	switch r.Operator {
	case OpMatchesRegex:
		if _, err := regexp.Compile(r.Value); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
	case OpGreaterThan, OpLessThan:
		if _, err := strconv.ParseFloat(r.Value, 64); err != nil {
			return fmt.Errorf("%w: rule value %q", ErrInvalidOperand, r.Value)
		}
	}
	return nil
}

// ToolWildcard scopes a policy to every tool.
const ToolWildcard = "*"

// Policy is a named, ordered collection of rules scoped to one tool.
// Rules are kept in creation order; the resolver depends on that for
// tie-breaking between equally restrictive matches.
type Policy struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Tool  string `json:"tool"`
	Rules []Rule `json:"rules"`
}

// AppliesTo reports whether the policy covers the given tool.
func (p Policy) AppliesTo(tool string) bool {
	return p.Tool == ToolWildcard || p.Tool == tool
}

// Request is one invocation attempt to be judged. It is never mutated after
// creation and never persisted as its own entity.
type Request struct {
	Tool  string         `json:"tool"`
	Args  map[string]any `json:"args"`
	Agent string         `json:"agent,omitempty"`
}

// Verdict is the single resolved outcome for one request. RuleID is empty
// when the default verdict applied.
type Verdict struct {
	Action Action `json:"action"`
	Reason string `json:"reason"`
	RuleID string `json:"rule_id,omitempty"`
}
