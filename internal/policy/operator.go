package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrInvalidOperand marks a numeric comparison where one side does not
	// parse as a number. A rule misconfiguration, not a mismatch.
	ErrInvalidOperand = errors.New("operand is not numeric")

	// ErrInvalidPattern marks a matches_regex rule whose pattern does not
	// compile.
	ErrInvalidPattern = errors.New("invalid regex pattern")
)

// Match evaluates a single rule predicate against the invocation's argument
// map. Only exists/not_exists are defined over absence; every other operator
// treats a missing argument as non-matching. A returned error always means
// the rule itself is misconfigured.
func Match(rule Rule, args map[string]any) (bool, error) {
	observed, present := args[rule.ArgumentName]

	switch rule.Operator {
	case OpExists:
		return present, nil
	case OpNotExists:
		return !present, nil
	}

	if !present {
		return false, nil
	}

	switch rule.Operator {
	case OpEquals:
		return valuesEqual(rule.Value, observed), nil
	case OpNotEquals:
		return !valuesEqual(rule.Value, observed), nil
	case OpContains:
		return strings.Contains(stringify(observed), rule.Value), nil
	case OpNotContains:
		return !strings.Contains(stringify(observed), rule.Value), nil
	case OpMatchesRegex:
		re, err := regexp.Compile(rule.Value)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		return re.MatchString(stringify(observed)), nil
	case OpGreaterThan:
		return compareNumeric(rule.Value, observed, func(obs, ref float64) bool { return obs > ref })
	case OpLessThan:
		return compareNumeric(rule.Value, observed, func(obs, ref float64) bool { return obs < ref })
	}

	return false, fmt.Errorf("unknown operator: %q", rule.Operator)
}

// valuesEqual compares numerically when both sides parse as numbers,
// otherwise falls back to string equality of the canonical forms.
func valuesEqual(ruleValue string, observed any) bool {
	if ref, err := strconv.ParseFloat(ruleValue, 64); err == nil {
		if obs, ok := numericValue(observed); ok {
			return obs == ref
		}
	}
	return stringify(observed) == ruleValue
}

func compareNumeric(ruleValue string, observed any, cmp func(obs, ref float64) bool) (bool, error) {
	ref, err := strconv.ParseFloat(ruleValue, 64)
	if err != nil {
		return false, fmt.Errorf("%w: rule value %q", ErrInvalidOperand, ruleValue)
	}
	obs, ok := numericValue(observed)
	if !ok {
		return false, fmt.Errorf("%w: argument value %q", ErrInvalidOperand, stringify(observed))
	}
	return cmp(obs, ref), nil
}

// numericValue extracts a float64 from the shapes JSON decoding produces.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// stringify renders an observed argument in a canonical comparable form.
func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
