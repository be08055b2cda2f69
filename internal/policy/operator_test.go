package policy

import (
	"errors"
	"testing"
)

func TestMatchEquals(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		args     map[string]any
		expected bool
	}{
		{"string equal", "hello", map[string]any{"msg": "hello"}, true},
		{"string not equal", "hello", map[string]any{"msg": "world"}, false},
		{"numeric equal across forms", "42", map[string]any{"msg": 42.0}, true},
		{"numeric equal string observed", "42.0", map[string]any{"msg": "42"}, true},
		{"numeric not equal", "42", map[string]any{"msg": 41.0}, false},
		{"missing argument never matches", "hello", map[string]any{}, false},
		{"bool stringified", "true", map[string]any{"msg": true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := Rule{ArgumentName: "msg", Operator: OpEquals, Value: tt.value, Action: ActionDeny}
			matched, err := Match(rule, tt.args)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if matched != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, matched)
			}
		})
	}
}

func TestMatchContains(t *testing.T) {
	rule := Rule{ArgumentName: "path", Operator: OpContains, Value: "/etc", Action: ActionDeny}

	matched, err := Match(rule, map[string]any{"path": "/etc/passwd"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !matched {
		t.Error("expected substring match")
	}

	matched, err = Match(rule, map[string]any{"path": "/tmp/a.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matched {
		t.Error("expected no match")
	}

	// Missing argument is non-matching, not an error.
	matched, err = Match(rule, map[string]any{})
	if err != nil || matched {
		t.Errorf("missing argument: expected (false, nil), got (%v, %v)", matched, err)
	}
}

func TestMatchRegex(t *testing.T) {
	rule := Rule{ArgumentName: "path", Operator: OpMatchesRegex, Value: "^/etc/", Action: ActionDeny}

	matched, err := Match(rule, map[string]any{"path": "/etc/passwd"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !matched {
		t.Error("expected regex match")
	}

	matched, err = Match(rule, map[string]any{"path": "/home/etc/x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matched {
		t.Error("anchored pattern should not match")
	}
}

func TestMatchInvalidRegexIsConfigurationError(t *testing.T) {
	rule := Rule{ArgumentName: "path", Operator: OpMatchesRegex, Value: "([", Action: ActionDeny}

	_, err := Match(rule, map[string]any{"path": "/etc/passwd"})
	if !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("expected ErrInvalidPattern, got %v", err)
	}
}

func TestMatchExistence(t *testing.T) {
	args := map[string]any{"present": "x", "null": nil}

	tests := []struct {
		name     string
		op       Operator
		arg      string
		expected bool
	}{
		{"exists present", OpExists, "present", true},
		{"exists absent", OpExists, "missing", false},
		{"exists null value still present", OpExists, "null", true},
		{"not_exists absent", OpNotExists, "missing", true},
		{"not_exists present", OpNotExists, "present", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := Rule{ArgumentName: tt.arg, Operator: tt.op, Action: ActionAllow}
			matched, err := Match(rule, args)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if matched != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, matched)
			}
		})
	}
}

func TestMatchNumericComparison(t *testing.T) {
	gt := Rule{ArgumentName: "size", Operator: OpGreaterThan, Value: "100", Action: ActionDeny}
	lt := Rule{ArgumentName: "size", Operator: OpLessThan, Value: "100", Action: ActionDeny}

	matched, err := Match(gt, map[string]any{"size": 150.0})
	if err != nil || !matched {
		t.Errorf("greater_than 150>100: expected (true, nil), got (%v, %v)", matched, err)
	}

	matched, err = Match(gt, map[string]any{"size": "99"})
	if err != nil || matched {
		t.Errorf("greater_than 99>100: expected (false, nil), got (%v, %v)", matched, err)
	}

	matched, err = Match(lt, map[string]any{"size": 99.0})
	if err != nil || !matched {
		t.Errorf("less_than 99<100: expected (true, nil), got (%v, %v)", matched, err)
	}

	// Missing argument is non-matching, not an operand error.
	matched, err = Match(gt, map[string]any{})
	if err != nil || matched {
		t.Errorf("missing argument: expected (false, nil), got (%v, %v)", matched, err)
	}
}

func TestMatchNonNumericOperandFails(t *testing.T) {
	rule := Rule{ArgumentName: "size", Operator: OpGreaterThan, Value: "100", Action: ActionDeny}

	_, err := Match(rule, map[string]any{"size": "abc"})
	if !errors.Is(err, ErrInvalidOperand) {
		t.Errorf("non-numeric observed value: expected ErrInvalidOperand, got %v", err)
	}

	rule.Value = "abc"
	_, err = Match(rule, map[string]any{"size": 5.0})
	if !errors.Is(err, ErrInvalidOperand) {
		t.Errorf("non-numeric rule value: expected ErrInvalidOperand, got %v", err)
	}
}

// Negated operators must be exact logical complements of their positives
// for every input that evaluates cleanly.
func TestNegationsAreExactComplements(t *testing.T) {
	pairs := []struct{ pos, neg Operator }{
		{OpEquals, OpNotEquals},
		{OpContains, OpNotContains},
		{OpExists, OpNotExists},
	}

	argSets := []map[string]any{
		{},
		{"arg": "hello world"},
		{"arg": ""},
		{"arg": 42.0},
		{"arg": nil},
		{"other": "hello"},
	}

	for _, pair := range pairs {
		for _, value := range []string{"", "hello", "42", "world"} {
			for _, args := range argSets {
				posRule := Rule{ArgumentName: "arg", Operator: pair.pos, Value: value, Action: ActionDeny}
				negRule := Rule{ArgumentName: "arg", Operator: pair.neg, Value: value, Action: ActionDeny}

				posMatch, posErr := Match(posRule, args)
				negMatch, negErr := Match(negRule, args)
				if posErr != nil || negErr != nil {
					t.Fatalf("unexpected error: %v / %v", posErr, negErr)
				}

				// Absence short-circuits non-existence operators on both
				// sides identically, so complements only hold when the
				// argument is present or the pair is the existence check.
				_, present := args["arg"]
				if !present && pair.pos != OpExists {
					if posMatch || negMatch {
						t.Errorf("%s/%s on absent arg: expected both false", pair.pos, pair.neg)
					}
					continue
				}

				if posMatch == negMatch {
					t.Errorf("%s=%v and %s=%v for value %q args %v: expected complements",
						pair.pos, posMatch, pair.neg, negMatch, value, args)
				}
			}
		}
	}
}

func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{"valid equals", Rule{ArgumentName: "a", Operator: OpEquals, Value: "x", Action: ActionAllow}, false},
		{"valid regex", Rule{ArgumentName: "a", Operator: OpMatchesRegex, Value: "^/etc/", Action: ActionDeny}, false},
		{"bad regex", Rule{ArgumentName: "a", Operator: OpMatchesRegex, Value: "([", Action: ActionDeny}, true},
		{"bad numeric operand", Rule{ArgumentName: "a", Operator: OpGreaterThan, Value: "abc", Action: ActionDeny}, true},
		{"unknown operator", Rule{ArgumentName: "a", Operator: "fuzzy_match", Value: "x", Action: ActionDeny}, true},
		{"unknown action", Rule{ArgumentName: "a", Operator: OpEquals, Value: "x", Action: "maybe"}, true},
		{"empty argument name", Rule{Operator: OpEquals, Value: "x", Action: ActionAllow}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseOperatorAndAction(t *testing.T) {
	if _, err := ParseOperator("MATCHES_REGEX"); err != nil {
		t.Errorf("operators should parse case-insensitively: %v", err)
	}
	if _, err := ParseOperator("regex"); err == nil {
		t.Error("expected error for unrecognized operator")
	}
	if _, err := ParseAction("require_confirmation"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := ParseAction("block"); err == nil {
		t.Error("expected error for unrecognized action")
	}
}
