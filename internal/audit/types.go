package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dagbolade/toolguard/internal/policy"
)

// Outcome tracks an invocation record through the mediation state machine.
type Outcome string

const (
	// OutcomeReceived is the created state of a record whose call is about
	// to be forwarded.
	OutcomeReceived Outcome = "received"
	// OutcomeBlocked is terminal: the verdict was deny, nothing forwarded.
	OutcomeBlocked Outcome = "blocked"
	// OutcomeAwaitingConfirmation marks a call held for a human decision.
	OutcomeAwaitingConfirmation Outcome = "awaiting_confirmation"
	// OutcomeConfirmed marks a held call approved and now forwarding.
	OutcomeConfirmed Outcome = "confirmed"
	// OutcomeRejected is terminal: a human rejected the call, or the
	// confirmation window expired (the detail distinguishes the two).
	OutcomeRejected Outcome = "rejected"
	// OutcomeCompleted is terminal: the provider call succeeded.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed is terminal: the provider call itself failed. A provider
	// failure, never a policy denial.
	OutcomeFailed Outcome = "failed"
)

// Terminal reports whether no further outcome transition is expected.
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeBlocked, OutcomeRejected, OutcomeCompleted, OutcomeFailed:
		return true
	}
	return false
}

// Record is the durable audit entry for one invocation attempt: the request
// snapshot, the verdict that was reached, and the eventual outcome.
type Record struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Tool      string          `json:"tool"`
	Agent     string          `json:"agent,omitempty"`
	Args      json.RawMessage `json:"args"`
	Verdict   policy.Action   `json:"verdict"`
	RuleID    string          `json:"rule_id,omitempty"`
	Reason    string          `json:"reason"`
	Outcome   Outcome         `json:"outcome"`
	Detail    string          `json:"detail,omitempty"`
}

// RuleFault is a report of a rule that could not be evaluated.
type RuleFault struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	PolicyID  string    `json:"policy_id"`
	RuleID    string    `json:"rule_id"`
	Detail    string    `json:"detail"`
}

// Store is the append/update-only audit boundary. Nothing on the mediation
// path ever deletes a record.
type Store interface {
	Append(ctx context.Context, record Record) error
	UpdateOutcome(ctx context.Context, id string, outcome Outcome, detail string) error
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context) ([]Record, error)

	LogRuleFault(ctx context.Context, policyID, ruleID, detail string) error
	ListRuleFaults(ctx context.Context) ([]RuleFault, error)

	Close() error
}
