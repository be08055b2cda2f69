package mediator

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dagbolade/toolguard/internal/audit"
	"github.com/dagbolade/toolguard/internal/policy"
)

// ErrStoreUnavailable means the rule store or audit sink could not be
// reached. The mediation attempt fails closed: the call is not forwarded.
var ErrStoreUnavailable = errors.New("store unavailable")

// Request is one tool invocation attempt presented for mediation.
type Request struct {
	Tool  string         `json:"tool_name"`
	Args  map[string]any `json:"args"`
	Agent string         `json:"agent,omitempty"`
}

// Result is the caller-visible outcome of one mediation attempt. A provider
// failure is reported here (ProviderErr), never as an error from Mediate;
// Mediate only errors when the mediation machinery itself failed.
type Result struct {
	RecordID    string          `json:"record_id"`
	Verdict     policy.Action   `json:"verdict"`
	Reason      string          `json:"reason"`
	Outcome     audit.Outcome   `json:"outcome"`
	Output      json.RawMessage `json:"output,omitempty"`
	ProviderErr string          `json:"provider_error,omitempty"`
}

// Dispatcher forwards an authorized call to the target provider. It may be a
// network hop to a remote tool server; cancellation comes via ctx.
type Dispatcher interface {
	Dispatch(ctx context.Context, tool string, args map[string]any) (json.RawMessage, error)
}

// RuleSource is the read side of the rule store. It must return a consistent
// snapshot per call so one evaluation never mixes rule-set versions.
type RuleSource interface {
	PoliciesForTool(ctx context.Context, tool string) ([]policy.Policy, error)
}
