package approval

import (
	"context"
	"encoding/json"
	"time"
)

// Pending is one held invocation waiting on a human decision, keyed by its
// invocation record id.
type Pending struct {
	ID        string          `json:"id"`
	Tool      string          `json:"tool"`
	Agent     string          `json:"agent,omitempty"`
	Args      json.RawMessage `json:"args"`
	Reason    string          `json:"reason"`
	CreatedAt time.Time       `json:"created_at"`

	resultCh chan<- Decision
}

// Decision resolves a pending confirmation. TimedOut is set by the queue
// itself when the wait expires; human decisions never carry it.
type Decision struct {
	Approved  bool   `json:"approved"`
	Reason    string `json:"reason"`
	DecidedBy string `json:"decided_by,omitempty"`
	TimedOut  bool   `json:"timed_out,omitempty"`
}

// Queue suspends invocations pending human confirmation. Await blocks the
// calling goroutine only; no store lock is held while waiting, and the wait
// ends on decision, timeout, or caller cancellation.
type Queue interface {
	Await(ctx context.Context, p Pending) (Decision, error)
	Pending(ctx context.Context) ([]Pending, error)
	Decide(ctx context.Context, id string, decision Decision) error
	NotifyChannel() <-chan struct{}
	Close() error
}
