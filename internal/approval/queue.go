package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// TimeoutReason is surfaced when the confirmation window expires with no
// decision. Timeouts deny.
const TimeoutReason = "confirmation timed out"

// InMemoryQueue holds pending confirmations in memory. Each pending entry
// costs one goroutine blocked on a channel, not a worker thread.
type InMemoryQueue struct {
	mu       sync.RWMutex
	pending  map[string]*Pending
	timeout  time.Duration
	notifyCh chan struct{}
}

func NewInMemoryQueue(timeout time.Duration) *InMemoryQueue {
	return &InMemoryQueue{
		pending:  make(map[string]*Pending),
		timeout:  timeout,
		notifyCh: make(chan struct{}, 100),
	}
}

// Await parks the invocation until a decision arrives or the confirmation
// window closes. The returned decision on timeout is an implicit denial.
func (q *InMemoryQueue) Await(ctx context.Context, p Pending) (Decision, error) {
	if p.ID == "" {
		return Decision{}, fmt.Errorf("pending confirmation requires a record id")
	}

	resultCh := make(chan Decision, 1)
	p.resultCh = resultCh
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	q.addPending(&p)
	q.notifyWatchers()

	log.Info().Str("id", p.ID).Str("tool", p.Tool).Msg("confirmation requested")

	return q.waitForDecision(ctx, p.ID, resultCh)
}

func (q *InMemoryQueue) Pending(ctx context.Context) ([]Pending, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	pending := make([]Pending, 0, len(q.pending))
	for _, p := range q.pending {
		pending = append(pending, *p)
	}
	return pending, nil
}

func (q *InMemoryQueue) Decide(ctx context.Context, id string, decision Decision) error {
	q.mu.Lock()
	p, exists := q.pending[id]
	if !exists {
		q.mu.Unlock()
		return fmt.Errorf("confirmation not found: %s", id)
	}
	delete(q.pending, id)
	q.mu.Unlock()

	decision.TimedOut = false

	select {
	case p.resultCh <- decision:
		log.Info().Str("id", id).Bool("approved", decision.Approved).Str("decided_by", decision.DecidedBy).Msg("confirmation decided")
	default:
		log.Warn().Str("id", id).Msg("result channel gone, decision dropped")
	}

	q.notifyWatchers()
	return nil
}

func (q *InMemoryQueue) NotifyChannel() <-chan struct{} {
	return q.notifyCh
}

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id, p := range q.pending {
		close(p.resultCh)
		delete(q.pending, id)
	}

	close(q.notifyCh)
	return nil
}

func (q *InMemoryQueue) addPending(p *Pending) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[p.ID] = p
}

func (q *InMemoryQueue) waitForDecision(ctx context.Context, id string, resultCh <-chan Decision) (Decision, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	select {
	case decision, ok := <-resultCh:
		if !ok {
			return Decision{Approved: false, Reason: "confirmation queue shut down"}, nil
		}
		return decision, nil
	case <-timeoutCtx.Done():
		q.remove(id)
		q.notifyWatchers()
		if ctx.Err() != nil {
			return Decision{Approved: false, Reason: "request cancelled"}, ctx.Err()
		}
		log.Warn().Str("id", id).Msg("confirmation timed out")
		return Decision{Approved: false, Reason: TimeoutReason, TimedOut: true}, nil
	}
}

func (q *InMemoryQueue) remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if p, exists := q.pending[id]; exists {
		delete(q.pending, id)
		close(p.resultCh)
	}
}

func (q *InMemoryQueue) notifyWatchers() {
	select {
	case q.notifyCh <- struct{}{}:
	default:
	}
}
