package mediator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dagbolade/toolguard/internal/approval"
	"github.com/dagbolade/toolguard/internal/audit"
	"github.com/dagbolade/toolguard/internal/policy"
)

// Mediator runs the per-invocation state machine: resolve a verdict, then
// forward, block, or hold the call, recording every transition. It keeps no
// per-attempt state, so concurrent attempts proceed fully in parallel.
type Mediator struct {
	rules         RuleSource
	resolver      *policy.Resolver
	audit         audit.Store
	confirmations approval.Queue
	dispatcher    Dispatcher
}

func New(rules RuleSource, resolver *policy.Resolver, auditStore audit.Store, confirmations approval.Queue, dispatcher Dispatcher) *Mediator {
	return &Mediator{
		rules:         rules,
		resolver:      resolver,
		audit:         auditStore,
		confirmations: confirmations,
		dispatcher:    dispatcher,
	}
}

// Mediate handles exactly one invocation attempt. Exactly one invocation
// record is created per call, the provider is invoked at most once, and no
// call reaches the provider unless the resolver ran to completion.
func (m *Mediator) Mediate(ctx context.Context, req Request) (Result, error) {
	if req.Tool == "" {
		return Result{}, fmt.Errorf("tool name is required")
	}

	policies, err := m.rules.PoliciesForTool(ctx, req.Tool)
	if err != nil {
		// Fail closed: an unverifiable call is never forwarded.
		return Result{}, fmt.Errorf("%w: load policies: %v", ErrStoreUnavailable, err)
	}

	verdict := m.resolver.Resolve(ctx, policy.Request{Tool: req.Tool, Args: req.Args, Agent: req.Agent}, policies)

	record, err := newRecord(req, verdict)
	if err != nil {
		return Result{}, err
	}

	log.Info().
		Str("record_id", record.ID).
		Str("tool", req.Tool).
		Str("agent", req.Agent).
		Str("verdict", string(verdict.Action)).
		Str("reason", verdict.Reason).
		Msg("invocation mediated")

	switch verdict.Action {
	case policy.ActionDeny:
		return m.block(ctx, record, verdict)
	case policy.ActionRequireConfirmation:
		return m.holdForConfirmation(ctx, req, record, verdict)
	default:
		return m.allow(ctx, req, record, verdict)
	}
}

func (m *Mediator) block(ctx context.Context, record audit.Record, verdict policy.Verdict) (Result, error) {
	record.Outcome = audit.OutcomeBlocked
	if err := m.audit.Append(ctx, record); err != nil {
		return Result{}, fmt.Errorf("%w: append record: %v", ErrStoreUnavailable, err)
	}

	return Result{
		RecordID: record.ID,
		Verdict:  policy.ActionDeny,
		Reason:   verdict.Reason,
		Outcome:  audit.OutcomeBlocked,
	}, nil
}

func (m *Mediator) allow(ctx context.Context, req Request, record audit.Record, verdict policy.Verdict) (Result, error) {
	record.Outcome = audit.OutcomeReceived
	if err := m.audit.Append(ctx, record); err != nil {
		return Result{}, fmt.Errorf("%w: append record: %v", ErrStoreUnavailable, err)
	}

	return m.forward(ctx, req, record.ID, verdict)
}

func (m *Mediator) holdForConfirmation(ctx context.Context, req Request, record audit.Record, verdict policy.Verdict) (Result, error) {
	record.Outcome = audit.OutcomeAwaitingConfirmation
	if err := m.audit.Append(ctx, record); err != nil {
		return Result{}, fmt.Errorf("%w: append record: %v", ErrStoreUnavailable, err)
	}

	decision, err := m.confirmations.Await(ctx, approval.Pending{
		ID:     record.ID,
		Tool:   req.Tool,
		Agent:  req.Agent,
		Args:   record.Args,
		Reason: verdict.Reason,
	})
	if err != nil {
		// The caller went away; record the abandoned hold without its
		// cancelled context.
		m.updateOutcome(context.WithoutCancel(ctx), record.ID, audit.OutcomeRejected, "request cancelled")
		return Result{}, err
	}

	if !decision.Approved {
		detail := decision.Reason
		if detail == "" {
			detail = "confirmation rejected"
		}
		m.updateOutcome(ctx, record.ID, audit.OutcomeRejected, detail)
		return Result{
			RecordID: record.ID,
			Verdict:  policy.ActionDeny,
			Reason:   detail,
			Outcome:  audit.OutcomeRejected,
		}, nil
	}

	m.updateOutcome(ctx, record.ID, audit.OutcomeConfirmed, confirmedDetail(decision))
	return m.forward(ctx, req, record.ID, verdict)
}

// forward dispatches the authorized call and settles the record. A provider
// error lands in the record as failed, distinct from any policy denial.
func (m *Mediator) forward(ctx context.Context, req Request, recordID string, verdict policy.Verdict) (Result, error) {
	output, err := m.dispatcher.Dispatch(ctx, req.Tool, req.Args)
	if err != nil {
		log.Error().Err(err).Str("record_id", recordID).Str("tool", req.Tool).Msg("provider dispatch failed")
		m.updateOutcome(ctx, recordID, audit.OutcomeFailed, err.Error())
		return Result{
			RecordID:    recordID,
			Verdict:     verdict.Action,
			Reason:      verdict.Reason,
			Outcome:     audit.OutcomeFailed,
			ProviderErr: err.Error(),
		}, nil
	}

	m.updateOutcome(ctx, recordID, audit.OutcomeCompleted, "")
	return Result{
		RecordID: recordID,
		Verdict:  verdict.Action,
		Reason:   verdict.Reason,
		Outcome:  audit.OutcomeCompleted,
		Output:   output,
	}, nil
}

// updateOutcome settles a record after the provider call or confirmation
// already happened; at that point the result still has to reach the caller,
// so a sink failure is logged rather than surfaced.
func (m *Mediator) updateOutcome(ctx context.Context, id string, outcome audit.Outcome, detail string) {
	if err := m.audit.UpdateOutcome(ctx, id, outcome, detail); err != nil {
		log.Warn().Err(err).Str("record_id", id).Str("outcome", string(outcome)).Msg("failed to update record outcome")
	}
}

func newRecord(req Request, verdict policy.Verdict) (audit.Record, error) {
	args := req.Args
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return audit.Record{}, fmt.Errorf("marshal args: %w", err)
	}

	return audit.Record{
		ID:      uuid.New().String(),
		Tool:    req.Tool,
		Agent:   req.Agent,
		Args:    raw,
		Verdict: verdict.Action,
		RuleID:  verdict.RuleID,
		Reason:  verdict.Reason,
	}, nil
}

func confirmedDetail(decision approval.Decision) string {
	if decision.DecidedBy == "" {
		return "approved"
	}
	return "approved by " + decision.DecidedBy
}
