package policy

import (
	"context"

	"github.com/rs/zerolog/log"
)

// DefaultAllowReason is surfaced when no rule matched and the deployment
// runs with the default-allow posture.
const DefaultAllowReason = "no policy restriction matched"

// DefaultDenyReason is surfaced when no rule matched under default-deny.
const DefaultDenyReason = "no policy matched and default verdict is deny"

// FaultReporter receives rules that could not be evaluated because of a
// configuration error (bad regex, non-numeric operand).
type FaultReporter interface {
	ReportRuleFault(ctx context.Context, rule Rule, err error)
}

// Resolver turns the applicable rule set for one invocation into a single
// verdict. It is stateless; concurrent invocations share nothing but the
// immutable default action, so Resolve is safe to call from any goroutine.
type Resolver struct {
	defaultAction Action
	faults        FaultReporter
}

// NewResolver builds a resolver with the configured default verdict for
// tools no rule matches. faults may be nil.
func NewResolver(defaultAction Action, faults FaultReporter) *Resolver {
	if defaultAction != ActionDeny {
		defaultAction = ActionAllow
	}
	return &Resolver{defaultAction: defaultAction, faults: faults}
}

// Resolve evaluates every rule of every applicable policy against the
// request and picks the most restrictive matching action. Rule order only
// breaks ties between equally restrictive matches: the first such rule in
// store order supplies the surfaced reason. Defective rules are skipped,
// reported, and never abort evaluation of the rest.
//
// The policies slice is the caller's snapshot of the rule store; Resolve
// never re-reads the store mid-evaluation, so a concurrent policy edit
// cannot produce a verdict mixing old and new rules.
func (r *Resolver) Resolve(ctx context.Context, req Request, policies []Policy) Verdict {
	var winner *Rule

	for _, pol := range policies {
		if !pol.AppliesTo(req.Tool) {
			continue
		}
		for i := range pol.Rules {
			rule := pol.Rules[i]
			matched, err := Match(rule, req.Args)
			if err != nil {
				r.reportFault(ctx, rule, err)
				continue
			}
			if !matched {
				continue
			}
			if winner == nil || rule.Action.Outranks(winner.Action) {
				winner = &pol.Rules[i]
				if winner.Action == ActionDeny {
					// Nothing outranks deny; the reason is already the
					// earliest deny in store order.
					return verdictFor(*winner)
				}
			}
		}
	}

	if winner == nil {
		return r.defaultVerdict()
	}
	return verdictFor(*winner)
}

// DefaultAction exposes the configured fallback verdict.
func (r *Resolver) DefaultAction() Action {
	return r.defaultAction
}

func (r *Resolver) defaultVerdict() Verdict {
	if r.defaultAction == ActionDeny {
		return Verdict{Action: ActionDeny, Reason: DefaultDenyReason}
	}
	return Verdict{Action: ActionAllow, Reason: DefaultAllowReason}
}

func (r *Resolver) reportFault(ctx context.Context, rule Rule, err error) {
	log.Warn().
		Err(err).
		Str("rule_id", rule.ID).
		Str("policy_id", rule.PolicyID).
		Str("operator", string(rule.Operator)).
		Msg("skipping defective rule")

	if r.faults != nil {
		r.faults.ReportRuleFault(ctx, rule, err)
	}
}

func verdictFor(rule Rule) Verdict {
	reason := rule.Reason
	if reason == "" {
		reason = "rule matched"
	}
	return Verdict{Action: rule.Action, Reason: reason, RuleID: rule.ID}
}
