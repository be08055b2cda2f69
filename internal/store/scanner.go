package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dagbolade/toolguard/internal/policy"
)

func scanPolicy(row *sql.Row) (policy.Policy, error) {
	var p policy.Policy
	if err := row.Scan(&p.ID, &p.Name, &p.Tool); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return policy.Policy{}, ErrNotFound
		}
		return policy.Policy{}, fmt.Errorf("scan policy: %w", err)
	}
	return p, nil
}

func scanPolicies(rows *sql.Rows) ([]policy.Policy, error) {
	var policies []policy.Policy

	for rows.Next() {
		var p policy.Policy
		if err := rows.Scan(&p.ID, &p.Name, &p.Tool); err != nil {
			return nil, fmt.Errorf("scan policy row: %w", err)
		}
		policies = append(policies, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return policies, nil
}

// scanRules parses stored operator/action strings back into their closed
// sets. Rows are only written through validation, but a row edited out of
// band is skipped with a warning rather than poisoning every evaluation.
func scanRules(rows *sql.Rows) ([]policy.Rule, error) {
	var rules []policy.Rule

	for rows.Next() {
		var r policy.Rule
		var operator, action string

		if err := rows.Scan(&r.ID, &r.PolicyID, &r.ArgumentName, &operator, &r.Value, &action, &r.Reason); err != nil {
			return nil, fmt.Errorf("scan rule row: %w", err)
		}

		op, err := policy.ParseOperator(operator)
		if err != nil {
			log.Warn().Str("rule_id", r.ID).Str("operator", operator).Msg("skipping rule with unknown operator")
			continue
		}
		act, err := policy.ParseAction(action)
		if err != nil {
			log.Warn().Str("rule_id", r.ID).Str("action", action).Msg("skipping rule with unknown action")
			continue
		}

		r.Operator = op
		r.Action = act
		rules = append(rules, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return rules, nil
}
