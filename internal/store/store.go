package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dagbolade/toolguard/internal/policy"
)

var (
	// ErrNotFound is returned when a policy or rule id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTooManyRules is returned when a write would push a policy past the
	// configured per-policy rule cap.
	ErrTooManyRules = errors.New("rule limit exceeded for policy")
)

// RuleStore is the persistence boundary for tool policies and their rules.
// Rules within a policy always come back in creation order.
type RuleStore interface {
	CreatePolicy(ctx context.Context, p policy.Policy) (policy.Policy, error)
	GetPolicy(ctx context.Context, id string) (policy.Policy, error)
	ListPolicies(ctx context.Context) ([]policy.Policy, error)
	DeletePolicy(ctx context.Context, id string) error

	CreateRule(ctx context.Context, policyID string, r policy.Rule) (policy.Rule, error)
	UpdateRule(ctx context.Context, r policy.Rule) error
	DeleteRule(ctx context.Context, policyID, ruleID string) error
	ListRules(ctx context.Context, policyID string) ([]policy.Rule, error)

	// PoliciesForTool returns a consistent snapshot of every policy covering
	// the tool. The returned value is immutable; concurrent edits bump the
	// snapshot version and take effect on the next call.
	PoliciesForTool(ctx context.Context, tool string) ([]policy.Policy, error)

	// ImportPolicies replaces policies by name with the given bootstrap set.
	ImportPolicies(ctx context.Context, policies []policy.Policy) error

	Close() error
}

// SQLiteStore persists policies and rules in SQLite.
type SQLiteStore struct {
	db       *sql.DB
	maxRules int
	snap     snapshotCache
}

// NewSQLiteStore opens (creating if needed) the rule database. maxRules caps
// rules per policy; zero or negative means the default of 200.
func NewSQLiteStore(dbPath string, maxRules int) (*SQLiteStore, error) {
	if maxRules <= 0 {
		maxRules = 200
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db, maxRules: maxRules}

	if err := s.initializeSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) initializeSchema() error {
	for _, stmt := range schemaStatements() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("execute schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) CreatePolicy(ctx context.Context, p policy.Policy) (policy.Policy, error) {
	if p.Name == "" {
		return policy.Policy{}, fmt.Errorf("policy name is required")
	}
	if p.Tool == "" {
		p.Tool = policy.ToolWildcard
	}
	if len(p.Rules) > s.maxRules {
		return policy.Policy{}, fmt.Errorf("%w: %d > %d", ErrTooManyRules, len(p.Rules), s.maxRules)
	}
	for i := range p.Rules {
		if err := normalizeRule(&p.Rules[i]); err != nil {
			return policy.Policy{}, fmt.Errorf("rule %d: %w", i, err)
		}
	}

	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return policy.Policy{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, queryInsertPolicy, p.ID, p.Name, p.Tool); err != nil {
		return policy.Policy{}, fmt.Errorf("insert policy: %w", err)
	}

	for i := range p.Rules {
		r := &p.Rules[i]
		r.PolicyID = p.ID
		if _, err := tx.ExecContext(ctx, queryInsertRule,
			r.ID, p.ID, p.ID, r.ArgumentName, string(r.Operator), r.Value, string(r.Action), r.Reason); err != nil {
			return policy.Policy{}, fmt.Errorf("insert rule: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return policy.Policy{}, fmt.Errorf("commit: %w", err)
	}

	s.snap.invalidate()
	return p, nil
}

func (s *SQLiteStore) GetPolicy(ctx context.Context, id string) (policy.Policy, error) {
	row := s.db.QueryRowContext(ctx, querySelectPolicy, id)
	p, err := scanPolicy(row)
	if err != nil {
		return policy.Policy{}, err
	}

	p.Rules, err = s.ListRules(ctx, id)
	if err != nil {
		return policy.Policy{}, err
	}
	return p, nil
}

func (s *SQLiteStore) ListPolicies(ctx context.Context) ([]policy.Policy, error) {
	return s.loadAllPolicies(ctx)
}

func (s *SQLiteStore) DeletePolicy(ctx context.Context, id string) error {
	// ON DELETE CASCADE removes the policy's rules with it.
	res, err := s.db.ExecContext(ctx, queryDeletePolicy, id)
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("policy %s: %w", id, ErrNotFound)
	}

	s.snap.invalidate()
	return nil
}

func (s *SQLiteStore) CreateRule(ctx context.Context, policyID string, r policy.Rule) (policy.Rule, error) {
	if err := normalizeRule(&r); err != nil {
		return policy.Rule{}, err
	}

	if _, err := s.GetPolicy(ctx, policyID); err != nil {
		return policy.Rule{}, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, queryCountRules, policyID).Scan(&count); err != nil {
		return policy.Rule{}, fmt.Errorf("count rules: %w", err)
	}
	if count >= s.maxRules {
		return policy.Rule{}, fmt.Errorf("%w: limit %d", ErrTooManyRules, s.maxRules)
	}

	r.PolicyID = policyID
	if _, err := s.db.ExecContext(ctx, queryInsertRule,
		r.ID, policyID, policyID, r.ArgumentName, string(r.Operator), r.Value, string(r.Action), r.Reason); err != nil {
		return policy.Rule{}, fmt.Errorf("insert rule: %w", err)
	}

	s.snap.invalidate()
	return r, nil
}

func (s *SQLiteStore) UpdateRule(ctx context.Context, r policy.Rule) error {
	if r.ID == "" || r.PolicyID == "" {
		return fmt.Errorf("rule id and policy id are required")
	}
	if err := r.Validate(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, queryUpdateRule,
		r.ArgumentName, string(r.Operator), r.Value, string(r.Action), r.Reason, r.ID, r.PolicyID)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("rule %s: %w", r.ID, ErrNotFound)
	}

	s.snap.invalidate()
	return nil
}

func (s *SQLiteStore) DeleteRule(ctx context.Context, policyID, ruleID string) error {
	res, err := s.db.ExecContext(ctx, queryDeleteRule, ruleID, policyID)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}

	s.snap.invalidate()
	return nil
}

func (s *SQLiteStore) ListRules(ctx context.Context, policyID string) ([]policy.Rule, error) {
	rows, err := s.db.QueryContext(ctx, querySelectRules, policyID)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	return scanRules(rows)
}

func (s *SQLiteStore) PoliciesForTool(ctx context.Context, tool string) ([]policy.Policy, error) {
	all, err := s.snap.get(func() ([]policy.Policy, error) {
		return s.loadAllPolicies(ctx)
	})
	if err != nil {
		return nil, err
	}

	var matching []policy.Policy
	for _, p := range all {
		if p.AppliesTo(tool) {
			matching = append(matching, p)
		}
	}
	return matching, nil
}

func (s *SQLiteStore) ImportPolicies(ctx context.Context, policies []policy.Policy) error {
	for _, p := range policies {
		if err := s.importPolicy(ctx, p); err != nil {
			log.Warn().Err(err).Str("policy", p.Name).Msg("failed to import policy")
			continue
		}
	}
	return nil
}

func (s *SQLiteStore) importPolicy(ctx context.Context, p policy.Policy) error {
	existing := s.db.QueryRowContext(ctx, querySelectPolicyByName, p.Name)
	prev, err := scanPolicy(existing)
	switch {
	case err == nil:
		if err := s.DeletePolicy(ctx, prev.ID); err != nil {
			return err
		}
	case errors.Is(err, ErrNotFound):
		// first import of this policy
	default:
		return err
	}

	_, err = s.CreatePolicy(ctx, p)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) loadAllPolicies(ctx context.Context) ([]policy.Policy, error) {
	rows, err := s.db.QueryContext(ctx, querySelectAllPolicies)
	if err != nil {
		return nil, fmt.Errorf("query policies: %w", err)
	}
	defer rows.Close()

	policies, err := scanPolicies(rows)
	if err != nil {
		return nil, err
	}

	for i := range policies {
		policies[i].Rules, err = s.ListRules(ctx, policies[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return policies, nil
}

// normalizeRule assigns an id when missing and rejects malformed rules
// before they reach the database.
func normalizeRule(r *policy.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}
