package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dagbolade/toolguard/internal/policy"
)

// ErrRecordNotFound is returned when an outcome update targets an unknown id.
var ErrRecordNotFound = errors.New("invocation record not found")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initializeSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Append(ctx context.Context, record Record) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	return s.execWithBusyRetry(ctx, queryInsertRecord,
		record.ID, record.Tool, record.Agent, string(record.Args),
		string(record.Verdict), record.RuleID, record.Reason,
		string(record.Outcome), record.Detail)
}

func (s *SQLiteStore) UpdateOutcome(ctx context.Context, id string, outcome Outcome, detail string) error {
	if !isValidOutcome(outcome) {
		return fmt.Errorf("invalid outcome: %s", outcome)
	}

	res, err := s.db.ExecContext(ctx, queryUpdateOutcome, string(outcome), detail, id)
	if err != nil {
		return fmt.Errorf("update outcome: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("record %s: %w", id, ErrRecordNotFound)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, querySelectRecord, id)
	record, err := scanRecordRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("record %s: %w", id, ErrRecordNotFound)
	}
	return record, err
}

func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, querySelectAllRecords)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (s *SQLiteStore) LogRuleFault(ctx context.Context, policyID, ruleID, detail string) error {
	return s.execWithBusyRetry(ctx, queryInsertRuleFault, policyID, ruleID, detail)
}

func (s *SQLiteStore) ListRuleFaults(ctx context.Context) ([]RuleFault, error) {
	rows, err := s.db.QueryContext(ctx, querySelectRuleFaults)
	if err != nil {
		return nil, fmt.Errorf("query rule faults: %w", err)
	}
	defer rows.Close()

	return scanRuleFaults(rows)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initializeSchema() error {
	for _, stmt := range schemaStatements() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("execute schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) execWithBusyRetry(ctx context.Context, query string, args ...any) error {
	const maxRetries = 3
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err = s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return nil
		}

		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "SQLITE_BUSY") {
			backoff := time.Duration(attempt+1) * 10 * time.Millisecond
			time.Sleep(backoff)
			continue
		}

		return fmt.Errorf("exec: %w", err)
	}

	return fmt.Errorf("exec after %d retries: %w", maxRetries, err)
}

func validateRecord(record Record) error {
	if record.ID == "" {
		return fmt.Errorf("record id cannot be empty")
	}
	if record.Tool == "" {
		return fmt.Errorf("tool cannot be empty")
	}
	if len(record.Args) == 0 || !json.Valid(record.Args) {
		return fmt.Errorf("args must be valid JSON")
	}
	if _, err := policy.ParseAction(string(record.Verdict)); err != nil {
		return fmt.Errorf("invalid verdict: %w", err)
	}
	if !isValidOutcome(record.Outcome) {
		return fmt.Errorf("invalid outcome: %s", record.Outcome)
	}
	if record.Reason == "" {
		return fmt.Errorf("reason cannot be empty")
	}
	return nil
}

func isValidOutcome(o Outcome) bool {
	switch o {
	case OutcomeReceived, OutcomeBlocked, OutcomeAwaitingConfirmation,
		OutcomeConfirmed, OutcomeRejected, OutcomeCompleted, OutcomeFailed:
		return true
	}
	return false
}

// FaultSink adapts the audit store to the resolver's fault reporting
// boundary. Reporting is best effort; a sink failure never affects the
// verdict.
type FaultSink struct {
	Store Store
}

func (f FaultSink) ReportRuleFault(ctx context.Context, rule policy.Rule, err error) {
	if logErr := f.Store.LogRuleFault(ctx, rule.PolicyID, rule.ID, err.Error()); logErr != nil {
		log.Warn().Err(logErr).Str("rule_id", rule.ID).Msg("failed to record rule fault")
	}
}
