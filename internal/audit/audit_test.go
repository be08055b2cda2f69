package audit

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dagbolade/toolguard/internal/policy"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(id string, outcome Outcome) Record {
	return Record{
		ID:      id,
		Tool:    "fs_read",
		Agent:   "agent-1",
		Args:    json.RawMessage(`{"path":"/etc/passwd"}`),
		Verdict: policy.ActionDeny,
		RuleID:  "r1",
		Reason:  "restricted path",
		Outcome: outcome,
	}
}

func TestAppendAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, testRecord("rec-1", OutcomeBlocked)); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.Get(ctx, "rec-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Tool != "fs_read" || got.Verdict != policy.ActionDeny || got.Outcome != OutcomeBlocked {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Error("expected populated timestamp")
	}
}

func TestAppendValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*Record)
	}{
		{"empty id", func(r *Record) { r.ID = "" }},
		{"empty tool", func(r *Record) { r.Tool = "" }},
		{"invalid args", func(r *Record) { r.Args = json.RawMessage(`{oops`) }},
		{"invalid verdict", func(r *Record) { r.Verdict = "maybe" }},
		{"invalid outcome", func(r *Record) { r.Outcome = "exploded" }},
		{"empty reason", func(r *Record) { r.Reason = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := testRecord("rec-x", OutcomeBlocked)
			tt.mutate(&record)
			if err := s.Append(ctx, record); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestUpdateOutcome(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	record := testRecord("rec-2", OutcomeAwaitingConfirmation)
	record.Verdict = policy.ActionRequireConfirmation
	if err := s.Append(ctx, record); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := s.UpdateOutcome(ctx, "rec-2", OutcomeRejected, "confirmation timed out"); err != nil {
		t.Fatalf("update outcome: %v", err)
	}

	got, err := s.Get(ctx, "rec-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Outcome != OutcomeRejected || got.Detail != "confirmation timed out" {
		t.Errorf("unexpected record after update: %+v", got)
	}
	// The snapshot must survive the outcome transition untouched.
	if got.Reason != "restricted path" || got.Tool != "fs_read" {
		t.Errorf("request snapshot mutated: %+v", got)
	}
}

func TestUpdateOutcomeUnknownRecord(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateOutcome(context.Background(), "missing", OutcomeCompleted, "")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestRecordsCannotBeDeleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, testRecord("rec-3", OutcomeBlocked)); err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM invocation_records WHERE id = ?", "rec-3"); err == nil {
		t.Error("expected delete to be rejected by trigger")
	}
}

func TestSnapshotIsImmutable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, testRecord("rec-4", OutcomeBlocked)); err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, "UPDATE invocation_records SET tool = 'other' WHERE id = ?", "rec-4"); err == nil {
		t.Error("expected snapshot update to be rejected by trigger")
	}
}

func TestListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.Append(ctx, testRecord(id, OutcomeBlocked)); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	records, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
}

func TestRuleFaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.LogRuleFault(ctx, "p1", "r1", "operand is not numeric"); err != nil {
		t.Fatalf("log fault: %v", err)
	}

	faults, err := s.ListRuleFaults(ctx)
	if err != nil {
		t.Fatalf("list faults: %v", err)
	}
	if len(faults) != 1 || faults[0].RuleID != "r1" || faults[0].PolicyID != "p1" {
		t.Errorf("unexpected faults: %+v", faults)
	}
}

func TestFaultSinkReports(t *testing.T) {
	s := newTestStore(t)

	sink := FaultSink{Store: s}
	sink.ReportRuleFault(context.Background(), policy.Rule{ID: "r9", PolicyID: "p9"}, errors.New("invalid regex pattern"))

	faults, err := s.ListRuleFaults(context.Background())
	if err != nil {
		t.Fatalf("list faults: %v", err)
	}
	if len(faults) != 1 || faults[0].RuleID != "r9" {
		t.Errorf("unexpected faults: %+v", faults)
	}
}
