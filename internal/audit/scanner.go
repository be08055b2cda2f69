package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dagbolade/toolguard/internal/policy"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecordRow(row rowScanner) (Record, error) {
	var r Record
	var timestamp, args, verdict, outcome string

	if err := row.Scan(&r.ID, &timestamp, &r.Tool, &r.Agent, &args, &verdict, &r.RuleID, &r.Reason, &outcome, &r.Detail); err != nil {
		return Record{}, err
	}

	parsed, err := parseTimestamp(timestamp)
	if err != nil {
		return Record{}, err
	}
	r.Timestamp = parsed
	r.Args = json.RawMessage(args)
	r.Verdict = policy.Action(verdict)
	r.Outcome = Outcome(outcome)

	return r, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record

	for rows.Next() {
		record, err := scanRecordRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return records, nil
}

func scanRuleFaults(rows *sql.Rows) ([]RuleFault, error) {
	var faults []RuleFault

	for rows.Next() {
		var f RuleFault
		var timestamp string

		if err := rows.Scan(&f.ID, &timestamp, &f.PolicyID, &f.RuleID, &f.Detail); err != nil {
			return nil, fmt.Errorf("scan rule fault: %w", err)
		}

		parsed, err := parseTimestamp(timestamp)
		if err != nil {
			return nil, err
		}
		f.Timestamp = parsed
		faults = append(faults, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return faults, nil
}

func parseTimestamp(timestamp string) (time.Time, error) {
	// RFC3339 first, then the bare SQLite CURRENT_TIMESTAMP layout.
	t, err := time.Parse(time.RFC3339, timestamp)
	if err == nil {
		return t, nil
	}

	t, err = time.Parse("2006-01-02 15:04:05", timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp: %w", err)
	}

	return t, nil
}
