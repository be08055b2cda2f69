package audit

const (
	queryInsertRecord = `
		INSERT INTO invocation_records (id, tool, agent, args, verdict, rule_id, reason, outcome, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryUpdateOutcome = `
		UPDATE invocation_records
		SET outcome = ?, detail = ?
		WHERE id = ?`

	querySelectRecord = `
		SELECT id, timestamp, tool, agent, args, verdict, rule_id, reason, outcome, detail
		FROM invocation_records
		WHERE id = ?`

	querySelectAllRecords = `
		SELECT id, timestamp, tool, agent, args, verdict, rule_id, reason, outcome, detail
		FROM invocation_records
		ORDER BY timestamp DESC`

	queryInsertRuleFault = `
		INSERT INTO rule_faults (policy_id, rule_id, detail)
		VALUES (?, ?, ?)`

	querySelectRuleFaults = `
		SELECT id, timestamp, policy_id, rule_id, detail
		FROM rule_faults
		ORDER BY timestamp DESC`
)
