package audit

const (
	tableRecords = `
		CREATE TABLE IF NOT EXISTS invocation_records (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			tool TEXT NOT NULL,
			agent TEXT NOT NULL DEFAULT '',
			args TEXT NOT NULL,
			verdict TEXT NOT NULL CHECK(verdict IN ('allow', 'deny', 'require_confirmation')),
			rule_id TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL,
			outcome TEXT NOT NULL CHECK(outcome IN (
				'received', 'blocked', 'awaiting_confirmation',
				'confirmed', 'rejected', 'completed', 'failed')),
			detail TEXT NOT NULL DEFAULT ''
		)`

	triggerPreventRecordDelete = `
		CREATE TRIGGER IF NOT EXISTS prevent_record_delete
		BEFORE DELETE ON invocation_records
		FOR EACH ROW
		BEGIN
			SELECT RAISE(FAIL, 'Deletes not allowed on invocation_records');
		END`

	// Only the outcome may change once a record exists; the request snapshot
	// and the verdict are immutable.
	triggerProtectRecordSnapshot = `
		CREATE TRIGGER IF NOT EXISTS protect_record_snapshot
		BEFORE UPDATE ON invocation_records
		FOR EACH ROW
		WHEN OLD.tool != NEW.tool
			OR OLD.agent != NEW.agent
			OR OLD.args != NEW.args
			OR OLD.verdict != NEW.verdict
			OR OLD.rule_id != NEW.rule_id
			OR OLD.reason != NEW.reason
		BEGIN
			SELECT RAISE(FAIL, 'Request snapshot and verdict are immutable');
		END`

	indexRecordTimestamp = `
		CREATE INDEX IF NOT EXISTS idx_record_timestamp ON invocation_records(timestamp DESC)`

	tableRuleFaults = `
		CREATE TABLE IF NOT EXISTS rule_faults (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			policy_id TEXT NOT NULL,
			rule_id TEXT NOT NULL,
			detail TEXT NOT NULL
		)`

	triggerPreventFaultDelete = `
		CREATE TRIGGER IF NOT EXISTS prevent_fault_delete
		BEFORE DELETE ON rule_faults
		FOR EACH ROW
		BEGIN
			SELECT RAISE(FAIL, 'Deletes not allowed on rule_faults');
		END`
)

func schemaStatements() []string {
	return []string{
		tableRecords,
		triggerPreventRecordDelete,
		triggerProtectRecordSnapshot,
		indexRecordTimestamp,
		tableRuleFaults,
		triggerPreventFaultDelete,
	}
}
