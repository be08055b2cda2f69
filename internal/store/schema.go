package store

const (
	tablePolicies = `
		CREATE TABLE IF NOT EXISTS tool_policies (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			tool TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`

	// seq preserves creation order within a policy; the resolver's
	// tie-breaking depends on rules coming back in that order.
	tableRules = `
		CREATE TABLE IF NOT EXISTS invocation_rules (
			id TEXT PRIMARY KEY,
			policy_id TEXT NOT NULL REFERENCES tool_policies(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			argument_name TEXT NOT NULL,
			operator TEXT NOT NULL,
			value TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL CHECK(action IN ('allow', 'deny', 'require_confirmation')),
			reason TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`

	indexRulesByPolicy = `
		CREATE INDEX IF NOT EXISTS idx_rules_policy ON invocation_rules(policy_id, seq)`

	indexPoliciesByTool = `
		CREATE INDEX IF NOT EXISTS idx_policies_tool ON tool_policies(tool)`
)

func schemaStatements() []string {
	return []string{
		tablePolicies,
		tableRules,
		indexRulesByPolicy,
		indexPoliciesByTool,
	}
}
