package store

const (
	queryInsertPolicy = `
		INSERT INTO tool_policies (id, name, tool)
		VALUES (?, ?, ?)`

	querySelectPolicy = `
		SELECT id, name, tool
		FROM tool_policies
		WHERE id = ?`

	querySelectAllPolicies = `
		SELECT id, name, tool
		FROM tool_policies
		ORDER BY created_at, id`

	querySelectPolicyByName = `
		SELECT id, name, tool
		FROM tool_policies
		WHERE name = ?`

	queryDeletePolicy = `
		DELETE FROM tool_policies
		WHERE id = ?`

	queryInsertRule = `
		INSERT INTO invocation_rules (id, policy_id, seq, argument_name, operator, value, action, reason)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM invocation_rules WHERE policy_id = ?), ?, ?, ?, ?, ?)`

	queryUpdateRule = `
		UPDATE invocation_rules
		SET argument_name = ?, operator = ?, value = ?, action = ?, reason = ?
		WHERE id = ? AND policy_id = ?`

	queryDeleteRule = `
		DELETE FROM invocation_rules
		WHERE id = ? AND policy_id = ?`

	querySelectRules = `
		SELECT id, policy_id, argument_name, operator, value, action, reason
		FROM invocation_rules
		WHERE policy_id = ?
		ORDER BY seq`

	queryCountRules = `
		SELECT COUNT(*)
		FROM invocation_rules
		WHERE policy_id = ?`
)
