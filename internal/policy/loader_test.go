package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func writePolicyFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write policy file: %v", err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()

	writePolicyFile(t, dir, "filesystem.json", `{
		"name": "filesystem",
		"tool": "fs_read",
		"rules": [
			{"argument_name": "path", "operator": "matches_regex", "value": "^/etc/", "action": "deny", "reason": "restricted path"}
		]
	}`)
	writePolicyFile(t, dir, "notes.txt", "not a policy")

	policies, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}

	if len(policies) != 1 {
		t.Fatalf("expected 1 policy, got %d", len(policies))
	}

	pol := policies[0]
	if pol.Name != "filesystem" || pol.Tool != "fs_read" {
		t.Errorf("unexpected policy: %+v", pol)
	}
	if len(pol.Rules) != 1 || pol.Rules[0].Operator != OpMatchesRegex {
		t.Errorf("unexpected rules: %+v", pol.Rules)
	}
}

func TestLoadDirSkipsBadFiles(t *testing.T) {
	dir := t.TempDir()

	writePolicyFile(t, dir, "broken.json", `{not json`)
	writePolicyFile(t, dir, "bad_rule.json", `{
		"tool": "shell",
		"rules": [{"argument_name": "cmd", "operator": "fuzzy", "value": "x", "action": "deny"}]
	}`)
	writePolicyFile(t, dir, "good.json", `{
		"tool": "*",
		"rules": [{"argument_name": "cmd", "operator": "contains", "value": "sudo", "action": "deny"}]
	}`)

	policies, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}

	if len(policies) != 1 {
		t.Fatalf("expected only the valid file to load, got %d policies", len(policies))
	}
	if policies[0].Name != "good" {
		t.Errorf("policy name should default to file name, got %q", policies[0].Name)
	}
	if policies[0].Tool != ToolWildcard {
		t.Errorf("expected wildcard tool, got %q", policies[0].Tool)
	}
}

func TestLoadDirMissingDirectory(t *testing.T) {
	if _, err := LoadDir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing directory")
	}
}
