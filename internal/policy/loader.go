package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// policyFile is the on-disk bootstrap shape. Files in the policy directory
// are imported into the rule store at startup and on change.
type policyFile struct {
	Name  string     `json:"name"`
	Tool  string     `json:"tool"`
	Rules []ruleFile `json:"rules"`
}

type ruleFile struct {
	ArgumentName string `json:"argument_name"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
	Action       string `json:"action"`
	Reason       string `json:"reason,omitempty"`
}

// LoadDir reads every *.json policy file in dir. Files that fail to parse or
// validate are skipped with a warning so one bad file cannot take down the
// whole bootstrap set.
func LoadDir(dir string) ([]Policy, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read policy directory: %w", err)
	}

	var policies []Policy
	for _, entry := range entries {
		if entry.IsDir() || !isPolicyFile(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		pol, err := loadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("file", entry.Name()).Msg("failed to load policy file")
			continue
		}
		policies = append(policies, pol)
	}

	if len(policies) == 0 {
		log.Warn().Str("dir", dir).Msg("no policy files found in bootstrap directory")
	}

	return policies, nil
}

func loadFile(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read file: %w", err)
	}

	var pf policyFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return Policy{}, fmt.Errorf("parse file: %w", err)
	}

	if pf.Name == "" {
		pf.Name = policyNameFromPath(path)
	}
	if pf.Tool == "" {
		pf.Tool = ToolWildcard
	}

	pol := Policy{Name: pf.Name, Tool: pf.Tool}
	for i, rf := range pf.Rules {
		op, err := ParseOperator(rf.Operator)
		if err != nil {
			return Policy{}, fmt.Errorf("rule %d: %w", i, err)
		}
		action, err := ParseAction(rf.Action)
		if err != nil {
			return Policy{}, fmt.Errorf("rule %d: %w", i, err)
		}

		rule := Rule{
			ArgumentName: rf.ArgumentName,
			Operator:     op,
			Value:        rf.Value,
			Action:       action,
			Reason:       rf.Reason,
		}
		if err := rule.Validate(); err != nil {
			return Policy{}, fmt.Errorf("rule %d: %w", i, err)
		}
		pol.Rules = append(pol.Rules, rule)
	}

	return pol, nil
}

func isPolicyFile(name string) bool {
	return filepath.Ext(name) == ".json"
}

func policyNameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
