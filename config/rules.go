package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// UsernamePlaceholder is substituted with the quoted sender name before a
// match rule is compiled.
const UsernamePlaceholder = "%username%"

// Rules holds the ordered match patterns used to pull the message body out of
// decorated chat lines and the patterns stripped from rendered text.
type Rules struct {
	Include   []string `yaml:"include"`
	Blacklist []string `yaml:"blacklist"`
}

// DefaultRules covers the vanilla chat shapes.
func DefaultRules() *Rules {
	return &Rules{
		Include: []string{
			`<` + UsernamePlaceholder + `> (.+)`,
			`\[[^\]]+\] ` + UsernamePlaceholder + `: (.+)`,
			UsernamePlaceholder + ` » (.+)`,
		},
	}
}

// LoadRules reads a YAML rules file. An empty path yields DefaultRules.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	return ParseRules(raw)
}

// ParseRules decodes rules from YAML bytes.
func ParseRules(raw []byte) (*Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	return &rules, nil
}
