package barcode

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// RuleFile is the YAML layout of a rules file.
type RuleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads rules from a YAML file.
func LoadRules(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rules file: %w", err)
	}
	defer f.Close()

	return LoadRulesFromReader(f)
}

// LoadRulesFromReader reads rules from YAML and checks that they compile.
func LoadRulesFromReader(r io.Reader) ([]Rule, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}

	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("rules file defines no rules")
	}
	if _, err := NewParser(file.Rules); err != nil {
		return nil, err
	}
	return file.Rules, nil
}

// ParserFromFile loads a rules file and compiles it. An empty path yields the
// default parser.
func ParserFromFile(path string) (*Parser, error) {
	if path == "" {
		return DefaultParser(), nil
	}
	rules, err := LoadRules(path)
	if err != nil {
		return nil, err
	}
	return NewParser(rules)
}
