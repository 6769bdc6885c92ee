// Package barcode parses decoded barcode text into ERP document references
// and detects barcodes in plain text and images.
package barcode

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/filesmile/backend/internal/models"
)

// Group names every rule pattern must define.
const (
	GroupPrefix = "prefix"
	GroupNumber = "number"
)

// DefaultPattern accepts 2-4 letters, an optional separator, then digits with
// optional embedded separators.
const DefaultPattern = `(?P<prefix>[A-Z]{2,4})[-_/.]?(?P<number>[0-9]+(?:[-_/.][0-9]+)*)`

// separators are stripped from the document number.
const separators = "-_/. "

// Rule is a named barcode pattern.
type Rule struct {
	Name    string `yaml:"name" json:"name"`
	Pattern string `yaml:"pattern" json:"pattern"`
}

// DefaultRules returns the built-in rule set.
func DefaultRules() []Rule {
	return []Rule{{Name: "default", Pattern: DefaultPattern}}
}

type compiledRule struct {
	name      string
	re        *regexp.Regexp
	prefixIdx int
	numberIdx int
}

// Parser applies an ordered rule list to raw barcode text. It holds no
// mutable state and is safe for concurrent use.
type Parser struct {
	rules []compiledRule
}

// NewParser compiles rules in order. Each pattern is anchored to the whole
// input and must define the prefix and number groups.
func NewParser(rules []Rule) (*Parser, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("barcode: no rules")
	}
	p := &Parser{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("rule%d", i+1)
		}
		re, err := regexp.Compile(`^(?:` + r.Pattern + `)$`)
		if err != nil {
			return nil, fmt.Errorf("barcode: rule %q: %w", name, err)
		}
		cr := compiledRule{
			name:      name,
			re:        re,
			prefixIdx: re.SubexpIndex(GroupPrefix),
			numberIdx: re.SubexpIndex(GroupNumber),
		}
		if cr.prefixIdx < 0 || cr.numberIdx < 0 {
			return nil, fmt.Errorf("barcode: rule %q must define groups %q and %q", name, GroupPrefix, GroupNumber)
		}
		p.rules = append(p.rules, cr)
	}
	return p, nil
}

// DefaultParser returns a parser over DefaultRules.
func DefaultParser() *Parser {
	p, err := NewParser(DefaultRules())
	if err != nil {
		panic(err)
	}
	return p
}

// Parse normalizes raw and returns the result of the first rule that fully
// matches it, or nil when none does.
func (p *Parser) Parse(raw string) *models.BarcodeResult {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if value == "" {
		return nil
	}
	for _, r := range p.rules {
		m := r.re.FindStringSubmatch(value)
		if m == nil {
			continue
		}
		number := stripSeparators(m[r.numberIdx])
		if m[r.prefixIdx] == "" || number == "" {
			continue
		}
		return &models.BarcodeResult{
			Value:     value,
			Prefix:    m[r.prefixIdx],
			DocNumber: number,
		}
	}
	return nil
}

// RuleNames lists the compiled rules in evaluation order.
func (p *Parser) RuleNames() []string {
	names := make([]string, len(p.rules))
	for i, r := range p.rules {
		names[i] = r.name
	}
	return names
}

func stripSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(separators, r) {
			return -1
		}
		return r
	}, s)
}
