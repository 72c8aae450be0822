package detector

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Salta1414/sapo-cli/internal/risk"
)

// RuleSeverity levels for static rules
type RuleSeverity string

const (
	RuleSeverityCritical RuleSeverity = "critical"
	RuleSeverityHigh     RuleSeverity = "high"
	RuleSeverityMedium   RuleSeverity = "medium"
	RuleSeverityLow      RuleSeverity = "low"
)

// Rule defines one static detection rule over script text
type Rule struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Severity    RuleSeverity `yaml:"severity"`
	Category    string       `yaml:"category"` // maps onto a risk.Category
	Patterns    []string     `yaml:"patterns"` // regexes, OR logic
	Substrings  []string     `yaml:"substrings"`

	compiled []*regexp.Regexp
}

// RuleMatch records one triggered rule and the text that triggered it
type RuleMatch struct {
	Rule        *Rule
	MatchedText []string
}

// RuleSet holds compiled rules
type RuleSet struct {
	Rules   []*Rule
	Version string
}

// LoadRulesFromFile loads a custom rule set from a YAML file
func LoadRulesFromFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules parses and compiles YAML rule definitions
func ParseRules(data []byte) (*RuleSet, error) {
	var doc struct {
		Version string  `yaml:"version"`
		Rules   []*Rule `yaml:"rules"`
	}

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	for _, rule := range doc.Rules {
		if rule.Severity == "" {
			rule.Severity = RuleSeverityMedium
		}
		for _, p := range rule.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("rule %s: bad pattern %q: %w", rule.ID, p, err)
			}
			rule.compiled = append(rule.compiled, re)
		}
	}

	return &RuleSet{Rules: doc.Rules, Version: doc.Version}, nil
}

// mustParseRules panics on a bad built-in rule set; built-ins are
// covered by tests and never vary at runtime.
func mustParseRules(data string) *RuleSet {
	rs, err := ParseRules([]byte(data))
	if err != nil {
		panic(err)
	}
	return rs
}

// Match evaluates every rule against the given text
func (rs *RuleSet) Match(text string) []*RuleMatch {
	lower := strings.ToLower(text)

	var matches []*RuleMatch
	for _, rule := range rs.Rules {
		var hit []string

		for _, sub := range rule.Substrings {
			if strings.Contains(lower, strings.ToLower(sub)) {
				hit = append(hit, sub)
			}
		}
		for _, re := range rule.compiled {
			if m := re.FindString(text); m != "" {
				hit = append(hit, m)
			}
		}

		if len(hit) > 0 {
			matches = append(matches, &RuleMatch{Rule: rule, MatchedText: hit})
		}
	}
	return matches
}

// Score maps a rule severity onto a numeric signal severity
func (s RuleSeverity) Score() int {
	switch s {
	case RuleSeverityCritical:
		return 100
	case RuleSeverityHigh:
		return 75
	case RuleSeverityMedium:
		return 50
	case RuleSeverityLow:
		return 25
	default:
		return 0
	}
}

// categoryOf maps a rule category string onto the signal category
func categoryOf(rule *Rule, fallback risk.Category) risk.Category {
	switch rule.Category {
	case "credential-access":
		return risk.CategoryCredentialAccess
	case "network-access":
		return risk.CategoryNetworkAccess
	case "malicious-script":
		return risk.CategoryMaliciousScript
	default:
		return fallback
	}
}
