// Package classify assigns POI features to semantic categories using an
// ordered rule table.
package classify

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Other is the reserved fallback category
const Other = "Other"

//go:embed rules.yaml
var defaultRulesYAML []byte

// Matcher is a single tag test. It is either Exact or Presence.
type Matcher interface {
	Match(lookup func(key string) string) bool
	String() string
	matcher()
}

// Exact matches when the tag has exactly Value
type Exact struct {
	Key   string
	Value string
}

// Match implements Matcher
func (m Exact) Match(lookup func(string) string) bool { return lookup(m.Key) == m.Value }

func (m Exact) String() string { return m.Key + "=" + m.Value }

func (Exact) matcher() {}

// Presence matches when the tag carries any non-empty value
type Presence struct {
	Key string
}

// Match implements Matcher
func (m Presence) Match(lookup func(string) string) bool { return lookup(m.Key) != "" }

func (m Presence) String() string { return m.Key + "=*" }

func (Presence) matcher() {}

// ParseMatcher parses "key=value", "key=*" or a bare "key"
func ParseMatcher(s string) (Matcher, error) {
	s = strings.TrimSpace(s)
	key, value, hasValue := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)

	if key == "" {
		return nil, fmt.Errorf("rule %q has no key", s)
	}
	if !hasValue || value == "*" {
		return Presence{Key: key}, nil
	}
	if value == "" {
		return nil, fmt.Errorf("rule %q has an empty value; use %s=* for presence", s, key)
	}
	return Exact{Key: key, Value: value}, nil
}

// Rule is one category and the matchers that select it
type Rule struct {
	Category string
	Matchers []Matcher
}

// Matches reports whether any matcher accepts the tags
func (r Rule) Matches(lookup func(string) string) bool {
	for _, m := range r.Matchers {
		if m.Match(lookup) {
			return true
		}
	}
	return false
}

// RuleSet is an ordered, read-only list of rules. The order is the
// classification priority.
type RuleSet struct {
	rules []Rule
}

// Rules returns the rules in priority order
func (rs *RuleSet) Rules() []Rule {
	return rs.rules
}

// Categories returns the declared categories in priority order followed by Other
func (rs *RuleSet) Categories() []string {
	names := make([]string, 0, len(rs.rules)+1)
	for _, r := range rs.rules {
		names = append(names, r.Category)
	}
	return append(names, Other)
}

type rulesFile struct {
	Categories []struct {
		Name  string   `yaml:"name"`
		Match []string `yaml:"match"`
	} `yaml:"categories"`
}

// LoadRules parses a YAML rule table
func LoadRules(data []byte) (*RuleSet, error) {
	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("rules declare no categories")
	}

	seen := make(map[string]bool, len(file.Categories))
	rs := &RuleSet{rules: make([]Rule, 0, len(file.Categories))}
	for i, c := range file.Categories {
		name := strings.TrimSpace(c.Name)
		switch {
		case name == "":
			return nil, fmt.Errorf("category %d has no name", i)
		case strings.EqualFold(name, Other):
			return nil, fmt.Errorf("category %q is reserved", Other)
		case seen[name]:
			return nil, fmt.Errorf("category %q declared twice", name)
		case len(c.Match) == 0:
			return nil, fmt.Errorf("category %q has no match rules", name)
		}
		seen[name] = true

		rule := Rule{Category: name, Matchers: make([]Matcher, 0, len(c.Match))}
		for _, m := range c.Match {
			matcher, err := ParseMatcher(m)
			if err != nil {
				return nil, fmt.Errorf("category %q: %w", name, err)
			}
			rule.Matchers = append(rule.Matchers, matcher)
		}
		rs.rules = append(rs.rules, rule)
	}
	return rs, nil
}

// LoadRulesFile reads and parses a YAML rule table from disk
func LoadRulesFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return LoadRules(data)
}

// DefaultRules returns the built-in rule table
func DefaultRules() *RuleSet {
	rs, err := LoadRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded rules are invalid: %v", err))
	}
	return rs
}
