package classify

import (
	"fmt"

	"github.com/twpayne/go-geom/encoding/geojson"
)

// ClassProperty is the feature property that receives the category
const ClassProperty = "class"

// Classifier applies a RuleSet. It holds no mutable state.
type Classifier struct {
	rules *RuleSet
}

// New creates a classifier, using DefaultRules when rules is nil
func New(rules *RuleSet) *Classifier {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// Categories returns every output category, Other last
func (c *Classifier) Categories() []string {
	return c.rules.Categories()
}

// Category returns the first category whose rules accept the properties
func (c *Classifier) Category(props map[string]interface{}) string {
	lookup := func(key string) string {
		switch v := props[key].(type) {
		case nil:
			return ""
		case string:
			return v
		default:
			return fmt.Sprint(v)
		}
	}
	for _, r := range c.rules.rules {
		if r.Matches(lookup) {
			return r.Category
		}
	}
	return Other
}

// Classify labels the feature with its category and returns it
func (c *Classifier) Classify(f *geojson.Feature) string {
	if f.Properties == nil {
		f.Properties = make(map[string]interface{})
	}
	category := c.Category(f.Properties)
	f.Properties[ClassProperty] = category
	return category
}

// Group classifies every feature and partitions them by category, keeping
// input order within each category. Every category is present in both
// returned maps, even when empty.
func (c *Classifier) Group(features []*geojson.Feature) (map[string][]*geojson.Feature, map[string]int) {
	groups := make(map[string][]*geojson.Feature, len(c.rules.rules)+1)
	counts := make(map[string]int, len(c.rules.rules)+1)
	for _, name := range c.Categories() {
		groups[name] = []*geojson.Feature{}
		counts[name] = 0
	}

	for _, f := range features {
		category := c.Classify(f)
		groups[category] = append(groups[category], f)
		counts[category]++
	}
	return groups, counts
}
