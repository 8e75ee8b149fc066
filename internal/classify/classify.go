// Package classify assigns display categories to catalog objects from their
// names using an ordered list of keyword rules.
package classify

import "strings"

// Category is a display grouping for tracked objects.
type Category int

const (
	Unclassified Category = iota
	Starlink
	Communications
	Military
	Research
)

// Categories lists every category in display order.
var Categories = []Category{Starlink, Communications, Military, Research, Unclassified}

func (c Category) String() string {
	switch c {
	case Starlink:
		return "starlink"
	case Communications:
		return "communications"
	case Military:
		return "military"
	case Research:
		return "research"
	default:
		return "unclassified"
	}
}

// Color returns the marker color for c as a hex RGB string.
func (c Category) Color() string {
	switch c {
	case Starlink:
		return "#ffff00"
	case Communications:
		return "#0000ff"
	case Military:
		return "#008e00"
	case Research:
		return "#ffa500"
	default:
		return "#ff0000"
	}
}

// MarshalText encodes c by name.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ParseCategory looks a category up by its String form, ignoring case.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if strings.EqualFold(s, c.String()) {
			return c, true
		}
	}
	return Unclassified, false
}

// Rule maps a set of name keywords to a category. A rule matches when the
// name contains any of its keywords.
type Rule struct {
	Category Category
	Keywords []string
}

func (r Rule) matches(name string) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// Policy is an ordered rule list. The first matching rule wins; names that
// match nothing fall back to Unclassified.
type Policy struct {
	rules []Rule
}

// NewPolicy returns a policy evaluating rules in the given order.
func NewPolicy(rules ...Rule) *Policy {
	return &Policy{rules: append([]Rule(nil), rules...)}
}

// DefaultPolicy returns the viewer's standard grouping. Starlink is checked
// first so constellation satellites never land in a broader group.
func DefaultPolicy() *Policy {
	return NewPolicy(
		Rule{Category: Starlink, Keywords: []string{"STARLINK"}},
		Rule{Category: Communications, Keywords: []string{"UFO", "INMARSAT", "THURAYA", "DIRECTV", "INTELSAT"}},
		Rule{Category: Military, Keywords: []string{"MILITARY", "USA", "OPS", "DSP", "MILSTAR"}},
		Rule{Category: Research, Keywords: []string{"RESEARCH", "TEMPSAT", "UOSAT", "CALIPSO", "SORCE", "AURA"}},
	)
}

// Rules returns a copy of the policy's rules in evaluation order.
func (p *Policy) Rules() []Rule {
	return append([]Rule(nil), p.rules...)
}

// Classify returns the category of the first rule matching name.
func (p *Policy) Classify(name string) Category {
	for _, r := range p.rules {
		if r.matches(name) {
			return r.Category
		}
	}
	return Unclassified
}
