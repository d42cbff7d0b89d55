// Package locator parses and compiles structured element locators.
//
// A locator identifies a pre-existing target record by a set of
// property=value constraints, optionally narrowed to one target class:
//
//	"Name=PhysicalDevice-4,SerialNumber=A113"
//	"class=SpatialComposition:Space,Name=Lobby"
//
// Locators appear as attribute values of relationship endpoints whose
// counterpart already lives in the target. Resolution is uniqueness-checked:
// zero or more than one match is a recoverable failure, never fatal.
package locator

import (
	"fmt"
	"strings"
)

// classKey is the reserved constraint key that narrows the lookup to a class.
const classKey = "class"

// Constraint is one property=value condition.
type Constraint struct {
	Property string
	Value    string
}

// Locator is a parsed lookup expression.
type Locator struct {
	// Class optionally restricts matches to one "Schema:Class". Empty means
	// any class.
	Class       string
	Constraints []Constraint
}

// Parse parses a locator expression. Constraints are comma-separated
// property=value pairs; whitespace around keys and values is trimmed. The
// reserved key "class" becomes the class filter and may appear at most once.
func Parse(expr string) (Locator, error) {
	var loc Locator
	if strings.TrimSpace(expr) == "" {
		return loc, fmt.Errorf("empty locator expression")
	}
	for _, part := range strings.Split(expr, ",") {
		key, value, found := strings.Cut(part, "=")
		if !found {
			return Locator{}, fmt.Errorf("locator constraint %q: missing '='", strings.TrimSpace(part))
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			return Locator{}, fmt.Errorf("locator constraint %q: empty property name", strings.TrimSpace(part))
		}
		if strings.EqualFold(key, classKey) {
			if loc.Class != "" {
				return Locator{}, fmt.Errorf("locator %q: duplicate class filter", expr)
			}
			loc.Class = value
			continue
		}
		loc.Constraints = append(loc.Constraints, Constraint{Property: key, Value: value})
	}
	if len(loc.Constraints) == 0 {
		return Locator{}, fmt.Errorf("locator %q: no property constraints", expr)
	}
	return loc, nil
}

// String renders the locator back into its expression form.
func (l Locator) String() string {
	var parts []string
	if l.Class != "" {
		parts = append(parts, classKey+"="+l.Class)
	}
	for _, c := range l.Constraints {
		parts = append(parts, c.Property+"="+c.Value)
	}
	return strings.Join(parts, ",")
}
