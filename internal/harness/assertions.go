package harness

import (
	"fmt"
	"reflect"

	"github.com/karsol/graft/internal/repo"
)

// EvaluateAssertions checks every assertion against the result's dump and
// records failures on the result.
func EvaluateAssertions(result *Result, assertions []Assertion) {
	if result.Dump == nil {
		if len(assertions) > 0 {
			result.AddError("no dump available for assertions")
		}
		return
	}
	for i, a := range assertions {
		if err := evaluate(result.Dump, &a); err != nil {
			result.AddError("assertions[%d]: %v", i, err)
		}
	}
}

func evaluate(dump *repo.Dump, a *Assertion) error {
	switch a.Type {
	case AssertElementCount:
		if got := len(dump.Elements); got != a.Count {
			return fmt.Errorf("element count = %d, want %d", got, a.Count)
		}
	case AssertRelationshipCount:
		if got := len(dump.Relationships); got != a.Count {
			return fmt.Errorf("relationship count = %d, want %d", got, a.Count)
		}
	case AssertElement:
		return evaluateElement(dump, a)
	case AssertSchema:
		return evaluateSchema(dump, a)
	}
	return nil
}

func evaluateElement(dump *repo.Dump, a *Assertion) error {
	for _, el := range dump.Elements {
		if el.Code.Value != a.Value {
			continue
		}
		if a.Scope != "" && el.Code.Scope != a.Scope {
			continue
		}
		if a.Class != "" && el.Class != a.Class {
			return fmt.Errorf("element %q: class = %q, want %q", a.Value, el.Class, a.Class)
		}
		return matchProps(a.Value, el.Props, a.Props)
	}
	return fmt.Errorf("no element with code value %q", a.Value)
}

func evaluateSchema(dump *repo.Dump, a *Assertion) error {
	for _, s := range dump.Schemas {
		if s.Name != a.Name {
			continue
		}
		if a.Version != "" && s.Version != a.Version {
			return fmt.Errorf("schema %q: version = %q, want %q", a.Name, s.Version, a.Version)
		}
		return nil
	}
	return fmt.Errorf("no schema named %q", a.Name)
}

// matchProps subset-matches expected property values. YAML integers arrive
// as int while dump values round-trip through JSON, so numbers compare by
// string rendering rather than type.
func matchProps(code string, got, want map[string]any) error {
	for key, wantVal := range want {
		gotVal, ok := got[key]
		if !ok {
			return fmt.Errorf("element %q: missing property %q", code, key)
		}
		if !looselyEqual(gotVal, wantVal) {
			return fmt.Errorf("element %q: property %q = %v, want %v", code, key, gotVal, wantVal)
		}
	}
	return nil
}

func looselyEqual(got, want any) bool {
	if reflect.DeepEqual(got, want) {
		return true
	}
	return fmt.Sprintf("%v", got) == fmt.Sprintf("%v", want)
}
