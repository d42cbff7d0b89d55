package schema

import (
	"fmt"
	"sort"
)

// Diff structurally compares a candidate schema against the persisted one and
// returns human-readable diagnostics, one per difference. An empty result
// means the schemas are structurally identical and no import is needed.
//
// Differences reported: class additions and removals, base-class changes,
// property additions, removals and type changes, and relationship-constraint
// changes. Version and reference lists are intentionally not compared; the
// version is an output of the diff, not an input.
func Diff(candidate, persisted Definition) []string {
	var diags []string

	persistedByName := make(map[string]ClassDef, len(persisted.Classes))
	for _, c := range persisted.Classes {
		persistedByName[c.Name] = c
	}
	candidateByName := make(map[string]ClassDef, len(candidate.Classes))
	for _, c := range candidate.Classes {
		candidateByName[c.Name] = c
	}

	for _, c := range candidate.Classes {
		prev, ok := persistedByName[c.Name]
		if !ok {
			diags = append(diags, fmt.Sprintf("class %q added", c.Name))
			continue
		}
		diags = append(diags, diffClass(c, prev)...)
	}

	var removed []string
	for name := range persistedByName {
		if _, ok := candidateByName[name]; !ok {
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)
	for _, name := range removed {
		diags = append(diags, fmt.Sprintf("class %q removed", name))
	}

	return diags
}

func diffClass(c, prev ClassDef) []string {
	var diags []string

	if c.BaseClass != prev.BaseClass {
		diags = append(diags, fmt.Sprintf("class %q: base class changed %q -> %q", c.Name, prev.BaseClass, c.BaseClass))
	}

	prevProps := make(map[string]string, len(prev.Properties))
	for _, p := range prev.Properties {
		prevProps[p.Name] = p.Type
	}
	for _, p := range c.Properties {
		prevType, ok := prevProps[p.Name]
		switch {
		case !ok:
			diags = append(diags, fmt.Sprintf("class %q: property %q added", c.Name, p.Name))
		case prevType != p.Type:
			diags = append(diags, fmt.Sprintf("class %q: property %q type changed %q -> %q", c.Name, p.Name, prevType, p.Type))
		}
		delete(prevProps, p.Name)
	}
	var removed []string
	for name := range prevProps {
		removed = append(removed, name)
	}
	sort.Strings(removed)
	for _, name := range removed {
		diags = append(diags, fmt.Sprintf("class %q: property %q removed", c.Name, name))
	}

	if c.SourceClass != prev.SourceClass || c.TargetClass != prev.TargetClass {
		diags = append(diags, fmt.Sprintf("class %q: relationship constraints changed (%q->%q) -> (%q->%q)",
			c.Name, prev.SourceClass, prev.TargetClass, c.SourceClass, c.TargetClass))
	}
	if c.SourceMultiplicity != prev.SourceMultiplicity || c.TargetMultiplicity != prev.TargetMultiplicity {
		diags = append(diags, fmt.Sprintf("class %q: relationship multiplicities changed", c.Name))
	}

	return diags
}
