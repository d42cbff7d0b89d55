package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/karsol/graft/internal/connector"
)

// Scenario defines one conformance scenario: a mapping, a job configuration,
// and a sequence of runs over evolving source fixtures. Each step may replace
// the live source file before running, so a scenario exercises the
// incremental protocol end to end: first contact, unchanged re-run, changed
// rows, deleted rows.
type Scenario struct {
	// Name uniquely identifies this scenario. Also the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Mapping is the directory of CUE mapping files, relative to the
	// scenario file.
	Mapping string `yaml:"mapping"`

	// Job is the job configuration, inline.
	Job connector.Config `yaml:"job"`

	// Steps are the runs, in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final repository state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one synchronization run.
type Step struct {
	// Source is a fixture file to install as the live source before this
	// run, relative to the scenario file. Empty leaves the source file
	// untouched, which is how a scenario exercises the fast path.
	Source string `yaml:"source,omitempty"`

	// Expect validates the run summary. Nil skips validation.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is a subset match on a run summary; only non-nil fields are checked.
type Expect struct {
	FastPath        *bool `yaml:"fast_path,omitempty"`
	Writes          *int  `yaml:"writes,omitempty"`
	ElementsNew     *int  `yaml:"elements_new,omitempty"`
	ElementsChanged *int  `yaml:"elements_changed,omitempty"`
	OrphansDeleted  *int  `yaml:"orphans_deleted,omitempty"`
	OrphansRetained *int  `yaml:"orphans_retained,omitempty"`
	ResolutionSkips *int  `yaml:"resolution_skips,omitempty"`
}

// Assertion validates the final repository dump.
type Assertion struct {
	// Type selects the assertion:
	// - "element_count": the dump holds exactly Count elements
	// - "relationship_count": the dump holds exactly Count relationships
	// - "element": an element with the given code exists; Class and Props
	//   are subset-matched when present
	// - "schema": a schema with the given Name exists; Version is matched
	//   when present
	Type string `yaml:"type"`

	Count int `yaml:"count,omitempty"`

	// Code fields (element assertions). Scope "root" addresses the subject
	// element itself.
	Scope string `yaml:"scope,omitempty"`
	Value string `yaml:"value,omitempty"`

	Class string         `yaml:"class,omitempty"`
	Props map[string]any `yaml:"props,omitempty"`

	Name    string `yaml:"name,omitempty"`
	Version string `yaml:"version,omitempty"`
}

// Assertion type constants.
const (
	AssertElementCount      = "element_count"
	AssertRelationshipCount = "relationship_count"
	AssertElement           = "element"
	AssertSchema            = "schema"
)

// LoadScenario reads and parses a scenario YAML file. Mapping and fixture
// paths are resolved relative to the scenario file. Unknown fields are
// rejected so a typo fails loud.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario file %q: %w", path, err)
	}

	base := filepath.Dir(path)
	if scenario.Mapping != "" && !filepath.IsAbs(scenario.Mapping) {
		scenario.Mapping = filepath.Join(base, scenario.Mapping)
	}
	for i := range scenario.Steps {
		if src := scenario.Steps[i].Source; src != "" && !filepath.IsAbs(src) {
			scenario.Steps[i].Source = filepath.Join(base, src)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %q: %w", path, err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Mapping == "" {
		return fmt.Errorf("mapping directory is required")
	}
	if _, err := os.Stat(s.Mapping); err != nil {
		return fmt.Errorf("mapping directory: %w", err)
	}
	if s.Job.SubjectKey == "" {
		return fmt.Errorf("job.subject is required")
	}
	if s.Job.DynamicSchemaName == "" {
		return fmt.Errorf("job.dynamic_schema is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.Steps[0].Source == "" {
		return fmt.Errorf("steps[0]: source is required (the first run needs a source file)")
	}
	for i, step := range s.Steps {
		if step.Source == "" {
			continue
		}
		if _, err := os.Stat(step.Source); err != nil {
			return fmt.Errorf("steps[%d]: source fixture: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertElementCount, AssertRelationshipCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertElement:
		if a.Value == "" {
			return fmt.Errorf("assertions[%d]: value is required for element", index)
		}
	case AssertSchema:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for schema", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
