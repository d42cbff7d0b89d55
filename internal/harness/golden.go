package harness

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/karsol/graft/internal/ir"
	"github.com/karsol/graft/internal/repo"
)

// RunWithGolden executes a scenario and compares the final repository dump
// against a golden file in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Provenance versions are source file mtimes and differ on every execution,
// so they are blanked before comparison; checksums stay, and pin the content.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	payload, err := canonicalDump(result.Dump)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, payload)

	return result, nil
}

// canonicalDump renders a dump as canonical JSON with volatile fields
// normalized. The live source lives in a per-run temp directory, so filepath
// props keep their base name only and connection checksums are blanked along
// with every aspect version.
func canonicalDump(dump *repo.Dump) ([]byte, error) {
	normalized := *dump
	normalized.Elements = make([]repo.DumpElement, len(dump.Elements))
	for i, el := range dump.Elements {
		if fp, ok := el.Props["filepath"].(string); ok {
			props := make(map[string]any, len(el.Props))
			for k, v := range el.Props {
				props[k] = v
			}
			props["filepath"] = filepath.Base(fp)
			el.Props = props
		}
		el.Aspects = append([]repo.DumpAspect(nil), el.Aspects...)
		for j := range el.Aspects {
			el.Aspects[j].Version = ""
			if el.Aspects[j].Kind == repo.AspectKindConnection {
				el.Aspects[j].Checksum = ""
			}
		}
		normalized.Elements[i] = el
	}

	// Round-trip through plain values so the canonical marshaller applies
	// its key ordering to the whole document.
	raw, err := json.Marshal(&normalized)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return ir.MarshalCanonical(doc)
}
