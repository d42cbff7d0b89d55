// Package harness runs conformance scenarios against a real repository.
//
// A scenario compiles a CUE mapping, synchronizes a sequence of source
// fixtures into a fresh temporary repository, validates each run's summary,
// and finally checks assertions against a deterministic dump of the graph.
// The dump doubles as the golden-file payload, so a scenario pins both the
// incremental behavior (fast path, write counts, orphan deletion) and the
// exact final state.
package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/karsol/graft/internal/compiler"
	"github.com/karsol/graft/internal/connector"
	"github.com/karsol/graft/internal/loader"
	"github.com/karsol/graft/internal/repo"
)

// Result is the outcome of one scenario execution.
type Result struct {
	Scenario string
	Steps    []StepResult
	Dump     *repo.Dump
	Errors   []string
}

// StepResult holds the run summary of one step.
type StepResult struct {
	Summary connector.RunSummary
}

// Passed reports whether every expectation and assertion held.
func (r *Result) Passed() bool { return len(r.Errors) == 0 }

// AddError records a failed expectation or assertion.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Run executes a scenario in a fresh temporary repository.
//
// The mapping's source connection is redirected to a live file inside the
// temp directory; steps install their fixtures there before running, so
// untouched steps hit the fast path exactly like a production re-run would.
// Returns an error only for infrastructure failures; a failing run or
// expectation is recorded on the Result.
func Run(scenario *Scenario) (*Result, error) {
	workdir, err := os.MkdirTemp("", "graft-harness-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(workdir)

	mapping, err := mappingFor(scenario)
	if err != nil {
		return nil, err
	}

	// Redirect the connection to the live source file. The extension is
	// taken from the first fixture so loader dispatch stays correct.
	liveSource := filepath.Join(workdir, "source"+filepath.Ext(scenario.Steps[0].Source))
	mapping.Connection = loader.Connection{Kind: "file", Filepath: liveSource}

	r, err := repo.Open(filepath.Join(workdir, "repo.db"))
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	defer r.Close()

	// Suppress connector logs during scenario execution.
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer slog.SetDefault(prev)

	ctx := context.Background()
	result := &Result{Scenario: scenario.Name}

	for i, step := range scenario.Steps {
		if step.Source != "" {
			if err := installFixture(step.Source, liveSource); err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
		}

		tree, err := mapping.BuildTree()
		if err != nil {
			return nil, fmt.Errorf("step %d: build tree: %w", i, err)
		}
		ldr, err := loader.ForConnection(mapping.Connection, mapping.PrimaryKeys, mapping.RelationshipSheets)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		conn, err := connector.New(r, ldr, tree, scenario.Job)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}

		summary, err := conn.Run(ctx)
		if err != nil {
			result.AddError("step %d: run failed: %v", i, err)
			break
		}
		result.Steps = append(result.Steps, StepResult{Summary: *summary})
		checkExpect(result, i, step.Expect, summary)
	}

	dump, err := r.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot repository: %w", err)
	}
	result.Dump = dump

	EvaluateAssertions(result, scenario.Assertions)
	return result, nil
}

func mappingFor(scenario *Scenario) (*compiler.Mapping, error) {
	mappings, err := compiler.LoadDir(scenario.Mapping)
	if err != nil {
		return nil, err
	}
	for _, m := range mappings {
		if m.Subject == scenario.Job.SubjectKey {
			return m, nil
		}
	}
	return nil, fmt.Errorf("no mapping declares subject %q", scenario.Job.SubjectKey)
}

// installFixture copies a fixture over the live source file. The write bumps
// the file mtime, which is what makes the next run see a new source version.
func installFixture(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read fixture %q: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("install fixture: %w", err)
	}
	return nil
}

func checkExpect(result *Result, step int, expect *Expect, s *connector.RunSummary) {
	if expect == nil {
		return
	}
	if expect.FastPath != nil && s.FastPath != *expect.FastPath {
		result.AddError("step %d: fast_path = %v, want %v", step, s.FastPath, *expect.FastPath)
	}
	if expect.Writes != nil && s.Writes() != *expect.Writes {
		result.AddError("step %d: writes = %d, want %d", step, s.Writes(), *expect.Writes)
	}
	if expect.ElementsNew != nil && s.ElementsNew != *expect.ElementsNew {
		result.AddError("step %d: elements_new = %d, want %d", step, s.ElementsNew, *expect.ElementsNew)
	}
	if expect.ElementsChanged != nil && s.ElementsChanged != *expect.ElementsChanged {
		result.AddError("step %d: elements_changed = %d, want %d", step, s.ElementsChanged, *expect.ElementsChanged)
	}
	if expect.OrphansDeleted != nil && s.OrphansDeleted != *expect.OrphansDeleted {
		result.AddError("step %d: orphans_deleted = %d, want %d", step, s.OrphansDeleted, *expect.OrphansDeleted)
	}
	if expect.OrphansRetained != nil && s.OrphansRetained != *expect.OrphansRetained {
		result.AddError("step %d: orphans_retained = %d, want %d", step, s.OrphansRetained, *expect.OrphansRetained)
	}
	if expect.ResolutionSkips != nil && s.ResolutionSkips != *expect.ResolutionSkips {
		result.AddError("step %d: resolution_skips = %d, want %d", step, s.ResolutionSkips, *expect.ResolutionSkips)
	}
}
