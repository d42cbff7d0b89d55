package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/karsol/graft/internal/compiler"
	"github.com/karsol/graft/internal/connector"
	"github.com/karsol/graft/internal/loader"
	"github.com/karsol/graft/internal/repo"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	JobFile  string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <mapping-dir>",
		Short: "Run a synchronization job",
		Long: `Run one synchronization job against a graph repository.

The mapping directory holds CUE mapping files; the job file selects the
subject to synchronize and its toggles. The repository database is created
if it does not exist, and an unchanged source is detected and skipped.

Example:
  graft run --db ./plant.db --job ./job.yaml ./mappings
  graft run --db /tmp/test.db --job ./job.yaml ./mappings --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to repository database (required)")
	cmd.Flags().StringVar(&opts.JobFile, "job", "", "path to job YAML file (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("job")

	return cmd
}

func runJob(opts *RunOptions, mappingDir string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))

	cfg, err := LoadJob(opts.JobFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load job file", err)
	}

	slog.Info("compiling mappings", "dir", mappingDir)
	mapping, err := compileMappingFor(mappingDir, cfg.SubjectKey)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile mappings", err)
	}

	tree, err := mapping.BuildTree()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build node tree", err)
	}
	slog.Info("mapping compiled", "subject", mapping.Subject, "nodes", tree.Len())

	ldr, err := loader.ForConnection(mapping.Connection, mapping.PrimaryKeys, mapping.RelationshipSheets)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to construct loader", err)
	}

	slog.Info("opening repository", "path", opts.Database)
	r, err := repo.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open repository", err)
	}
	defer func() {
		if closeErr := r.Close(); closeErr != nil {
			slog.Error("error closing repository", "error", closeErr)
		}
	}()

	conn, err := connector.New(r, ldr, tree, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create connector", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, aborting", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	summary, err := conn.Run(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "run failed", err)
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	return outputSummary(formatter, summary)
}

// compileMappingFor loads the mapping directory and returns the mapping whose
// subject matches. A job naming a subject no mapping declares is a
// configuration error, not a silent no-op.
func compileMappingFor(dir, subjectKey string) (*compiler.Mapping, error) {
	result, loadErrors := LoadMappings(dir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}
	for _, m := range result.Mappings {
		if m.Subject == subjectKey {
			return m, nil
		}
	}
	return nil, fmt.Errorf("no mapping declares subject %q", subjectKey)
}

func outputSummary(f *OutputFormatter, s *connector.RunSummary) error {
	if f.Format == "json" {
		return f.Success(s)
	}
	if s.FastPath {
		fmt.Fprintf(f.Writer, "Source unchanged, nothing to do (run %s)\n", s.RunID)
		return nil
	}
	fmt.Fprintf(f.Writer, "Run %s complete\n", s.RunID)
	fmt.Fprintf(f.Writer, "  elements:      %d new, %d changed, %d unchanged\n",
		s.ElementsNew, s.ElementsChanged, s.ElementsUnchanged)
	fmt.Fprintf(f.Writer, "  relationships: %d inserted, %d existing\n",
		s.RelationshipsInserted, s.RelationshipsSkipped)
	fmt.Fprintf(f.Writer, "  references:    %d set, %d skipped\n",
		s.ReferencesSet, s.ResolutionSkips)
	fmt.Fprintf(f.Writer, "  orphans:       %d deleted, %d retained\n",
		s.OrphansDeleted, s.OrphansRetained)
	return nil
}
