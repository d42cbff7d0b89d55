package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/karsol/graft/internal/connector"
	"github.com/karsol/graft/internal/loader"
)

// SnapshotOptions holds flags for the snapshot command.
type SnapshotOptions struct {
	*RootOptions
	JobFile string
	Output  string
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshot <mapping-dir>",
		Short: "Dump the compiled node tree as JSON",
		Long: `Compile a job's mapping and write its node tree and configuration as
indented JSON. Diagnostic output for inspecting what a run would execute;
never a durable format.

Example:
  graft snapshot --job ./job.yaml ./mappings
  graft snapshot --job ./job.yaml -o tree.json ./mappings`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.JobFile, "job", "", "path to job YAML file (required)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write snapshot to file instead of stdout")
	_ = cmd.MarkFlagRequired("job")

	return cmd
}

func runSnapshot(opts *SnapshotOptions, mappingDir string, cmd *cobra.Command) error {
	cfg, err := LoadJob(opts.JobFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load job file", err)
	}

	mapping, err := compileMappingFor(mappingDir, cfg.SubjectKey)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile mappings", err)
	}

	tree, err := mapping.BuildTree()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build node tree", err)
	}

	ldr, err := loader.ForConnection(mapping.Connection, mapping.PrimaryKeys, mapping.RelationshipSheets)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to construct loader", err)
	}

	// The snapshot never touches the repository, so none is opened.
	conn, err := connector.New(nil, ldr, tree, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create connector", err)
	}

	data, err := conn.SnapshotJSON()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to render snapshot", err)
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, append(data, '\n'), 0o644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write snapshot file", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Snapshot written to %s\n", opts.Output)
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
