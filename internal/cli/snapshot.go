package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skeinlabs/skein/internal/engineapi"
	"github.com/skeinlabs/skein/internal/graph"
)

// SnapshotOptions holds flags for the snapshot command.
type SnapshotOptions struct {
	*RootOptions
	Run string
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "snapshot",
		Short:         "Fetch and print the current graph snapshot",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Run, "run", "", "run id (defaults to the configured run)")

	return cmd
}

func runSnapshot(opts *SnapshotOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	run, err := resolveRun(opts.Run, cfg)
	if err != nil {
		return err
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: os.Stderr, Verbose: opts.Verbose}

	client := engineapi.NewClient(cfg.EngineURL)
	snap, err := client.FetchSnapshot(cmd.Context(), run, cfg.Unit)
	if err != nil {
		return actionError(f, err)
	}

	if opts.Format == "json" {
		return f.Success(snap)
	}
	printSnapshotText(f, snap)
	return nil
}

func printSnapshotText(f *OutputFormatter, snap *graph.Snapshot) {
	fmt.Fprintf(f.Writer, "unit %s, generation %d: %d participants, %d credit lines\n",
		snap.Unit, snap.GeneratedAt, len(snap.Nodes), len(snap.Links))
	for _, n := range snap.Nodes {
		fmt.Fprintf(f.Writer, "  %-20s %-10s balance %s\n", n.ID, n.Status, n.Balance)
	}
	for _, l := range snap.Links {
		fmt.Fprintf(f.Writer, "  %s -> %s  limit %s used %s available %s (%s)\n",
			l.Source, l.Target, l.Limit, l.Used, l.Available, l.Status)
	}
}
