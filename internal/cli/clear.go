package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/skeinlabs/skein/internal/engineapi"
)

// ClearOptions holds flags for the clear command.
type ClearOptions struct {
	*RootOptions
	Run string
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClearOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Start a debt-clearing pass",
		Long: `Ask the engine to run a debt-clearing pass for the configured unit.
The pass runs asynchronously; its result arrives as a clearing.done
stream event.

Example:
  skein clear --run run-7`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Run, "run", "", "run id (defaults to the configured run)")

	return cmd
}

func runClear(opts *ClearOptions, cmd *cobra.Command) error {
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
	ack, err := client.RunClearing(cmd.Context(), run, cfg.Unit)
	if err != nil {
		return actionError(f, err)
	}
	return printAck(f, ack)
}
