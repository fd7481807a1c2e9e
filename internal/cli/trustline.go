package cli

import (
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/skeinlabs/skein/internal/engineapi"
)

// TrustlineOptions holds flags shared by the trustline subcommands.
type TrustlineOptions struct {
	*RootOptions
	Run string
}

// NewTrustlineCommand creates the trustline command group.
func NewTrustlineCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TrustlineOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trustline",
		Short: "Manage credit lines",
		Long: `Open, resize, or close a directed credit line. Closing a line the
engine still sees reverse usage on is refused with a conflict; the
refusal's message and details are printed verbatim.`,
	}

	cmd.PersistentFlags().StringVar(&opts.Run, "run", "", "run id (defaults to the configured run)")

	cmd.AddCommand(newTrustlineOpenCommand(opts))
	cmd.AddCommand(newTrustlineUpdateCommand(opts))
	cmd.AddCommand(newTrustlineCloseCommand(opts))

	return cmd
}

func newTrustlineOpenCommand(opts *TrustlineOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "open <source> <target> <limit>",
		Short: "Open a credit line",
		Long: `Open a directed credit line: source extends credit to target up to
the given limit.

Example:
  skein trustline open alice bob 100 --run run-7`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrustlineLimit(opts, cmd, args, func(client *engineapi.Client, run string, req engineapi.TrustlineRequest) (engineapi.ActionAck, error) {
				return client.OpenTrustline(cmd.Context(), run, req)
			})
		},
	}
}

func newTrustlineUpdateCommand(opts *TrustlineOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "update <source> <target> <limit>",
		Short:         "Change a credit line's limit",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrustlineLimit(opts, cmd, args, func(client *engineapi.Client, run string, req engineapi.TrustlineRequest) (engineapi.ActionAck, error) {
				return client.UpdateTrustline(cmd.Context(), run, req)
			})
		},
	}
}

func newTrustlineCloseCommand(opts *TrustlineOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "close <source> <target>",
		Short:         "Close a credit line",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
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
			ack, err := client.CloseTrustline(cmd.Context(), run, engineapi.TrustlineCloseRequest{
				Source: args[0], Target: args[1], Unit: cfg.Unit,
			})
			if err != nil {
				return actionError(f, err)
			}
			return printAck(f, ack)
		},
	}
}

// runTrustlineLimit is the shared body of open and update, which differ
// only in the endpoint they hit.
func runTrustlineLimit(
	opts *TrustlineOptions,
	cmd *cobra.Command,
	args []string,
	send func(*engineapi.Client, string, engineapi.TrustlineRequest) (engineapi.ActionAck, error),
) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	run, err := resolveRun(opts.Run, cfg)
	if err != nil {
		return err
	}

	limit, err := decimal.NewFromString(args[2])
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid limit", err)
	}
	if limit.IsNegative() {
		return NewExitError(ExitCommandError, "limit must not be negative")
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: os.Stderr, Verbose: opts.Verbose}

	client := engineapi.NewClient(cfg.EngineURL)
	ack, err := send(client, run, engineapi.TrustlineRequest{
		Source: args[0], Target: args[1], Unit: cfg.Unit, Limit: limit,
	})
	if err != nil {
		return actionError(f, err)
	}
	return printAck(f, ack)
}
