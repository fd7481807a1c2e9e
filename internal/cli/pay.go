package cli

import (
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/skeinlabs/skein/internal/engineapi"
)

// PayOptions holds flags for the pay command.
type PayOptions struct {
	*RootOptions
	Run string
}

// NewPayCommand creates the pay command.
func NewPayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pay <from> <to> <amount>",
		Short: "Send a payment between two participants",
		Long: `Send a payment through the trust graph. The engine routes it; the
command submits the intent and prints the engine-echoed action id.

Example:
  skein pay alice bob 12.50 --run run-7`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPay(opts, args[0], args[1], args[2], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Run, "run", "", "run id (defaults to the configured run)")

	return cmd
}

func runPay(opts *PayOptions, from, to, rawAmount string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	run, err := resolveRun(opts.Run, cfg)
	if err != nil {
		return err
	}

	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid amount", err)
	}
	if !amount.IsPositive() {
		return NewExitError(ExitCommandError, "amount must be positive")
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: os.Stderr, Verbose: opts.Verbose}

	client := engineapi.NewClient(cfg.EngineURL)
	ack, err := client.SendPayment(cmd.Context(), run, engineapi.PaymentRequest{
		From: from, To: to, Unit: cfg.Unit, Amount: amount,
	})
	if err != nil {
		return actionError(f, err)
	}
	return printAck(f, ack)
}
