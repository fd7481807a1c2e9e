package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/skeinlabs/skein/internal/engineapi"
	"github.com/skeinlabs/skein/internal/graph"
	"github.com/skeinlabs/skein/internal/session"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Run string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Mirror a run's trust graph and follow its event stream",
		Long: `Subscribe to the engine's event stream and keep a live local mirror
of the trust graph. Reconnects automatically with backoff; every
reconnect resynchronizes from a fresh snapshot before further events
apply. Runs until interrupted.

Example:
  skein watch --run run-7 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Run, "run", "", "run id (defaults to the configured run)")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	run, err := resolveRun(opts.Run, cfg)
	if err != nil {
		return err
	}

	client := engineapi.NewClient(cfg.EngineURL)
	sess, err := session.New(client, run, cfg.Unit,
		session.WithMaxHops(cfg.MaxHops),
		session.WithCacheTTLs(cfg.ParticipantsTTL.Std(), cfg.TrustlinesTTL.Std(), cfg.TargetsTTL.Std()))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start session", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: os.Stderr, Verbose: opts.Verbose}
	sess.Store().Subscribe(func(c graph.Change) {
		reportChange(f, sess, c)
	})

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		serveMetrics(ctx, cfg.MetricsAddr)
	}

	// Periodic one-line status while watching. Non-critical: dropped on
	// teardown without ceremony.
	var tick func()
	tick = func() {
		snap := sess.Store().Snapshot()
		slog.Info("mirror status",
			"run_status", sess.RunStatus(),
			"generation", sess.Store().Generation(),
			"nodes", len(snap.Nodes),
			"links", len(snap.Links),
			"active_txs", len(sess.ActiveTransactions()))
		sess.Timers().Schedule(30*time.Second, tick)
	}
	sess.Timers().Schedule(30*time.Second, tick)

	err = sess.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitCommandError, "session loop failed", err)
	}
	return nil
}

// reportChange prints one line per mirror mutation. Runs on the session
// dispatch goroutine, so state reads here are safe.
func reportChange(f *OutputFormatter, sess *session.Session, c graph.Change) {
	switch c.Kind {
	case graph.ChangeReplace:
		fmt.Fprintf(f.GetErrWriter(), "resynchronized: generation %d\n", sess.Store().Generation())
	case graph.ChangeNodes:
		f.VerboseLog("nodes patched: %v", c.NodeIDs)
	case graph.ChangeLinks:
		f.VerboseLog("links patched: %d", len(c.LinkKeys))
	case graph.ChangeTopology:
		fmt.Fprintf(f.GetErrWriter(), "topology changed: %d nodes, %d links\n", len(c.NodeIDs), len(c.LinkKeys))
	}
}

// serveMetrics exposes Prometheus metrics for the watch session. The
// listener dies with the context; a failed bind only logs, watching is
// the primary job.
func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		slog.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("metrics server failed", "error", err)
		}
	}()
}
