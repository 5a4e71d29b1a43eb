package cli

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	offsync "github.com/mamadbah2/refill/internal/offline/sync"
	"github.com/mamadbah2/refill/internal/scheduler"
)

// NewSyncCommand creates the sync command: one explicit drain cycle.
func NewSyncCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued changes against the server now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if err := app.Client.Health(ctx); err != nil {
				depth, _ := app.Queue.Len(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "offline: %d change(s) queued\n", depth)
				return nil
			}

			result, err := app.Engine.Drain(ctx)
			if err != nil {
				return err
			}
			printResult(cmd, result)
			return nil
		},
	}
}

// NewQueueCommand creates the queue command: inspect pending changes.
func NewQueueCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List queued changes awaiting replay",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := app.Queue.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "queue is empty")
				return nil
			}
			for _, e := range entries {
				line := fmt.Sprintf("%3d  %s  %-5s %s", e.Seq, e.CreatedAt.Format("2006-01-02 15:04"), e.Method, e.Path)
				if e.Attempts > 0 {
					line += fmt.Sprintf("  (attempts: %d, last error: %s)", e.Attempts, e.LastError)
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

// NewWatchCommand creates the watch command: run the sync engine and the
// cache refresh scheduler until interrupted.
func NewWatchCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep syncing in the background until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Engine = offsync.NewEngine(app.Client, app.Queue, app.Logger.Named("sync.engine"),
				offsync.WithProbeInterval(app.Cfg.Client.ProbeInterval),
				offsync.WithOnResult(func(r offsync.Result) {
					printResult(cmd, r)
				}))

			app.Engine.Start()
			defer app.Engine.Stop()

			sched := scheduler.NewScheduler(app.Cfg.Client.SyncCron, app.Engine, app.Client, app.Cache,
				app.Logger.Named("scheduler"))
			sched.Start()
			defer sched.Stop()

			fmt.Fprintln(cmd.OutOrStdout(), "watching; press ctrl-c to stop")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}
}

func printResult(cmd *cobra.Command, r offsync.Result) {
	switch {
	case r.Done > 0 || r.Dropped > 0:
		msg := fmt.Sprintf("synced %d change(s)", r.Done)
		if r.Dropped > 0 {
			msg += fmt.Sprintf(", %d rejected and dropped", r.Dropped)
		}
		if r.Left > 0 {
			msg += fmt.Sprintf(", %d still queued", r.Left)
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
	case r.Left > 0:
		fmt.Fprintf(cmd.OutOrStdout(), "offline: %d change(s) queued\n", r.Left)
	default:
		fmt.Fprintln(cmd.OutOrStdout(), "nothing to sync")
	}
}
