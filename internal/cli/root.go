// Package cli implements the fieldctl command tree: the representative's
// client for starting visits, recording deliveries and syncing queued
// changes once connectivity returns.
package cli

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mamadbah2/refill/internal/config"
	"github.com/mamadbah2/refill/internal/offline/cache"
	"github.com/mamadbah2/refill/internal/offline/queue"
	offsync "github.com/mamadbah2/refill/internal/offline/sync"
	"github.com/mamadbah2/refill/pkg/clients/refill"
	"github.com/mamadbah2/refill/pkg/logger"
)

// App wires the client-side components every subcommand shares.
type App struct {
	Cfg    *config.Config
	Logger *zap.Logger
	Client *refill.Client
	Queue  *queue.Store
	Cache  *cache.Store
	Engine *offsync.Engine
}

// init opens the durable stores and builds the API client. Called from the
// root PersistentPreRunE so every subcommand gets a ready App.
func (a *App) init(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	a.Cfg = cfg

	a.Logger, err = logger.NewCLI()
	if err != nil {
		return err
	}

	a.Client = refill.NewClient(refill.Config{
		BaseURL: cfg.Client.APIBaseURL,
		RepID:   cfg.Client.RepID,
		Timeout: cfg.Client.Timeout,
	})

	a.Queue, err = queue.Open(filepath.Join(cfg.Client.StateDir, "queue.db"))
	if err != nil {
		return err
	}
	a.Cache, err = cache.Open(filepath.Join(cfg.Client.StateDir, "cache.db"))
	if err != nil {
		return err
	}

	a.Engine = offsync.NewEngine(a.Client, a.Queue, a.Logger.Named("sync.engine"),
		offsync.WithProbeInterval(cfg.Client.ProbeInterval))
	return nil
}

func (a *App) close() {
	if a.Queue != nil {
		_ = a.Queue.Close()
	}
	if a.Cache != nil {
		_ = a.Cache.Close()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}

// offlineOrQueue enqueues the mutation when err looks like a transport
// failure and returns the queue depth. A server response, even an error, is
// never queued: the server has spoken.
func (a *App) offlineOrQueue(ctx context.Context, err error, method, path string, body any) (int, bool) {
	var apiErr *refill.APIError
	if errors.As(err, &apiErr) {
		return 0, false
	}
	if _, qerr := a.Queue.Enqueue(ctx, method, path, body); qerr != nil {
		a.Logger.Error("failed to queue change", zap.Error(qerr))
		return 0, false
	}
	depth, _ := a.Queue.Len(ctx)
	return depth, true
}

// NewRootCommand creates the root command for fieldctl.
func NewRootCommand() *cobra.Command {
	app := &App{}
	var envFile string

	cmd := &cobra.Command{
		Use:   "fieldctl",
		Short: "Field restock client with offline queueing",
		Long: `fieldctl records supply box restocks at field locations. Mutations made
while offline are kept in a durable local queue and replayed in order once
the server is reachable again.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(envFile)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.close()
		},
	}

	cmd.PersistentFlags().StringVar(&envFile, "env", "", "path to an optional .env file")

	cmd.AddCommand(NewVisitCommand(app))
	cmd.AddCommand(NewDeliverCommand(app))
	cmd.AddCommand(NewSyncCommand(app))
	cmd.AddCommand(NewQueueCommand(app))
	cmd.AddCommand(NewWatchCommand(app))
	cmd.AddCommand(NewCatalogCommand(app))

	return cmd
}
