package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/refill/internal/offline/cache"
	offsync "github.com/mamadbah2/refill/internal/offline/sync"
	"github.com/mamadbah2/refill/pkg/clients/refill"
)

// Scheduler runs the field client's background jobs in watch mode: periodic
// drain kicks and catalog cache refreshes, so a device that stays on picks
// up connectivity without user action.
type Scheduler struct {
	cron    *cron.Cron
	engine  *offsync.Engine
	client  *refill.Client
	cacheDB *cache.Store
	spec    string
	logger  *zap.Logger
}

// NewScheduler creates a scheduler. The cron spec drives both jobs.
func NewScheduler(spec string, engine *offsync.Engine, client *refill.Client, cacheDB *cache.Store, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:    cron.New(),
		engine:  engine,
		client:  client,
		cacheDB: cacheDB,
		spec:    spec,
		logger:  logger,
	}
}

// Start registers and starts the scheduled jobs.
func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler", zap.String("spec", s.spec))

	if _, err := s.cron.AddFunc(s.spec, s.kickDrain); err != nil {
		s.logger.Error("failed to schedule drain kicks", zap.Error(err))
	}
	if _, err := s.cron.AddFunc(s.spec, s.refreshCatalog); err != nil {
		s.logger.Error("failed to schedule catalog refresh", zap.Error(err))
	}

	s.cron.Start()
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	s.cron.Stop()
}

func (s *Scheduler) kickDrain() {
	s.engine.Kick()
}

// refreshCatalog keeps the offline cache warm while the device is online,
// so the next offline stretch has current items and locations to render.
func (s *Scheduler) refreshCatalog() {
	if !s.engine.Online() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	items, err := s.client.ListItems(ctx)
	if err != nil {
		s.logger.Debug("catalog refresh skipped", zap.Error(err))
		return
	}
	if err := s.cacheDB.Put(ctx, cache.KeyItems, items); err != nil {
		s.logger.Error("failed caching items", zap.Error(err))
	}

	locations, err := s.client.ListLocations(ctx, "")
	if err != nil {
		s.logger.Debug("location refresh skipped", zap.Error(err))
		return
	}
	if err := s.cacheDB.Put(ctx, cache.KeyLocations, locations); err != nil {
		s.logger.Error("failed caching locations", zap.Error(err))
	}

	s.logger.Info("catalog cache refreshed",
		zap.Int("items", len(items)),
		zap.Int("locations", len(locations)))
}
