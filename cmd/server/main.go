package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/refill/internal/config"
	"github.com/mamadbah2/refill/internal/repository/mongodb"
	"github.com/mamadbah2/refill/internal/server/handlers"
	"github.com/mamadbah2/refill/internal/server/router"
	deliveriessvc "github.com/mamadbah2/refill/internal/service/deliveries"
	visitssvc "github.com/mamadbah2/refill/internal/service/visits"
	"github.com/mamadbah2/refill/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New())
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	store, err := mongodb.NewStore(context.Background(), cfg.Mongo.URI, cfg.Mongo.DBName)
	if err != nil {
		baseLogger.Fatal("failed to init mongodb store", zap.Error(err))
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close mongodb connection", zap.Error(err))
		}
	}()

	visitSvc := visitssvc.NewService(store, baseLogger.Named("svc.visits"))
	deliverySvc := deliveriessvc.NewService(store, baseLogger.Named("svc.deliveries"))

	visitHandler := handlers.NewVisitHandler(visitSvc, baseLogger.Named("handlers.visits"))
	deliveryHandler := handlers.NewDeliveryHandler(deliverySvc, baseLogger.Named("handlers.deliveries"))
	catalogHandler := handlers.NewCatalogHandler(store, baseLogger.Named("handlers.catalog"))
	engine := router.New(visitHandler, deliveryHandler, catalogHandler, baseLogger.Named("router"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
