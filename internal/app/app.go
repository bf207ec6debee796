// Package app wires the engine together and runs it until shutdown.
package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jlaranjo/intersectd/internal/fusion"
	"github.com/jlaranjo/intersectd/internal/log"
	"github.com/jlaranjo/intersectd/internal/managers"
	sig "github.com/jlaranjo/intersectd/internal/signal"
	"github.com/jlaranjo/intersectd/internal/snapshot"
	"github.com/jlaranjo/intersectd/internal/store"
	"github.com/jlaranjo/intersectd/pkg/config"
	"go.uber.org/zap"
)

// App represents the main application.
type App struct {
	cfg    *config.ConfigData
	logger *zap.SugaredLogger
}

// New creates a new application instance.
func New(cfg *config.ConfigData, logger *zap.SugaredLogger) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// Run starts the application and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Record stores and the fused view over them.
	vehicles := store.NewVehicleStore(a.cfg.Fusion.VehicleStaleness(), nil)
	hazards := store.NewHazardStore(a.cfg.Fusion.HazardTTL(), nil)
	view := fusion.NewView(vehicles, hazards,
		a.cfg.Intersection.Latitude, a.cfg.Intersection.Longitude, a.cfg.Intersection.RadiusMeters)

	sweeper := fusion.NewSweeper(ctx, &wg, vehicles, hazards, a.cfg.Fusion.SweepInterval(), a.logger)
	sweeper.Start()

	// Signal controller, preemption coordinator, and the tick that drives
	// phase transitions.
	timing := sig.Timing{
		MinGreen: a.cfg.Signal.MinGreen(),
		Yellow:   a.cfg.Signal.Yellow(),
	}
	controller := sig.NewController(timing, time.Now())
	coordinator := sig.NewCoordinator(controller, vehicles, a.cfg.Signal.EmergencyHold(), nil, a.logger)
	ticker := sig.NewTicker(ctx, &wg, coordinator, a.cfg.Signal.TickInterval(), a.logger)
	ticker.Start()

	// Inbound feeds.
	feedManager, err := managers.NewFeedManager(ctx, &wg, a.cfg, vehicles, hazards, coordinator, a.logger)
	if err != nil {
		return err
	}
	if err := feedManager.StartFeeds(); err != nil {
		return err
	}

	// Snapshot assembly, optional archive fan-out, and the HTTP surface.
	archiveManager, err := managers.NewArchiveManager(ctx, &wg, a.cfg, a.logger)
	if err != nil {
		return err
	}

	snapshots := snapshot.NewServer(view, coordinator, nil)
	publisher := snapshot.NewPublisher(ctx, &wg, snapshots, archiveManager.Distributor,
		a.cfg.RESTServer.SnapshotInterval(), a.logger)
	publisher.Start()

	controllerManager, err := managers.NewControllerManager(ctx, &wg, a.cfg, snapshots, view, coordinator, a.logger)
	if err != nil {
		return err
	}
	if err := controllerManager.StartControllers(); err != nil {
		return err
	}

	log.Infof("Intersection engine started for [%s]", a.cfg.Intersection.Name)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	cancel()

	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}
