package managers

import (
	"context"
	"fmt"
	"sync"

	"github.com/jlaranjo/intersectd/internal/archive"
	"github.com/jlaranjo/intersectd/internal/types"
	"github.com/jlaranjo/intersectd/pkg/config"
	"go.uber.org/zap"
)

// ArchiveManager owns the configured archive backends and the distributor
// that fans published snapshots out to them.
type ArchiveManager struct {
	Distributor chan *types.Snapshot

	intakes []chan<- *types.Snapshot
	logger  *zap.SugaredLogger
}

// NewArchiveManager creates the manager and starts the distributor plus one
// worker per configured backend. With no backends configured the distributor
// is nil and snapshots are simply not archived.
func NewArchiveManager(ctx context.Context, wg *sync.WaitGroup, cfg *config.ConfigData, logger *zap.SugaredLogger) (*ArchiveManager, error) {
	am := &ArchiveManager{logger: logger}

	if cfg.Archive.TimescaleDB != nil && cfg.Archive.TimescaleDB.ConnectionString != "" {
		backend, err := archive.NewTimescaleDBArchiver(cfg.Archive.TimescaleDB.ConnectionString)
		if err != nil {
			return nil, fmt.Errorf("could not add TimescaleDB archive backend: %w", err)
		}
		am.intakes = append(am.intakes, backend.StartArchiver(ctx, wg))
		logger.Info("TimescaleDB archive backend enabled")
	}

	if cfg.Archive.SQLite != nil && cfg.Archive.SQLite.Path != "" {
		backend, err := archive.NewSQLiteArchiver(cfg.Archive.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("could not add SQLite archive backend: %w", err)
		}
		am.intakes = append(am.intakes, backend.StartArchiver(ctx, wg))
		logger.Info("SQLite archive backend enabled")
	}

	if len(am.intakes) == 0 {
		return am, nil
	}

	am.Distributor = make(chan *types.Snapshot, 20)
	wg.Add(1)
	go am.distribute(ctx, wg)

	return am, nil
}

// distribute fans received snapshots out to every backend. A full backend
// intake is skipped rather than waited on; history gaps beat backpressure
// into the publisher.
func (am *ArchiveManager) distribute(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-am.Distributor:
			for _, intake := range am.intakes {
				select {
				case intake <- snap:
				default:
				}
			}
		}
	}
}
