package fusion

import (
	"context"
	"sync"
	"time"

	"github.com/jlaranjo/intersectd/internal/store"
	"go.uber.org/zap"
)

// Sweeper evicts stale vehicles and expired hazards on its own schedule,
// independent of read and write traffic. A quiet feed therefore converges to
// an empty store within one sweep interval after the TTL.
type Sweeper struct {
	ctx      context.Context
	wg       *sync.WaitGroup
	vehicles *store.VehicleStore
	hazards  *store.HazardStore
	interval time.Duration
	logger   *zap.SugaredLogger
}

// NewSweeper creates a sweeper over both stores.
func NewSweeper(ctx context.Context, wg *sync.WaitGroup, vehicles *store.VehicleStore, hazards *store.HazardStore, interval time.Duration, logger *zap.SugaredLogger) *Sweeper {
	return &Sweeper{
		ctx:      ctx,
		wg:       wg,
		vehicles: vehicles,
		hazards:  hazards,
		interval: interval,
		logger:   logger.Named("sweeper"),
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start() {
	s.logger.Infow("record sweeper starting", "interval", s.interval)
	s.wg.Add(1)
	go s.run()
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("record sweeper stopped")
			return
		case <-ticker.C:
			if n := s.vehicles.Sweep(); n > 0 {
				s.logger.Debugw("evicted stale vehicles", "count", n)
			}
			if n := s.hazards.Sweep(); n > 0 {
				s.logger.Debugw("purged expired hazards", "count", n)
			}
		}
	}
}
