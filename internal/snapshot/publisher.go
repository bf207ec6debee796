package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/jlaranjo/intersectd/internal/types"
	"go.uber.org/zap"
)

// Publisher rebuilds the snapshot on a fixed cadence and fans each build out
// to the archive distributor. Pollers read the cached build; the cadence
// bounds how stale a served snapshot can be.
type Publisher struct {
	ctx         context.Context
	wg          *sync.WaitGroup
	server      *Server
	distributor chan<- *types.Snapshot
	interval    time.Duration
	logger      *zap.SugaredLogger
}

// NewPublisher creates a publisher. The distributor may be nil when no
// archive backend is configured; snapshots are then only cached for pollers.
func NewPublisher(ctx context.Context, wg *sync.WaitGroup, server *Server, distributor chan<- *types.Snapshot, interval time.Duration, logger *zap.SugaredLogger) *Publisher {
	return &Publisher{
		ctx:         ctx,
		wg:          wg,
		server:      server,
		distributor: distributor,
		interval:    interval,
		logger:      logger.Named("publisher"),
	}
}

// Start launches the publish loop.
func (p *Publisher) Start() {
	p.logger.Infow("snapshot publisher starting", "interval", p.interval)
	p.wg.Add(1)
	go p.run()
}

func (p *Publisher) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Info("snapshot publisher stopped")
			return
		case <-ticker.C:
			snap := p.server.Build()
			if p.distributor != nil {
				select {
				case p.distributor <- snap:
				default:
					// An archiver falling behind must not stall publishing;
					// it archives the next build instead.
				}
			}
		}
	}
}
