package signal

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Ticker drives the coordinator's time-based transitions on a fixed interval.
// It is the only scheduled writer of signal state; keeping it separate from
// I/O lets tests call Coordinator.Tick with a virtual clock instead.
type Ticker struct {
	ctx      context.Context
	wg       *sync.WaitGroup
	coord    *Coordinator
	interval time.Duration
	logger   *zap.SugaredLogger
}

// NewTicker creates a ticker for the coordinator.
func NewTicker(ctx context.Context, wg *sync.WaitGroup, coord *Coordinator, interval time.Duration, logger *zap.SugaredLogger) *Ticker {
	return &Ticker{
		ctx:      ctx,
		wg:       wg,
		coord:    coord,
		interval: interval,
		logger:   logger.Named("ticker"),
	}
}

// Start launches the tick loop.
func (t *Ticker) Start() {
	t.logger.Infow("signal ticker starting", "interval", t.interval)
	t.wg.Add(1)
	go t.run()
}

func (t *Ticker) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			t.logger.Info("signal ticker stopped")
			return
		case <-ticker.C:
			t.coord.Tick()
		}
	}
}
