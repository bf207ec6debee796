// Package managers constructs and starts the daemon's feed adapters, archive
// backends, and controllers from configuration.
package managers

import (
	"context"
	"fmt"
	"sync"

	"github.com/jlaranjo/intersectd/internal/feeds"
	"github.com/jlaranjo/intersectd/internal/feeds/broadcast"
	"github.com/jlaranjo/intersectd/internal/feeds/fleet"
	"github.com/jlaranjo/intersectd/internal/signal"
	"github.com/jlaranjo/intersectd/internal/store"
	"github.com/jlaranjo/intersectd/pkg/config"
	"go.uber.org/zap"
)

// FeedManager owns the configured feed adapters.
type FeedManager struct {
	logger *zap.SugaredLogger
	feeds  map[string]feeds.Feed
}

// NewFeedManager creates a feed manager populated with every enabled feed.
func NewFeedManager(ctx context.Context, wg *sync.WaitGroup, cfg *config.ConfigData, vehicles *store.VehicleStore, hazards *store.HazardStore, coord *signal.Coordinator, logger *zap.SugaredLogger) (*FeedManager, error) {
	fm := &FeedManager{
		logger: logger,
		feeds:  make(map[string]feeds.Feed),
	}

	for _, feedConfig := range cfg.Feeds {
		if !feedConfig.Enabled {
			logger.Infof("Skipping disabled feed [%s]", feedConfig.Name)
			continue
		}
		feed, err := createFeedFromConfig(ctx, wg, feedConfig, vehicles, hazards, coord, logger)
		if err != nil {
			return nil, fmt.Errorf("error creating feed [%s]: %w", feedConfig.Name, err)
		}
		fm.feeds[feedConfig.Name] = feed
	}

	return fm, nil
}

// StartFeeds starts every managed feed.
func (fm *FeedManager) StartFeeds() error {
	for name, feed := range fm.feeds {
		fm.logger.Infof("Starting feed [%v]...", name)
		if err := feed.StartFeed(); err != nil {
			return fmt.Errorf("failed to start feed [%s]: %w", name, err)
		}
	}
	return nil
}

func createFeedFromConfig(ctx context.Context, wg *sync.WaitGroup, fc config.FeedData, vehicles *store.VehicleStore, hazards *store.HazardStore, coord *signal.Coordinator, logger *zap.SugaredLogger) (feeds.Feed, error) {
	switch fc.Type {
	case "fleet":
		return fleet.NewFeed(ctx, wg, fc, vehicles, logger), nil
	case "broadcast":
		return broadcast.NewFeed(ctx, wg, fc, vehicles, hazards, coord, logger), nil
	default:
		return nil, fmt.Errorf("unknown feed type: %s", fc.Type)
	}
}
