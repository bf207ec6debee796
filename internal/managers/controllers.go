package managers

import (
	"context"
	"sync"

	"github.com/jlaranjo/intersectd/internal/controllers/restserver"
	"github.com/jlaranjo/intersectd/internal/fusion"
	"github.com/jlaranjo/intersectd/internal/signal"
	"github.com/jlaranjo/intersectd/internal/snapshot"
	"github.com/jlaranjo/intersectd/pkg/config"
	"go.uber.org/zap"
)

// Controller is the contract every outward-facing controller satisfies.
type Controller interface {
	StartController() error
}

// ControllerManager owns the daemon's controllers. The REST server is the
// only one today; the slice keeps the door open for more.
type ControllerManager struct {
	logger      *zap.SugaredLogger
	controllers []Controller
}

// NewControllerManager creates the manager and its controllers.
func NewControllerManager(ctx context.Context, wg *sync.WaitGroup, cfg *config.ConfigData, snapshots *snapshot.Server, view *fusion.View, coord *signal.Coordinator, logger *zap.SugaredLogger) (*ControllerManager, error) {
	rest, err := restserver.NewController(ctx, wg, cfg.RESTServer, snapshots, view, coord, logger)
	if err != nil {
		return nil, err
	}
	return &ControllerManager{
		logger:      logger,
		controllers: []Controller{rest},
	}, nil
}

// StartControllers starts every managed controller.
func (cm *ControllerManager) StartControllers() error {
	for _, controller := range cm.controllers {
		if err := controller.StartController(); err != nil {
			return err
		}
	}
	cm.logger.Infof("Started %d controllers successfully", len(cm.controllers))
	return nil
}
