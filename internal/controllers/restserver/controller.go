// Package restserver exposes the polled HTTP surface: the snapshot bundle,
// the individual listings the dashboard polls, and the preemption command
// endpoints.
package restserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jlaranjo/intersectd/internal/fusion"
	"github.com/jlaranjo/intersectd/internal/log"
	"github.com/jlaranjo/intersectd/internal/signal"
	"github.com/jlaranjo/intersectd/internal/snapshot"
	"github.com/jlaranjo/intersectd/pkg/config"
	"go.uber.org/zap"
)

// Controller is the REST server.
type Controller struct {
	ctx        context.Context
	wg         *sync.WaitGroup
	restConfig config.RESTServerData
	Server     http.Server
	logger     *zap.SugaredLogger
	handlers   *Handlers
}

// NewController creates a REST server over the snapshot server, fusion view,
// and preemption coordinator.
func NewController(ctx context.Context, wg *sync.WaitGroup, rc config.RESTServerData, snapshots *snapshot.Server, view *fusion.View, coord *signal.Coordinator, logger *zap.SugaredLogger) (*Controller, error) {
	ctrl := &Controller{
		ctx:        ctx,
		wg:         wg,
		restConfig: rc,
		logger:     logger.Named("rest"),
	}

	if rc.ListenAddr == "" {
		ctrl.logger.Info("rest.listen_addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		rc.ListenAddr = "0.0.0.0"
	}
	if rc.Port == 0 {
		ctrl.logger.Info("rest.port not provided; defaulting to 8080")
		rc.Port = 8080
	}

	ctrl.handlers = NewHandlers(snapshots, view, coord, ctrl.logger)

	origins := rc.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", rc.ListenAddr, rc.Port)
	ctrl.Server.Handler = cors(ctrl.setupRouter())
	ctrl.Server.ReadHeaderTimeout = 5 * time.Second

	return ctrl, nil
}

func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/snapshot", c.handlers.GetSnapshot).Methods(http.MethodGet)
	router.HandleFunc("/signals", c.handlers.GetSignals).Methods(http.MethodGet)
	router.HandleFunc("/vehicles", c.handlers.GetVehicles).Methods(http.MethodGet)
	router.HandleFunc("/hazards", c.handlers.GetHazards).Methods(http.MethodGet)
	router.HandleFunc("/emergency", c.handlers.PostEmergency).Methods(http.MethodPost)
	router.HandleFunc("/vehicles/{id}/heading", c.handlers.PostVehicleHeading).Methods(http.MethodPost)

	return router
}

// StartController starts serving and arranges a graceful shutdown when the
// application context is cancelled.
func (c *Controller) StartController() error {
	log.Info("Starting REST server controller...")
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		c.logger.Infow("REST server listening", "addr", c.Server.Addr)
		if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
			c.logger.Errorf("REST server error: %v", err)
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		<-c.ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Server.Shutdown(shutdownCtx); err != nil {
			c.logger.Errorf("REST server shutdown: %v", err)
		}
	}()

	return nil
}
