// Package broadcast listens for V2X-style datagrams and normalizes periodic
// awareness and event announcements into vehicle and hazard records.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jlaranjo/intersectd/internal/signal"
	"github.com/jlaranjo/intersectd/internal/store"
	"github.com/jlaranjo/intersectd/internal/types"
	"github.com/jlaranjo/intersectd/pkg/config"
	"github.com/panjf2000/gnet/v2"
	"go.uber.org/zap"
)

// Cause codes carried by event announcements. The emergency code does not
// produce a hazard; it drives signal preemption.
const CauseEmergencyVehicle = 6

// defaultStationTypes maps the station-type codes seen in the field.
var defaultStationTypes = map[int]types.VehicleKind{
	5:  types.KindOrdinary,
	10: types.KindEmergency,
	15: types.KindRoadsideUnit,
}

// defaultCauseCodes maps event cause codes to hazard categories.
var defaultCauseCodes = map[int]string{
	2:  types.HazardAccident,
	3:  types.HazardRoadwork,
	17: types.HazardWeather,
}

// Feed is a UDP listener for broadcast datagrams, built on gnet. Each
// datagram is one message; processing is independent per message, so a
// malformed one is logged and dropped without touching its neighbors.
type Feed struct {
	gnet.BuiltinEventEngine

	ctx      context.Context
	wg       *sync.WaitGroup
	config   config.FeedData
	vehicles *store.VehicleStore
	hazards  *store.HazardStore
	coord    *signal.Coordinator
	logger   *zap.SugaredLogger

	stationTypes map[int]types.VehicleKind
	causeCodes   map[int]string

	eng     gnet.Engine
	started chan struct{}
}

// NewFeed creates a broadcast feed adapter. Config-supplied code mappings are
// merged over the built-in defaults.
func NewFeed(ctx context.Context, wg *sync.WaitGroup, cfg config.FeedData, vehicles *store.VehicleStore, hazards *store.HazardStore, coord *signal.Coordinator, logger *zap.SugaredLogger) *Feed {
	f := &Feed{
		ctx:          ctx,
		wg:           wg,
		config:       cfg,
		vehicles:     vehicles,
		hazards:      hazards,
		coord:        coord,
		logger:       logger.Named("broadcast").With("feed", cfg.Name),
		stationTypes: make(map[int]types.VehicleKind),
		causeCodes:   make(map[int]string),
		started:      make(chan struct{}),
	}

	for code, kind := range defaultStationTypes {
		f.stationTypes[code] = kind
	}
	for code, name := range cfg.StationTypes {
		f.stationTypes[code] = types.VehicleKind(name)
	}
	for code, category := range defaultCauseCodes {
		f.causeCodes[code] = category
	}
	for code, category := range cfg.CauseCodes {
		f.causeCodes[code] = category
	}

	return f
}

// FeedName returns the configured feed name.
func (f *Feed) FeedName() string {
	return f.config.Name
}

// StartFeed launches the UDP event loop and a watcher that shuts it down
// when the feed context is cancelled.
func (f *Feed) StartFeed() error {
	if f.config.ListenAddr == "" {
		return fmt.Errorf("broadcast feed [%s] needs a listen_addr", f.config.Name)
	}

	f.logger.Infow("starting broadcast feed", "listen", f.config.ListenAddr)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		err := gnet.Run(f, "udp://"+f.config.ListenAddr, gnet.WithMulticore(false), gnet.WithReusePort(true))
		if err != nil && !errors.Is(err, context.Canceled) {
			f.logger.Errorf("broadcast listener exited: %v", err)
		}
	}()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		<-f.ctx.Done()
		select {
		case <-f.started:
			f.eng.Stop(context.Background())
			f.logger.Info("broadcast feed stopped")
		case <-time.After(5 * time.Second):
			// Listener never booted; nothing to stop.
		}
	}()

	return nil
}

// OnBoot captures the engine handle for shutdown.
func (f *Feed) OnBoot(eng gnet.Engine) gnet.Action {
	f.eng = eng
	close(f.started)
	return gnet.None
}

// OnTraffic handles one inbound datagram.
func (f *Feed) OnTraffic(c gnet.Conn) gnet.Action {
	data, err := c.Next(-1)
	if err != nil {
		f.logger.Errorf("reading datagram: %v", err)
		return gnet.None
	}
	f.handleDatagram(data)
	return gnet.None
}

// handleDatagram parses and applies one message. Split out for tests.
func (f *Feed) handleDatagram(data []byte) {
	aw, ev, err := parseDatagram(data, f.stationTypes)
	if err != nil {
		f.logger.Warnw("broadcast message dropped", "error", err)
		return
	}
	if aw != nil {
		f.applyAwareness(aw)
		return
	}
	f.applyEvent(ev)
}

func (f *Feed) applyAwareness(aw *awareness) {
	f.vehicles.Upsert(types.VehicleRecord{
		ID:        aw.stationID,
		Source:    types.SourceBroadcast,
		Latitude:  aw.lat,
		Longitude: aw.lng,
		Heading:   aw.heading,
		Speed:     aw.speed,
		Kind:      aw.kind,
		// Broadcast stations carry no stop-line flag; a stationary report is
		// the closest observable signal.
		Waiting: aw.speed == 0 && aw.kind != types.KindRoadsideUnit,
	})
}

func (f *Feed) applyEvent(ev *event) {
	if ev.causeCode == CauseEmergencyVehicle {
		if ev.stationID == "" {
			f.logger.Warnw("emergency event without an originating station dropped")
			return
		}
		if err := f.coord.ActivateEmergencyFromHeading(ev.stationID, ev.heading); err != nil {
			f.logger.Warnw("emergency event ignored", "station", ev.stationID, "error", err)
		}
		return
	}

	category, ok := f.causeCodes[ev.causeCode]
	if !ok {
		category = types.HazardOther
	}
	f.hazards.Upsert(types.HazardRecord{
		ID:          ev.id,
		Latitude:    ev.lat,
		Longitude:   ev.lng,
		Category:    category,
		Description: ev.description,
	})
}
