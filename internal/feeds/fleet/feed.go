// Package fleet polls the internal simulation/robot fleet endpoint and
// normalizes its position reports into vehicle records.
package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jlaranjo/intersectd/internal/store"
	"github.com/jlaranjo/intersectd/internal/types"
	"github.com/jlaranjo/intersectd/pkg/config"
	"github.com/jlaranjo/intersectd/pkg/geo"
	"go.uber.org/zap"
)

// report is one fleet position report as it appears on the wire. Robots
// report numeric ids; older firmware quotes them, so the id field accepts
// both.
type report struct {
	ID       flexID  `json:"id"`
	Location *latLng `json:"location"`
	Heading  *float64 `json:"heading"`
	Speed    *float64 `json:"speed"`
	Type     string   `json:"type,omitempty"`
	Waiting  bool     `json:"waiting,omitempty"`
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// flexID decodes a JSON string or number into a string.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// Feed polls the fleet endpoint on a short interval.
type Feed struct {
	ctx      context.Context
	wg       *sync.WaitGroup
	config   config.FeedData
	vehicles *store.VehicleStore
	client   *http.Client
	logger   *zap.SugaredLogger
}

// NewFeed creates a fleet feed adapter.
func NewFeed(ctx context.Context, wg *sync.WaitGroup, cfg config.FeedData, vehicles *store.VehicleStore, logger *zap.SugaredLogger) *Feed {
	return &Feed{
		ctx:      ctx,
		wg:       wg,
		config:   cfg,
		vehicles: vehicles,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   logger.Named("fleet").With("feed", cfg.Name),
	}
}

// FeedName returns the configured feed name.
func (f *Feed) FeedName() string {
	return f.config.Name
}

// StartFeed launches the poll loop.
func (f *Feed) StartFeed() error {
	if f.config.URL == "" {
		return fmt.Errorf("fleet feed [%s] needs a url", f.config.Name)
	}

	f.logger.Infow("starting fleet feed", "url", f.config.URL, "interval", f.config.PollInterval())
	f.wg.Add(1)
	go f.pollLoop()
	return nil
}

func (f *Feed) pollLoop() {
	defer f.wg.Done()

	f.poll()

	ticker := time.NewTicker(f.config.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			f.logger.Info("fleet feed stopped")
			return
		case <-ticker.C:
			f.poll()
		}
	}
}

func (f *Feed) poll() {
	req, err := http.NewRequestWithContext(f.ctx, http.MethodGet, f.config.URL, nil)
	if err != nil {
		f.logger.Errorf("building fleet request: %v", err)
		return
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Errorf("polling fleet endpoint: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Errorf("fleet endpoint returned %s", resp.Status)
		return
	}

	var reports []report
	if err := json.NewDecoder(resp.Body).Decode(&reports); err != nil {
		f.logger.Errorw("undecodable fleet batch dropped", "error", err)
		return
	}

	accepted := 0
	for _, r := range reports {
		rec, err := normalize(r)
		if err != nil {
			// One bad record never blocks the rest of the batch.
			f.logger.Warnw("fleet report dropped", "id", string(r.ID), "error", err)
			continue
		}
		f.vehicles.Upsert(rec)
		accepted++
	}
	f.logger.Debugw("fleet batch processed", "accepted", accepted, "total", len(reports))
}

// normalize validates a raw report and converts it to a vehicle record.
func normalize(r report) (types.VehicleRecord, error) {
	if r.ID == "" {
		return types.VehicleRecord{}, fmt.Errorf("missing id: %w", types.ErrMalformedInput)
	}
	if r.Location == nil || !geo.ValidCoordinates(r.Location.Lat, r.Location.Lng) {
		return types.VehicleRecord{}, fmt.Errorf("missing or invalid location: %w", types.ErrMalformedInput)
	}
	if r.Heading == nil && r.Speed == nil {
		return types.VehicleRecord{}, fmt.Errorf("need at least one of heading/speed: %w", types.ErrMalformedInput)
	}
	if r.Speed != nil && *r.Speed < 0 {
		return types.VehicleRecord{}, fmt.Errorf("negative speed: %w", types.ErrMalformedInput)
	}

	kind, err := kindFromType(r.Type)
	if err != nil {
		return types.VehicleRecord{}, err
	}

	rec := types.VehicleRecord{
		ID:        string(r.ID),
		Source:    types.SourceFleet,
		Latitude:  r.Location.Lat,
		Longitude: r.Location.Lng,
		Kind:      kind,
		Waiting:   r.Waiting,
	}
	if r.Heading != nil {
		rec.Heading = types.NormalizeHeading(*r.Heading)
	}
	if r.Speed != nil {
		rec.Speed = *r.Speed
	}
	return rec, nil
}

// kindFromType trusts the fleet's explicit type field. An absent type means
// an ordinary vehicle; an unrecognized one is malformed rather than guessed.
func kindFromType(t string) (types.VehicleKind, error) {
	switch strings.ToLower(t) {
	case "", string(types.KindOrdinary):
		return types.KindOrdinary, nil
	case string(types.KindEmergency):
		return types.KindEmergency, nil
	case string(types.KindRoadsideUnit):
		return types.KindRoadsideUnit, nil
	default:
		return "", fmt.Errorf("unknown vehicle type %q: %w", t, types.ErrMalformedInput)
	}
}
