package broadcast

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jlaranjo/intersectd/internal/signal"
	"github.com/jlaranjo/intersectd/internal/store"
	"github.com/jlaranjo/intersectd/internal/types"
	"github.com/jlaranjo/intersectd/pkg/config"
	"go.uber.org/zap"
)

func newTestFeed(t *testing.T, cfg config.FeedData) (*Feed, *store.VehicleStore, *store.HazardStore, *signal.Coordinator) {
	t.Helper()
	vehicles := store.NewVehicleStore(5*time.Second, nil)
	hazards := store.NewHazardStore(10*time.Second, nil)
	ctrl := signal.NewController(signal.DefaultTiming, time.Now())
	coord := signal.NewCoordinator(ctrl, vehicles, 0, nil, zap.NewNop().Sugar())

	var wg sync.WaitGroup
	feed := NewFeed(context.Background(), &wg, cfg, vehicles, hazards, coord, zap.NewNop().Sugar())
	return feed, vehicles, hazards, coord
}

func TestAwarenessDatagram(t *testing.T) {
	feed, vehicles, _, _ := newTestFeed(t, config.FeedData{Name: "v2x"})

	feed.handleDatagram([]byte(`{"stationID":42,"latitude":40.633,"longitude":-8.659,"heading":90.0,"speed":8.3,"stationType":5}`))

	rec, ok := vehicles.Get(types.SourceBroadcast, "42")
	if !ok {
		t.Fatal("awareness message not stored")
	}
	if rec.Kind != types.KindOrdinary {
		t.Errorf("Kind = %s, want ordinary", rec.Kind)
	}
	if rec.Heading != 90 || rec.Speed != 8.3 {
		t.Errorf("heading/speed = %v/%v, want 90/8.3", rec.Heading, rec.Speed)
	}
	if rec.Waiting {
		t.Error("moving vehicle marked waiting")
	}
}

func TestAwarenessStationTypes(t *testing.T) {
	tests := []struct {
		name        string
		stationType string
		want        types.VehicleKind
		wantWaiting bool
	}{
		{"ordinary", `"stationType":5`, types.KindOrdinary, true},
		{"emergency", `"stationType":10`, types.KindEmergency, true},
		{"roadside unit", `"stationType":15`, types.KindRoadsideUnit, false},
		{"unknown code falls back to ordinary", `"stationType":99`, types.KindOrdinary, true},
		{"absent falls back to ordinary", `"stationType":null`, types.KindOrdinary, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed, vehicles, _, _ := newTestFeed(t, config.FeedData{Name: "v2x"})

			// Speed zero: everything but a roadside unit counts as waiting.
			feed.handleDatagram([]byte(`{"stationID":1,"latitude":40.6,"longitude":-8.6,"heading":0,"speed":0,` + tt.stationType + `}`))

			rec, ok := vehicles.Get(types.SourceBroadcast, "1")
			if !ok {
				t.Fatal("message not stored")
			}
			if rec.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", rec.Kind, tt.want)
			}
			if rec.Waiting != tt.wantWaiting {
				t.Errorf("Waiting = %v, want %v", rec.Waiting, tt.wantWaiting)
			}
		})
	}
}

func TestConfiguredStationTypeOverride(t *testing.T) {
	feed, vehicles, _, _ := newTestFeed(t, config.FeedData{
		Name:         "v2x",
		StationTypes: map[int]string{7: string(types.KindEmergency)},
	})

	feed.handleDatagram([]byte(`{"stationID":1,"latitude":40.6,"longitude":-8.6,"speed":10,"stationType":7}`))
	rec, ok := vehicles.Get(types.SourceBroadcast, "1")
	if !ok || rec.Kind != types.KindEmergency {
		t.Fatalf("configured station type not applied: ok=%v kind=%s", ok, rec.Kind)
	}
}

func TestMalformedDatagramsDropped(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `garbage`},
		{"missing stationID", `{"latitude":40.6,"longitude":-8.6,"speed":5}`},
		{"missing position", `{"stationID":1,"speed":5}`},
		{"latitude out of range", `{"stationID":1,"latitude":95,"longitude":-8.6,"speed":5}`},
		{"no heading or speed", `{"stationID":1,"latitude":40.6,"longitude":-8.6}`},
		{"negative speed", `{"stationID":1,"latitude":40.6,"longitude":-8.6,"speed":-3}`},
		{"event without cause", `{"eventID":"x","latitude":40.6,"longitude":-8.6,"management":{}}`},
		{"event without position", `{"eventID":"x","eventType":2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed, vehicles, hazards, _ := newTestFeed(t, config.FeedData{Name: "v2x"})

			feed.handleDatagram([]byte(tt.data))
			if vehicles.Len() != 0 || hazards.Len() != 0 {
				t.Errorf("malformed datagram stored something: vehicles=%d hazards=%d",
					vehicles.Len(), hazards.Len())
			}

			// The next well-formed message still lands.
			feed.handleDatagram([]byte(`{"stationID":2,"latitude":40.6,"longitude":-8.6,"speed":4}`))
			if _, ok := vehicles.Get(types.SourceBroadcast, "2"); !ok {
				t.Error("well-formed message blocked by an earlier malformed one")
			}
		})
	}
}

func TestFlatEventBecomesHazard(t *testing.T) {
	feed, _, hazards, _ := newTestFeed(t, config.FeedData{Name: "v2x"})

	feed.handleDatagram([]byte(`{"eventID":"evt-1","eventType":2,"latitude":40.634,"longitude":-8.657,"description":"two cars"}`))

	list := hazards.List()
	if len(list) != 1 {
		t.Fatalf("got %d hazards, want 1", len(list))
	}
	h := list[0]
	if h.ID != "evt-1" || h.Category != types.HazardAccident || h.Description != "two cars" {
		t.Errorf("hazard = %+v", h)
	}
}

func TestNestedEventScaledPosition(t *testing.T) {
	feed, _, hazards, _ := newTestFeed(t, config.FeedData{Name: "v2x"})

	// Onboard units send 1e-7-degree integers.
	feed.handleDatagram([]byte(`{
		"header": {"messageID": 1, "stationID": 77},
		"management": {"eventPosition": {"latitude": 406335000, "longitude": -86572000}},
		"situation": {"eventType": {"causeCode": 3}, "description": "lane closed"}
	}`))

	list := hazards.List()
	if len(list) != 1 {
		t.Fatalf("got %d hazards, want 1", len(list))
	}
	h := list[0]
	if h.ID != "denm-77" {
		t.Errorf("ID = %s, want denm-77 (derived from originating station)", h.ID)
	}
	if h.Category != types.HazardRoadwork {
		t.Errorf("Category = %s, want roadwork", h.Category)
	}
	if math.Abs(h.Latitude-40.6335) > 1e-6 || math.Abs(h.Longitude+8.6572) > 1e-6 {
		t.Errorf("position = %v,%v, want 40.6335,-8.6572 (descaled)", h.Latitude, h.Longitude)
	}
}

func TestNestedEventPlainDegrees(t *testing.T) {
	feed, _, hazards, _ := newTestFeed(t, config.FeedData{Name: "v2x"})

	feed.handleDatagram([]byte(`{
		"header": {"stationID": 78},
		"management": {"eventPosition": {"latitude": 40.6335, "longitude": -8.6572}},
		"situation": {"eventType": {"causeCode": 17}}
	}`))

	list := hazards.List()
	if len(list) != 1 {
		t.Fatalf("got %d hazards, want 1", len(list))
	}
	if list[0].Category != types.HazardWeather {
		t.Errorf("Category = %s, want weather", list[0].Category)
	}
	if math.Abs(list[0].Latitude-40.6335) > 1e-9 {
		t.Errorf("plain-degree latitude rescaled: %v", list[0].Latitude)
	}
}

func TestUnknownCauseCodeMapsToOther(t *testing.T) {
	feed, _, hazards, _ := newTestFeed(t, config.FeedData{Name: "v2x"})

	feed.handleDatagram([]byte(`{"eventID":"evt-9","eventType":42,"latitude":40.6,"longitude":-8.6}`))
	list := hazards.List()
	if len(list) != 1 || list[0].Category != types.HazardOther {
		t.Fatalf("hazards = %+v, want one with category other", list)
	}
}

func TestRepeatedEventDeduplicates(t *testing.T) {
	feed, _, hazards, _ := newTestFeed(t, config.FeedData{Name: "v2x"})

	msg := []byte(`{"eventID":"evt-1","eventType":2,"latitude":40.6,"longitude":-8.6}`)
	feed.handleDatagram(msg)
	feed.handleDatagram(msg)
	feed.handleDatagram(msg)

	if len(hazards.List()) != 1 {
		t.Fatalf("got %d hazards, want 1 after repeats", len(hazards.List()))
	}
}

func TestEmergencyEventPreempts(t *testing.T) {
	feed, _, hazards, coord := newTestFeed(t, config.FeedData{Name: "v2x"})

	feed.handleDatagram([]byte(`{
		"header": {"stationID": 999},
		"management": {"eventPosition": {"latitude": 406300000, "longitude": -86600000}, "stationType": 10},
		"situation": {"eventType": {"causeCode": 6}},
		"location": {"eventPositionHeading": 90.0}
	}`))

	sv := coord.View()
	if !sv.EmergencyMode {
		t.Fatal("emergency event did not activate preemption")
	}
	if sv.ActiveEmergencyVehicleID != "999" {
		t.Errorf("active vehicle = %q, want 999", sv.ActiveEmergencyVehicleID)
	}
	// Preemption, not a hazard.
	if len(hazards.List()) != 0 {
		t.Errorf("emergency event also stored a hazard: %+v", hazards.List())
	}
}

func TestEmergencyEventWithoutStationDropped(t *testing.T) {
	feed, _, _, coord := newTestFeed(t, config.FeedData{Name: "v2x"})

	feed.handleDatagram([]byte(`{"eventID":"evt-1","eventType":6,"latitude":40.6,"longitude":-8.6,"heading":90}`))
	if coord.View().EmergencyMode {
		t.Fatal("anonymous emergency event activated preemption")
	}
}

func TestParseDatagramClassification(t *testing.T) {
	aw, ev, err := parseDatagram([]byte(`{"stationID":1,"latitude":40.6,"longitude":-8.6,"speed":3}`), defaultStationTypes)
	if err != nil || aw == nil || ev != nil {
		t.Fatalf("awareness classification: aw=%v ev=%v err=%v", aw, ev, err)
	}

	aw, ev, err = parseDatagram([]byte(`{"eventID":"x","eventType":2,"latitude":40.6,"longitude":-8.6}`), defaultStationTypes)
	if err != nil || aw != nil || ev == nil {
		t.Fatalf("event classification: aw=%v ev=%v err=%v", aw, ev, err)
	}

	_, _, err = parseDatagram([]byte(`nope`), defaultStationTypes)
	if !errors.Is(err, types.ErrMalformedInput) {
		t.Fatalf("err = %v, want ErrMalformedInput", err)
	}
}

func TestEventWithoutIDGetsFreshIdentity(t *testing.T) {
	_, ev, err := parseDatagram([]byte(`{"eventType":2,"latitude":40.6,"longitude":-8.6,"management":{}}`), defaultStationTypes)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.id == "" {
		t.Fatal("event without id or station left unidentified")
	}
}
