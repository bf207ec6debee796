package snapshot

import (
	"testing"
	"time"

	"github.com/jlaranjo/intersectd/internal/fusion"
	"github.com/jlaranjo/intersectd/internal/signal"
	"github.com/jlaranjo/intersectd/internal/store"
	"github.com/jlaranjo/intersectd/internal/types"
	"go.uber.org/zap"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestServer() (*Server, *signal.Coordinator, *store.VehicleStore, *fakeClock) {
	clock := newFakeClock()
	vehicles := store.NewVehicleStore(5*time.Second, clock.Now)
	hazards := store.NewHazardStore(10*time.Second, clock.Now)
	view := fusion.NewView(vehicles, hazards, 40.6329, -8.6585, 0)
	ctrl := signal.NewController(signal.DefaultTiming, clock.Now())
	coord := signal.NewCoordinator(ctrl, vehicles, 0, clock.Now, zap.NewNop().Sugar())
	return NewServer(view, coord, clock.Now), coord, vehicles, clock
}

func TestSequenceStrictlyIncreases(t *testing.T) {
	server, _, _, clock := newTestServer()

	var last uint64
	for i := 0; i < 10; i++ {
		snap := server.Build()
		if snap.Sequence <= last {
			t.Fatalf("sequence %d after %d, want strictly increasing", snap.Sequence, last)
		}
		last = snap.Sequence
		clock.Advance(250 * time.Millisecond)
	}
}

func TestSnapshotImmutableAfterBuild(t *testing.T) {
	server, _, vehicles, _ := newTestServer()

	vehicles.Upsert(types.VehicleRecord{ID: "42", Source: types.SourceFleet, Speed: 5})
	first := server.Build()

	// State moves on; the already-built snapshot does not.
	vehicles.Upsert(types.VehicleRecord{ID: "42", Source: types.SourceFleet, Speed: 99})
	second := server.Build()

	if len(first.Vehicles) != 1 || first.Vehicles[0].Speed != 5 {
		t.Errorf("first snapshot mutated: %+v", first.Vehicles)
	}
	if len(second.Vehicles) != 1 || second.Vehicles[0].Speed != 99 {
		t.Errorf("second snapshot missing the update: %+v", second.Vehicles)
	}
}

func TestSnapshotSignalConsistency(t *testing.T) {
	server, coord, _, _ := newTestServer()

	if err := coord.ActivateEmergency("amb", types.ApproachNorth); err != nil {
		t.Fatalf("activate: %v", err)
	}
	snap := server.Build()

	if !snap.EmergencyMode || snap.ActiveEmergencyVehicleID != "amb" {
		t.Fatalf("emergency state: mode=%v active=%q", snap.EmergencyMode, snap.ActiveEmergencyVehicleID)
	}
	// The flag and the held-green signal come from the same locked read.
	for _, s := range snap.Signals {
		if s.Approach == types.ApproachNorth && s.Phase != types.PhaseGreen {
			t.Errorf("north = %s in emergency snapshot, want green", s.Phase)
		}
		if s.Approach == types.ApproachEast && s.Phase != types.PhaseRed {
			t.Errorf("east = %s in emergency snapshot, want red", s.Phase)
		}
	}
	if len(snap.Signals) != 4 {
		t.Errorf("got %d signals, want 4", len(snap.Signals))
	}
}

func TestLatestServesCachedBuild(t *testing.T) {
	server, _, vehicles, _ := newTestServer()

	vehicles.Upsert(types.VehicleRecord{ID: "42", Source: types.SourceFleet})
	built := server.Build()

	if got := server.Latest(); got != built {
		t.Fatal("Latest did not return the cached snapshot")
	}
}

func TestLatestBuildsWhenEmpty(t *testing.T) {
	server, _, _, _ := newTestServer()

	snap := server.Latest()
	if snap == nil {
		t.Fatal("Latest returned nil before any build")
	}
	if snap.Sequence != 1 {
		t.Errorf("first sequence = %d, want 1", snap.Sequence)
	}
}

func TestCongestionIncluded(t *testing.T) {
	server, _, vehicles, _ := newTestServer()

	vehicles.Upsert(types.VehicleRecord{ID: "1", Source: types.SourceFleet, Heading: 90, Speed: 10,
		Latitude: 40.6329, Longitude: -8.6585})
	snap := server.Build()

	if len(snap.Congestion) != 1 || snap.Congestion[0].Approach != types.ApproachEast {
		t.Fatalf("congestion = %+v, want one east summary", snap.Congestion)
	}
}
