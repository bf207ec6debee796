package signal

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/jlaranjo/intersectd/internal/store"
	"github.com/jlaranjo/intersectd/internal/types"
	"go.uber.org/zap"
)

// fakeClock is a manually advanced clock shared by a test's coordinator and
// stores.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCoordinator(t *testing.T, holdExpiry time.Duration) (*Coordinator, *store.VehicleStore, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	vehicles := store.NewVehicleStore(5*time.Second, clock.Now)
	ctrl := NewController(testTiming, clock.Now())
	coord := NewCoordinator(ctrl, vehicles, holdExpiry, clock.Now, zap.NewNop().Sugar())
	return coord, vehicles, clock
}

func TestActivateEmergencyIdempotent(t *testing.T) {
	coord, _, clock := newTestCoordinator(t, 0)

	if err := coord.ActivateEmergency("v_2", types.ApproachEast); err != nil {
		t.Fatalf("first activate: %v", err)
	}
	clock.Advance(4 * time.Second)
	coord.Tick()

	sv := coord.View()
	if !sv.EmergencyMode || sv.ActiveEmergencyVehicleID != "v_2" {
		t.Fatalf("after activate: emergency=%v active=%q", sv.EmergencyMode, sv.ActiveEmergencyVehicleID)
	}

	// Same vehicle, same approach: no-op, state unchanged.
	if err := coord.ActivateEmergency("v_2", types.ApproachEast); err != nil {
		t.Fatalf("repeat activate: %v", err)
	}
	sv = coord.View()
	if sv.ActiveEmergencyVehicleID != "v_2" {
		t.Fatalf("active vehicle changed on repeat activate: %q", sv.ActiveEmergencyVehicleID)
	}
}

func TestActivateEmergencyEmptyID(t *testing.T) {
	coord, _, _ := newTestCoordinator(t, 0)
	if err := coord.ActivateEmergency("", types.ApproachEast); !errors.Is(err, types.ErrMalformedInput) {
		t.Fatalf("got %v, want ErrMalformedInput", err)
	}
}

func TestDeactivateWrongVehicle(t *testing.T) {
	coord, _, _ := newTestCoordinator(t, 0)

	if err := coord.ActivateEmergency("v_2", types.ApproachEast); err != nil {
		t.Fatalf("activate: %v", err)
	}

	// A different vehicle cannot clear v_2's override.
	if err := coord.DeactivateEmergency("v_9"); !errors.Is(err, types.ErrNotActive) {
		t.Fatalf("deactivate v_9: got %v, want ErrNotActive", err)
	}
	if sv := coord.View(); !sv.EmergencyMode {
		t.Fatal("override cleared by a non-matching deactivate")
	}

	if err := coord.DeactivateEmergency("v_2"); err != nil {
		t.Fatalf("deactivate v_2: %v", err)
	}
	if sv := coord.View(); sv.EmergencyMode {
		t.Fatal("override still active after matching deactivate")
	}

	// Deactivating with nothing active also fails.
	if err := coord.DeactivateEmergency("v_2"); !errors.Is(err, types.ErrNotActive) {
		t.Fatalf("deactivate while idle: got %v, want ErrNotActive", err)
	}
}

func TestNewestRequestWins(t *testing.T) {
	coord, _, clock := newTestCoordinator(t, 0)

	if err := coord.ActivateEmergency("v_2", types.ApproachEast); err != nil {
		t.Fatalf("activate v_2: %v", err)
	}
	clock.Advance(5 * time.Second)
	coord.Tick()

	if err := coord.ActivateEmergency("v_7", types.ApproachNorth); err != nil {
		t.Fatalf("activate v_7: %v", err)
	}
	sv := coord.View()
	if sv.ActiveEmergencyVehicleID != "v_7" {
		t.Fatalf("active = %q, want v_7", sv.ActiveEmergencyVehicleID)
	}

	// The replaced vehicle can no longer deactivate.
	if err := coord.DeactivateEmergency("v_2"); !errors.Is(err, types.ErrNotActive) {
		t.Fatalf("deactivate replaced vehicle: got %v, want ErrNotActive", err)
	}
}

func TestActivateFromHeading(t *testing.T) {
	tests := []struct {
		heading float64
		want    types.Approach
	}{
		{0, types.ApproachNorth},
		{44.9, types.ApproachNorth},
		{45, types.ApproachEast},
		{90, types.ApproachEast},
		{180, types.ApproachSouth},
		{270, types.ApproachWest},
		{314.9, types.ApproachWest},
		{315, types.ApproachNorth},
		{-45, types.ApproachWest},
		{450, types.ApproachEast},
	}
	for _, tt := range tests {
		coord, _, clock := newTestCoordinator(t, 0)
		if err := coord.ActivateEmergencyFromHeading("amb", tt.heading); err != nil {
			t.Errorf("heading %v: %v", tt.heading, err)
			continue
		}
		// Drive through the clearance so the target group reaches green.
		for i := 0; i < 20; i++ {
			clock.Advance(time.Second)
			coord.Tick()
		}
		var green []types.Approach
		for _, s := range coord.View().Signals {
			if s.Phase == types.PhaseGreen {
				green = append(green, s.Approach)
			}
		}
		found := false
		for _, a := range green {
			if a == tt.want {
				found = true
			}
		}
		if !found {
			t.Errorf("heading %v: green approaches %v, want to include %s", tt.heading, green, tt.want)
		}
	}
}

func TestActivateFromInvalidHeading(t *testing.T) {
	coord, _, _ := newTestCoordinator(t, 0)
	for _, h := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if err := coord.ActivateEmergencyFromHeading("amb", h); !errors.Is(err, types.ErrInvalidApproach) {
			t.Errorf("heading %v: got %v, want ErrInvalidApproach", h, err)
		}
	}
	if sv := coord.View(); sv.EmergencyMode {
		t.Fatal("invalid heading activated an override")
	}
}

func TestChangeVehicleDirectionRetargets(t *testing.T) {
	coord, vehicles, clock := newTestCoordinator(t, 0)

	vehicles.Upsert(types.VehicleRecord{
		ID: "amb", Source: types.SourceBroadcast, Heading: 90, Kind: types.KindEmergency,
	})
	if err := coord.ActivateEmergency("amb", types.ApproachEast); err != nil {
		t.Fatalf("activate: %v", err)
	}
	for i := 0; i < 10; i++ {
		clock.Advance(time.Second)
		coord.Tick()
	}

	// The ambulance turns north; preemption follows.
	if err := coord.ChangeVehicleDirection("amb", 0); err != nil {
		t.Fatalf("change direction: %v", err)
	}
	for i := 0; i < 10; i++ {
		clock.Advance(time.Second)
		coord.Tick()
	}

	for _, s := range coord.View().Signals {
		switch s.Approach {
		case types.ApproachNorth:
			if s.Phase != types.PhaseGreen {
				t.Errorf("north = %s, want green after retarget", s.Phase)
			}
		case types.ApproachEast:
			if s.Phase != types.PhaseRed {
				t.Errorf("east = %s, want red after retarget", s.Phase)
			}
		}
	}

	if rec, ok := vehicles.Get(types.SourceBroadcast, "amb"); !ok || rec.Heading != 0 {
		t.Errorf("stored heading = %v, ok=%v, want 0", rec.Heading, ok)
	}
}

func TestChangeVehicleDirectionInvalidHeadingRetainsState(t *testing.T) {
	coord, vehicles, _ := newTestCoordinator(t, 0)

	vehicles.Upsert(types.VehicleRecord{ID: "amb", Source: types.SourceBroadcast, Heading: 90})
	if err := coord.ActivateEmergency("amb", types.ApproachEast); err != nil {
		t.Fatalf("activate: %v", err)
	}

	if err := coord.ChangeVehicleDirection("amb", math.NaN()); !errors.Is(err, types.ErrInvalidApproach) {
		t.Fatalf("got %v, want ErrInvalidApproach", err)
	}
	if rec, _ := vehicles.Get(types.SourceBroadcast, "amb"); rec.Heading != 90 {
		t.Errorf("heading mutated by rejected command: %v", rec.Heading)
	}
	if sv := coord.View(); !sv.EmergencyMode || sv.ActiveEmergencyVehicleID != "amb" {
		t.Error("override lost after rejected command")
	}
}

func TestHoldExpiryAutoDeactivates(t *testing.T) {
	coord, _, clock := newTestCoordinator(t, 10*time.Second)

	if err := coord.ActivateEmergency("amb", types.ApproachEast); err != nil {
		t.Fatalf("activate: %v", err)
	}

	clock.Advance(9 * time.Second)
	coord.Tick()
	if sv := coord.View(); !sv.EmergencyMode {
		t.Fatal("override expired early")
	}

	clock.Advance(2 * time.Second)
	coord.Tick()
	if sv := coord.View(); sv.EmergencyMode {
		t.Fatal("override not expired after hold window")
	}
}

func TestViewConsistency(t *testing.T) {
	coord, _, _ := newTestCoordinator(t, 0)

	if err := coord.ActivateEmergency("amb", types.ApproachNorth); err != nil {
		t.Fatalf("activate: %v", err)
	}
	sv := coord.View()
	if !sv.EmergencyMode {
		t.Fatal("EmergencyMode = false right after activate")
	}
	if len(sv.Signals) != 4 {
		t.Fatalf("got %d signals, want 4", len(sv.Signals))
	}
	// North targeted while already green: held green in the same view that
	// reports the emergency flag.
	for _, s := range sv.Signals {
		if s.Approach == types.ApproachNorth && s.Phase != types.PhaseGreen {
			t.Errorf("north = %s, want green", s.Phase)
		}
	}
}
