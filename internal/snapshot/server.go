// Package snapshot assembles the versioned, immutable state bundles served
// to pollers and fanned out to archivers.
package snapshot

import (
	"sync/atomic"
	"time"

	"github.com/jlaranjo/intersectd/internal/fusion"
	"github.com/jlaranjo/intersectd/internal/signal"
	"github.com/jlaranjo/intersectd/internal/types"
)

// Server builds snapshots from already-committed state. It never blocks on
// adapter I/O: the signal view is one short critical section and the record
// listings are point-in-time copies, so readers and writers stay out of each
// other's way. Sequence numbers increase strictly across builds.
type Server struct {
	view  *fusion.View
	coord *signal.Coordinator
	now   func() time.Time

	seq    atomic.Uint64
	latest atomic.Pointer[types.Snapshot]
}

// NewServer creates a snapshot server. A nil clock means time.Now.
func NewServer(view *fusion.View, coord *signal.Coordinator, clock func() time.Time) *Server {
	if clock == nil {
		clock = time.Now
	}
	return &Server{
		view:  view,
		coord: coord,
		now:   clock,
	}
}

// Build assembles a fresh snapshot and publishes it as the latest. The signal
// list and the emergency flag come from a single locked read, so no snapshot
// ever mixes signal state from one instant with an override flag from
// another.
func (s *Server) Build() *types.Snapshot {
	sv := s.coord.View()
	vehicles := s.view.Vehicles()

	snap := &types.Snapshot{
		Sequence:                 s.seq.Add(1),
		GeneratedAt:              s.now(),
		Signals:                  sv.Signals,
		Vehicles:                 vehicles,
		Hazards:                  s.view.Hazards(),
		Congestion:               s.view.Congestion(vehicles),
		EmergencyMode:            sv.EmergencyMode,
		ActiveEmergencyVehicleID: sv.ActiveEmergencyVehicleID,
	}
	s.latest.Store(snap)
	return snap
}

// Latest returns the most recently built snapshot without blocking any
// writer. A stale-but-valid snapshot is preferred over making a poller wait;
// callers judge staleness from GeneratedAt and Sequence.
func (s *Server) Latest() *types.Snapshot {
	if snap := s.latest.Load(); snap != nil {
		return snap
	}
	return s.Build()
}
