package signal

import (
	"sync"
	"time"

	"github.com/jlaranjo/intersectd/internal/store"
	"github.com/jlaranjo/intersectd/internal/types"
	"go.uber.org/zap"
)

// Coordinator accepts emergency activate/deactivate and direction-change
// commands and serializes them against each other and against the controller's
// time-driven tick. It enforces the single-active-emergency-vehicle policy:
// at most one override at a time, newest request wins.
type Coordinator struct {
	mu       sync.Mutex
	ctrl     *Controller
	vehicles *store.VehicleStore
	logger   *zap.SugaredLogger
	now      func() time.Time

	// holdExpiry > 0 auto-deactivates an override that has held for longer,
	// matching the field behavior where a missed all-clear must not pin the
	// intersection forever. Zero means overrides are cleared only explicitly.
	holdExpiry time.Duration

	emergencyMode bool
	activeID      string
	activatedAt   time.Time
}

// NewCoordinator wires a coordinator to the controller and vehicle store.
// A nil clock means time.Now.
func NewCoordinator(ctrl *Controller, vehicles *store.VehicleStore, holdExpiry time.Duration, clock func() time.Time, logger *zap.SugaredLogger) *Coordinator {
	if clock == nil {
		clock = time.Now
	}
	return &Coordinator{
		ctrl:       ctrl,
		vehicles:   vehicles,
		logger:     logger,
		now:        clock,
		holdExpiry: holdExpiry,
	}
}

// Tick drives the controller's time-based transitions and the optional
// override expiry. Called by the Ticker; shares the command mutex so ticks
// and commands never interleave.
func (c *Coordinator) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.emergencyMode && c.holdExpiry > 0 && now.Sub(c.activatedAt) > c.holdExpiry {
		c.logger.Infow("emergency override expired", "vehicle", c.activeID, "held", now.Sub(c.activatedAt))
		c.clearEmergencyLocked(now)
	}
	c.ctrl.Tick(now)
}

// ActivateEmergency grants the named vehicle right-of-way on the given
// approach. Re-activating the same vehicle for the same approach is a no-op;
// a new approach (or a new vehicle) replaces the current override.
func (c *Coordinator) ActivateEmergency(vehicleID string, approach types.Approach) error {
	if vehicleID == "" {
		return types.ErrMalformedInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.emergencyMode && c.activeID == vehicleID && c.ctrl.target == approach {
		return nil
	}
	if c.emergencyMode && c.activeID != vehicleID {
		c.logger.Infow("emergency override replaced", "previous", c.activeID, "vehicle", vehicleID)
	}
	c.emergencyMode = true
	c.activeID = vehicleID
	c.activatedAt = now
	c.ctrl.Preempt(approach, now)
	c.logger.Infow("emergency override active", "vehicle", vehicleID, "approach", approach)
	return nil
}

// ActivateEmergencyFromHeading derives the target approach from the vehicle's
// direction of travel before activating.
func (c *Coordinator) ActivateEmergencyFromHeading(vehicleID string, heading float64) error {
	approach, err := types.ApproachFromHeading(heading)
	if err != nil {
		return err
	}
	return c.ActivateEmergency(vehicleID, approach)
}

// DeactivateEmergency clears the override and resumes cycling. It fails with
// ErrNotActive when vehicleID does not match the active emergency vehicle, so
// one caller cannot cancel another's override.
func (c *Coordinator) DeactivateEmergency(vehicleID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.emergencyMode || c.activeID != vehicleID {
		return types.ErrNotActive
	}
	c.clearEmergencyLocked(c.now())
	return nil
}

func (c *Coordinator) clearEmergencyLocked(now time.Time) {
	c.logger.Infow("emergency override cleared", "vehicle", c.activeID)
	c.emergencyMode = false
	c.activeID = ""
	c.ctrl.Resume(now)
}

// ChangeVehicleDirection updates the named vehicle's intended heading in the
// store. If the vehicle is the active emergency vehicle, the target approach
// is re-derived from the new heading and the preemption re-run toward it.
func (c *Coordinator) ChangeVehicleDirection(vehicleID string, heading float64) error {
	approach, err := types.ApproachFromHeading(heading)
	if err != nil {
		// Command ignored, previous state retained.
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.vehicles.SetHeading(vehicleID, heading)
	if c.emergencyMode && c.activeID == vehicleID {
		c.ctrl.Preempt(approach, c.now())
		c.logger.Infow("emergency override retargeted", "vehicle", vehicleID, "approach", approach)
	}
	return nil
}

// SignalView is a consistent point-in-time copy of the intersection's signal
// state, taken under one critical section so a reader never sees a signal
// list from one instant mixed with an emergency flag from another.
type SignalView struct {
	Signals                  []types.ApproachSignal
	EmergencyMode            bool
	ActiveEmergencyVehicleID string
}

// View returns the current signal view.
func (c *Coordinator) View() SignalView {
	c.mu.Lock()
	defer c.mu.Unlock()

	return SignalView{
		Signals:                  c.ctrl.Signals(),
		EmergencyMode:            c.emergencyMode,
		ActiveEmergencyVehicleID: c.activeID,
	}
}
