// Package signal implements the intersection's phase state machine and the
// emergency preemption coordinator that drives it.
//
// The four approaches form two conflict groups: north+south and east+west.
// Approaches within a group always share a phase; across groups at most one
// is ever non-red. That is the safety invariant everything here defends, and
// it holds through every transition, including preemption: a group leaving
// green always passes through yellow before the opposing group gets green.
package signal

import (
	"fmt"
	"time"

	"github.com/jlaranjo/intersectd/internal/types"
)

// Timing holds the cycle durations. Transitions are time-driven and occur
// only at phase-duration boundaries, except for preemption, which skips the
// minimum-green guard but never the yellow clearance.
type Timing struct {
	MinGreen time.Duration
	Yellow   time.Duration
}

// DefaultTiming matches the 30-second fixed cycle the original roadside unit
// ran, with a 3-second clearance.
var DefaultTiming = Timing{
	MinGreen: 30 * time.Second,
	Yellow:   3 * time.Second,
}

type group int

const (
	groupNS group = iota // north + south
	groupEW              // east + west
)

func (g group) other() group {
	if g == groupNS {
		return groupEW
	}
	return groupNS
}

func groupOf(a types.Approach) group {
	if a == types.ApproachNorth || a == types.ApproachSouth {
		return groupNS
	}
	return groupEW
}

// mode is the controller's global state.
type mode int

const (
	modeCycling        mode = iota // normal round-robin
	modePreemptClear               // yellow clearance on the way into preemption
	modePreempted                  // emergency override holding the target green
	modeResumeClear                // yellow clearance on the way back to cycling
)

// The normal cycle is a fixed four-step round-robin. Each step fully
// determines both groups' phases, so no step can express two non-red groups.
const (
	stepNSGreen = iota
	stepNSYellow
	stepEWGreen
	stepEWYellow
	stepCount
)

// Controller is the phase state machine. It is not safe for concurrent use
// on its own; the Coordinator serializes every mutation and read against a
// single mutex.
type Controller struct {
	timing Timing

	mode   mode
	step   int            // cycle position, meaningful in modeCycling
	target types.Approach // preemption target, meaningful outside modeCycling

	phases    [2]types.Phase
	enteredAt [2]time.Time
}

// NewController creates a controller in Cycling mode with the north-south
// group green as of start.
func NewController(timing Timing, start time.Time) *Controller {
	c := &Controller{timing: timing}
	c.applyStep(stepNSGreen, start)
	return c
}

// applyStep sets both groups' phases for one cycle step.
func (c *Controller) applyStep(step int, now time.Time) {
	c.step = step
	switch step {
	case stepNSGreen:
		c.setPhases(types.PhaseGreen, types.PhaseRed, now)
	case stepNSYellow:
		c.setPhases(types.PhaseYellow, types.PhaseRed, now)
	case stepEWGreen:
		c.setPhases(types.PhaseRed, types.PhaseGreen, now)
	case stepEWYellow:
		c.setPhases(types.PhaseRed, types.PhaseYellow, now)
	}
}

func (c *Controller) setPhases(ns, ew types.Phase, now time.Time) {
	if c.phases[groupNS] != ns {
		c.phases[groupNS] = ns
		c.enteredAt[groupNS] = now
	}
	if c.phases[groupEW] != ew {
		c.phases[groupEW] = ew
		c.enteredAt[groupEW] = now
	}
	c.assertExclusive()
}

// assertExclusive panics if both conflict groups are non-red. Reaching this
// is a bug in the state machine, not a recoverable condition.
func (c *Controller) assertExclusive() {
	if c.phases[groupNS] != types.PhaseRed && c.phases[groupEW] != types.PhaseRed {
		panic(fmt.Sprintf("signal invariant violated: ns=%s ew=%s", c.phases[groupNS], c.phases[groupEW]))
	}
}

func (c *Controller) stepDuration(step int) time.Duration {
	if step == stepNSYellow || step == stepEWYellow {
		return c.timing.Yellow
	}
	return c.timing.MinGreen
}

// yellowGroup returns the group currently showing yellow. Only valid in the
// clearance modes, where exactly one group is yellow.
func (c *Controller) yellowGroup() group {
	if c.phases[groupNS] == types.PhaseYellow {
		return groupNS
	}
	return groupEW
}

func greenStepOf(g group) int {
	if g == groupNS {
		return stepNSGreen
	}
	return stepEWGreen
}

// Tick advances the time-driven transitions. It is a no-op until the current
// phase has run its duration.
func (c *Controller) Tick(now time.Time) {
	switch c.mode {
	case modeCycling:
		for now.Sub(c.enteredAt[c.activeGroup()]) >= c.stepDuration(c.step) {
			c.applyStep((c.step+1)%stepCount, now)
		}
	case modePreemptClear:
		yg := c.yellowGroup()
		if now.Sub(c.enteredAt[yg]) >= c.timing.Yellow {
			tg := groupOf(c.target)
			if tg == groupNS {
				c.setPhases(types.PhaseGreen, types.PhaseRed, now)
			} else {
				c.setPhases(types.PhaseRed, types.PhaseGreen, now)
			}
			c.mode = modePreempted
		}
	case modeResumeClear:
		yg := c.yellowGroup()
		if now.Sub(c.enteredAt[yg]) >= c.timing.Yellow {
			// The group that sat at red through the override gets a fresh
			// minimum-green window, preventing starvation.
			c.mode = modeCycling
			c.applyStep(greenStepOf(yg.other()), now)
		}
	case modePreempted:
		// Held until Resume or a replacing Preempt.
	}
}

// activeGroup returns the group whose phase clock gates the current cycle
// step (the non-red group).
func (c *Controller) activeGroup() group {
	if c.step == stepNSGreen || c.step == stepNSYellow {
		return groupNS
	}
	return groupEW
}

// Preempt forces the conflict group containing the target approach toward
// green. The minimum-green guard is skipped, the yellow clearance is not: if
// the opposing group is green it goes yellow first and the target goes green
// when the clearance elapses. A preempt while already preempted replaces the
// target (newest request wins).
func (c *Controller) Preempt(target types.Approach, now time.Time) {
	tg := groupOf(target)
	c.target = target

	switch c.phases[tg] {
	case types.PhaseGreen:
		// Already have right-of-way; just hold it.
		c.mode = modePreempted
	case types.PhaseYellow:
		// The target group was on its way to red. Cancel the clearance and
		// give it green again; the opposing group never left red.
		if tg == groupNS {
			c.setPhases(types.PhaseGreen, types.PhaseRed, now)
		} else {
			c.setPhases(types.PhaseRed, types.PhaseGreen, now)
		}
		c.mode = modePreempted
	default: // target group is red
		og := tg.other()
		if c.phases[og] == types.PhaseGreen {
			if og == groupNS {
				c.setPhases(types.PhaseYellow, types.PhaseRed, now)
			} else {
				c.setPhases(types.PhaseRed, types.PhaseYellow, now)
			}
		}
		// If the opposing group is already yellow, its running clearance
		// counts; if it is red, the next tick promotes the target directly.
		c.mode = modePreemptClear
	}
}

// Resume returns the controller to normal cycling. A resume while already
// cycling is a no-op, not an error.
func (c *Controller) Resume(now time.Time) {
	switch c.mode {
	case modeCycling:
		return
	case modePreempted:
		tg := groupOf(c.target)
		if tg == groupNS {
			c.setPhases(types.PhaseYellow, types.PhaseRed, now)
		} else {
			c.setPhases(types.PhaseRed, types.PhaseYellow, now)
		}
		c.mode = modeResumeClear
	case modePreemptClear:
		// The target never reached green; let the running clearance finish
		// and hand green to whichever group has been waiting.
		c.mode = modeResumeClear
	case modeResumeClear:
		// Already on the way back.
	}
}

// Preempted reports whether the emergency override is holding or entering.
func (c *Controller) Preempted() bool {
	return c.mode == modePreempted || c.mode == modePreemptClear
}

// Signals returns the observable per-approach state in stable order.
func (c *Controller) Signals() []types.ApproachSignal {
	out := make([]types.ApproachSignal, 0, len(types.Approaches))
	for _, a := range types.Approaches {
		g := groupOf(a)
		out = append(out, types.ApproachSignal{
			Approach:       a,
			Phase:          c.phases[g],
			PhaseEnteredAt: c.enteredAt[g],
		})
	}
	return out
}
