// Package types defines the records, enums, and snapshot bundle shared by the
// feed adapters, stores, signal controller, and serving layer.
package types

import (
	"math"
	"time"
)

// Source identifies which feed produced a vehicle record. Records from
// different sources never merge: the same numeric id reported by the fleet
// feed and the broadcast feed describes two distinct logical vehicles.
type Source string

const (
	SourceFleet     Source = "fleet"
	SourceBroadcast Source = "broadcast"
)

// VehicleKind classifies a vehicle for rendering and preemption policy.
type VehicleKind string

const (
	KindOrdinary     VehicleKind = "ordinary"
	KindEmergency    VehicleKind = "emergency"
	KindRoadsideUnit VehicleKind = "roadside-unit"
)

// Approach is one of the four cardinal directions of travel into the
// intersection.
type Approach string

const (
	ApproachNorth Approach = "north"
	ApproachEast  Approach = "east"
	ApproachSouth Approach = "south"
	ApproachWest  Approach = "west"
)

// Approaches lists all approaches in stable output order.
var Approaches = []Approach{ApproachNorth, ApproachEast, ApproachSouth, ApproachWest}

// ApproachFromHeading maps a direction of travel in degrees (0 = north) to
// the approach whose signal faces that traffic. The quadrant boundaries match
// the roadside unit in the field: [315,45) north, [45,135) east,
// [135,225) south, [225,315) west.
func ApproachFromHeading(heading float64) (Approach, error) {
	if math.IsNaN(heading) || math.IsInf(heading, 0) {
		return "", ErrInvalidApproach
	}
	h := NormalizeHeading(heading)
	switch {
	case h >= 315 || h < 45:
		return ApproachNorth, nil
	case h < 135:
		return ApproachEast, nil
	case h < 225:
		return ApproachSouth, nil
	default:
		return ApproachWest, nil
	}
}

// NormalizeHeading wraps a heading into [0,360).
func NormalizeHeading(heading float64) float64 {
	h := math.Mod(heading, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// Phase is the displayed state of one approach signal.
type Phase string

const (
	PhaseRed    Phase = "RED"
	PhaseGreen  Phase = "GREEN"
	PhaseYellow Phase = "YELLOW"
)

// VehicleRecord is the last-known state of one vehicle from one source.
type VehicleRecord struct {
	ID          string      `json:"id"`
	Source      Source      `json:"source"`
	Latitude    float64     `json:"lat"`
	Longitude   float64     `json:"lng"`
	Heading     float64     `json:"heading"`
	Speed       float64     `json:"speed"`
	Kind        VehicleKind `json:"type"`
	Waiting     bool        `json:"waiting"`
	LastUpdated time.Time   `json:"lastUpdated"`
}

// HazardRecord is a deduplicated road hazard or event announcement.
// Category is an open set: the well-known values are below, but adapters may
// forward categories this build has never heard of.
type HazardRecord struct {
	ID          string    `json:"id"`
	Latitude    float64   `json:"lat"`
	Longitude   float64   `json:"lng"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	FirstSeen   time.Time `json:"firstSeen"`
	LastSeen    time.Time `json:"lastSeen"`
}

// Well-known hazard categories.
const (
	HazardAccident = "accident"
	HazardRoadwork = "roadwork"
	HazardWeather  = "weather"
	HazardOther    = "other"
)

// ApproachSignal is the observable state of one approach's light.
type ApproachSignal struct {
	Approach       Approach  `json:"approach"`
	Phase          Phase     `json:"state"`
	PhaseEnteredAt time.Time `json:"since"`
}

// CongestionSummary aggregates the live vehicles on one approach.
type CongestionSummary struct {
	Approach  Approach `json:"approach"`
	Vehicles  int      `json:"vehicles"`
	MeanSpeed float64  `json:"meanSpeed"`
	Waiting   int      `json:"waiting"`
}

// Snapshot is an immutable, versioned bundle of intersection state. Callers
// compare Sequence to detect staleness; a snapshot is never mutated after it
// is built.
type Snapshot struct {
	Sequence                 uint64              `json:"sequence"`
	GeneratedAt              time.Time           `json:"generatedAt"`
	Signals                  []ApproachSignal    `json:"signals"`
	Vehicles                 []VehicleRecord     `json:"vehicles"`
	Hazards                  []HazardRecord      `json:"hazards"`
	Congestion               []CongestionSummary `json:"congestion,omitempty"`
	EmergencyMode            bool                `json:"emergencyMode"`
	ActiveEmergencyVehicleID string              `json:"activeEmergencyVehicleId,omitempty"`
}
