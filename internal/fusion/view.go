// Package fusion merges the two feed adapters' output into one coherent,
// deduplicated view of the agents around the intersection.
package fusion

import (
	"github.com/jlaranjo/intersectd/internal/store"
	"github.com/jlaranjo/intersectd/internal/types"
	"github.com/jlaranjo/intersectd/pkg/geo"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// View reads both record stores and produces ordered, stale-free listings.
// Sources stay namespaced: identical ids from the fleet and broadcast feeds
// are always two distinct entries. No proximity-based dedup is attempted, so
// a real vehicle is never silently dropped by a bad identity guess.
type View struct {
	vehicles *store.VehicleStore
	hazards  *store.HazardStore

	centerLat float64
	centerLng float64
	radius    float64 // meters; 0 disables the distance filter
}

// NewView creates a fusion view over the two stores. When radius is positive,
// vehicles farther than radius meters from the intersection center are
// excluded from listings (they are still stored and swept normally).
func NewView(vehicles *store.VehicleStore, hazards *store.HazardStore, centerLat, centerLng, radius float64) *View {
	return &View{
		vehicles:  vehicles,
		hazards:   hazards,
		centerLat: centerLat,
		centerLng: centerLng,
		radius:    radius,
	}
}

// Vehicles returns the live merged vehicle list, ordered by source then id.
func (v *View) Vehicles() []types.VehicleRecord {
	records := v.vehicles.List()
	if v.radius <= 0 {
		return records
	}
	return lo.Filter(records, func(rec types.VehicleRecord, _ int) bool {
		return geo.HaversineDistance(rec.Latitude, rec.Longitude, v.centerLat, v.centerLng) <= v.radius
	})
}

// Hazards returns the unexpired hazards ordered by id.
func (v *View) Hazards() []types.HazardRecord {
	return v.hazards.List()
}

// Congestion summarizes the given vehicles per approach: count, mean speed,
// and how many are waiting at the stop line. Roadside units are excluded;
// they do not travel.
func (v *View) Congestion(vehicles []types.VehicleRecord) []types.CongestionSummary {
	byApproach := map[types.Approach][]types.VehicleRecord{}
	for _, rec := range vehicles {
		if rec.Kind == types.KindRoadsideUnit {
			continue
		}
		approach, err := types.ApproachFromHeading(rec.Heading)
		if err != nil {
			continue
		}
		byApproach[approach] = append(byApproach[approach], rec)
	}

	out := make([]types.CongestionSummary, 0, len(types.Approaches))
	for _, approach := range types.Approaches {
		group := byApproach[approach]
		if len(group) == 0 {
			continue
		}
		speeds := lo.Map(group, func(rec types.VehicleRecord, _ int) float64 { return rec.Speed })
		out = append(out, types.CongestionSummary{
			Approach:  approach,
			Vehicles:  len(group),
			MeanSpeed: stat.Mean(speeds, nil),
			Waiting:   lo.CountBy(group, func(rec types.VehicleRecord) bool { return rec.Waiting }),
		})
	}
	return out
}
