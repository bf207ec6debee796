// Package store holds the in-memory vehicle and hazard record stores. Both
// stores apply the same discipline: per-key upsert, periodic sweep, ordered
// listing of live entries. All state is rebuildable from the live feeds; a
// restart loses history but not correctness.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/jlaranjo/intersectd/internal/types"
)

type vehicleKey struct {
	source types.Source
	id     string
}

// VehicleStore keeps the last-known record per (source, id). Upserts from
// concurrent adapters are safe; within one key the last-applied update by
// arrival order wins, regardless of any timestamp embedded in the payload.
type VehicleStore struct {
	mu         sync.RWMutex
	records    map[vehicleKey]types.VehicleRecord
	staleAfter time.Duration
	now        func() time.Time
}

// NewVehicleStore creates a store that considers records older than
// staleAfter stale. The clock may be nil, in which case time.Now is used;
// tests inject their own.
func NewVehicleStore(staleAfter time.Duration, clock func() time.Time) *VehicleStore {
	if clock == nil {
		clock = time.Now
	}
	return &VehicleStore{
		records:    make(map[vehicleKey]types.VehicleRecord),
		staleAfter: staleAfter,
		now:        clock,
	}
}

// Upsert inserts or replaces the record for (rec.Source, rec.ID) and stamps
// LastUpdated with the store clock.
func (s *VehicleStore) Upsert(rec types.VehicleRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.LastUpdated = s.now()
	s.records[vehicleKey{rec.Source, rec.ID}] = rec
}

// Get returns the record for (source, id) if it exists and is not stale.
func (s *VehicleStore) Get(source types.Source, id string) (types.VehicleRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[vehicleKey{source, id}]
	if !ok || s.now().Sub(rec.LastUpdated) > s.staleAfter {
		return types.VehicleRecord{}, false
	}
	return rec, true
}

// FindByID looks a vehicle up by id alone, preferring the fleet source when
// both feeds have reported the same id. Used by direction-change commands,
// which do not carry a source.
func (s *VehicleStore) FindByID(id string) (types.VehicleRecord, bool) {
	if rec, ok := s.Get(types.SourceFleet, id); ok {
		return rec, true
	}
	return s.Get(types.SourceBroadcast, id)
}

// SetHeading updates the stored heading for a vehicle found by id, refreshing
// its LastUpdated stamp. Returns false when the vehicle is unknown.
func (s *VehicleStore) SetHeading(id string, heading float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range []types.Source{types.SourceFleet, types.SourceBroadcast} {
		key := vehicleKey{src, id}
		if rec, ok := s.records[key]; ok {
			rec.Heading = types.NormalizeHeading(heading)
			rec.LastUpdated = s.now()
			s.records[key] = rec
			return true
		}
	}
	return false
}

// List returns the live records ordered by source then id, for deterministic
// output. Stale entries are excluded even before a sweep removes them.
func (s *VehicleStore) List() []types.VehicleRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([]types.VehicleRecord, 0, len(s.records))
	for _, rec := range s.records {
		if now.Sub(rec.LastUpdated) <= s.staleAfter {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Sweep evicts stale records and returns how many were removed.
func (s *VehicleStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, rec := range s.records {
		if now.Sub(rec.LastUpdated) > s.staleAfter {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of records currently held, stale or not.
func (s *VehicleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
