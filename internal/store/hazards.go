package store

import (
	"sort"
	"sync"
	"time"

	"github.com/jlaranjo/intersectd/internal/types"
)

// HazardStore keeps deduplicated hazard/event announcements keyed by id.
// Repeated announcements refresh LastSeen rather than duplicating; records
// whose LastSeen falls outside the TTL disappear from listings and are purged
// by the next sweep.
type HazardStore struct {
	mu      sync.RWMutex
	records map[string]types.HazardRecord
	ttl     time.Duration
	now     func() time.Time
}

// NewHazardStore creates a hazard store with the given TTL. A nil clock means
// time.Now.
func NewHazardStore(ttl time.Duration, clock func() time.Time) *HazardStore {
	if clock == nil {
		clock = time.Now
	}
	return &HazardStore{
		records: make(map[string]types.HazardRecord),
		ttl:     ttl,
		now:     clock,
	}
}

// Upsert records or refreshes a hazard. FirstSeen is preserved across
// refreshes; LastSeen always moves forward to the store clock.
func (s *HazardStore) Upsert(rec types.HazardRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if prev, ok := s.records[rec.ID]; ok {
		rec.FirstSeen = prev.FirstSeen
	} else {
		rec.FirstSeen = now
	}
	rec.LastSeen = now
	s.records[rec.ID] = rec
}

// List returns unexpired hazards ordered by id.
func (s *HazardStore) List() []types.HazardRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([]types.HazardRecord, 0, len(s.records))
	for _, rec := range s.records {
		if now.Sub(rec.LastSeen) <= s.ttl {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sweep purges expired hazards and returns how many were removed.
func (s *HazardStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, rec := range s.records {
		if now.Sub(rec.LastSeen) > s.ttl {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of records currently held, expired or not.
func (s *HazardStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
