package segcache

import (
	"sync"

	"github.com/rs/zerolog"
)

// Store maps segment ids to records. A single mutex guards the whole map,
// it is never held across any I/O.
type Store struct {
	logger zerolog.Logger

	segments   map[string]*Segment
	segmentsMu sync.Mutex
}

func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		logger:   logger,
		segments: map[string]*Segment{},
	}
}

// Insert adds a new record, an already present id is left untouched.
func (s *Store) Insert(segment Segment) bool {
	s.segmentsMu.Lock()
	defer s.segmentsMu.Unlock()

	if _, ok := s.segments[segment.ID]; ok {
		s.logger.Warn().Str("id", segment.ID).Msg("segment already registered, ignoring")
		return false
	}

	s.segments[segment.ID] = &segment
	return true
}

func (s *Store) Get(id string) (Segment, bool) {
	s.segmentsMu.Lock()
	defer s.segmentsMu.Unlock()

	segment, ok := s.segments[id]
	if !ok {
		return Segment{}, false
	}

	return *segment, true
}

// Update applies fn to the stored record and returns its new snapshot.
// Nothing happens if the record has been evicted meanwhile.
func (s *Store) Update(id string, fn func(segment *Segment)) (Segment, bool) {
	s.segmentsMu.Lock()
	defer s.segmentsMu.Unlock()

	segment, ok := s.segments[id]
	if !ok {
		return Segment{}, false
	}

	fn(segment)
	return *segment, true
}

// RemoveIf removes all records matching the predicate in one pass and
// returns them, so that their files can be deleted outside of the lock.
func (s *Store) RemoveIf(predicate func(segment Segment) bool) []Segment {
	s.segmentsMu.Lock()
	defer s.segmentsMu.Unlock()

	removed := []Segment{}
	for id, segment := range s.segments {
		if predicate(*segment) {
			removed = append(removed, *segment)
			delete(s.segments, id)
		}
	}

	return removed
}

func (s *Store) Len() int {
	s.segmentsMu.Lock()
	defer s.segmentsMu.Unlock()

	return len(s.segments)
}

// Stats counts records per state.
func (s *Store) Stats() map[State]int {
	s.segmentsMu.Lock()
	defer s.segmentsMu.Unlock()

	stats := map[State]int{
		Pending:    0,
		Downloaded: 0,
		Failed:     0,
	}
	for _, segment := range s.segments {
		stats[segment.State]++
	}

	return stats
}
