package segcache

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return NewStore(zerolog.Nop())
}

func TestStore_Insert(t *testing.T) {
	store := newTestStore()

	ok := store.Insert(Segment{ID: "a", OriginUrl: "http://origin/a.ts", State: Pending})
	require.True(t, ok)

	// duplicate id keeps the original record
	ok = store.Insert(Segment{ID: "a", OriginUrl: "http://origin/other.ts", State: Downloaded})
	require.False(t, ok)

	segment, ok := store.Get("a")
	require.True(t, ok)
	assert.Equal(t, "http://origin/a.ts", segment.OriginUrl)
	assert.Equal(t, Pending, segment.State)
	assert.Equal(t, 1, store.Len())
}

func TestStore_GetReturnsSnapshot(t *testing.T) {
	store := newTestStore()
	store.Insert(Segment{ID: "a", State: Pending})

	segment, ok := store.Get("a")
	require.True(t, ok)
	segment.State = Failed

	segment, ok = store.Get("a")
	require.True(t, ok)
	assert.Equal(t, Pending, segment.State)

	_, ok = store.Get("missing")
	assert.False(t, ok)
}

func TestStore_Update(t *testing.T) {
	store := newTestStore()
	store.Insert(Segment{ID: "a", State: Pending})

	touched := time.Now()
	segment, ok := store.Update("a", func(s *Segment) {
		s.State = Downloaded
		s.LastTouched = touched
	})
	require.True(t, ok)
	assert.Equal(t, Downloaded, segment.State)
	assert.Equal(t, touched, segment.LastTouched)

	called := false
	_, ok = store.Update("missing", func(s *Segment) {
		called = true
	})
	assert.False(t, ok)
	assert.False(t, called, "mutator must not run for absent record")
}

func TestStore_RemoveIf(t *testing.T) {
	store := newTestStore()
	store.Insert(Segment{ID: "a", State: Pending})
	store.Insert(Segment{ID: "b", State: Downloaded})
	store.Insert(Segment{ID: "c", State: Failed})

	removed := store.RemoveIf(func(s Segment) bool {
		return s.State != Pending
	})

	ids := []string{}
	for _, segment := range removed {
		ids = append(ids, segment.ID)
	}
	assert.ElementsMatch(t, []string{"b", "c"}, ids)
	assert.Equal(t, 1, store.Len())

	_, ok := store.Get("a")
	assert.True(t, ok)
}

func TestStore_Stats(t *testing.T) {
	store := newTestStore()
	store.Insert(Segment{ID: "a", State: Pending})
	store.Insert(Segment{ID: "b", State: Pending})
	store.Insert(Segment{ID: "c", State: Failed})

	assert.Equal(t, map[State]int{
		Pending:    2,
		Downloaded: 0,
		Failed:     1,
	}, store.Stats())
}
