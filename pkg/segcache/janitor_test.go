package segcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSegmentFile(t *testing.T, path string) {
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))
}

func TestJanitor_Sweep(t *testing.T) {
	manager := newTestManager(t, Config{
		Retention: time.Hour,
	})
	dir := manager.config.CacheDir
	now := time.Now()

	expired := Segment{
		ID:          "expired",
		LocalPath:   filepath.Join(dir, "expired.ts"),
		State:       Downloaded,
		LastTouched: now.Add(-2 * time.Hour),
	}
	fresh := Segment{
		ID:          "fresh",
		LocalPath:   filepath.Join(dir, "fresh.ts"),
		State:       Downloaded,
		LastTouched: now.Add(-30 * time.Minute),
	}
	// failed segments have no file
	failed := Segment{
		ID:          "failed",
		LocalPath:   filepath.Join(dir, "failed.ts"),
		State:       Failed,
		LastTouched: now.Add(-3 * time.Hour),
	}

	writeSegmentFile(t, expired.LocalPath)
	writeSegmentFile(t, fresh.LocalPath)

	manager.Store().Insert(expired)
	manager.Store().Insert(fresh)
	manager.Store().Insert(failed)

	removed := manager.janitor.sweep(now)
	assert.Equal(t, 2, removed)

	_, ok := manager.Store().Get("expired")
	assert.False(t, ok)
	_, ok = manager.Store().Get("failed")
	assert.False(t, ok)
	assert.NoFileExists(t, expired.LocalPath)

	_, ok = manager.Store().Get("fresh")
	assert.True(t, ok)
	assert.FileExists(t, fresh.LocalPath)
}

func TestJanitor_SweepToleratesMissingFile(t *testing.T) {
	manager := newTestManager(t, Config{
		Retention: time.Minute,
	})

	manager.Store().Insert(Segment{
		ID:          "gone",
		LocalPath:   filepath.Join(manager.config.CacheDir, "gone.ts"),
		State:       Downloaded,
		LastTouched: time.Now().Add(-time.Hour),
	})

	assert.Equal(t, 1, manager.janitor.sweep(time.Now()))
	assert.Equal(t, 0, manager.Store().Len())
}

func TestJanitor_Periodic(t *testing.T) {
	manager := newTestManager(t, Config{
		Retention:     50 * time.Millisecond,
		JanitorPeriod: 20 * time.Millisecond,
	})

	path := filepath.Join(manager.config.CacheDir, "old.ts")
	writeSegmentFile(t, path)
	manager.Store().Insert(Segment{
		ID:          "old",
		LocalPath:   path,
		State:       Downloaded,
		LastTouched: time.Now(),
	})

	require.Eventually(t, func() bool {
		return manager.Store().Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.NoFileExists(t, path)
}

func TestManager_Sweep(t *testing.T) {
	manager := newTestManager(t, Config{
		Retention: time.Hour,
	})

	manager.Store().Insert(Segment{
		ID:          "recent",
		LocalPath:   filepath.Join(manager.config.CacheDir, "recent.ts"),
		State:       Pending,
		LastTouched: time.Now(),
	})

	assert.Equal(t, 0, manager.Sweep())
	assert.Equal(t, 1, manager.Store().Len())
}
