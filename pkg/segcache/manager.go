package segcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ManagerCtx struct {
	logger        zerolog.Logger
	fetcherLogger zerolog.Logger
	config        Config

	store   *Store
	fetcher *fetcher
	janitor *janitor
	metrics *metrics

	mu      sync.Mutex
	started bool
}

func New(config *Config) *ManagerCtx {
	logger := log.With().Str("module", "segcache").Logger()
	conf := config.withDefaultValues()

	store := NewStore(logger.With().Str("submodule", "store").Logger())
	metrics := newMetrics(conf.Registerer, store)

	m := &ManagerCtx{
		logger:        logger.With().Str("submodule", "manager").Logger(),
		fetcherLogger: logger.With().Str("submodule", "fetcher").Logger(),
		config:        conf,
		store:         store,
		metrics:       metrics,
		janitor:       newJanitor(logger.With().Str("submodule", "janitor").Logger(), conf, store, metrics),
	}

	m.fetcher = m.newFetcher()
	return m
}

func (m *ManagerCtx) newFetcher() *fetcher {
	return newFetcher(m.fetcherLogger, m.config, m.store, m.metrics)
}

// getFetcher returns the current fetcher, it is replaced on every shutdown.
func (m *ManagerCtx) getFetcher() *fetcher {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.fetcher
}

func (m *ManagerCtx) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}

	if err := os.MkdirAll(m.config.CacheDir, 0755); err != nil {
		return fmt.Errorf("unable to create cache directory: %w", err)
	}

	m.fetcher.start()
	m.janitor.start()
	m.started = true

	m.logger.Info().
		Str("dir", m.config.CacheDir).
		Int("workers", m.config.Workers).
		Dur("retention", m.config.Retention).
		Msg("segment cache started")
	return nil
}

// Shutdown stops all background work and removes every cached file.
func (m *ManagerCtx) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return
	}

	m.janitor.stop()
	m.fetcher.shutdown()
	// closed queue cannot be reused, jobs submitted until next start wait in the new one
	m.fetcher = m.newFetcher()

	removed := m.store.RemoveIf(func(Segment) bool { return true })
	removeSegmentFiles(m.logger, removed)

	m.started = false
	m.logger.Info().Int("removed", len(removed)).Msg("segment cache shutdown")
}

// RewritePlaylist fetches the upstream media playlist of the session and
// rewrites it to be served from the local cache.
func (m *ManagerCtx) RewritePlaylist(ctx context.Context, sessionID string) (string, error) {
	if m.config.Source == nil {
		return "", errors.New("no playlist source configured")
	}

	document, baseUrl, err := m.config.Source.Fetch(ctx, sessionID)
	if err != nil {
		return "", err
	}

	playlist, _, err := m.Rewrite(document, baseUrl)
	if err != nil {
		m.logger.Warn().Err(err).Str("session", sessionID).Msg("unable to rewrite playlist")
		return "", err
	}

	return playlist, nil
}

// Sweep runs one eviction pass and returns how many segments were removed.
func (m *ManagerCtx) Sweep() int {
	return m.janitor.sweep(time.Now())
}

func (m *ManagerCtx) Stats() map[State]int {
	return m.store.Stats()
}

// Store exposes the underlying segment store.
func (m *ManagerCtx) Store() *Store {
	return m.store
}
