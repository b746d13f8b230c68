package segcache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// fetcher downloads segments on a fixed pool of workers. Submitting is
// fire and forget, results are only visible through the store.
type fetcher struct {
	logger  zerolog.Logger
	config  Config
	store   *Store
	metrics *metrics
	client  *http.Client

	queue   chan Segment
	queueMu sync.RWMutex
	closed  bool
	workers *errgroup.Group

	ctx    context.Context
	cancel context.CancelFunc
}

func newFetcher(logger zerolog.Logger, config Config, store *Store, metrics *metrics) *fetcher {
	ctx, cancel := context.WithCancel(context.Background())

	return &fetcher{
		logger:  logger,
		config:  config,
		store:   store,
		metrics: metrics,
		client:  &http.Client{},
		queue:   make(chan Segment, config.QueueSize),
		workers: &errgroup.Group{},
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (f *fetcher) start() {
	for i := 0; i < f.config.Workers; i++ {
		worker := i
		f.workers.Go(func() error {
			f.logger.Debug().Int("worker", worker).Msg("worker started")
			for segment := range f.queue {
				f.fetch(segment)
			}
			f.logger.Debug().Int("worker", worker).Msg("worker stopped")
			return nil
		})
	}
}

// shutdown stops accepting jobs, aborts running downloads and waits for
// all workers to return.
func (f *fetcher) shutdown() {
	f.queueMu.Lock()
	if f.closed {
		f.queueMu.Unlock()
		return
	}
	f.closed = true
	close(f.queue)
	f.queueMu.Unlock()

	f.cancel()
	_ = f.workers.Wait()
}

func (f *fetcher) submit(segments []Segment) {
	f.queueMu.RLock()
	defer f.queueMu.RUnlock()

	for _, segment := range segments {
		if f.closed {
			f.reject(segment, "fetcher is shut down")
			continue
		}

		select {
		case f.queue <- segment:
		default:
			f.reject(segment, "queue full")
		}
	}

	f.logger.Debug().Int("segments", len(segments)).Int("queued", len(f.queue)).Msg("segments submitted")
}

// reject fails a segment that never made it to a worker, so that nobody
// waits for it.
func (f *fetcher) reject(segment Segment, reason string) {
	f.logger.Error().Str("id", segment.ID).Str("reason", reason).Msg("unable to enqueue segment")

	f.store.Update(segment.ID, func(s *Segment) {
		if s.State == Pending {
			s.State = Failed
			s.Err = fmt.Errorf("%w: %s", ErrUpstreamFetchFailed, reason)
			s.LastTouched = time.Now()
		}
	})
	f.metrics.fetches.WithLabelValues("rejected").Inc()
}

// claim marks the segment as picked up, so that it is fetched at most once.
func (f *fetcher) claim(id string) bool {
	claimed := false
	f.store.Update(id, func(s *Segment) {
		if s.State == Pending && !s.claimed {
			s.claimed = true
			claimed = true
		}
	})
	return claimed
}

func (f *fetcher) fetch(segment Segment) {
	logger := f.logger.With().Str("id", segment.ID).Str("url", segment.OriginUrl).Logger()

	if !f.claim(segment.ID) {
		logger.Debug().Msg("segment evicted or already resolved, skipping")
		f.metrics.fetches.WithLabelValues("skipped").Inc()
		return
	}

	start := time.Now()
	err := f.download(segment)
	f.metrics.fetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		logger.Err(err).Msg("unable to download segment")

		f.store.Update(segment.ID, func(s *Segment) {
			if s.State == Pending {
				s.State = Failed
				s.Err = err
				s.LastTouched = time.Now()
			}
		})
		f.metrics.fetches.WithLabelValues("failed").Inc()
		return
	}

	downloaded := false
	_, ok := f.store.Update(segment.ID, func(s *Segment) {
		if s.State == Pending {
			s.State = Downloaded
			s.LastTouched = time.Now()
			downloaded = true
		}
	})

	// record was evicted or failed while downloading, file would be orphaned
	if !downloaded {
		logger.Warn().Bool("evicted", !ok).Msg("segment finished download but is no longer pending, discarding")

		if err := os.Remove(segment.LocalPath); err != nil && !os.IsNotExist(err) {
			logger.Err(err).Str("path", segment.LocalPath).Msg("error while removing orphaned file")
		}
		f.metrics.fetches.WithLabelValues("discarded").Inc()
		return
	}

	logger.Debug().Dur("took", time.Since(start)).Msg("segment downloaded")
	f.metrics.fetches.WithLabelValues("downloaded").Inc()
}

// download streams origin bytes to a temporary file next to the target and
// renames it once complete, a partial download never appears at LocalPath.
func (f *fetcher) download(segment Segment) error {
	ctx, cancel := context.WithTimeout(f.ctx, f.config.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, segment.OriginUrl, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamFetchFailed, err)
	}

	if f.config.UserAgent != "" {
		req.Header.Set("User-Agent", f.config.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: unexpected status code %d", ErrUpstreamFetchFailed, resp.StatusCode)
	}

	dir, name := filepath.Split(segment.LocalPath)
	tmp, err := os.CreateTemp(dir, name+".*.part")
	if err != nil {
		return fmt.Errorf("unable to create temporary file: %w", err)
	}

	if err := writeAndClose(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrUpstreamFetchFailed, err)
	}

	if err := os.Rename(tmp.Name(), segment.LocalPath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("unable to move segment into place: %w", err)
	}

	return nil
}

func writeAndClose(file *os.File, r io.Reader) error {
	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		return err
	}

	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}

	return file.Close()
}
