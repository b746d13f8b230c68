package segcache

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// janitor periodically evicts segments nobody touched within the retention
// window and deletes their files.
type janitor struct {
	logger  zerolog.Logger
	config  Config
	store   *Store
	metrics *metrics

	running   bool
	runningMu sync.Mutex
	shutdown  chan struct{}
	done      chan struct{}
}

func newJanitor(logger zerolog.Logger, config Config, store *Store, metrics *metrics) *janitor {
	return &janitor{
		logger:  logger,
		config:  config,
		store:   store,
		metrics: metrics,
	}
}

func (j *janitor) start() {
	j.runningMu.Lock()
	defer j.runningMu.Unlock()

	// if already running
	if j.running {
		return
	}

	j.running = true
	j.shutdown = make(chan struct{})
	j.done = make(chan struct{})

	go func() {
		defer close(j.done)
		j.logger.Debug().Dur("period", j.config.JanitorPeriod).Msg("janitor started")

		ticker := time.NewTicker(j.config.JanitorPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-j.shutdown:
				return
			case <-ticker.C:
				j.logger.Debug().Msg("performing cleanup")
				j.sweep(time.Now())
			}
		}
	}()
}

func (j *janitor) stop() {
	j.runningMu.Lock()
	defer j.runningMu.Unlock()

	// if not running
	if !j.running {
		return
	}

	j.running = false
	close(j.shutdown)
	<-j.done

	j.logger.Debug().Msg("janitor stopped")
}

// sweep removes expired records under the store lock and deletes their
// files afterwards.
func (j *janitor) sweep(now time.Time) int {
	expired := j.store.RemoveIf(func(segment Segment) bool {
		return now.Sub(segment.LastTouched) > j.config.Retention
	})

	removeSegmentFiles(j.logger, expired)
	j.metrics.evicted.Add(float64(len(expired)))

	if len(expired) > 0 {
		j.logger.Info().Int("evicted", len(expired)).Int("remaining", j.store.Len()).Msg("cleanup removed expired segments")
	}

	return len(expired)
}

func removeSegmentFiles(logger zerolog.Logger, segments []Segment) {
	for _, segment := range segments {
		err := os.Remove(segment.LocalPath)
		if err == nil {
			logger.Debug().Str("id", segment.ID).Str("path", segment.LocalPath).Msg("removed segment file")
			continue
		}

		if os.IsNotExist(err) {
			// pending and failed segments have no file
			if segment.State == Downloaded {
				logger.Warn().Str("id", segment.ID).Str("path", segment.LocalPath).Msg("segment file already gone")
			}
			continue
		}

		logger.Err(err).Str("id", segment.ID).Str("path", segment.LocalPath).Msg("error while removing file")
	}
}
