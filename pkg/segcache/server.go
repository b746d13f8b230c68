package segcache

import (
	"context"
	"fmt"
	"os"
	"time"
)

// SegmentFile is an opened cached segment, caller must close it.
type SegmentFile struct {
	*os.File

	ID          string
	Size        int64
	ModTime     time.Time
	ContentType string
}

// ServeSegment waits until the segment is resolved and opens its file.
// Waiting is bounded by WaitTimeout, after which the segment fails for
// every waiter. A cancelled ctx stops waiting without failing the segment.
func (m *ManagerCtx) ServeSegment(ctx context.Context, id string) (*SegmentFile, error) {
	segment, ok := m.store.Get(id)
	if !ok {
		m.metrics.serves.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("%w: segment %s", ErrNotFound, id)
	}

	if segment.State == Pending {
		start := time.Now()

		var err error
		segment, err = m.waitForSegment(ctx, id)
		m.metrics.waitDuration.Observe(time.Since(start).Seconds())

		if err != nil {
			m.metrics.serves.WithLabelValues("wait_error").Inc()
			return nil, err
		}
	}

	if segment.State == Failed {
		m.metrics.serves.WithLabelValues("failed").Inc()
		return nil, segmentError(segment)
	}

	// refresh timestamp, extending its cache life
	segment, ok = m.store.Update(id, func(s *Segment) {
		if s.State == Downloaded {
			s.LastTouched = time.Now()
		}
	})
	if !ok {
		m.metrics.serves.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("%w: segment %s evicted", ErrNotFound, id)
	}
	if segment.State != Downloaded {
		m.metrics.serves.WithLabelValues("failed").Inc()
		return nil, segmentError(segment)
	}

	file, err := os.Open(segment.LocalPath)
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.Warn().Str("id", id).Str("path", segment.LocalPath).Msg("segment file not found")
			m.failSegment(id, Downloaded, ErrFileMissing)
			m.metrics.serves.WithLabelValues("file_missing").Inc()
			return nil, fmt.Errorf("%w: segment %s", ErrFileMissing, id)
		}

		m.metrics.serves.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("unable to open segment %s: %w", id, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		m.metrics.serves.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("unable to stat segment %s: %w", id, err)
	}

	m.metrics.serves.WithLabelValues("served").Inc()
	return &SegmentFile{
		File:        file,
		ID:          id,
		Size:        stat.Size(),
		ModTime:     stat.ModTime(),
		ContentType: m.config.ContentType,
	}, nil
}

// waitForSegment polls the store until the segment leaves Pending.
func (m *ManagerCtx) waitForSegment(ctx context.Context, id string) (Segment, error) {
	timeout := time.NewTimer(m.config.WaitTimeout)
	defer timeout.Stop()

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Segment{}, ctx.Err()
		case <-timeout.C:
			m.logger.Warn().Str("id", id).Dur("timeout", m.config.WaitTimeout).Msg("segment wait timeouted")

			segment, ok := m.failSegment(id, Pending, ErrTimeout)
			if !ok {
				return Segment{}, fmt.Errorf("%w: segment %s evicted", ErrNotFound, id)
			}
			// it might have been resolved right before
			if segment.State == Downloaded {
				return segment, nil
			}
			return Segment{}, segmentError(segment)
		case <-ticker.C:
			segment, ok := m.store.Get(id)
			if !ok {
				return Segment{}, fmt.Errorf("%w: segment %s evicted", ErrNotFound, id)
			}
			if segment.State != Pending {
				return segment, nil
			}
		}
	}
}

// failSegment moves the segment to Failed if it is still in the given state.
func (m *ManagerCtx) failSegment(id string, from State, reason error) (Segment, bool) {
	return m.store.Update(id, func(s *Segment) {
		if s.State == from {
			s.State = Failed
			s.Err = reason
			s.LastTouched = time.Now()
		}
	})
}

func segmentError(segment Segment) error {
	if segment.Err == nil {
		return fmt.Errorf("%w: segment %s", ErrUpstreamFetchFailed, segment.ID)
	}
	return fmt.Errorf("segment %s: %w", segment.ID, segment.Err)
}
