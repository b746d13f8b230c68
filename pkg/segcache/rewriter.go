package segcache

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/grafov/m3u8"
)

// newSegmentID returns random 32 hex characters.
var newSegmentID = func() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// PlaylistLineWalk calls replace for every media segment reference and
// returns the resulting lines. Comments and tags are kept as they are,
// blank lines are dropped.
func PlaylistLineWalk(document string, replace func(uri string) (string, error)) ([]string, error) {
	lines := []string{}

	for _, line := range strings.Split(document, "\n") {
		line = strings.TrimSuffix(line, "\r")

		uri := strings.TrimSpace(line)
		if uri == "" {
			continue
		}

		if strings.HasPrefix(uri, "#") {
			lines = append(lines, line)
			continue
		}

		newLine, err := replace(uri)
		if err != nil {
			return nil, err
		}

		lines = append(lines, newLine)
	}

	return lines, nil
}

// Rewrite registers a pending record for every segment of the media
// playlist, submits all of them to the fetcher at once and returns
// the playlist pointing to the local segment URLs.
func (m *ManagerCtx) Rewrite(document string, baseUrl *url.URL) (string, []Segment, error) {
	logger := m.logger.With().Str("submodule", "rewriter").Str("base-url", baseUrl.String()).Logger()

	playlist, listType, err := m3u8.DecodeFrom(strings.NewReader(document), false)
	if err != nil {
		logger.Debug().Err(err).Msg("playlist could not be decoded, falling back to line walk")
	} else if listType == m3u8.MASTER {
		return "", nil, fmt.Errorf("%w: expected media playlist, got master playlist", ErrNotFound)
	} else if media, ok := playlist.(*m3u8.MediaPlaylist); ok {
		logger.Debug().
			Float64("target-duration", media.TargetDuration).
			Uint64("media-sequence", media.SeqNo).
			Bool("closed", media.Closed).
			Msg("decoded media playlist")
	}

	now := time.Now()
	segments := []Segment{}

	lines, err := PlaylistLineWalk(document, func(uri string) (string, error) {
		ref, err := url.Parse(uri)
		if err != nil {
			return "", fmt.Errorf("%w: invalid segment reference %q: %v", ErrNotFound, uri, err)
		}

		id := newSegmentID()
		segments = append(segments, Segment{
			ID:          id,
			OriginUrl:   baseUrl.ResolveReference(ref).String(),
			LocalPath:   filepath.Join(m.config.CacheDir, id+m.config.SegmentExtension),
			State:       Pending,
			LastTouched: now,
		})

		return m.config.SegmentUrlPrefix + id, nil
	})
	if err != nil {
		return "", nil, err
	}

	if len(segments) == 0 {
		return "", nil, fmt.Errorf("%w: no media segments found in playlist", ErrNotFound)
	}

	batch := make([]Segment, 0, len(segments))
	for _, segment := range segments {
		if m.store.Insert(segment) {
			batch = append(batch, segment)
		}
	}

	m.metrics.registered.Add(float64(len(batch)))
	m.getFetcher().submit(batch)

	logger.Info().Int("segments", len(batch)).Int("lines", len(lines)).Msg("playlist rewritten")
	return strings.Join(lines, "\n"), batch, nil
}
