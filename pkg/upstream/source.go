package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/m1k1o/go-hlscache/pkg/segcache"
)

// SourceCtx resolves sessions to upstream media playlists and downloads them.
type SourceCtx struct {
	logger zerolog.Logger
	client *http.Client

	config   Config
	configMu sync.RWMutex
}

func New(config *Config) *SourceCtx {
	return &SourceCtx{
		logger: log.With().Str("module", "upstream").Logger(),
		client: &http.Client{},
		config: config.withDefaultValues(),
	}
}

func (s *SourceCtx) ConfigReload(config *Config) {
	s.configMu.Lock()
	defer s.configMu.Unlock()

	s.config = config.withDefaultValues()
	s.logger.Info().Int("sources", len(s.config.Sources)).Msg("config reloaded")
}

func (s *SourceCtx) getConfig() Config {
	s.configMu.RLock()
	defer s.configMu.RUnlock()

	return s.config
}

// Fetch downloads the media playlist of the session. Returned base url is
// the directory of the final playlist url, after redirects.
func (s *SourceCtx) Fetch(ctx context.Context, sessionID string) (string, *url.URL, error) {
	playlistUrl, err := s.Resolve(ctx, sessionID)
	if err != nil {
		return "", nil, err
	}

	config := s.getConfig()
	logger := s.logger.With().Str("session", sessionID).Str("url", playlistUrl).Logger()

	ctx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playlistUrl, nil)
	if err != nil {
		return "", nil, fmt.Errorf("%w: invalid playlist url: %v", segcache.ErrUpstreamFetchFailed, err)
	}

	if config.UserAgent != "" {
		req.Header.Set("User-Agent", config.UserAgent)
	}
	req.Header.Set("Accept", config.Accept)
	for key, val := range config.Headers {
		req.Header.Set(key, expand(val, sessionID))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		logger.Err(err).Msg("unable to get playlist")
		return "", nil, wrapRequestError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warn().Int("code", resp.StatusCode).Msg("invalid HTTP response")
		return "", nil, fmt.Errorf("%w: playlist responded with status code %d", segcache.ErrUpstreamFetchFailed, resp.StatusCode)
	}

	buf, err := io.ReadAll(io.LimitReader(resp.Body, config.MaxPlaylistSize+1))
	if err != nil {
		logger.Err(err).Msg("unable to read response body")
		return "", nil, wrapRequestError(err)
	}

	// truncated playlist would end with a partial segment line
	if int64(len(buf)) > config.MaxPlaylistSize {
		logger.Warn().Int64("limit", config.MaxPlaylistSize).Msg("playlist too large")
		return "", nil, fmt.Errorf("%w: playlist exceeds %d bytes", segcache.ErrUpstreamFetchFailed, config.MaxPlaylistSize)
	}

	baseUrl := resp.Request.URL.ResolveReference(&url.URL{Path: "."})

	logger.Debug().Int("size", len(buf)).Str("base-url", baseUrl.String()).Msg("fetched playlist")
	return string(buf), baseUrl, nil
}

func wrapRequestError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", segcache.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", segcache.ErrUpstreamFetchFailed, err)
}
