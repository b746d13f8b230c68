package segmentproxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/m1k1o/go-hlscache/modules"
	"github.com/m1k1o/go-hlscache/pkg/segcache"
)

var _ modules.Module = (*ModuleCtx)(nil)

var resourceRegex = regexp.MustCompile(`^[0-9A-Za-z_-]+$`)

type ModuleCtx struct {
	logger     zerolog.Logger
	pathPrefix string
	config     Config

	manager segcache.Manager
}

func New(pathPrefix string, manager segcache.Manager, config *Config) *ModuleCtx {
	return &ModuleCtx{
		logger:     log.With().Str("module", "segmentproxy").Logger(),
		pathPrefix: pathPrefix,
		config:     config.withDefaultValues(),
		manager:    manager,
	}
}

func (m *ModuleCtx) Shutdown() {
	m.manager.Shutdown()
}

func (m *ModuleCtx) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, m.pathPrefix) {
		http.NotFound(w, r)
		return
	}

	p := r.URL.Path
	// remove path prefix
	p = strings.TrimPrefix(p, m.pathPrefix)
	// remove leading and ending /
	p = strings.Trim(p, "/")
	// split path to parts
	s := strings.Split(p, "/")

	switch {
	// {session}/streamHLS.m3u8
	case len(s) == 2 && s[1] == m.config.PlaylistName:
		if !resourceRegex.MatchString(s[0]) {
			http.Error(w, "400 invalid parameters", http.StatusBadRequest)
			return
		}
		m.servePlaylist(w, r, s[0])
	// {session}/segment/{id}
	case len(s) == 3 && s[1] == segmentPathName:
		if !resourceRegex.MatchString(s[0]) || !resourceRegex.MatchString(s[2]) {
			http.Error(w, "400 invalid parameters", http.StatusBadRequest)
			return
		}
		m.serveSegment(w, r, s[2])
	default:
		http.NotFound(w, r)
	}
}

func (m *ModuleCtx) servePlaylist(w http.ResponseWriter, r *http.Request, sessionID string) {
	playlist, err := m.manager.RewritePlaylist(r.Context(), sessionID)
	if err != nil {
		m.logger.Warn().Err(err).Str("session", sessionID).Msg("unable to serve playlist")
		httpError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-mpegURL")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = io.WriteString(w, playlist)
}

func (m *ModuleCtx) serveSegment(w http.ResponseWriter, r *http.Request, id string) {
	segment, err := m.manager.ServeSegment(r.Context(), id)
	if err != nil {
		// client went away while waiting
		if errors.Is(err, context.Canceled) {
			m.logger.Debug().Str("id", id).Msg("segment request canceled")
			return
		}

		m.logger.Warn().Err(err).Str("id", id).Msg("unable to serve segment")
		httpError(w, err)
		return
	}
	defer segment.Close()

	w.Header().Set("Content-Type", segment.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(segment.Size, 10))
	w.Header().Set("Last-Modified", segment.ModTime.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, segment); err != nil {
		m.logger.Debug().Err(err).Str("id", id).Msg("error while copying segment")
	}
}

func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, segcache.ErrNotFound):
		http.Error(w, "404 not found", http.StatusNotFound)
	case errors.Is(err, segcache.ErrTimeout):
		http.Error(w, "504 timeout", http.StatusGatewayTimeout)
	case errors.Is(err, segcache.ErrUpstreamFetchFailed):
		http.Error(w, "502 upstream fetch failed", http.StatusBadGateway)
	default:
		http.Error(w, "500 internal server error", http.StatusInternalServerError)
	}
}
