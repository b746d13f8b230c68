package segcache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// origin serves segment bodies by path and counts requests per path.
type origin struct {
	*httptest.Server

	hitsMu sync.Mutex
	hits   map[string]int

	handler func(w http.ResponseWriter, r *http.Request)
}

func newOrigin(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *origin {
	o := &origin{
		hits:    map[string]int{},
		handler: handler,
	}

	o.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.hitsMu.Lock()
		o.hits[r.URL.Path]++
		o.hitsMu.Unlock()

		o.handler(w, r)
	}))
	t.Cleanup(o.Server.Close)

	return o
}

func (o *origin) Hits(path string) int {
	o.hitsMu.Lock()
	defer o.hitsMu.Unlock()

	return o.hits[path]
}

func (o *origin) BaseUrl(t *testing.T) *url.URL {
	u, err := url.Parse(o.URL + "/path/")
	require.NoError(t, err)
	return u
}

func newTestManager(t *testing.T, config Config) *ManagerCtx {
	if config.CacheDir == "" {
		config.CacheDir = t.TempDir()
	}

	manager := New(&config)
	require.NoError(t, manager.Start())
	t.Cleanup(manager.Shutdown)

	return manager
}

// fakeSource returns a fixed playlist for every session.
type fakeSource struct {
	document string
	baseUrl  *url.URL
	err      error
	calls    int32
}

func (s *fakeSource) Fetch(ctx context.Context, sessionID string) (string, *url.URL, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.document, s.baseUrl, s.err
}
