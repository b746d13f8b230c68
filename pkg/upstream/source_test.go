package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m1k1o/go-hlscache/pkg/segcache"
)

const testPlaylist = "#EXTM3U\n#EXTINF:4,\nseg0.ts\n"

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		session string
		want    string
		wantErr error
	}{
		{
			name: "static source",
			config: Config{
				Sources:  map[string]string{"abc": "http://origin/abc.m3u8"},
				Template: "http://template/{id}.m3u8",
			},
			session: "abc",
			want:    "http://origin/abc.m3u8",
		},
		{
			name: "static source with lowercased key",
			config: Config{
				Sources: map[string]string{"abcdef": "http://origin/abcdef.m3u8"},
			},
			session: "AbcDef",
			want:    "http://origin/abcdef.m3u8",
		},
		{
			name: "template",
			config: Config{
				Sources:  map[string]string{"other": "http://origin/other.m3u8"},
				Template: "http://template/{id}/index.m3u8?id={id}",
			},
			session: "xyz",
			want:    "http://template/xyz/index.m3u8?id=xyz",
		},
		{
			name: "command",
			config: Config{
				Command: "echo",
				Args:    []string{"https://resolved.example/{id}.m3u8"},
			},
			session: "q1",
			want:    "https://resolved.example/q1.m3u8",
		},
		{
			name:    "no source",
			config:  Config{},
			session: "abc",
			wantErr: segcache.ErrNotFound,
		},
		{
			name: "command with invalid output",
			config: Config{
				Command: "echo",
				Args:    []string{"not a url"},
			},
			session: "abc",
			wantErr: segcache.ErrUpstreamFetchFailed,
		},
		{
			name: "failing command",
			config: Config{
				Command: "false",
			},
			session: "abc",
			wantErr: segcache.ErrUpstreamFetchFailed,
		},
		{
			name: "command timeout",
			config: Config{
				Command: "sleep",
				Args:    []string{"5"},
				Timeout: 100 * time.Millisecond,
			},
			session: "abc",
			wantErr: segcache.ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := New(&tt.config)

			got, err := source.Resolve(context.Background(), tt.session)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFetch(t *testing.T) {
	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		_, _ = io.WriteString(w, testPlaylist)
	}))
	defer srv.Close()

	source := New(&Config{
		Template:  srv.URL + "/live/{id}/index.m3u8",
		UserAgent: "hlscache-test/1.0",
		Headers: map[string]string{
			"Referer": "https://www.example.com/watch?v={id}",
		},
	})

	document, baseUrl, err := source.Fetch(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, testPlaylist, document)
	assert.Equal(t, srv.URL+"/live/abc/", baseUrl.String())

	header := <-headers
	assert.Equal(t, "hlscache-test/1.0", header.Get("User-Agent"))
	assert.Equal(t, "https://www.example.com/watch?v=abc", header.Get("Referer"))
	assert.Contains(t, header.Get("Accept"), "application/x-mpegURL")
}

func TestFetch_Redirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start.m3u8", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/cdn/edge/playlist.m3u8?token=1", http.StatusFound)
	})
	mux.HandleFunc("/cdn/edge/playlist.m3u8", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, testPlaylist)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	source := New(&Config{
		Sources: map[string]string{"abc": srv.URL + "/start.m3u8"},
	})

	_, baseUrl, err := source.Fetch(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/cdn/edge/", baseUrl.String())
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		session string
		wantErr error
	}{
		{
			name: "status code",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "forbidden", http.StatusForbidden)
			},
			session: "abc",
			wantErr: segcache.ErrUpstreamFetchFailed,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				<-r.Context().Done()
			},
			session: "abc",
			wantErr: segcache.ErrTimeout,
		},
		{
			name:    "unknown session",
			session: "unknown",
			wantErr: segcache.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			source := New(&Config{
				Sources: map[string]string{"abc": srv.URL + "/index.m3u8"},
				Timeout: 100 * time.Millisecond,
			})

			_, _, err := source.Fetch(context.Background(), tt.session)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFetch_MaxPlaylistSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, testPlaylist)
	}))
	defer srv.Close()

	tests := []struct {
		name    string
		limit   int64
		wantErr error
	}{
		{
			name:    "exact size",
			limit:   int64(len(testPlaylist)),
			wantErr: nil,
		},
		{
			name:    "one byte over",
			limit:   int64(len(testPlaylist)) - 1,
			wantErr: segcache.ErrUpstreamFetchFailed,
		},
		{
			name:    "cut inside segment line",
			limit:   20,
			wantErr: segcache.ErrUpstreamFetchFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := New(&Config{
				Template:        srv.URL + "/{id}.m3u8",
				MaxPlaylistSize: tt.limit,
			})

			document, _, err := source.Fetch(context.Background(), "abc")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, document)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, testPlaylist, document)
		})
	}
}

func TestConfigReload(t *testing.T) {
	source := New(&Config{
		Sources: map[string]string{"abc": "http://first/abc.m3u8"},
	})

	got, err := source.Resolve(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "http://first/abc.m3u8", got)

	source.ConfigReload(&Config{
		Sources: map[string]string{"abc": "http://second/abc.m3u8"},
	})

	got, err = source.Resolve(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "http://second/abc.m3u8", got)
}

func TestConfig_CopiesMaps(t *testing.T) {
	sources := map[string]string{"abc": "http://first/abc.m3u8"}
	source := New(&Config{Sources: sources})

	sources["abc"] = "http://changed/abc.m3u8"

	got, err := source.Resolve(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "http://first/abc.m3u8", got)
}
