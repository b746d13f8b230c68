package segcache

import (
	"context"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type State int

const (
	Pending State = iota
	Downloaded
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Downloaded:
		return "downloaded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Segment is one locally exposed media segment. Values returned by the
// store are snapshots, mutating them has no effect on the stored record.
type Segment struct {
	ID          string
	OriginUrl   string
	LocalPath   string
	State       State
	LastTouched time.Time
	Err         error // why the segment failed, nil otherwise

	// set once the fetcher picked up the job
	claimed bool
}

// PlaylistSource supplies the upstream media playlist for a session.
type PlaylistSource interface {
	Fetch(ctx context.Context, sessionID string) (document string, baseUrl *url.URL, err error)
}

type Config struct {
	CacheDir         string // directory where segment files are stored, created on start
	SegmentExtension string
	SegmentUrlPrefix string // rewritten playlist lines are SegmentUrlPrefix + id
	ContentType      string

	Workers      int           // fixed number of fetch workers
	QueueSize    int           // how many fetch jobs can wait for a worker
	FetchTimeout time.Duration // bounds one origin request including body
	UserAgent    string

	WaitTimeout  time.Duration // how long can a request wait for a pending segment
	PollInterval time.Duration // how often is the store polled while waiting

	Retention     time.Duration // idle time after which is segment evicted
	JanitorPeriod time.Duration // how often should be eviction called

	Source     PlaylistSource
	Registerer prometheus.Registerer // optional: metrics are not exported if nil
}

func (c Config) withDefaultValues() Config {
	if c.CacheDir == "" {
		c.CacheDir = "cache/segments"
	}
	if c.SegmentExtension == "" {
		c.SegmentExtension = ".ts"
	}
	if c.SegmentUrlPrefix == "" {
		c.SegmentUrlPrefix = "segment/"
	}
	if c.ContentType == "" {
		c.ContentType = "video/MP2T"
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 4096
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = 10 * time.Second
	}
	if c.WaitTimeout == 0 {
		c.WaitTimeout = 45 * time.Second
	}
	if c.PollInterval == 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.Retention == 0 {
		c.Retention = 3 * time.Hour
	}
	if c.JanitorPeriod == 0 {
		c.JanitorPeriod = 30 * time.Minute
	}
	if c.Registerer == nil {
		c.Registerer = prometheus.NewRegistry()
	}
	return c
}

type Manager interface {
	Start() error
	Shutdown()

	RewritePlaylist(ctx context.Context, sessionID string) (string, error)
	ServeSegment(ctx context.Context, id string) (*SegmentFile, error)
	Stats() map[State]int
}
