package upstream

import (
	"strings"
	"time"
)

// placeholder replaced by the session id in templates, arguments and headers
const SessionPlaceholder = "{id}"

type Config struct {
	Sources  map[string]string // session id to playlist url
	Template string            // optional: playlist url template, e.g. https://example.com/{id}/index.m3u8

	Command string   // optional: command printing playlist url to stdout, e.g. yt-dlp
	Args    []string // command arguments

	Timeout   time.Duration // bounds resolving and playlist download separately
	UserAgent string
	Accept    string
	Headers   map[string]string

	MaxPlaylistSize int64 // in bytes
}

func (c Config) withDefaultValues() Config {
	if c.Timeout == 0 {
		c.Timeout = 15 * time.Second
	}
	if c.Accept == "" {
		c.Accept = "application/x-mpegURL, application/vnd.apple.mpegurl, */*"
	}
	if c.MaxPlaylistSize == 0 {
		c.MaxPlaylistSize = 8 << 20
	}
	// copy maps, config can be reloaded while in use
	sources := make(map[string]string, len(c.Sources))
	for key, val := range c.Sources {
		sources[key] = val
	}
	c.Sources = sources
	headers := make(map[string]string, len(c.Headers))
	for key, val := range c.Headers {
		headers[key] = val
	}
	c.Headers = headers
	return c
}

func expand(s, sessionID string) string {
	return strings.ReplaceAll(s, SessionPlaceholder, sessionID)
}
