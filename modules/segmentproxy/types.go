package segmentproxy

// rewritten playlists reference segments relative to the playlist
const SegmentUrlPrefix = segmentPathName + "/"

const segmentPathName = "segment"

type Config struct {
	PlaylistName string
}

func (c Config) withDefaultValues() Config {
	if c.PlaylistName == "" {
		c.PlaylistName = "streamHLS.m3u8"
	}
	return c
}
