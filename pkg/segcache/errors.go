package segcache

import "errors"

var (
	// unknown segment id, or an empty / unparsable playlist
	ErrNotFound = errors.New("not found")
	// origin could not be reached or answered with an error
	ErrUpstreamFetchFailed = errors.New("upstream fetch failed")
	// wait budget exceeded
	ErrTimeout = errors.New("timeout")
	// record says downloaded but the file is gone
	ErrFileMissing = errors.New("segment file missing")
)
