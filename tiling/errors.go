package tiling

import "errors"

var (
	// ErrConfig reports a request that cannot be tiled: no cores, no data,
	// or an on-chip budget too small for one aligned chunk.
	ErrConfig = errors.New("invalid tiling configuration")

	// ErrBounds reports a share or chunk that escapes the range it belongs to.
	ErrBounds = errors.New("tiling bounds violation")
)
