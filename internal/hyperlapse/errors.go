package hyperlapse

import (
	"errors"
	"fmt"

	"gps_hyperlapse/internal/geo"
)

var (
	// ErrInvalidParameter rejects bad sampler or option inputs.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrOverQuota is returned by an ElevationService that hit its quota.
	ErrOverQuota = errors.New("elevation service over query limit")
	// ErrLoading is returned by Generate while another generation is in progress.
	ErrLoading = errors.New("hyperlapse is already loading")
	// ErrNotStalled is returned by Resume when no stage is waiting for a retry.
	ErrNotStalled = errors.New("no stalled generation to resume")
)

// ResolveError reports a raw point the PanoramaService could not resolve.
// The pipeline stays parked on Index until Resume or Cancel.
type ResolveError struct {
	Index int
	Point geo.Point
	Err   error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve panorama at point %d (%s): %v", e.Index, e.Point, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// FetchImageError reports a Reel entry whose imagery could not be fetched.
type FetchImageError struct {
	Index  int
	PanoID string
	Err    error
}

func (e *FetchImageError) Error() string {
	return fmt.Sprintf("fetch image for panorama %d (%s): %v", e.Index, e.PanoID, e.Err)
}

func (e *FetchImageError) Unwrap() error { return e.Err }
