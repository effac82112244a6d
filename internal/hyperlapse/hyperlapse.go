// Package hyperlapse turns a route into an animated sequence of panoramas.
//
// A Hyperlapse samples the route into evenly spaced points, resolves them to
// distinct panoramas, optionally annotates elevations, fetches imagery one
// panorama at a time and then plays the resulting Reel back and forth,
// deriving a camera orientation on every tick.
//
// Generate blocks while the pipeline runs; Tick, Play, Pause, Cancel and the
// setters may be called concurrently from the host's render loop.
package hyperlapse

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"gps_hyperlapse/internal/geo"
	"gps_hyperlapse/internal/timeutil"
)

// Direction is the way the playback cursor is moving.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// PlaybackCursor points into the Reel.
type PlaybackCursor struct {
	Index     int
	Direction Direction
}

// Services are the collaborators a Hyperlapse consumes. Panoramas is
// required; Geodesy and Clock default to geo.Spherical and the wall clock.
// A nil Elevation behaves like a provider that is always disabled, and a nil
// Renderer runs headless (frame events are still emitted).
type Services struct {
	Geodesy   geo.Geodesy
	Panoramas PanoramaService
	Elevation ElevationService
	Renderer  Renderer
	Clock     timeutil.Clock
}

type stage int

const (
	stageIdle stage = iota
	stageResolve
	stageElevation
	stageImages
)

// Hyperlapse owns the raw points, the Reel and the playback cursor.
type Hyperlapse struct {
	mu sync.Mutex

	opts     Options
	geodesy  geo.Geodesy
	panos    PanoramaService
	elev     ElevationService
	renderer Renderer
	clock    timeutil.Clock
	obs      observers

	raw  *Sequence[geo.Point]
	reel *Sequence[*PanoramaRecord]

	cursor  PlaybackCursor
	playing bool
	loading bool

	// pipeline state
	stage   stage
	pending int
	cancel  bool
	stalled bool
	gen     uint64

	// elevationDisabled is a one-way switch set by the first failed lookup.
	elevationDisabled bool
	lookatElevation   float64

	cam camera

	ctime time.Time
	dtime time.Duration
}

// New creates a Hyperlapse.
func New(opts Options, svc Services) (*Hyperlapse, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if svc.Panoramas == nil {
		return nil, fmt.Errorf("%w: a panorama service is required", ErrInvalidParameter)
	}
	if svc.Geodesy == nil {
		svc.Geodesy = geo.Spherical{}
	}
	if svc.Clock == nil {
		svc.Clock = timeutil.RealClock{}
	}

	opts = opts.WithDefaults()
	opts.FOV = math.Floor(opts.FOV)
	return &Hyperlapse{
		opts:     opts,
		geodesy:  svc.Geodesy,
		panos:    svc.Panoramas,
		elev:     svc.Elevation,
		renderer: svc.Renderer,
		clock:    svc.Clock,
		raw:      NewSequence[geo.Point](opts.MaxPoints + 1),
		reel:     NewSequence[*PanoramaRecord](opts.MaxPoints + 1),
		ctime:    svc.Clock.Now(),
	}, nil
}

// Subscribe registers fn for every event. The returned func unsubscribes.
func (h *Hyperlapse) Subscribe(fn Listener) func() {
	return h.obs.subscribe(fn)
}

func (h *Hyperlapse) emit(events ...Event) {
	h.obs.emit(events...)
}

// Reset returns to Idle and clears the Reel, raw points, cursor, camera
// integrators and the per-run offsets. A stalled generation is dropped.
func (h *Hyperlapse) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resetLocked()
	h.loading = false
}

func (h *Hyperlapse) resetLocked() {
	h.gen++
	h.stage = stageIdle
	h.pending = 0
	h.cancel = false
	h.stalled = false
	h.playing = false

	h.raw.Clear()
	h.reel.Clear()

	h.opts.Tilt = 0
	h.opts.Position.X = 0
	h.opts.Offset = Vector3{}
	h.cam = camera{}
	h.cursor = PlaybackCursor{Index: 0, Direction: Forward}
}

func (h *Hyperlapse) IsPlaying() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

func (h *Hyperlapse) IsLoading() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loading
}

// Len returns the number of records in the Reel.
func (h *Hyperlapse) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reel.Len()
}

// Points returns a snapshot of the Reel.
func (h *Hyperlapse) Points() []*PanoramaRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reel.Items()
}

// RawPoints returns the sampled points still pending or already resolved.
// Points that resolved to a duplicate panorama have been removed.
func (h *Hyperlapse) RawPoints() []geo.Point {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.raw.Items()
}

func (h *Hyperlapse) Cursor() PlaybackCursor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor
}

// CurrentPoint returns the record under the cursor, or nil when the Reel is
// empty.
func (h *Hyperlapse) CurrentPoint() *PanoramaRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.reel.Len() == 0 {
		return nil
	}
	return h.reel.At(h.cursor.Index)
}

func (h *Hyperlapse) CurrentImage() image.Image {
	if p := h.CurrentPoint(); p != nil {
		return p.Image
	}
	return nil
}

// CameraPosition returns the camera integrators as a point.
func (h *Hyperlapse) CameraPosition() geo.Point {
	h.mu.Lock()
	defer h.mu.Unlock()
	return geo.Point{Lat: h.cam.lat, Lng: h.cam.lon}
}

// Options returns the current configuration.
func (h *Hyperlapse) Options() Options {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opts
}

// SetPitch overrides the elevation-derived pitch, in degrees.
func (h *Hyperlapse) SetPitch(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cam.pitchTilt = v
}

func (h *Hyperlapse) SetDistanceBetweenPoints(v float64) error {
	if v <= 0 {
		return fmt.Errorf("%w: distance between points %v", ErrInvalidParameter, v)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opts.DistanceBetweenPoints = v
	return nil
}

func (h *Hyperlapse) SetMaxPoints(v int) error {
	if v <= 0 {
		return fmt.Errorf("%w: max points %d", ErrInvalidParameter, v)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opts.MaxPoints = v
	return nil
}

// SetFOV sets the vertical field of view, truncated to whole degrees.
func (h *Hyperlapse) SetFOV(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opts.FOV = math.Floor(v)
}

func (h *Hyperlapse) SetSize(width, height int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opts.Width = width
	h.opts.Height = height
}

func (h *Hyperlapse) SetPosition(p Vector2) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opts.Position = p
}

func (h *Hyperlapse) SetOffset(o Vector3) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opts.Offset = o
}

// SetTilt sets the legacy constant roll in radians.
func (h *Hyperlapse) SetTilt(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opts.Tilt = v
}

// SetRotationCompensation enables an extra camera roll of deg degrees.
func (h *Hyperlapse) SetRotationCompensation(enabled bool, deg float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opts.UseRotationComp = enabled
	h.opts.RotationComp = deg
}

func (h *Hyperlapse) SetMillis(v int) error {
	if v <= 0 {
		return fmt.Errorf("%w: millis %d", ErrInvalidParameter, v)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opts.Millis = v
	return nil
}

// SetUseLookat toggles weighting the heading toward the look-at target.
func (h *Hyperlapse) SetUseLookat(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opts.UseLookat = v
}

// SetLookat changes the look-at target. With callService set and elevation
// still enabled, the target's elevation is refreshed from the
// ElevationService; a failed lookup disables elevation for the session.
func (h *Hyperlapse) SetLookat(ctx context.Context, p geo.Point, callService bool) {
	h.mu.Lock()
	h.opts.Lookat = &p
	h.mu.Unlock()

	if callService {
		h.refreshLookatElevation(ctx, p)
	}
}
