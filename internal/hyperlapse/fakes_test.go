package hyperlapse

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gps_hyperlapse/internal/geo"
	"gps_hyperlapse/internal/timeutil"
)

var errUnavailable = errors.New("service unavailable")

// fakePanoramas resolves a point to the pano ID registered for its Lng.
type fakePanoramas struct {
	mu sync.Mutex

	ids          map[float64]string
	resolveCalls []geo.Point
	fetchCalls   []string

	// Hooks run after the call is recorded and before it returns. A non-nil
	// error fails the call.
	onResolve func(call int, p geo.Point) error
	onFetch   func(call int, id string) error
}

func newFakePanoramas(ids map[float64]string) *fakePanoramas {
	return &fakePanoramas{ids: ids}
}

func (f *fakePanoramas) Resolve(_ context.Context, p geo.Point) (Panorama, error) {
	f.mu.Lock()
	f.resolveCalls = append(f.resolveCalls, p)
	call := len(f.resolveCalls)
	hook := f.onResolve
	id := f.ids[p.Lng]
	f.mu.Unlock()

	if hook != nil {
		if err := hook(call, p); err != nil {
			return Panorama{}, err
		}
	}
	return Panorama{PanoID: id, Location: p, Copyright: "test", Date: "2024-05"}, nil
}

func (f *fakePanoramas) FetchImage(_ context.Context, id string) (image.Image, error) {
	f.mu.Lock()
	f.fetchCalls = append(f.fetchCalls, id)
	call := len(f.fetchCalls)
	hook := f.onFetch
	f.mu.Unlock()

	if hook != nil {
		if err := hook(call, id); err != nil {
			return nil, err
		}
	}
	return image.NewRGBA(image.Rect(0, 0, 4, 2)), nil
}

func (f *fakePanoramas) resolveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.resolveCalls)
}

func (f *fakePanoramas) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetchCalls)
}

// fakeElevation answers each location with Lng * scale, or with err.
type fakeElevation struct {
	mu    sync.Mutex
	scale float64
	calls [][]geo.Point
	err   func(locations []geo.Point) error
}

func (f *fakeElevation) BatchElevation(_ context.Context, locations []geo.Point) ([]float64, error) {
	f.mu.Lock()
	f.calls = append(f.calls, locations)
	f.mu.Unlock()

	if f.err != nil {
		if err := f.err(locations); err != nil {
			return nil, err
		}
	}
	out := make([]float64, len(locations))
	for i, l := range locations {
		out[i] = l.Lng * f.scale
	}
	return out, nil
}

func (f *fakeElevation) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type captureRenderer struct {
	mu    sync.Mutex
	views []View
	err   error
}

func (r *captureRenderer) Render(v View) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
	return r.err
}

func (r *captureRenderer) last() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.views[len(r.views)-1]
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) count(t EventType) int {
	n := 0
	for _, et := range r.types() {
		if et == t {
			n++
		}
	}
	return n
}

func (r *recorder) of(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	h        *Hyperlapse
	panos    *fakePanoramas
	elev     *fakeElevation
	renderer *captureRenderer
	clock    *timeutil.MockClock
	events   *recorder
}

func newFixture(t *testing.T, opts Options, ids map[float64]string) *fixture {
	t.Helper()
	f := &fixture{
		panos:    newFakePanoramas(ids),
		elev:     &fakeElevation{scale: 1},
		renderer: &captureRenderer{},
		clock:    timeutil.NewMockClock(epoch),
		events:   &recorder{},
	}
	h, err := New(opts, Services{
		Geodesy:   lineGeodesy{},
		Panoramas: f.panos,
		Elevation: f.elev,
		Renderer:  f.renderer,
		Clock:     f.clock,
	})
	require.NoError(t, err)
	h.Subscribe(f.events.listen)
	f.h = h
	return f
}

// straight returns a route along the line whose samples land on every
// multiple of 10 m up to length.
func straight(length float64) GenerateParams {
	return GenerateParams{
		Route:                 Route{Path: line(0, length)},
		DistanceBetweenPoints: 10,
		MaxPoints:             1000,
	}
}

func panoIDs(records []*PanoramaRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.PanoID
	}
	return out
}
