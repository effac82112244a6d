package hyperlapse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gps_hyperlapse/internal/geo"
)

// lineGeodesy treats Lng as meters along a straight line.
type lineGeodesy struct{}

func (lineGeodesy) Distance(a, b geo.Point) float64 {
	d := b.Lng - a.Lng
	if d < 0 {
		return -d
	}
	return d
}

func (lineGeodesy) Bearing(a, b geo.Point) float64 {
	if b.Lng >= a.Lng {
		return 90
	}
	return -90
}

func (lineGeodesy) Interpolate(t float64, a, b geo.Point) geo.Point {
	return geo.Point{Lat: a.Lat + t*(b.Lat-a.Lat), Lng: a.Lng + t*(b.Lng-a.Lng)}
}

func line(meters ...float64) []geo.Point {
	out := make([]geo.Point, len(meters))
	for i, m := range meters {
		out[i] = geo.Point{Lng: m}
	}
	return out
}

func positions(points []geo.Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Lng
	}
	return out
}

func assertPositions(t *testing.T, want []float64, got []geo.Point) {
	t.Helper()
	require.Len(t, got, len(want), "positions %v", positions(got))
	for i := range want {
		assert.InDelta(t, want[i], got[i].Lng, 1e-9, "point %d", i)
	}
}

func TestTargetSpacing(t *testing.T) {
	assert.Equal(t, 5.0, TargetSpacing(200, 5, 100))
	assert.Equal(t, 20.0, TargetSpacing(2000, 5, 100))
}

func TestSampleStraightLine(t *testing.T) {
	t.Parallel()

	t.Run("spacing divides length", func(t *testing.T) {
		t.Parallel()
		pts, err := Sample(lineGeodesy{}, Route{Path: line(0, 100)}, 10, 100)
		require.NoError(t, err)
		assertPositions(t, []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, pts)
	})

	t.Run("default spacing over 200m", func(t *testing.T) {
		t.Parallel()
		pts, err := Sample(lineGeodesy{}, Route{Path: line(0, 200), Legs: []float64{200}}, 5, 100)
		require.NoError(t, err)
		assert.Len(t, pts, 41)
		assert.Equal(t, 0.0, pts[0].Lng)
		assert.Equal(t, 200.0, pts[len(pts)-1].Lng)
	})

	t.Run("max points widens spacing", func(t *testing.T) {
		t.Parallel()
		pts, err := Sample(lineGeodesy{}, Route{Path: line(0, 1000)}, 5, 10)
		require.NoError(t, err)
		assert.Len(t, pts, 11)
	})
}

func TestSampleCarriesRemainder(t *testing.T) {
	t.Parallel()

	t.Run("remainder shorter than next pair", func(t *testing.T) {
		t.Parallel()
		pts, err := Sample(lineGeodesy{}, Route{Path: line(0, 20, 52)}, 8, 1000)
		require.NoError(t, err)
		assertPositions(t, []float64{0, 10, 24, 24 + 28.0/3, 24 + 56.0/3, 52}, pts)
	})

	t.Run("remainder swallows a short pair", func(t *testing.T) {
		t.Parallel()
		pts, err := Sample(lineGeodesy{}, Route{Path: line(0, 20, 22, 41)}, 8, 1000)
		require.NoError(t, err)
		assertPositions(t, []float64{0, 10, 24, 32.5, 41}, pts)
	})

	t.Run("first pair shorter than spacing", func(t *testing.T) {
		t.Parallel()
		pts, err := Sample(lineGeodesy{}, Route{Path: line(0, 3, 20)}, 8, 1000)
		require.NoError(t, err)
		assertPositions(t, []float64{0, 8, 20}, pts)
	})
}

func TestSampleDegenerate(t *testing.T) {
	pts, err := Sample(lineGeodesy{}, Route{Path: line(42)}, 5, 100)
	require.NoError(t, err)
	assertPositions(t, []float64{42}, pts)

	_, err = Sample(lineGeodesy{}, Route{}, 5, 100)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestSampleRejectsBadParameters(t *testing.T) {
	route := Route{Path: line(0, 100)}

	_, err := Sample(lineGeodesy{}, route, 0, 100)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = Sample(lineGeodesy{}, route, -1, 100)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = Sample(lineGeodesy{}, route, 5, 0)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestSampleSpherical(t *testing.T) {
	// ~1.1 km due east along the equator
	route := Route{Path: []geo.Point{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.01}}}
	pts, err := Sample(geo.Spherical{}, route, 5, 1000)
	require.NoError(t, err)

	// 1113.19 m / 5 m = 222 segments
	assert.Len(t, pts, 223)
	assert.Equal(t, route.Path[0], pts[0])
	assert.Equal(t, route.Path[1], pts[len(pts)-1])
	for i := 1; i < len(pts); i++ {
		assert.Greater(t, pts[i].Lng, pts[i-1].Lng)
	}
}

func TestRouteTotalDistance(t *testing.T) {
	r := Route{Path: line(0, 10, 30)}
	assert.Equal(t, 30.0, r.TotalDistance(lineGeodesy{}))

	r.Legs = []float64{100, 250}
	assert.Equal(t, 350.0, r.TotalDistance(lineGeodesy{}))
}
