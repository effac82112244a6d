package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAngleConversion(t *testing.T) {
	assert.InDelta(t, math.Pi, DegreesToRadians(180), 1e-12)
	assert.InDelta(t, -math.Pi/2, DegreesToRadians(-90), 1e-12)
	assert.InDelta(t, 45.0, RadiansToDegrees(math.Pi/4), 1e-12)
	assert.InDelta(t, 123.4, RadiansToDegrees(DegreesToRadians(123.4)), 1e-9)
}

func TestSphericalDistance(t *testing.T) {
	g := Spherical{}

	a := Point{Lat: 0, Lng: 0}
	b := Point{Lat: 0, Lng: 1}

	// one degree of longitude on the equator, ~111.3 km
	assert.InDelta(t, 111_319, g.Distance(a, b), 200)
	assert.Zero(t, g.Distance(a, a))
}

func TestSphericalBearing(t *testing.T) {
	g := Spherical{}
	origin := Point{Lat: 10, Lng: 10}

	assert.InDelta(t, 0, g.Bearing(origin, Point{Lat: 11, Lng: 10}), 1e-6)
	assert.InDelta(t, 180, math.Abs(g.Bearing(origin, Point{Lat: 9, Lng: 10})), 1e-6)
	assert.InDelta(t, 90, g.Bearing(origin, Point{Lat: 10, Lng: 10.001}), 0.01)
	assert.InDelta(t, -90, g.Bearing(origin, Point{Lat: 10, Lng: 9.999}), 0.01)
}

func TestSphericalInterpolate(t *testing.T) {
	g := Spherical{}
	a := Point{Lat: 40, Lng: -74}
	b := Point{Lat: 41, Lng: -72}

	assert.Equal(t, a, g.Interpolate(0, a, b))
	assert.Equal(t, b, g.Interpolate(1, a, b))

	mid := g.Interpolate(0.5, a, b)
	assert.InDelta(t, 40.5, mid.Lat, 1e-12)
	assert.InDelta(t, -73, mid.Lng, 1e-12)
}

func TestOrbRoundTrip(t *testing.T) {
	p := Point{Lat: 51.5, Lng: -0.12}
	o := p.Orb()
	assert.Equal(t, -0.12, o[0])
	assert.Equal(t, 51.5, o[1])
	assert.Equal(t, p, FromOrb(o))
	assert.Equal(t, "51.500000,-0.120000", p.String())
}
