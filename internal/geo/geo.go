// Package geo holds the geographic primitives shared by the route sampler,
// the camera model and the CLI services.
package geo

import (
	"fmt"

	"github.com/golang/geo/s1"
	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// Point is a geographic coordinate in degrees.
type Point struct {
	Lat float64 `yaml:"lat" json:"lat"`
	Lng float64 `yaml:"lng" json:"lng"`
}

func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

// Orb returns the point in orb's [lng, lat] order.
func (p Point) Orb() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// FromOrb converts an orb point back to a Point.
func FromOrb(p orb.Point) Point {
	return Point{Lat: p.Lat(), Lng: p.Lon()}
}

// Geodesy is the distance/bearing/interpolation capability the sampler and
// camera consume.
type Geodesy interface {
	// Distance returns the great-circle distance between a and b in meters.
	Distance(a, b Point) float64
	// Bearing returns the initial bearing from a to b in degrees, in [-180, 180].
	Bearing(a, b Point) float64
	// Interpolate returns the point at fraction t of the way from a to b.
	Interpolate(t float64, a, b Point) Point
}

// Spherical implements Geodesy on a spherical earth.
type Spherical struct{}

func (Spherical) Distance(a, b Point) float64 {
	return orbgeo.Distance(a.Orb(), b.Orb())
}

func (Spherical) Bearing(a, b Point) float64 {
	return orbgeo.Bearing(a.Orb(), b.Orb())
}

// Interpolate is linear in latitude and longitude. Route vertices are close
// enough together that the difference from a great-circle step is negligible.
func (Spherical) Interpolate(t float64, a, b Point) Point {
	return Point{
		Lat: a.Lat + t*(b.Lat-a.Lat),
		Lng: a.Lng + t*(b.Lng-a.Lng),
	}
}

// DegreesToRadians converts an angle in degrees to radians.
func DegreesToRadians(d float64) float64 {
	return (s1.Angle(d) * s1.Degree).Radians()
}

// RadiansToDegrees converts an angle in radians to degrees.
func RadiansToDegrees(r float64) float64 {
	return s1.Angle(r).Degrees()
}
