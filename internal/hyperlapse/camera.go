package hyperlapse

import (
	"math"

	"github.com/golang/geo/r3"

	"gps_hyperlapse/internal/geo"
)

const (
	// sphereRadius is the radius of the panorama sphere the camera looks at.
	sphereRadius = 500.0
	maxLatitude  = 85.0
)

// CameraOrientation is the camera pose derived for one frame.
type CameraOrientation struct {
	// Lat and Lon are the integrated view angles in degrees.
	Lat float64
	Lon float64
	// Target is the look-at point on the panorama sphere, camera at origin,
	// Y up.
	Target r3.Vector
	// Roll is the camera roll around its view axis, in radians.
	Roll float64
	// MeshRoll rotates the panorama sphere around the world Z axis, in radians.
	MeshRoll float64
}

// camera holds the state that survives between frames: the integrators, the
// previous targets they integrate against, and the values copied from the
// last drawn record.
type camera struct {
	lat, lon          float64
	prevHeadingTarget float64
	prevPitchTarget   float64

	// pitchTilt is the elevation-derived pitch in degrees.
	pitchTilt     float64
	originHeading float64
	originPitch   float64
	lookatHeading float64
}

// track copies the per-record orientation inputs for rec.
func (c *camera) track(g geo.Geodesy, rec *PanoramaRecord, opts Options, lookatElevation float64) {
	c.originHeading = rec.Heading
	c.originPitch = rec.Pitch

	if opts.Lookat == nil {
		return
	}
	if opts.UseLookat {
		c.lookatHeading = g.Bearing(rec.Location, *opts.Lookat)
	}
	if rec.Elevation == UnknownElevation {
		return
	}
	d := g.Distance(rec.Location, *opts.Lookat)
	if d == 0 {
		return
	}
	dif := lookatElevation - (rec.Elevation - opts.ElevationOffset)
	angle := geo.RadiansToDegrees(math.Atan(math.Abs(dif) / d))
	if dif < 0 {
		angle = -angle
	}
	c.pitchTilt = angle
}

// orient advances the integrators for a frame at progress t in [0, 1).
func (c *camera) orient(t float64, opts Options) CameraOrientation {
	ox := opts.Position.X + opts.Offset.X*t
	oy := opts.Position.Y + opts.Offset.Y*t
	oz := opts.Tilt + geo.DegreesToRadians(opts.Offset.Z)*t

	headingTarget := ox
	if opts.UseLookat {
		headingTarget = c.lookatHeading - geo.RadiansToDegrees(c.originHeading) + ox
	}
	pitchTarget := c.pitchTilt + oy

	c.lon += headingTarget - c.prevHeadingTarget
	c.prevHeadingTarget = headingTarget
	c.lat += pitchTarget - c.prevPitchTarget
	c.prevPitchTarget = pitchTarget
	c.lat = math.Max(-maxLatitude, math.Min(maxLatitude, c.lat))

	phi := geo.DegreesToRadians(90 - c.lat)
	theta := geo.DegreesToRadians(c.lon)

	roll := -oz
	if opts.UseRotationComp {
		roll -= geo.DegreesToRadians(opts.RotationComp)
	}

	return CameraOrientation{
		Lat: c.lat,
		Lon: c.lon,
		Target: r3.Vector{
			X: sphereRadius * math.Sin(phi) * math.Cos(theta),
			Y: sphereRadius * math.Cos(phi),
			Z: sphereRadius * math.Sin(phi) * math.Sin(theta),
		},
		Roll:     roll,
		MeshRoll: geo.DegreesToRadians(c.originPitch),
	}
}
