package hyperlapse

import (
	"context"
	"image"

	"gonum.org/v1/gonum/floats"

	"gps_hyperlapse/internal/geo"
)

// UnknownElevation marks a record whose elevation could not be looked up.
const UnknownElevation = -1.0

// Route is a polyline to sample plus the per-leg distances in meters reported
// by whoever produced it.
type Route struct {
	Path []geo.Point
	Legs []float64
}

// TotalDistance sums the leg distances. Routes without legs fall back to the
// geodesic length of the path.
func (r Route) TotalDistance(g geo.Geodesy) float64 {
	if len(r.Legs) > 0 {
		return floats.Sum(r.Legs)
	}
	var total float64
	for i := 1; i < len(r.Path); i++ {
		total += g.Distance(r.Path[i-1], r.Path[i])
	}
	return total
}

// RouteRequest narrows a directions lookup. Nil endpoints mean "use the
// provider's natural start/end".
type RouteRequest struct {
	Origin      *geo.Point
	Destination *geo.Point
}

// DirectionsProvider produces the route to sample.
type DirectionsProvider interface {
	Directions(ctx context.Context, req RouteRequest) (Route, error)
}

// Panorama is the metadata a PanoramaService resolves for a location.
type Panorama struct {
	PanoID    string
	Location  geo.Point
	Heading   float64 // radians
	Pitch     float64 // degrees
	Elevation float64
	Copyright string
	Date      string
}

// PanoramaRecord is one entry of the Reel.
type PanoramaRecord struct {
	Location geo.Point
	PanoID   string
	// Heading is the panorama's rotation in radians.
	Heading float64
	// Pitch is the panorama's roll correction in degrees.
	Pitch float64
	// Elevation is written once by the elevation stage; UnknownElevation when
	// no lookup succeeded.
	Elevation float64
	// Image is written once by the image stage.
	Image        image.Image
	Copyright    string
	CapturedDate string
}

func newRecord(p Panorama) *PanoramaRecord {
	return &PanoramaRecord{
		Location:     p.Location,
		PanoID:       p.PanoID,
		Heading:      p.Heading,
		Pitch:        p.Pitch,
		Elevation:    p.Elevation,
		Copyright:    p.Copyright,
		CapturedDate: p.Date,
	}
}

// PanoramaService resolves locations to panoramas and fetches their imagery.
type PanoramaService interface {
	Resolve(ctx context.Context, p geo.Point) (Panorama, error)
	FetchImage(ctx context.Context, panoID string) (image.Image, error)
}

// ElevationService looks up ground elevation in meters for a batch of
// locations. Implementations return an error wrapping ErrOverQuota when the
// provider refuses for quota reasons.
type ElevationService interface {
	BatchElevation(ctx context.Context, locations []geo.Point) ([]float64, error)
}

// Renderer draws one frame. It owns whatever drawing resources it needs.
type Renderer interface {
	Render(v View) error
}

// View is everything a Renderer needs for a frame.
type View struct {
	Position int
	Point    *PanoramaRecord
	Image    image.Image
	Camera   CameraOrientation
	Width    int
	Height   int
	FOV      float64
}
