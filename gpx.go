package main

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/tkrajina/gpxgo/gpx"

	"gps_hyperlapse/internal/geo"
	"gps_hyperlapse/internal/hyperlapse"
)

// --- Structs ---

type trackPoint struct {
	geo.Point
	Ele    float64
	HasEle bool
}

// gpxTrack is a parsed GPX file: one leg per track segment, plus one leg per
// <rte> element.
type gpxTrack struct {
	Legs [][]trackPoint
}

var errNoElevationData = errors.New("gpx track has no elevation data")

// --- GPX Parsing ---

func parseGpx(filePath string) (*gpxTrack, error) {
	gpxFile, err := gpx.ParseFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GPX file: %w", err)
	}
	return newGpxTrack(gpxFile)
}

func parseGpxBytes(data []byte) (*gpxTrack, error) {
	gpxFile, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GPX data: %w", err)
	}
	return newGpxTrack(gpxFile)
}

func newGpxTrack(gpxFile *gpx.GPX) (*gpxTrack, error) {
	t := &gpxTrack{}
	for _, track := range gpxFile.Tracks {
		for _, segment := range track.Segments {
			if leg := convertGpxPoints(segment.Points); len(leg) > 0 {
				t.Legs = append(t.Legs, leg)
			}
		}
	}
	for _, route := range gpxFile.Routes {
		if leg := convertGpxPoints(route.Points); len(leg) > 0 {
			t.Legs = append(t.Legs, leg)
		}
	}
	if len(t.Legs) == 0 {
		return nil, errors.New("GPX file contains no track or route points")
	}
	return t, nil
}

func convertGpxPoints(points []gpx.GPXPoint) []trackPoint {
	out := make([]trackPoint, 0, len(points))
	for _, p := range points {
		tp := trackPoint{Point: geo.Point{Lat: p.Latitude, Lng: p.Longitude}}
		if p.Elevation.NotNull() {
			tp.Ele = p.Elevation.Value()
			tp.HasEle = true
		}
		out = append(out, tp)
	}
	return out
}

// vertices flattens every leg into one polyline, remembering where each leg
// ends.
func (t *gpxTrack) vertices() ([]trackPoint, []int) {
	var all []trackPoint
	var ends []int
	for _, leg := range t.Legs {
		all = append(all, leg...)
		ends = append(ends, len(all))
	}
	return all, ends
}

// --- Directions ---

// gpxDirections serves routes cut from a recorded GPX track.
type gpxDirections struct {
	track   *gpxTrack
	geodesy geo.Geodesy
}

func newGpxDirections(track *gpxTrack) *gpxDirections {
	return &gpxDirections{track: track, geodesy: geo.Spherical{}}
}

// Directions cuts the track between the vertices closest to the requested
// origin and destination. A nil endpoint keeps the track's own start or end.
func (d *gpxDirections) Directions(ctx context.Context, req hyperlapse.RouteRequest) (hyperlapse.Route, error) {
	if err := ctx.Err(); err != nil {
		return hyperlapse.Route{}, err
	}
	all, ends := d.track.vertices()

	from, to := 0, len(all)-1
	if req.Origin != nil {
		from = d.nearest(all, *req.Origin)
	}
	if req.Destination != nil {
		to = d.nearest(all, *req.Destination)
	}
	if from > to {
		return hyperlapse.Route{}, fmt.Errorf("origin %s lies after destination %s on the track", req.Origin, req.Destination)
	}

	route := hyperlapse.Route{}
	for i := from; i <= to; i++ {
		route.Path = append(route.Path, all[i].Point)
	}

	start := 0
	for _, end := range ends {
		lo, hi := max(start, from), min(end-1, to)
		start = end
		if lo >= hi {
			continue
		}
		ls := make(orb.LineString, 0, hi-lo+1)
		for i := lo; i <= hi; i++ {
			ls = append(ls, all[i].Orb())
		}
		route.Legs = append(route.Legs, orbgeo.Length(ls))
	}
	return route, nil
}

func (d *gpxDirections) nearest(all []trackPoint, p geo.Point) int {
	best, bestDist := 0, math.Inf(1)
	for i, tp := range all {
		if dist := d.geodesy.Distance(tp.Point, p); dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}

// --- Elevation ---

// trackElevation answers elevation lookups from the GPX track itself, using
// the elevation of the closest recorded point.
type trackElevation struct {
	points  []trackPoint
	geodesy geo.Geodesy
}

func newTrackElevation(track *gpxTrack) *trackElevation {
	all, _ := track.vertices()
	var withEle []trackPoint
	for _, p := range all {
		if p.HasEle {
			withEle = append(withEle, p)
		}
	}
	return &trackElevation{points: withEle, geodesy: geo.Spherical{}}
}

func (e *trackElevation) BatchElevation(ctx context.Context, locations []geo.Point) ([]float64, error) {
	if len(e.points) == 0 {
		return nil, errNoElevationData
	}
	out := make([]float64, len(locations))
	for i, loc := range locations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		best := math.Inf(1)
		for _, p := range e.points {
			if dist := e.geodesy.Distance(p.Point, loc); dist < best {
				best = dist
				out[i] = p.Ele
			}
		}
	}
	return out, nil
}
