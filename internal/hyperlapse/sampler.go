package hyperlapse

import (
	"fmt"
	"math"

	"gps_hyperlapse/internal/geo"
)

// TargetSpacing is the distance between samples: the route split into
// maxPoints pieces, but never closer than distanceBetweenPoints.
func TargetSpacing(totalDistance, distanceBetweenPoints float64, maxPoints int) float64 {
	return math.Max(totalDistance/float64(maxPoints), distanceBetweenPoints)
}

// Sample resamples the route polyline into evenly spaced points. Leftover
// arc length from one vertex pair is carried into the next, so spacing stays
// roughly even across vertices. The first and last path vertices are always
// included; the first vertex is kept even when the first vertex pair is
// shorter than the spacing.
func Sample(g geo.Geodesy, route Route, distanceBetweenPoints float64, maxPoints int) ([]geo.Point, error) {
	if distanceBetweenPoints <= 0 {
		return nil, fmt.Errorf("%w: distance between points must be positive, got %v", ErrInvalidParameter, distanceBetweenPoints)
	}
	if maxPoints <= 0 {
		return nil, fmt.Errorf("%w: max points must be positive, got %d", ErrInvalidParameter, maxPoints)
	}

	path := route.Path
	switch len(path) {
	case 0:
		return nil, fmt.Errorf("%w: route has no vertices", ErrInvalidParameter)
	case 1:
		return []geo.Point{path[0]}, nil
	}

	spacing := TargetSpacing(route.TotalDistance(g), distanceBetweenPoints, maxPoints)

	points := []geo.Point{path[0]}
	r := 0.0
	for i := 0; i+1 < len(path); i++ {
		a, b := path[i], path[i+1]
		d := g.Distance(a, b)

		if r > 0 && r < d {
			a = g.Interpolate(r/d, a, b)
			d = g.Distance(a, b)
			points = append(points, a)
			r = 0
		} else if r > 0 {
			r -= d
		}

		if r == 0 {
			segs := math.Floor(d / spacing)
			// j == 0 is a, which is either the route start or was emitted above
			for j := 1; j < int(segs); j++ {
				points = append(points, g.Interpolate(float64(j)/segs, a, b))
			}
			if segs > 0 {
				r = d - spacing*segs
			} else {
				r = spacing * (1 - d/spacing)
			}
		}
	}

	return append(points, path[len(path)-1]), nil
}
