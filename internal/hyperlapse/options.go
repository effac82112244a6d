package hyperlapse

import (
	"fmt"
	"time"

	"gps_hyperlapse/internal/geo"
)

const (
	defaultWidth                 = 800
	defaultHeight                = 400
	defaultDistanceBetweenPoints = 5.0
	defaultMaxPoints             = 100
	defaultFOV                   = 70.0
	defaultZoom                  = 1
	defaultMillis                = 50
)

// Vector2 is a horizontal/vertical camera adjustment in degrees.
type Vector2 struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Vector3 adds a roll component. Z is in degrees.
type Vector3 struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// Options configures a Hyperlapse. Zero values take the defaults.
type Options struct {
	Width        int  `yaml:"width"`
	Height       int  `yaml:"height"`
	UseElevation bool `yaml:"use_elevation"`

	// DistanceBetweenPoints is the minimum sample spacing in meters.
	DistanceBetweenPoints float64 `yaml:"distance_between_points"`
	// MaxPoints bounds the number of raw samples along the route.
	MaxPoints int `yaml:"max_points"`

	FOV  float64 `yaml:"fov"`
	Zoom int     `yaml:"zoom"`

	Lookat    *geo.Point `yaml:"lookat"`
	UseLookat bool       `yaml:"use_lookat"`

	// Millis is the playback frame interval.
	Millis int `yaml:"millis"`

	ElevationOffset float64 `yaml:"elevation"`

	// Tilt is a constant camera roll in radians. Deprecated: use Offset.Z.
	Tilt float64 `yaml:"tilt"`

	Position Vector2 `yaml:"position"`
	// Offset is applied proportionally to playback progress: zero on the
	// first frame, the full amount on the last.
	Offset Vector3 `yaml:"offset"`

	UseRotationComp bool    `yaml:"use_rotation_comp"`
	RotationComp    float64 `yaml:"rotation_comp"`
}

// WithDefaults fills zero fields with the package defaults.
func (o Options) WithDefaults() Options {
	if o.Width == 0 {
		o.Width = defaultWidth
	}
	if o.Height == 0 {
		o.Height = defaultHeight
	}
	if o.DistanceBetweenPoints == 0 {
		o.DistanceBetweenPoints = defaultDistanceBetweenPoints
	}
	if o.MaxPoints == 0 {
		o.MaxPoints = defaultMaxPoints
	}
	if o.FOV == 0 {
		o.FOV = defaultFOV
	}
	if o.Zoom == 0 {
		o.Zoom = defaultZoom
	}
	if o.Millis == 0 {
		o.Millis = defaultMillis
	}
	return o
}

func (o Options) validate() error {
	if o.Width < 0 || o.Height < 0 {
		return fmt.Errorf("%w: viewport %dx%d", ErrInvalidParameter, o.Width, o.Height)
	}
	if o.DistanceBetweenPoints < 0 {
		return fmt.Errorf("%w: distance between points %v", ErrInvalidParameter, o.DistanceBetweenPoints)
	}
	if o.MaxPoints < 0 {
		return fmt.Errorf("%w: max points %d", ErrInvalidParameter, o.MaxPoints)
	}
	if o.Millis < 0 {
		return fmt.Errorf("%w: millis %d", ErrInvalidParameter, o.Millis)
	}
	return nil
}

func (o Options) frameInterval() time.Duration {
	return time.Duration(o.Millis) * time.Millisecond
}
