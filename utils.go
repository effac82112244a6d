package main

import (
	"flag"
	"fmt"
	"image/color"
	"math"
	"runtime"
	"strconv"
	"strings"

	"gps_hyperlapse/internal/geo"
)

// --- Structs ---

type Arguments struct {
	GpxFile          string
	OutputFile       string
	ConfigFile       string
	EnvFile          string
	Bitrate          string
	Workers          int
	Loops            int
	Retries          int
	From             *geo.Point
	To               *geo.Point
	Lookat           *geo.Point
	Elevation        string
	MapStyle         string
	MapZoom          int
	WidgetSize       int
	ShowMap          bool
	PathWidth        float64
	PathColor        color.Color
	BorderColor      color.Color
	IndicatorColor   color.Color
	RenderFirstFrame bool
	Is2x             bool
	TileSize         int
	TileCacheDir     string
	Debug            bool
}

// --- Argument Parsing ---

func parseArguments(argv []string) (*Arguments, error) {
	args := &Arguments{}
	fs := flag.NewFlagSet("gps_hyperlapse", flag.ContinueOnError)
	var fromStr, toStr, lookatStr, pathColorStr, borderColorStr, indicatorColorStr string

	fs.StringVar(&args.GpxFile, "gpx", "example.gpx", "Path to the GPX file with the route.")
	fs.StringVar(&args.OutputFile, "o", "hyperlapse.mp4", "Output video file name.")
	fs.StringVar(&args.ConfigFile, "config", "", "Optional YAML file with hyperlapse options.")
	fs.StringVar(&args.EnvFile, "env", ".env", "Optional .env file with MAPILLARY_TOKEN and REDIS_* settings.")
	fs.StringVar(&args.Bitrate, "bitrate", "5M", "Video bitrate (e.g., 5M).")
	fs.IntVar(&args.Workers, "workers", runtime.NumCPU(), "Number of parallel PNG encoders.")
	fs.IntVar(&args.Loops, "loops", 1, "Number of forward-and-back passes to render.")
	fs.IntVar(&args.Retries, "retries", 3, "Retries for a failed panorama lookup or download before giving up.")
	fs.StringVar(&fromStr, "from", "", "Start the route at the track point closest to lat,lng.")
	fs.StringVar(&toStr, "to", "", "End the route at the track point closest to lat,lng.")
	fs.StringVar(&lookatStr, "lookat", "", "Keep the camera pointed at lat,lng.")
	fs.StringVar(&args.Elevation, "elevation", "off", "Elevation source: off, gpx or open.")
	fs.StringVar(&args.MapStyle, "style", "positron", "Minimap tile style (e.g., default, cyclosm, positron).")
	fs.IntVar(&args.MapZoom, "map-zoom", 15, "Minimap zoom level.")
	fs.IntVar(&args.WidgetSize, "widget-size", 160, "Minimap diameter in pixels.")
	fs.BoolVar(&args.ShowMap, "map", true, "Draw the route minimap.")
	fs.Float64Var(&args.PathWidth, "path-width", 4, "Width of the route on the minimap.")
	fs.StringVar(&pathColorStr, "path-color", "#FF0000", "Color of the route on the minimap (hex).")
	fs.StringVar(&borderColorStr, "border-color", "#ff9800", "Color of the minimap border (hex).")
	fs.StringVar(&indicatorColorStr, "indicator-color", "#FFFFFF", "Color of the text overlay (hex).")
	fs.BoolVar(&args.RenderFirstFrame, "render-first-frame", false, "Render only the first frame and save as first_frame.png.")
	fs.BoolVar(&args.Is2x, "2x", false, "Use 2x tiles.")
	fs.StringVar(&args.TileCacheDir, "tile-cache", "tiles", "Directory for cached map tiles.")
	fs.BoolVar(&args.Debug, "debug", false, "Print the sampled route points and exit.")

	if err := fs.Parse(argv); err != nil {
		return nil, err
	}

	var err error
	if args.From, err = parseLatLng(fromStr); err != nil {
		return nil, fmt.Errorf("-from: %w", err)
	}
	if args.To, err = parseLatLng(toStr); err != nil {
		return nil, fmt.Errorf("-to: %w", err)
	}
	if args.Lookat, err = parseLatLng(lookatStr); err != nil {
		return nil, fmt.Errorf("-lookat: %w", err)
	}
	switch args.Elevation {
	case "off", "gpx", "open":
	default:
		return nil, fmt.Errorf("unknown elevation source %q", args.Elevation)
	}
	if args.Loops < 1 {
		args.Loops = 1
	}

	if args.PathColor, err = parseHexColor(pathColorStr); err != nil {
		return nil, fmt.Errorf("-path-color: %w", err)
	}
	if args.BorderColor, err = parseHexColor(borderColorStr); err != nil {
		return nil, fmt.Errorf("-border-color: %w", err)
	}
	if args.IndicatorColor, err = parseHexColor(indicatorColorStr); err != nil {
		return nil, fmt.Errorf("-indicator-color: %w", err)
	}

	if args.Is2x {
		args.TileSize = 512
	} else {
		args.TileSize = 256
	}

	return args, nil
}

// parseLatLng parses "lat,lng". An empty string yields nil.
func parseLatLng(s string) (*geo.Point, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("expected lat,lng, got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude %q: %w", parts[0], err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude %q: %w", parts[1], err)
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, fmt.Errorf("coordinate out of range: %q", s)
	}
	return &geo.Point{Lat: lat, Lng: lng}, nil
}

func parseHexColor(s string) (color.Color, error) {
	var r, g, b uint8
	_, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b)
	if err != nil {
		return color.Black, err
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

func deg2num(lat, lon float64, zoom int) (float64, float64) {
	latRad := lat * math.Pi / 180
	n := math.Pow(2, float64(zoom))
	xtile := (lon + 180) / 360 * n
	ytile := (1 - math.Asinh(math.Tan(latRad))/math.Pi) / 2 * n
	return xtile, ytile
}
