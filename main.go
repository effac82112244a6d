package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/golang/freetype/truetype"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/image/font/gofont/goregular"

	"gps_hyperlapse/internal/geo"
	"gps_hyperlapse/internal/hyperlapse"
	"gps_hyperlapse/internal/timeutil"
)

const tileFetchConcurrency = 8

// --- Main Logic ---

func main() {
	args, err := parseArguments(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("Error parsing arguments: %v", err)
	}

	cfg, err := loadConfig(args.ConfigFile)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if err := cfg.loadEnv(args.EnvFile); err != nil {
		log.Fatalf("Error loading environment: %v", err)
	}
	cfg.applyArguments(args)

	ctx := context.Background()

	track, err := parseGpx(args.GpxFile)
	if err != nil {
		log.Fatalf("Error parsing GPX: %v", err)
	}
	route, err := newGpxDirections(track).Directions(ctx, hyperlapse.RouteRequest{Origin: args.From, Destination: args.To})
	if err != nil {
		log.Fatalf("Error building route: %v", err)
	}

	if args.Debug {
		printSamples(route, cfg.Hyperlapse)
		return
	}

	font, err := truetype.Parse(goregular.TTF)
	if err != nil {
		log.Fatal(err)
	}

	panoramas, cleanup := panoramaService(ctx, cfg, cfg.Hyperlapse.Zoom)
	defer cleanup()

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	renderer := newPanoramaRenderer(args, font)
	h, err := hyperlapse.New(cfg.Hyperlapse, hyperlapse.Services{
		Geodesy:   geo.Spherical{},
		Panoramas: panoramas,
		Elevation: elevationService(cfg, args, track),
		Renderer:  renderer,
		Clock:     clock,
	})
	if err != nil {
		log.Fatalf("Error creating hyperlapse: %v", err)
	}

	progress := watchLoading(h)
	defer progress.stop()

	stopInterrupt := cancelOnInterrupt(h)
	err = generate(ctx, h, route, args.Retries)
	stopInterrupt()
	if err != nil {
		log.Fatalf("Error loading panoramas: %v", err)
	}
	if progress.wasCanceled() {
		log.Println("Loading canceled.")
		return
	}

	points := h.Points()
	renderer.setRoute(points)
	if args.ShowMap {
		locations := make([]geo.Point, len(points))
		for i, p := range points {
			locations[i] = p.Location
		}
		prefetchTiles(getAllTilesForPoints(locations, args), args)
	}

	if args.RenderFirstFrame {
		log.Println("Rendering first frame only...")
		renderer.out = pngFileSink{path: "first_frame.png"}
		h.Pause()
		if err := h.Tick(); err != nil {
			log.Fatalf("Error rendering frame: %v", err)
		}
		log.Println("Saved first_frame.png")
		return
	}

	opts := h.Options()
	totalFrames := args.Loops * pingPongPeriod(h.Len())
	sink, err := startVideoSink(args, 1000/float64(opts.Millis), totalFrames)
	if err != nil {
		log.Fatal(err)
	}
	renderer.out = sink

	interval := time.Duration(opts.Millis) * time.Millisecond
	for i := 0; i < totalFrames; i++ {
		clock.Advance(interval)
		if err := h.Tick(); err != nil {
			log.Fatalf("Error rendering frame %d: %v", i, err)
		}
	}
	if err := sink.Close(); err != nil {
		log.Fatalf("Error encoding video: %v", err)
	}

	fmt.Printf("\nVideo saved to %s\n", args.OutputFile)
}

// pingPongPeriod is the number of frames in one forward-and-back pass.
func pingPongPeriod(n int) int {
	if n < 2 {
		return 1
	}
	return 2 * (n - 1)
}

func panoramaService(ctx context.Context, cfg *Config, zoom int) (hyperlapse.PanoramaService, func()) {
	var svc hyperlapse.PanoramaService = newMapillaryPanoramas(cfg.Panoramas, mapillaryToken(), zoom)
	if cfg.Redis.Addr == "" {
		return svc, func() {}
	}
	rdb, err := openRedis(ctx, cfg.Redis)
	if err != nil {
		log.Printf("Panorama cache disabled: %v", err)
		return svc, func() {}
	}
	log.Printf("Caching panorama lookups in redis at %s", cfg.Redis.Addr)
	return newRedisPanoramaCache(svc, rdb, cfg.Redis.TTL), func() { rdb.Close() }
}

func elevationService(cfg *Config, args *Arguments, track *gpxTrack) hyperlapse.ElevationService {
	switch args.Elevation {
	case "gpx":
		return newTrackElevation(track)
	case "open":
		return newOpenElevation(cfg.Elevation)
	}
	return nil
}

// cancelOnInterrupt cancels loading on SIGINT until the returned stop func is
// called.
func cancelOnInterrupt(h *hyperlapse.Hyperlapse) func() {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	stop := watchInterrupt(h, interrupt)
	return func() {
		signal.Stop(interrupt)
		stop()
	}
}

// watchInterrupt cancels h when interrupt fires. The returned func ends the
// watch and waits for its goroutine to exit.
func watchInterrupt(h *hyperlapse.Hyperlapse, interrupt <-chan os.Signal) func() {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-interrupt:
			log.Println("Interrupted, stopping after the current request...")
			h.Cancel()
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

// generate runs the pipeline, resuming it up to retries times when a
// service call fails. A failure that outlasts the retries cancels the load.
func generate(ctx context.Context, h *hyperlapse.Hyperlapse, route hyperlapse.Route, retries int) error {
	err := h.Generate(ctx, hyperlapse.GenerateParams{Route: route})
	for attempt := 1; err != nil && attempt <= retries && retryable(err); attempt++ {
		log.Printf("%v; retrying (%d/%d)", err, attempt, retries)
		time.Sleep(time.Duration(attempt) * time.Second)
		err = h.Resume(ctx)
	}
	if err != nil && h.IsLoading() {
		h.Cancel()
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, errNoPanorama) {
		return false
	}
	var rerr *hyperlapse.ResolveError
	var ferr *hyperlapse.FetchImageError
	return errors.As(err, &rerr) || errors.As(err, &ferr)
}

// loadProgress shows progress bars for the resolve and image stages.
type loadProgress struct {
	unsubscribe func()
	resolveBar  *progressbar.ProgressBar
	imageBar    *progressbar.ProgressBar
	canceled    atomic.Bool
}

func watchLoading(h *hyperlapse.Hyperlapse) *loadProgress {
	p := &loadProgress{}
	p.unsubscribe = h.Subscribe(func(e hyperlapse.Event) {
		switch e.Type {
		case hyperlapse.EventRouteProgress:
			if p.resolveBar == nil {
				p.resolveBar = progressbar.Default(int64(len(h.RawPoints())), "Resolving panoramas")
			}
			p.resolveBar.Add(1)
		case hyperlapse.EventRouteComplete:
			if p.resolveBar != nil {
				p.resolveBar.Finish()
			}
			log.Printf("Found %d distinct panoramas", len(e.Points))
			p.imageBar = progressbar.Default(int64(len(e.Points)), "Downloading panoramas")
		case hyperlapse.EventLoadProgress:
			if p.imageBar != nil {
				p.imageBar.Set(e.Position)
			}
		case hyperlapse.EventLoadCanceled:
			p.canceled.Store(true)
		case hyperlapse.EventError:
			log.Printf("Pipeline error: %v", e.Err)
		}
	})
	return p
}

func (p *loadProgress) wasCanceled() bool { return p.canceled.Load() }

func (p *loadProgress) stop() { p.unsubscribe() }

func printSamples(route hyperlapse.Route, opts hyperlapse.Options) {
	opts = opts.WithDefaults()
	spacing, maxPoints := opts.DistanceBetweenPoints, opts.MaxPoints
	g := geo.Spherical{}
	points, err := hyperlapse.Sample(g, route, spacing, maxPoints)
	if err != nil {
		log.Fatalf("Error sampling route: %v", err)
	}
	total := route.TotalDistance(g)
	fmt.Printf("Route: %d vertices, %d legs, %.2f km, spacing %.1f m\n",
		len(route.Path), len(route.Legs), total/1000, hyperlapse.TargetSpacing(total, spacing, maxPoints))
	for i, p := range points {
		ddist := 0.0
		bearing := 0.0
		if i > 0 {
			ddist = g.Distance(points[i-1], p)
			bearing = g.Bearing(points[i-1], p)
		}
		fmt.Printf("Point %d: %s, dDist %.1f m, Bearing: %.1f degrees\n", i, p, ddist, bearing)
	}
}
