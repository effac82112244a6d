package main

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"gps_hyperlapse/internal/geo"
)

// --- Structs ---

type MapStyle struct {
	Name    string
	URL     string
	Headers map[string]string
}

type Tile struct {
	X, Y, Z int
}

var mapStyles = map[string]MapStyle{
	"default":  {Name: "default", URL: "https://tile.openstreetmap.org/{z}/{x}/{y}.png"},
	"cyclosm":  {Name: "cyclosm", URL: "https://c.tile-cyclosm.openstreetmap.fr/cyclosm/{z}/{x}/{y}.png"},
	"toner":    {Name: "toner", URL: "https://tiles.stadiamaps.com/tiles/stamen_toner/{z}/{x}/{y}.png", Headers: map[string]string{"Referer": "https://mc.bbbike.org/"}},
	"positron": {Name: "positron", URL: "https://d.basemaps.cartocdn.com/light_all/{z}/{x}/{y}.png"},
}

var tileCache sync.Map // decoded tiles by cache path

var tileClient = &http.Client{Timeout: 3 * time.Second}

// --- Tile Downloading & Caching ---

func tileURL(style MapStyle, z, x, y int, is2x bool) string {
	url := strings.Replace(style.URL, "{z}", strconv.Itoa(z), 1)
	url = strings.Replace(url, "{x}", strconv.Itoa(x), 1)
	url = strings.Replace(url, "{y}", strconv.Itoa(y), 1)
	if is2x {
		url = strings.Replace(url, ".png", "@2x.png", 1)
	}
	return url
}

func getTileImage(style string, z, x, y int, args *Arguments) (image.Image, error) {
	styleInfo, ok := mapStyles[style]
	if !ok {
		return nil, fmt.Errorf("invalid map style: %s", style)
	}

	tileName := fmt.Sprintf("%d.png", y)
	if args.Is2x {
		tileName = fmt.Sprintf("%d@2x.png", y)
	}
	tilePath := filepath.Join(args.TileCacheDir, styleInfo.Name, strconv.Itoa(z), strconv.Itoa(x), tileName)

	if img, ok := tileCache.Load(tilePath); ok {
		return img.(image.Image), nil
	}

	if file, err := os.Open(tilePath); err == nil {
		defer file.Close()
		img, _, err := image.Decode(file)
		if err != nil {
			return nil, fmt.Errorf("decode cached tile %s: %w", tilePath, err)
		}
		tileCache.Store(tilePath, img)
		return img, nil
	}

	url := tileURL(styleInfo, z, x, y, args.Is2x)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range styleInfo.Headers {
		req.Header.Set(k, v)
	}

	resp, err := tileClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download tile %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && args.Is2x {
		return nil, fmt.Errorf("style %s does not support 2x (got 404 for tile: %s)", style, url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download tile %s: status %d", url, resp.StatusCode)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, err
	}
	if args.Is2x && (img.Bounds().Dx() != 512 || img.Bounds().Dy() != 512) {
		return nil, fmt.Errorf("style %s does not support 2x: downloaded tile is %dx%d", style, img.Bounds().Dx(), img.Bounds().Dy())
	}

	// Re-encode to PNG to save
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(tilePath), 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(tilePath, buf.Bytes(), 0644); err != nil {
		return nil, err
	}

	tileCache.Store(tilePath, img)
	return img, nil
}

// getAllTilesForPoints returns every tile the minimap widget touches while
// centered on each of points.
func getAllTilesForPoints(points []geo.Point, args *Arguments) map[Tile]struct{} {
	tileCoords := make(map[Tile]struct{})
	widgetRadiusPx := float64(args.WidgetSize) / 2.0
	tileSize := float64(args.TileSize)

	for _, p := range points {
		worldPx, worldPy := deg2num(p.Lat, p.Lng, args.MapZoom)
		worldPx *= tileSize
		worldPy *= tileSize

		txMin := int(math.Floor((worldPx - widgetRadiusPx) / tileSize))
		tyMin := int(math.Floor((worldPy - widgetRadiusPx) / tileSize))
		txMax := int(math.Floor((worldPx + widgetRadiusPx) / tileSize))
		tyMax := int(math.Floor((worldPy + widgetRadiusPx) / tileSize))

		for x := txMin; x <= txMax; x++ {
			for y := tyMin; y <= tyMax; y++ {
				tileCoords[Tile{X: x, Y: y, Z: args.MapZoom}] = struct{}{}
			}
		}
	}
	return tileCoords
}

func prefetchTiles(allTiles map[Tile]struct{}, args *Arguments) {
	log.Println("Prefetching map tiles...")
	bar := progressbar.Default(int64(len(allTiles)), "Downloading Tiles")
	var wg sync.WaitGroup
	limit := make(chan struct{}, tileFetchConcurrency)

	for tile := range allTiles {
		wg.Add(1)
		limit <- struct{}{}
		go func(t Tile) {
			defer wg.Done()
			if _, err := getTileImage(args.MapStyle, t.Z, t.X, t.Y, args); err != nil {
				log.Printf("could not prefetch tile %v: %v", t, err)
			}
			bar.Add(1)
			<-limit
			time.Sleep(time.Second / 20) // Rate limit to 20 tiles per second
		}(tile)
	}
	wg.Wait()
}
