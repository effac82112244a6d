package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/image/draw"

	"gps_hyperlapse/internal/geo"
	"gps_hyperlapse/internal/hyperlapse"
)

const userAgent = "GpsHyperlapseGo/0.1"

var errNoPanorama = errors.New("no panorama found")

// --- Structs ---

type mapillaryImage struct {
	ID                   string            `json:"id"`
	Geometry             *geojson.Geometry `json:"geometry"`
	ComputedGeometry     *geojson.Geometry `json:"computed_geometry"`
	CompassAngle         *float64          `json:"compass_angle"`
	ComputedCompassAngle *float64          `json:"computed_compass_angle"`
	CapturedAt           int64             `json:"captured_at"`
	Creator              struct {
		Username string `json:"username"`
	} `json:"creator"`
	Thumb1024     string `json:"thumb_1024_url"`
	Thumb2048     string `json:"thumb_2048_url"`
	ThumbOriginal string `json:"thumb_original_url"`
}

type mapillarySearch struct {
	Data []mapillaryImage `json:"data"`
}

// mapillaryPanoramas finds equirectangular street-level panoramas through the
// Mapillary Graph API and keeps downloaded images in a disk cache.
type mapillaryPanoramas struct {
	baseURL      string
	token        string
	searchRadius float64
	thumbField   string
	maxWidth     int
	cacheDir     string
	client       *http.Client
}

func newMapillaryPanoramas(cfg PanoramaConfig, token string, zoom int) *mapillaryPanoramas {
	return &mapillaryPanoramas{
		baseURL:      cfg.BaseURL,
		token:        token,
		searchRadius: cfg.SearchRadius,
		thumbField:   thumbFieldForZoom(zoom),
		maxWidth:     cfg.MaxImageWidth,
		cacheDir:     cfg.CacheDir,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

// thumbFieldForZoom maps the hyperlapse zoom level to the closest image size
// Mapillary serves.
func thumbFieldForZoom(zoom int) string {
	switch {
	case zoom <= 1:
		return "thumb_1024_url"
	case zoom == 2:
		return "thumb_2048_url"
	default:
		return "thumb_original_url"
	}
}

func (m *mapillaryImage) location() (geo.Point, bool) {
	for _, g := range []*geojson.Geometry{m.ComputedGeometry, m.Geometry} {
		if g == nil {
			continue
		}
		if p, ok := g.Coordinates.(orb.Point); ok {
			return geo.FromOrb(p), true
		}
	}
	return geo.Point{}, false
}

func (m *mapillaryImage) heading() float64 {
	switch {
	case m.ComputedCompassAngle != nil:
		return geo.DegreesToRadians(*m.ComputedCompassAngle)
	case m.CompassAngle != nil:
		return geo.DegreesToRadians(*m.CompassAngle)
	}
	return 0
}

func (m *mapillaryImage) panorama() (hyperlapse.Panorama, bool) {
	loc, ok := m.location()
	if !ok {
		return hyperlapse.Panorama{}, false
	}
	copyright := "© Mapillary"
	if m.Creator.Username != "" {
		copyright += ", " + m.Creator.Username
	}
	var date string
	if m.CapturedAt > 0 {
		date = time.UnixMilli(m.CapturedAt).UTC().Format("2006-01")
	}
	return hyperlapse.Panorama{
		PanoID:    m.ID,
		Location:  loc,
		Heading:   m.heading(),
		Elevation: hyperlapse.UnknownElevation,
		Copyright: copyright,
		Date:      date,
	}, true
}

// --- Resolve ---

// Resolve returns the panorama closest to p within the search radius.
func (s *mapillaryPanoramas) Resolve(ctx context.Context, p geo.Point) (hyperlapse.Panorama, error) {
	bound := orbgeo.NewBoundAroundPoint(p.Orb(), s.searchRadius)

	q := url.Values{}
	q.Set("fields", "id,geometry,computed_geometry,compass_angle,computed_compass_angle,captured_at,creator")
	q.Set("is_pano", "true")
	q.Set("limit", "20")
	q.Set("bbox", fmt.Sprintf("%f,%f,%f,%f", bound.Min.Lon(), bound.Min.Lat(), bound.Max.Lon(), bound.Max.Lat()))

	var search mapillarySearch
	if err := s.getJSON(ctx, s.baseURL+"/images?"+q.Encode(), &search); err != nil {
		return hyperlapse.Panorama{}, fmt.Errorf("search panoramas near %s: %w", p, err)
	}

	var best hyperlapse.Panorama
	bestDist := math.Inf(1)
	for i := range search.Data {
		pano, ok := search.Data[i].panorama()
		if !ok {
			continue
		}
		if d := orbgeo.Distance(pano.Location.Orb(), p.Orb()); d < bestDist {
			best, bestDist = pano, d
		}
	}
	if math.IsInf(bestDist, 1) {
		return hyperlapse.Panorama{}, fmt.Errorf("%w within %.0fm of %s", errNoPanorama, s.searchRadius, p)
	}
	return best, nil
}

// --- Image Downloading & Caching ---

// FetchImage returns the equirectangular image of a panorama, from the disk
// cache when possible.
func (s *mapillaryPanoramas) FetchImage(ctx context.Context, panoID string) (image.Image, error) {
	imgPath := filepath.Join(s.cacheDir, panoID+"_"+s.thumbField+".jpg")

	data, err := os.ReadFile(imgPath)
	if err != nil {
		data, err = s.download(ctx, panoID)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(imgPath), 0755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(imgPath, data, 0644); err != nil {
			return nil, err
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode panorama %s: %w", panoID, err)
	}
	return fitWidth(img, s.maxWidth), nil
}

func (s *mapillaryPanoramas) download(ctx context.Context, panoID string) ([]byte, error) {
	var meta mapillaryImage
	u := s.baseURL + "/" + url.PathEscape(panoID) + "?fields=" + s.thumbField
	if err := s.getJSON(ctx, u, &meta); err != nil {
		return nil, fmt.Errorf("panorama %s metadata: %w", panoID, err)
	}

	var imageURL string
	switch s.thumbField {
	case "thumb_1024_url":
		imageURL = meta.Thumb1024
	case "thumb_2048_url":
		imageURL = meta.Thumb2048
	default:
		imageURL = meta.ThumbOriginal
	}
	if imageURL == "" {
		return nil, fmt.Errorf("panorama %s has no %s", panoID, s.thumbField)
	}

	resp, err := s.do(ctx, imageURL, false)
	if err != nil {
		return nil, fmt.Errorf("failed to download panorama %s: %w", panoID, err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (s *mapillaryPanoramas) getJSON(ctx context.Context, u string, out any) error {
	resp, err := s.do(ctx, u, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *mapillaryPanoramas) do(ctx context.Context, u string, auth bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	if auth && s.token != "" {
		req.Header.Set("Authorization", "OAuth "+s.token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: status %d", stripQuery(u), resp.StatusCode)
	}
	return resp, nil
}

func stripQuery(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	parsed.RawQuery = ""
	return parsed.String()
}

// fitWidth scales img down so it is at most maxWidth pixels wide.
func fitWidth(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := b.Dy() * maxWidth / b.Dx()
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
