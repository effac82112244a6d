package main

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gps_hyperlapse/internal/geo"
)

type mapillaryStub struct {
	srv         *httptest.Server
	images      string
	imageHits   atomic.Int32
	searchQuery atomic.Value
}

func newMapillaryStub(t *testing.T, images string) *mapillaryStub {
	t.Helper()
	s := &mapillaryStub{images: images}
	mux := http.NewServeMux()
	mux.HandleFunc("/images", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "OAuth test-token", r.Header.Get("Authorization"))
		s.searchQuery.Store(r.URL.Query())
		fmt.Fprint(w, s.images)
	})
	mux.HandleFunc("/pano-near", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "thumb_1024_url", r.URL.Query().Get("fields"))
		fmt.Fprintf(w, `{"id":"pano-near","thumb_1024_url":%q}`, s.srv.URL+"/files/pano-near.jpg")
	})
	mux.HandleFunc("/files/pano-near.jpg", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"), "the token stays with the API")
		s.imageHits.Add(1)
		jpeg.Encode(w, image.NewRGBA(image.Rect(0, 0, 8, 4)), nil)
	})
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *mapillaryStub) client(t *testing.T, maxWidth int) *mapillaryPanoramas {
	return newMapillaryPanoramas(PanoramaConfig{
		BaseURL:       s.srv.URL,
		SearchRadius:  25,
		MaxImageWidth: maxWidth,
		CacheDir:      t.TempDir(),
	}, "test-token", 1)
}

const twoPanoramas = `{"data":[
  {"id":"pano-far","geometry":{"type":"Point","coordinates":[7.0002,45.0002]},"compass_angle":10,"captured_at":1589000000000},
  {"id":"pano-near","geometry":{"type":"Point","coordinates":[7.0005,45.0005]},"computed_geometry":{"type":"Point","coordinates":[7.00001,45.00001]},
   "compass_angle":10,"computed_compass_angle":90,"captured_at":1589000000000,"creator":{"username":"alice"}}
]}`

func TestMapillaryResolvePicksClosest(t *testing.T) {
	stub := newMapillaryStub(t, twoPanoramas)

	pano, err := stub.client(t, 0).Resolve(context.Background(), geo.Point{Lat: 45, Lng: 7})
	require.NoError(t, err)

	assert.Equal(t, "pano-near", pano.PanoID, "computed geometry wins over the raw one")
	assert.Equal(t, geo.Point{Lat: 45.00001, Lng: 7.00001}, pano.Location)
	assert.InDelta(t, math.Pi/2, pano.Heading, 1e-12)
	assert.Equal(t, "© Mapillary, alice", pano.Copyright)
	assert.Equal(t, "2020-05", pano.Date)

	q := stub.searchQuery.Load().(url.Values)
	assert.Equal(t, []string{"true"}, q["is_pano"])
	assert.NotEmpty(t, q["bbox"])
}

func TestMapillaryResolveNothingNearby(t *testing.T) {
	stub := newMapillaryStub(t, `{"data":[{"id":"no-geometry"}]}`)

	_, err := stub.client(t, 0).Resolve(context.Background(), geo.Point{Lat: 45, Lng: 7})
	assert.ErrorIs(t, err, errNoPanorama)
}

func TestMapillaryResolveHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	s := newMapillaryPanoramas(PanoramaConfig{BaseURL: srv.URL, SearchRadius: 25}, "", 1)
	_, err := s.Resolve(context.Background(), geo.Point{Lat: 45, Lng: 7})
	require.Error(t, err)
	assert.NotErrorIs(t, err, errNoPanorama)
	assert.Contains(t, err.Error(), "status 403")
}

func TestMapillaryFetchImageUsesDiskCache(t *testing.T) {
	stub := newMapillaryStub(t, twoPanoramas)
	s := stub.client(t, 0)

	img, err := s.FetchImage(context.Background(), "pano-near")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 4), img.Bounds())

	_, err = os.Stat(filepath.Join(s.cacheDir, "pano-near_thumb_1024_url.jpg"))
	require.NoError(t, err)

	_, err = s.FetchImage(context.Background(), "pano-near")
	require.NoError(t, err)
	assert.Equal(t, int32(1), stub.imageHits.Load())
}

func TestMapillaryFetchImageScalesDown(t *testing.T) {
	stub := newMapillaryStub(t, twoPanoramas)

	img, err := stub.client(t, 4).FetchImage(context.Background(), "pano-near")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 2), img.Bounds())
}

func TestThumbFieldForZoom(t *testing.T) {
	assert.Equal(t, "thumb_1024_url", thumbFieldForZoom(0))
	assert.Equal(t, "thumb_1024_url", thumbFieldForZoom(1))
	assert.Equal(t, "thumb_2048_url", thumbFieldForZoom(2))
	assert.Equal(t, "thumb_original_url", thumbFieldForZoom(5))
}
