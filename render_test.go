package main

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/golang/freetype/truetype"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"gps_hyperlapse/internal/geo"
	"gps_hyperlapse/internal/hyperlapse"
)

var (
	red   = color.RGBA{255, 0, 0, 255}
	green = color.RGBA{0, 255, 0, 255}
	blue  = color.RGBA{0, 0, 255, 255}
	white = color.RGBA{255, 255, 255, 255}
	black = color.RGBA{0, 0, 0, 255}
)

// quarterTexture is 8x4 with one color per quarter turn around the sphere.
func quarterTexture() *image.RGBA {
	tex := image.NewRGBA(image.Rect(0, 0, 8, 4))
	colors := []color.RGBA{red, green, blue, white}
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			tex.SetRGBA(x, y, colors[x/2])
		}
	}
	return tex
}

// bandTexture is white on the top half and black below.
func bandTexture() *image.RGBA {
	tex := image.NewRGBA(image.Rect(0, 0, 8, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			c := black
			if y < 2 {
				c = white
			}
			tex.SetRGBA(x, y, c)
		}
	}
	return tex
}

func lookAlong(phi float64) r3.Vector {
	return r3.Vector{X: -math.Cos(phi), Z: math.Sin(phi)}.Mul(500)
}

func centerPixel(tex *image.RGBA, cam hyperlapse.CameraOrientation) color.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, 3, 3))
	projectPanorama(dst, tex, cam, 60)
	return dst.RGBAAt(1, 1)
}

func TestSphereUV(t *testing.T) {
	cases := []struct {
		name string
		d    r3.Vector
		u, v float64
	}{
		{"seam", r3.Vector{X: -1}, 0, 0.5},
		{"quarter", r3.Vector{Z: 1}, 0.25, 0.5},
		{"half", r3.Vector{X: 1}, 0.5, 0.5},
		{"three quarters", r3.Vector{Z: -1}, 0.75, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u, v := sphereUV(tc.d)
			assert.InDelta(t, tc.u, u, 1e-9)
			assert.InDelta(t, tc.v, v, 1e-9)
		})
	}

	_, v := sphereUV(r3.Vector{Y: 1})
	assert.Zero(t, v, "straight up is the top row")
	_, v = sphereUV(r3.Vector{Y: -1})
	assert.InDelta(t, 1, v, 1e-9)
}

func TestProjectPanoramaLooksAlongTarget(t *testing.T) {
	tex := quarterTexture()

	assert.Equal(t, red, centerPixel(tex, hyperlapse.CameraOrientation{Target: lookAlong(math.Pi / 4)}))
	assert.Equal(t, blue, centerPixel(tex, hyperlapse.CameraOrientation{Target: lookAlong(5 * math.Pi / 4)}))
	assert.Equal(t, blue, centerPixel(tex, hyperlapse.CameraOrientation{Target: lookAlong(5 * math.Pi / 4), Roll: 1.2}),
		"roll spins around the view axis")
}

func TestProjectPanoramaMeshRoll(t *testing.T) {
	tex := bandTexture()
	forward := r3.Vector{X: -500}

	assert.Equal(t, black, centerPixel(tex, hyperlapse.CameraOrientation{Target: forward}))
	assert.Equal(t, white, centerPixel(tex, hyperlapse.CameraOrientation{Target: forward, MeshRoll: math.Pi / 2}))
	assert.Equal(t, black, centerPixel(tex, hyperlapse.CameraOrientation{Target: forward, MeshRoll: -math.Pi / 2}))
}

func TestProjectPanoramaWithoutTarget(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 2, 2))
	projectPanorama(dst, quarterTexture(), hyperlapse.CameraOrientation{}, 60)
	assert.Equal(t, color.RGBA{}, dst.RGBAAt(0, 0))
}

type captureSink struct {
	frames []image.Image
}

func (s *captureSink) WriteFrame(img image.Image) error {
	s.frames = append(s.frames, img)
	return nil
}

func testRenderer(t *testing.T) *panoramaRenderer {
	t.Helper()
	font, err := truetype.Parse(goregular.TTF)
	require.NoError(t, err)
	args := &Arguments{IndicatorColor: color.White, TileSize: 256, WidgetSize: 40, MapZoom: 15}
	return newPanoramaRenderer(args, font)
}

func TestRendererWritesFrames(t *testing.T) {
	r := testRenderer(t)
	rec := &hyperlapse.PanoramaRecord{
		Location:     geo.Point{Lat: 45, Lng: 7},
		Elevation:    312,
		Image:        quarterTexture(),
		Copyright:    "© Mapillary",
		CapturedDate: "2020-05",
	}
	r.setRoute([]*hyperlapse.PanoramaRecord{rec})
	assert.Equal(t, []geo.Point{{Lat: 45, Lng: 7}}, r.route)

	v := hyperlapse.View{
		Point:  rec,
		Image:  rec.Image,
		Camera: hyperlapse.CameraOrientation{Target: lookAlong(math.Pi / 4)},
		Width:  64,
		Height: 32,
		FOV:    70,
	}
	require.NoError(t, r.Render(v), "no sink yet")

	sink := &captureSink{}
	r.out = sink
	require.NoError(t, r.Render(v))
	require.NoError(t, r.Render(v))

	require.Len(t, sink.frames, 2)
	assert.Equal(t, image.Rect(0, 0, 64, 32), sink.frames[0].Bounds())
	assert.NotSame(t, sink.frames[0], sink.frames[1], "each frame gets its own image")
	assert.Same(t, rec, r.texOwner)
}

func TestRendererWithoutImage(t *testing.T) {
	r := testRenderer(t)
	img := r.renderFrame(hyperlapse.View{Width: 10, Height: 6})
	assert.Equal(t, image.Rect(0, 0, 10, 6), img.Bounds())
}
