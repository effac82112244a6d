package main

import (
	"fmt"
	"image"
	"image/color"
	"log"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/golang/geo/r3"
	"golang.org/x/image/draw"

	"gps_hyperlapse/internal/geo"
	"gps_hyperlapse/internal/hyperlapse"
)

// frameSink receives finished frames in order.
type frameSink interface {
	WriteFrame(img image.Image) error
}

type pngFileSink struct {
	path string
}

func (s pngFileSink) WriteFrame(img image.Image) error {
	return gg.SavePNG(s.path, img)
}

// panoramaRenderer turns a hyperlapse.View into a video frame: the panorama
// reprojected through the camera, a minimap of the route and a line of text
// indicators.
type panoramaRenderer struct {
	args  *Arguments
	font  *truetype.Font
	route []geo.Point
	out   frameSink

	texOwner *hyperlapse.PanoramaRecord
	tex      *image.RGBA
}

func newPanoramaRenderer(args *Arguments, font *truetype.Font) *panoramaRenderer {
	return &panoramaRenderer{args: args, font: font}
}

func (r *panoramaRenderer) setRoute(records []*hyperlapse.PanoramaRecord) {
	r.route = r.route[:0]
	for _, rec := range records {
		r.route = append(r.route, rec.Location)
	}
}

func (r *panoramaRenderer) Render(v hyperlapse.View) error {
	if r.out == nil {
		return nil
	}
	return r.out.WriteFrame(r.renderFrame(v))
}

func (r *panoramaRenderer) renderFrame(v hyperlapse.View) image.Image {
	dc := gg.NewContext(v.Width, v.Height)
	dc.SetColor(color.Black)
	dc.Clear()

	if v.Image != nil {
		view := image.NewRGBA(image.Rect(0, 0, v.Width, v.Height))
		projectPanorama(view, r.texture(v.Point, v.Image), v.Camera, v.FOV)
		dc.DrawImage(view, 0, 0)
	}
	if r.args.ShowMap && len(r.route) > 0 && v.Point != nil {
		r.drawMinimap(dc, v)
	}
	r.drawIndicators(dc, v)
	return dc.Image()
}

// texture keeps the last panorama converted to RGBA. Consecutive frames
// mostly come from neighbouring records, so one slot is enough.
func (r *panoramaRenderer) texture(rec *hyperlapse.PanoramaRecord, img image.Image) *image.RGBA {
	if rec != nil && rec == r.texOwner && r.tex != nil {
		return r.tex
	}
	r.texOwner = rec
	r.tex = toRGBA(img)
	return r.tex
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// --- Panorama Projection ---

// projectPanorama renders the inside of the textured panorama sphere as seen
// by a pinhole camera at its center. fov is the vertical field of view in
// degrees.
func projectPanorama(dst, tex *image.RGBA, cam hyperlapse.CameraOrientation, fov float64) {
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	tw, th := tex.Bounds().Dx(), tex.Bounds().Dy()
	if w == 0 || h == 0 || tw == 0 || th == 0 || cam.Target.Norm() == 0 {
		return
	}

	forward := cam.Target.Normalize()
	right := forward.Cross(r3.Vector{Y: 1})
	if right.Norm() < 1e-9 {
		right = r3.Vector{X: 1}
	}
	right = right.Normalize()
	up := right.Cross(forward)

	cr, sr := math.Cos(cam.Roll), math.Sin(cam.Roll)
	right, up = right.Mul(cr).Add(up.Mul(sr)), up.Mul(cr).Sub(right.Mul(sr))

	tanV := math.Tan(geo.DegreesToRadians(fov) / 2)
	tanH := tanV * float64(w) / float64(h)
	cm, sm := math.Cos(-cam.MeshRoll), math.Sin(-cam.MeshRoll)

	for y := 0; y < h; y++ {
		ny := (1 - 2*(float64(y)+0.5)/float64(h)) * tanV
		for x := 0; x < w; x++ {
			nx := (2*(float64(x)+0.5)/float64(w) - 1) * tanH
			d := forward.Add(right.Mul(nx)).Add(up.Mul(ny))
			// world direction into the rolled sphere's frame
			d = r3.Vector{X: d.X*cm - d.Y*sm, Y: d.X*sm + d.Y*cm, Z: d.Z}

			u, v := sphereUV(d.Normalize())
			tx := min(int(u*float64(tw)), tw-1)
			ty := min(int(v*float64(th)), th-1)

			si := tex.PixOffset(tx, ty)
			di := dst.PixOffset(x, y)
			copy(dst.Pix[di:di+4], tex.Pix[si:si+4])
		}
	}
}

// sphereUV maps a unit direction to equirectangular texture coordinates with
// the same layout as a UV sphere: u runs around the Y axis starting at -X,
// v runs from the top pole down.
func sphereUV(d r3.Vector) (float64, float64) {
	theta := math.Acos(math.Max(-1, math.Min(1, d.Y)))
	phi := math.Atan2(d.Z, -d.X)
	if phi < 0 {
		phi += 2 * math.Pi
	}
	return phi / (2 * math.Pi), theta / math.Pi
}

// --- Minimap ---

func (r *panoramaRenderer) drawMinimap(dc *gg.Context, v hyperlapse.View) {
	args := r.args
	current := v.Point.Location
	zoom := args.MapZoom
	tileSize := float64(args.TileSize)
	widgetRadiusPx := float64(args.WidgetSize) / 2.0

	worldPx, worldPy := deg2num(current.Lat, current.Lng, zoom)
	worldPx *= tileSize
	worldPy *= tileSize

	txMin := math.Floor((worldPx - widgetRadiusPx) / tileSize)
	tyMin := math.Floor((worldPy - widgetRadiusPx) / tileSize)
	txMax := math.Floor((worldPx + widgetRadiusPx) / tileSize)
	tyMax := math.Floor((worldPy + widgetRadiusPx) / tileSize)

	mapWidth := (int(txMax) - int(txMin) + 1) * args.TileSize
	mapHeight := (int(tyMax) - int(tyMin) + 1) * args.TileSize
	mapDC := gg.NewContext(mapWidth, mapHeight)
	for x := int(txMin); x <= int(txMax); x++ {
		for y := int(tyMin); y <= int(tyMax); y++ {
			tileImg, err := getTileImage(args.MapStyle, zoom, x, y, args)
			if err != nil {
				log.Printf("could not get tile image: %v", err)
				continue
			}
			mapDC.DrawImage(tileImg, (x-int(txMin))*args.TileSize, (y-int(tyMin))*args.TileSize)
		}
	}
	centerPxOnMap := worldPx - txMin*tileSize
	centerPyOnMap := worldPy - tyMin*tileSize

	// Crop circular widget
	mask := gg.NewContext(args.WidgetSize, args.WidgetSize)
	mask.DrawCircle(widgetRadiusPx, widgetRadiusPx, widgetRadiusPx)
	mask.Clip()
	mask.DrawImage(mapDC.Image(), -int(centerPxOnMap-widgetRadiusPx), -int(centerPyOnMap-widgetRadiusPx))

	mapPosX := float64(v.Width-args.WidgetSize) - 20
	mapPosY := float64(20)
	dc.DrawImage(mask.Image(), int(mapPosX), int(mapPosY))

	// 3D Border
	borderWidth := float64(args.WidgetSize) * 0.04
	dc.SetColor(color.RGBA{R: 0, G: 0, B: 0, A: 80})
	dc.SetLineWidth(borderWidth * 0.75)
	dc.DrawArc(mapPosX+widgetRadiusPx+borderWidth/2, mapPosY+widgetRadiusPx+borderWidth/2, widgetRadiusPx, gg.Radians(-45), gg.Radians(135))
	dc.Stroke()
	dc.SetColor(color.RGBA{R: 255, G: 255, B: 255, A: 80})
	dc.DrawArc(mapPosX+widgetRadiusPx+borderWidth/2, mapPosY+widgetRadiusPx+borderWidth/2, widgetRadiusPx, gg.Radians(135), gg.Radians(315))
	dc.Stroke()
	dc.SetColor(args.BorderColor)
	dc.SetLineWidth(borderWidth)
	dc.DrawCircle(mapPosX+widgetRadiusPx, mapPosY+widgetRadiusPx, widgetRadiusPx)
	dc.Stroke()

	widgetCenterX := mapPosX + widgetRadiusPx
	widgetCenterY := mapPosY + widgetRadiusPx

	dc.Push()
	dc.DrawCircle(widgetCenterX, widgetCenterY, widgetRadiusPx)
	dc.Clip()
	dc.SetLineWidth(args.PathWidth)
	dc.SetColor(color.RGBA{R: 80, G: 80, B: 80, A: 160})
	r.strokeRoute(dc, r.route, current, widgetCenterX, widgetCenterY)
	dc.SetColor(args.PathColor)
	r.strokeRoute(dc, r.route[:min(v.Position+1, len(r.route))], current, widgetCenterX, widgetCenterY)
	dc.Pop() // Reset clip

	// Current position marker
	dc.SetColor(color.RGBA{0, 0, 255, 255})
	dc.DrawPoint(widgetCenterX, widgetCenterY, 8)
	dc.Fill()
	dc.SetColor(color.White)
	dc.SetLineWidth(2)
	dc.DrawPoint(widgetCenterX, widgetCenterY, 8)
	dc.Stroke()
}

// strokeRoute draws pts relative to current, which sits at (cx, cy).
func (r *panoramaRenderer) strokeRoute(dc *gg.Context, pts []geo.Point, current geo.Point, cx, cy float64) {
	if len(pts) < 2 {
		return
	}
	tileSize := float64(r.args.TileSize)
	curX, curY := deg2num(current.Lat, current.Lng, r.args.MapZoom)
	for i := 1; i < len(pts); i++ {
		p1x, p1y := deg2num(pts[i-1].Lat, pts[i-1].Lng, r.args.MapZoom)
		p2x, p2y := deg2num(pts[i].Lat, pts[i].Lng, r.args.MapZoom)
		dc.DrawLine(cx+(p1x-curX)*tileSize, cy+(p1y-curY)*tileSize, cx+(p2x-curX)*tileSize, cy+(p2y-curY)*tileSize)
		dc.Stroke()
	}
}

// --- Indicators ---

func drawCompassIcon(dc *gg.Context, x, y, size, lineWidth, headingDeg float64) {
	dc.Push()
	dc.Translate(x, y)
	dc.SetLineWidth(lineWidth)
	dc.DrawCircle(0, 0, size/2)
	dc.Stroke()

	needleAngle := gg.Radians(headingDeg - 90)
	dc.MoveTo(0, 0)
	dc.LineTo(math.Cos(needleAngle)*size/2.2, math.Sin(needleAngle)*size/2.2)
	dc.Stroke()
	dc.Pop()
}

func drawSlopeIcon(dc *gg.Context, x, y, size, lineWidth float64) {
	dc.Push()
	dc.Translate(x, y)
	dc.SetLineWidth(lineWidth)
	angle := gg.Radians(30)
	legX := size
	legY := size * math.Tan(angle)
	dc.MoveTo(legX, legY/2)
	dc.LineTo(0, legY/2)
	dc.LineTo(legX, -legY/2)
	dc.Stroke()
	dc.Pop()
}

func (r *panoramaRenderer) drawIndicators(dc *gg.Context, v hyperlapse.View) {
	if r.font == nil || v.Point == nil {
		return
	}
	valueFontSize := float64(v.Height) / 18.0
	unitFontSize := valueFontSize / 2.0
	iconSize := valueFontSize * 0.8
	iconLineWidth := math.Max(1, valueFontSize/12.0)

	valueFace := truetype.NewFace(r.font, &truetype.Options{Size: valueFontSize})
	unitFace := truetype.NewFace(r.font, &truetype.Options{Size: unitFontSize})

	margin := float64(20)
	rowY := float64(v.Height) - margin - unitFontSize*1.4

	dc.SetColor(r.args.IndicatorColor)

	// Heading
	x := margin
	drawCompassIcon(dc, x+iconSize/2, rowY-valueFontSize/3, iconSize, iconLineWidth, math.Mod(v.Camera.Lon+360, 360))
	x += iconSize * 1.4
	dc.SetFontFace(valueFace)
	text := fmt.Sprintf("%d / %d", v.Position+1, max(len(r.route), 1))
	dc.DrawString(text, x, rowY)
	w, _ := dc.MeasureString(text)
	x += w + margin

	// Elevation
	if v.Point.Elevation != hyperlapse.UnknownElevation {
		drawSlopeIcon(dc, x, rowY-valueFontSize/3, iconSize, iconLineWidth)
		x += iconSize * 1.4
		valueText := fmt.Sprintf("%.0f", v.Point.Elevation)
		dc.DrawString(valueText, x, rowY)
		w, _ = dc.MeasureString(valueText)
		dc.SetFontFace(unitFace)
		dc.DrawString(" m", x+w, rowY)
	}

	// Attribution
	dc.SetFontFace(unitFace)
	attribution := v.Point.Copyright
	if v.Point.CapturedDate != "" {
		attribution += "  " + v.Point.CapturedDate
	}
	dc.DrawString(attribution, margin, float64(v.Height)-margin)
}
