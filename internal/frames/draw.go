package frames

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/m3-muru/facial-rpi/pkg/types"
)

var (
	colorPending  = color.RGBA{R: 204, G: 204, B: 51, A: 255}
	colorRejected = color.RGBA{R: 204, G: 17, B: 17, A: 255}
	colorAccepted = color.RGBA{R: 22, G: 108, B: 17, A: 255}
	colorUnknown  = color.RGBA{R: 204, G: 51, B: 165, A: 255}
)

// fillAlpha is 0.3 of full opacity
const fillAlpha = 77

// StatusColor returns the overlay color for a status
func StatusColor(s types.Status) color.RGBA {
	switch s {
	case types.StatusPending:
		return colorPending
	case types.StatusRejected:
		return colorRejected
	case types.StatusAccepted:
		return colorAccepted
	default:
		return colorUnknown
	}
}

// StatusLabel returns the text drawn above a box
func StatusLabel(s types.Status) string {
	switch s {
	case types.StatusPending:
		return "PROCESSING"
	case types.StatusRejected:
		return "REJECTED"
	case types.StatusAccepted:
		return "ACCEPTED"
	default:
		return "UNKNOWN"
	}
}

// scaleRect converts a sensor-space rect into image space
func scaleRect(r types.Rect, scaleX, scaleY float64) image.Rectangle {
	x := int(float64(r.X) * scaleX)
	y := int(float64(r.Y) * scaleY)
	w := int(float64(r.W) * scaleX)
	h := int(float64(r.H) * scaleY)
	return image.Rect(x, y, x+w, y+h)
}

// drawDetection draws a filled box, border and status label for one record.
// The label is mirrored in place so it reads correctly after the frame is flipped.
func drawDetection(img *image.RGBA, rec types.DetectionRecord, scaleX, scaleY float64) {
	box := scaleRect(rec.Face, scaleX, scaleY)
	bounds := img.Bounds()
	clipped := box.Intersect(bounds)
	if clipped.Empty() {
		return
	}
	c := StatusColor(rec.Status)

	xdraw.DrawMask(img, clipped, image.NewUniform(c), image.Point{},
		image.NewUniform(color.Alpha{A: fillAlpha}), image.Point{}, xdraw.Over)

	w, h := box.Dx(), box.Dy()
	thickness := max(3, int(float64(min(w, h))*0.015))
	drawBorder(img, box, thickness, c)

	drawLabel(img, box, StatusLabel(rec.Status), c)
}

func drawBorder(img *image.RGBA, r image.Rectangle, t int, c color.RGBA) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		xdraw.Draw(img, e.Intersect(img.Bounds()), src, image.Point{}, xdraw.Src)
	}
}

// labelPlacement computes the label rectangle for a box: centered above it,
// below it when it would leave the top edge, clamped horizontally.
func labelPlacement(box, bounds image.Rectangle, labelW, labelH int) image.Rectangle {
	x := box.Min.X + (box.Dx()-labelW)/2
	y := box.Min.Y - labelH - labelH/5
	if y < bounds.Min.Y {
		y = box.Max.Y + labelH/5
	}
	if x+labelW > bounds.Max.X {
		x = bounds.Max.X - labelW
	}
	if x < bounds.Min.X {
		x = bounds.Min.X
	}
	return image.Rect(x, y, x+labelW, y+labelH)
}

func drawLabel(img *image.RGBA, box image.Rectangle, text string, bg color.RGBA) {
	fg := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	if bg == colorPending {
		fg = color.RGBA{A: 255}
	}

	// Render at native font size, then scale with the box
	native := renderText(text, fg, bg, 3)
	scale := max(1, min(box.Dx(), box.Dy())/120)
	labelW, labelH := native.Bounds().Dx()*scale, native.Bounds().Dy()*scale

	dst := labelPlacement(box, img.Bounds(), labelW, labelH)
	xdraw.NearestNeighbor.Scale(img, dst, native, native.Bounds(), xdraw.Src, nil)

	mirrorRegion(img, dst.Intersect(img.Bounds()))
}

// renderText draws text on a padded background into a new image
func renderText(text string, fg, bg color.RGBA, pad int) *image.RGBA {
	face := basicfont.Face7x13
	d := &font.Drawer{Face: face}
	width := d.MeasureString(text).Ceil()
	metrics := face.Metrics()
	height := (metrics.Ascent + metrics.Descent).Ceil()

	img := image.NewRGBA(image.Rect(0, 0, width+2*pad, height+2*pad))
	xdraw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, xdraw.Src)

	d.Dst = img
	d.Src = image.NewUniform(fg)
	d.Dot = fixed.Point26_6{X: fixed.I(pad), Y: fixed.I(pad) + metrics.Ascent}
	d.DrawString(text)
	return img
}
