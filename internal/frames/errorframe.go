package frames

import (
	"image"
	"image/color"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	errorBackground = color.RGBA{R: 24, G: 24, B: 28, A: 255}
	errorBanner     = color.RGBA{R: 204, G: 17, B: 17, A: 255}
	errorText       = color.RGBA{R: 235, G: 235, B: 235, A: 255}
)

// ErrorImage renders the frame shown while the camera is unavailable
func ErrorImage(width, height int, reason string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(img, img.Bounds(), image.NewUniform(errorBackground), image.Point{}, xdraw.Src)

	face := basicfont.Face7x13
	lineHeight := face.Metrics().Height.Ceil() + 4

	bannerH := lineHeight * 3
	banner := image.Rect(0, height/3, width, height/3+bannerH)
	xdraw.Draw(img, banner, image.NewUniform(errorBanner), image.Point{}, xdraw.Src)

	d := &font.Drawer{Dst: img, Src: image.NewUniform(errorText), Face: face}
	drawCentered(d, "CAMERA UNAVAILABLE", width, banner.Min.Y+lineHeight+lineHeight/2)

	y := banner.Max.Y + lineHeight*2
	for _, line := range wrap(reason, max(1, (width-16)/7)) {
		drawCentered(d, line, width, y)
		y += lineHeight
	}
	return img
}

func drawCentered(d *font.Drawer, text string, width, baseline int) {
	w := d.MeasureString(text).Ceil()
	d.Dot = fixed.P(max(0, (width-w)/2), baseline)
	d.DrawString(text)
}

// wrap splits s into lines of at most n characters on word boundaries
func wrap(s string, n int) []string {
	var lines []string
	var cur strings.Builder
	for _, word := range strings.Fields(s) {
		if cur.Len() > 0 && cur.Len()+1+len(word) > n {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}
