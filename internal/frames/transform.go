package frames

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/m3-muru/facial-rpi/pkg/types"
)

// toRGBA unpacks an RGB24 frame into a new RGBA image
func toRGBA(f types.Frame) (*image.RGBA, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("frame %d: %dx%d with %d bytes", f.Number, f.Width, f.Height, len(f.Data))
	}
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	src, dst := f.Data, img.Pix
	for i, j := 0, 0; i < len(src); i, j = i+3, j+4 {
		dst[j] = src[i]
		dst[j+1] = src[i+1]
		dst[j+2] = src[i+2]
		dst[j+3] = 0xff
	}
	return img, nil
}

// mirrorRegion flips r horizontally in place
func mirrorRegion(img *image.RGBA, r image.Rectangle) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		left := img.PixOffset(r.Min.X, y)
		right := img.PixOffset(r.Max.X-1, y)
		for left < right {
			for k := 0; k < 4; k++ {
				img.Pix[left+k], img.Pix[right+k] = img.Pix[right+k], img.Pix[left+k]
			}
			left += 4
			right -= 4
		}
	}
}

// mirror flips the whole image horizontally in place
func mirror(img *image.RGBA) {
	mirrorRegion(img, img.Bounds())
}

// resize scales img to w x h
func resize(img *image.RGBA, w, h int) *image.RGBA {
	if img.Bounds().Dx() == w && img.Bounds().Dy() == h {
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(out, out.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return out
}
