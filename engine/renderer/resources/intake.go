package resources

import (
	"image"

	"golang.org/x/image/draw"
)

// TextureFromImage converts a decoded image into tightly packed RGBA8 pixels.
// Images larger than maxDim on either side are scaled down, keeping the aspect
// ratio. maxDim of 0 disables scaling.
func TextureFromImage(src image.Image, maxDim uint32) (pixels []byte, width, height uint32) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim > 0 && (w > int(maxDim) || h > int(maxDim)) {
		if w >= h {
			h = max(1, h*int(maxDim)/w)
			w = int(maxDim)
		} else {
			w = max(1, w*int(maxDim)/h)
			h = int(maxDim)
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	}
	return dst.Pix, uint32(w), uint32(h)
}
