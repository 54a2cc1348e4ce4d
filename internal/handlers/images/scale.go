package images

import (
	"image"

	"golang.org/x/image/draw"
)

// scaleToWidth resizes src to width pixels wide, keeping the aspect ratio,
// with a Catmull-Rom kernel. Images already narrower than width are copied
// at their own size; variants are never upscaled. The kernel has no random
// state, so the same source always yields the same pixels.
func scaleToWidth(src image.Image, width int) *image.NRGBA {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	if width >= sw {
		dst := image.NewNRGBA(image.Rect(0, 0, sw, sh))
		draw.Copy(dst, image.Point{}, src, b, draw.Src, nil)
		return dst
	}
	height := max(sh*width/sw, 1)
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
