package canvas

import (
	"image"

	"github.com/disintegration/imaging"
)

// DrawImage decodes the file at imagePath, resizes it to size and
// blends it into the canvas at pos with a flat alpha applied on top
// of each pixel's own alpha. It is optional: canvases that back a
// driver without raster support may simply not call it, and a decode
// failure is a no-op rather than an error, matching the no-op-on
// out-of-range philosophy of the rest of this package.
func (c *Canvas) DrawImage(imagePath string, pos Point, size Size, alpha uint8) {
	if size.W <= 0 || size.H <= 0 || alpha == 0 {
		return
	}
	img, err := imaging.Open(imagePath)
	if err != nil {
		return
	}
	c.drawImageData(img, pos, size, alpha)
}

func (c *Canvas) drawImageData(img image.Image, pos Point, size Size, alpha uint8) {
	resized := imaging.Resize(img, size.W, size.H, imaging.NearestNeighbor)
	bounds := resized.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := resized.At(x, y).RGBA()
			col := Color{
				R: uint8(r >> 8),
				G: uint8(g >> 8),
				B: uint8(b >> 8),
				A: uint8(uint32(a>>8) * uint32(alpha) / 255),
			}
			c.DrawPixel(pos.X+x-bounds.Min.X, pos.Y+y-bounds.Min.Y, col)
		}
	}
}
