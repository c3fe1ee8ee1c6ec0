package preprocess

import (
	"math"

	"github.com/disintegration/imaging"
)

// MaxExtractionSide caps the longest side of the extraction payload
const MaxExtractionSide = 1024

// Downsample returns a copy whose longest side is at most maxSide, keeping the
// aspect ratio. A buffer already within bounds is returned as is; it is never
// upscaled.
func Downsample(buf *PixelBuffer, maxSide int) *PixelBuffer {
	buf.mustBeValid()
	if maxSide <= 0 || (buf.Width <= maxSide && buf.Height <= maxSide) {
		return buf
	}

	w, h := scaledSize(buf.Width, buf.Height, maxSide)
	resized := imaging.Resize(buf.Image(), w, h, imaging.Lanczos)
	return FromImage(resized)
}

// scaledSize fits (w,h) into a maxSide square, rounding the short side
func scaledSize(w, h, maxSide int) (int, int) {
	if w >= h {
		nh := int(math.Round(float64(h) * float64(maxSide) / float64(w)))
		return maxSide, max(1, nh)
	}
	nw := int(math.Round(float64(w) * float64(maxSide) / float64(h)))
	return max(1, nw), maxSide
}
