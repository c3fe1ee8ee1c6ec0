package preprocess

import "math"

// BoundingBox is an inclusive pixel rectangle
type BoundingBox struct {
	Top    int `json:"top"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
	Right  int `json:"right"`
}

const (
	// regionSampleColumns bounds how many columns per row the detector samples
	regionSampleColumns = 500
	regionEdgeRatio     = 0.4
	regionEdgeFloor     = 30
	regionInsetRatio    = 0.10
	regionMarginRatio   = 0.03
)

// DetectContentRegion estimates the box around printed content.
//
// The result is a crop-assist hint only. Process never crops with it, so the
// full captured frame is always preserved.
func DetectContentRegion(buf *PixelBuffer, threshold int) BoundingBox {
	buf.mustBeValid()
	w, h := buf.Width, buf.Height
	if w == 0 || h == 0 {
		return BoundingBox{}
	}

	stride := max(1, w/regionSampleColumns)
	edgeDelta := math.Max(regionEdgeRatio*float64(threshold), regionEdgeFloor)
	lum := func(x, y int) float64 {
		i := (y*w + x) * 4
		return Luma(buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2])
	}

	box := BoundingBox{Top: h, Bottom: -1, Left: w, Right: -1}
	include := func(x, y int) {
		box.Top = min(box.Top, y)
		box.Bottom = max(box.Bottom, y)
		box.Left = min(box.Left, x)
		box.Right = max(box.Right, x)
	}

	// Luminance pass
	for y := 0; y < h; y += stride {
		for x := 0; x < w; x += stride {
			if lum(x, y) < float64(threshold) {
				include(x, y)
			}
		}
	}

	// Gradient pass against the stride-neighbour in each direction
	neighbours := [4][2]int{{-stride, 0}, {stride, 0}, {0, -stride}, {0, stride}}
	for y := 0; y < h; y += stride {
		for x := 0; x < w; x += stride {
			v := lum(x, y)
			for _, d := range neighbours {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				if math.Abs(v-lum(nx, ny)) > edgeDelta {
					include(x, y)
					break
				}
			}
		}
	}

	if box.Top >= box.Bottom || box.Left >= box.Right {
		insetX := int(float64(w) * regionInsetRatio)
		insetY := int(float64(h) * regionInsetRatio)
		box = BoundingBox{
			Top:    insetY,
			Bottom: h - 1 - insetY,
			Left:   insetX,
			Right:  w - 1 - insetX,
		}
	}

	marginX := int(math.Round(float64(w) * regionMarginRatio))
	marginY := int(math.Round(float64(h) * regionMarginRatio))
	return BoundingBox{
		Top:    max(0, box.Top-marginY),
		Bottom: min(h-1, box.Bottom+marginY),
		Left:   max(0, box.Left-marginX),
		Right:  min(w-1, box.Right+marginX),
	}
}
