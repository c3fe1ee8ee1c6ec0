package preprocess

// Binarization bounds. These are soft remaps, not pure black/white: hard
// binarization erases anti-aliased glyph strokes.
const (
	strongThresholdBoost = 10
	strongThresholdCap   = 200
	strongInkFactor      = 0.6

	softThresholdBias = 5
	softThresholdMin  = 140
	softThresholdMax  = 185
	softInkFactor     = 0.8
	softInkOffset     = 10
	softPaperLift     = 15
	softPaperCeiling  = 242
)

// AdjustThreshold returns the threshold Binarize actually applies for mode
func AdjustThreshold(mode Mode, threshold int) int {
	switch mode {
	case Strong:
		return min(threshold+strongThresholdBoost, strongThresholdCap)
	case Soft:
		return max(softThresholdMin, min(threshold-softThresholdBias, softThresholdMax))
	default:
		return threshold
	}
}

// Binarize remaps the grayscale buffer in place around the solved threshold.
// Original mode leaves the buffer untouched. Alpha is never modified.
func Binarize(buf *PixelBuffer, mode Mode, threshold int) {
	buf.mustBeValid()
	if mode != Strong && mode != Soft {
		return
	}

	lut := binarizeTable(mode, AdjustThreshold(mode, threshold))
	rowBytes := buf.Width * 4
	forEachRowRange(buf.Height, func(_, y0, y1 int) {
		pix := buf.Pix[y0*rowBytes : y1*rowBytes]
		for i := 0; i < len(pix); i += 4 {
			v := lut[pix[i]]
			pix[i], pix[i+1], pix[i+2] = v, v, v
		}
	})
}

// binarizeTable precomputes the remap for every input value
func binarizeTable(mode Mode, t int) [256]byte {
	var lut [256]byte
	for v := 0; v < 256; v++ {
		switch {
		case mode == Strong && v < t:
			lut[v] = byte(float64(v) * strongInkFactor)
		case mode == Strong:
			lut[v] = 255
		case v < t:
			lut[v] = byte(float64(v)*softInkFactor + softInkOffset)
		default:
			lut[v] = byte(min(softPaperCeiling, v+softPaperLift))
		}
	}
	return lut
}
