package preprocess

// Histogram holds 256-bin grayscale frequency counts
type Histogram [256]int

// Sum returns the total number of counted pixels
func (h *Histogram) Sum() int {
	total := 0
	for _, n := range h {
		total += n
	}
	return total
}

// BuildHistogram counts the red channel of every pixel. After Enhance the
// red channel equals the grayscale value.
func BuildHistogram(buf *PixelBuffer) Histogram {
	buf.mustBeValid()

	parts := rowPartitions(buf.Height)
	partial := make([]Histogram, len(parts))
	rowBytes := buf.Width * 4
	forEachRowRange(buf.Height, func(part, y0, y1 int) {
		h := &partial[part]
		pix := buf.Pix[y0*rowBytes : y1*rowBytes]
		for i := 0; i < len(pix); i += 4 {
			h[pix[i]]++
		}
	})

	var hist Histogram
	for i := range partial {
		for bin, n := range partial[i] {
			hist[bin] += n
		}
	}
	return hist
}

// OtsuThreshold returns the luminance that maximizes the between-class
// variance of the histogram, with background = bins [0,t].
//
// The first maximum wins ties. When that maximum continues across empty bins
// (a gap between the two populations, where every split is equivalent) the
// threshold is centered in the gap.
// Candidates with an empty class are skipped; 0 is returned when every
// candidate has one.
func OtsuThreshold(h Histogram) int {
	total := 0
	var sumAll float64
	for t, n := range h {
		total += n
		sumAll += float64(t) * float64(n)
	}

	var (
		weightBg int
		sumBg    float64
		best     int
		runEnd   int
		maxVar   float64
		found    bool
	)
	for t := 0; t < 256; t++ {
		weightBg += h[t]
		sumBg += float64(t) * float64(h[t])

		weightFg := total - weightBg
		if weightBg == 0 || weightFg == 0 {
			continue
		}

		meanBg := sumBg / float64(weightBg)
		meanFg := (sumAll - sumBg) / float64(weightFg)
		diff := meanBg - meanFg
		variance := float64(weightBg) * float64(weightFg) * diff * diff

		switch {
		case !found || variance > maxVar:
			maxVar = variance
			best, runEnd = t, t
			found = true
		case variance == maxVar && t == runEnd+1 && h[t] == 0:
			runEnd = t
		}
	}
	return (best + runEnd) / 2
}
