// Package preprocess turns photographed expense vouchers into images suited
// for human confirmation and automated field extraction.
//
// All stages are pure transforms over a PixelBuffer. The enhancement mode is
// always an explicit argument; reading or persisting the user's preferred mode
// is the caller's job.
package preprocess

import (
	"fmt"
	"log/slog"
)

// Result holds both variants of one pipeline run
type Result struct {
	Original  *PixelBuffer
	Processed *PixelBuffer
	Mode      Mode
	// Threshold and Histogram are only populated for Soft and Strong
	Threshold int
	Histogram Histogram
}

// Process decodes the capture and produces the processed variant for mode.
// The content region is deliberately not applied; see DetectContentRegion.
func Process(data []byte, contentType string, mode Mode) (*Result, error) {
	original, err := Decode(data, contentType)
	if err != nil {
		return nil, err
	}
	slog.Debug("Decoded capture",
		"content_type", contentType,
		"width", original.Width,
		"height", original.Height,
	)
	return Reprocess(original, mode), nil
}

// Reprocess runs enhancement and binarization on an already decoded buffer.
// original is not modified.
func Reprocess(original *PixelBuffer, mode Mode) *Result {
	original.mustBeValid()
	result := &Result{Original: original, Processed: original, Mode: mode}
	if mode == Original {
		return result
	}

	processed := original.Clone()
	Enhance(processed, mode)
	result.Histogram = BuildHistogram(processed)
	result.Threshold = OtsuThreshold(result.Histogram)
	Binarize(processed, mode, result.Threshold)
	result.Processed = processed

	slog.Debug("Processed capture",
		"mode", mode,
		"threshold", result.Threshold,
		"applied_threshold", AdjustThreshold(mode, result.Threshold),
	)
	return result
}

// ExtractionPayload builds the bounded JPEG sent to the field extractor
func ExtractionPayload(buf *PixelBuffer) ([]byte, error) {
	small := Downsample(buf, MaxExtractionSide)
	data, err := Encode(small, ExtractionQuality)
	if err != nil {
		return nil, fmt.Errorf("encoding extraction payload: %w", err)
	}
	slog.Debug("Built extraction payload",
		"width", small.Width,
		"height", small.Height,
		"bytes", len(data),
	)
	return data, nil
}
