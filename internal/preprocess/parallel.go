package preprocess

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// minRowsPerPartition keeps small images on a single goroutine
const minRowsPerPartition = 64

// rowPartitions splits [0,height) into contiguous row ranges
func rowPartitions(height int) [][2]int {
	if height <= 0 {
		return nil
	}
	n := runtime.GOMAXPROCS(0)
	if max := height / minRowsPerPartition; n > max {
		n = max
	}
	if n < 1 {
		n = 1
	}

	parts := make([][2]int, 0, n)
	step := (height + n - 1) / n
	for y0 := 0; y0 < height; y0 += step {
		y1 := y0 + step
		if y1 > height {
			y1 = height
		}
		parts = append(parts, [2]int{y0, y1})
	}
	return parts
}

// forEachRowRange runs fn over disjoint row ranges concurrently.
// fn must only touch pixels inside its own range.
func forEachRowRange(height int, fn func(part, y0, y1 int)) {
	var g errgroup.Group
	for i, p := range rowPartitions(height) {
		g.Go(func() error {
			fn(i, p[0], p[1])
			return nil
		})
	}
	// fn never returns an error; Wait is only the join point
	_ = g.Wait()
}
