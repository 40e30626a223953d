// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resample moves a 2D surface with an unevenly spaced column axis
// onto an evenly spaced grid by linear interpolation.
package resample

import (
	"fmt"
	"math"
)

// Spread returns the difference between the largest and smallest consecutive
// deltas of axis, and the mean delta. Axes with fewer than three points have
// zero spread.
func Spread(axis []float64) (spread, mean float64) {
	if len(axis) < 2 {
		return 0, 0
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 1; i < len(axis); i++ {
		d := axis[i] - axis[i-1]
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}
	return hi - lo, (axis[len(axis)-1] - axis[0]) / float64(len(axis)-1)
}

// Uniform reports whether the consecutive deltas of axis agree within tol,
// relative to the mean delta.
func Uniform(axis []float64, tol float64) bool {
	spread, mean := Spread(axis)
	return spread <= tol*math.Abs(mean)
}

// Linspace returns n evenly spaced values from lo to hi inclusive. The end
// points are exact.
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = lo
		return out
	}
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}

// Columns resamples matrix, whose columns are positioned at axis, onto an
// evenly spaced axis with the same number of points spanning
// [axis[0], axis[len-1]]. Each row is interpolated independently. axis must
// be strictly increasing and every row must have len(axis) columns. The
// inputs are not modified.
func Columns(matrix [][]float64, axis []float64) ([][]float64, []float64, error) {
	for i := 1; i < len(axis); i++ {
		if !(axis[i] > axis[i-1]) {
			return nil, nil, fmt.Errorf("axis is not strictly increasing at index %d", i)
		}
	}
	for r, row := range matrix {
		if len(row) != len(axis) {
			return nil, nil, fmt.Errorf("row %d has %d columns, axis has %d points", r, len(row), len(axis))
		}
	}
	if len(axis) == 0 {
		return [][]float64{}, []float64{}, nil
	}

	grid := Linspace(axis[0], axis[len(axis)-1], len(axis))

	// Bracketing index and weight are shared by every row.
	lower := make([]int, len(grid))
	weight := make([]float64, len(grid))
	j := 0
	for i, x := range grid {
		for j < len(axis)-2 && axis[j+1] < x {
			j++
		}
		if len(axis) == 1 {
			lower[i], weight[i] = 0, 0
			continue
		}
		lower[i] = j
		weight[i] = (x - axis[j]) / (axis[j+1] - axis[j])
		weight[i] = math.Min(1, math.Max(0, weight[i]))
	}

	out := make([][]float64, len(matrix))
	for r, row := range matrix {
		resampled := make([]float64, len(grid))
		for i := range grid {
			lo, w := lower[i], weight[i]
			switch {
			case w == 0:
				resampled[i] = row[lo]
			case w == 1:
				resampled[i] = row[lo+1]
			default:
				resampled[i] = row[lo] + w*(row[lo+1]-row[lo])
			}
		}
		out[r] = resampled
	}
	return out, grid, nil
}
