// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resample

import (
	"math"
	"testing"
)

const eps = 1e-9

func approxEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > eps {
			return false
		}
	}
	return true
}

func TestUniform(t *testing.T) {
	tests := []struct {
		name string
		axis []float64
		want bool
	}{
		{"empty", nil, true},
		{"single", []float64{4}, true},
		{"two points", []float64{1, 9}, true},
		{"even", []float64{10, 20, 30, 40}, true},
		{"fractional even", []float64{0.1, 0.2, 0.3, 0.4}, true},
		{"uneven", []float64{10, 15, 30}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Uniform(tt.axis, 1e-6); got != tt.want {
				t.Errorf("Uniform(%v) = %v, want %v", tt.axis, got, tt.want)
			}
		})
	}
}

func TestLinspace(t *testing.T) {
	got := Linspace(10, 30, 5)
	want := []float64{10, 15, 20, 25, 30}
	if !approxEqual(got, want) {
		t.Errorf("Linspace = %v, want %v", got, want)
	}
	if got[4] != 30 {
		t.Errorf("end point = %v, want exactly 30", got[4])
	}
	if one := Linspace(3, 7, 1); len(one) != 1 || one[0] != 3 {
		t.Errorf("Linspace n=1 = %v", one)
	}
	if Linspace(0, 1, 0) != nil {
		t.Error("Linspace n=0 should be nil")
	}
}

func TestColumnsIdempotentOnUniformAxis(t *testing.T) {
	matrix := [][]float64{
		{1, 2, 3, 4},
		{8, 6, 4, 2},
	}
	axis := []float64{5, 10, 15, 20}

	out, grid, err := Columns(matrix, axis)
	if err != nil {
		t.Fatal(err)
	}
	if !approxEqual(grid, axis) {
		t.Errorf("grid = %v, want %v", grid, axis)
	}
	for r := range matrix {
		if !approxEqual(out[r], matrix[r]) {
			t.Errorf("row %d = %v, want %v", r, out[r], matrix[r])
		}
	}
}

func TestColumnsInterpolatesUnevenAxis(t *testing.T) {
	// Values are linear in voltage, so interpolation recovers them exactly.
	axis := []float64{10, 15, 30}
	matrix := [][]float64{
		{10, 15, 30},
		{0, 5, 20},
	}

	out, grid, err := Columns(matrix, axis)
	if err != nil {
		t.Fatal(err)
	}
	if want := []float64{10, 20, 30}; !approxEqual(grid, want) {
		t.Errorf("grid = %v, want %v", grid, want)
	}
	if want := []float64{10, 20, 30}; !approxEqual(out[0], want) {
		t.Errorf("row 0 = %v, want %v", out[0], want)
	}
	if want := []float64{0, 10, 20}; !approxEqual(out[1], want) {
		t.Errorf("row 1 = %v, want %v", out[1], want)
	}
}

func TestColumnsDoesNotMutateInput(t *testing.T) {
	axis := []float64{0, 1, 4}
	matrix := [][]float64{{0, 1, 4}}

	if _, _, err := Columns(matrix, axis); err != nil {
		t.Fatal(err)
	}
	if !approxEqual(axis, []float64{0, 1, 4}) || !approxEqual(matrix[0], []float64{0, 1, 4}) {
		t.Errorf("inputs modified: axis=%v matrix=%v", axis, matrix)
	}
}

func TestColumnsErrors(t *testing.T) {
	if _, _, err := Columns([][]float64{{1, 2}}, []float64{2, 1}); err == nil {
		t.Error("expected error for decreasing axis")
	}
	if _, _, err := Columns([][]float64{{1}}, []float64{1, 2}); err == nil {
		t.Error("expected error for short row")
	}
}

func TestColumnsSinglePoint(t *testing.T) {
	out, grid, err := Columns([][]float64{{7}, {3}}, []float64{25})
	if err != nil {
		t.Fatal(err)
	}
	if len(grid) != 1 || grid[0] != 25 || out[0][0] != 7 || out[1][0] != 3 {
		t.Errorf("got grid=%v out=%v", grid, out)
	}
}
