// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// RawHeatmap is the scan-indexed drift-time matrix returned by the raw-file
// reader for one m/z window. Matrix is indexed [scan][drift bin]. A RawHeatmap
// is never modified after the reader returns it.
type RawHeatmap struct {
	Matrix        [][]float64 `json:"matrix" yaml:"matrix"`
	DriftBinCount int         `json:"drift_bin_count" yaml:"drift_bin_count"`
}

// Scans returns the number of scans in the matrix. A nil heatmap has none.
func (r *RawHeatmap) Scans() int {
	if r == nil {
		return 0
	}
	return len(r.Matrix)
}

// CombinedHeatmap is the voltage-resolved ion-mobility surface produced by
// the reduction engine. Matrix is indexed [drift bin][voltage step].
type CombinedHeatmap struct {
	Matrix [][]float64 `json:"matrix" yaml:"matrix"`

	// VoltageAxis is strictly increasing and evenly spaced.
	VoltageAxis []float64 `json:"voltage_axis" yaml:"voltage_axis"`

	DriftAxis []int `json:"drift_axis" yaml:"drift_axis"`

	// Mobiligram is the row sum of Matrix (one value per drift bin).
	Mobiligram []float64 `json:"mobiligram" yaml:"mobiligram"`

	// Chromatogram is the column sum of Matrix (one value per voltage step).
	Chromatogram []float64 `json:"chromatogram" yaml:"chromatogram"`

	Protocol     RampKind   `json:"protocol" yaml:"protocol"`
	ScanSchedule []ScanStep `json:"scan_schedule" yaml:"scan_schedule"`

	// Resample is set when the voltage axis had to be resampled onto an
	// evenly spaced grid.
	Resample *ResampleWarning `json:"resample,omitempty" yaml:"resample,omitempty"`
}

// Total returns the sum of every cell of the combined matrix.
func (c *CombinedHeatmap) Total() float64 {
	var total float64
	for _, v := range c.Chromatogram {
		total += v
	}
	return total
}
