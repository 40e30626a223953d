// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package reduce combines scan-indexed raw drift-time data into a
// collision-voltage-resolved heatmap.
package reduce

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pdiddy/ciu-engine/internal/ramp"
	"github.com/pdiddy/ciu-engine/internal/resample"
	"github.com/pdiddy/ciu-engine/pkg/types"
)

// Engine applies a ramp schedule to raw heatmaps. It holds no mutable state
// and is safe for concurrent use.
type Engine struct {
	tolerance float64
	logger    *slog.Logger
}

// NewEngine creates an Engine. A nil logger uses slog.Default().
func NewEngine(cfg types.ReductionConfig, logger *slog.Logger) *Engine {
	tol := cfg.ResampleTolerance
	if tol <= 0 {
		tol = types.DefaultResampleTolerance
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{tolerance: tol, logger: logger}
}

// Reduce sums the raw scans of every schedule step into one column of the
// combined matrix, resamples a non-uniform voltage axis, and computes the 1D
// projections. The context is checked before every step; cancellation
// returns ctx.Err(). raw is never modified.
func (e *Engine) Reduce(ctx context.Context, raw *types.RawHeatmap, params types.AcquisitionParameters) (*types.CombinedHeatmap, error) {
	if raw == nil {
		return nil, fmt.Errorf("reducing: %w: no raw heatmap", types.ErrNotExtracted)
	}
	bins := raw.DriftBinCount
	for i, row := range raw.Matrix {
		if len(row) != bins {
			return nil, fmt.Errorf("reducing: scan %d has %d drift bins, want %d", i, len(row), bins)
		}
	}

	schedule, err := ramp.Schedule(params, raw.Scans())
	if err != nil {
		return nil, fmt.Errorf("building %s schedule: %w", params.Protocol, err)
	}

	matrix := make([][]float64, bins)
	for b := range matrix {
		matrix[b] = make([]float64, len(schedule))
	}
	axis := make([]float64, len(schedule))

	for j, step := range schedule {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for s := step.StartScan; s < step.EndScan; s++ {
			for b, v := range raw.Matrix[s] {
				matrix[b][j] += v
			}
		}
		axis[j] = step.Voltage
	}

	out := &types.CombinedHeatmap{
		VoltageAxis:  axis,
		Protocol:     params.Protocol,
		ScanSchedule: schedule,
	}

	if !resample.Uniform(axis, e.tolerance) {
		spread, _ := resample.Spread(axis)
		resampled, grid, err := resample.Columns(matrix, axis)
		if err != nil {
			return nil, fmt.Errorf("resampling voltage axis: %w", err)
		}
		matrix, out.VoltageAxis = resampled, grid
		out.Resample = &types.ResampleWarning{Steps: len(grid), Deviation: spread}
		e.logger.WarnContext(ctx, "voltage axis resampled",
			"protocol", params.Protocol,
			"steps", len(grid),
			"delta_spread", spread,
		)
	}

	out.Matrix = matrix
	out.DriftAxis = make([]int, bins)
	for b := range out.DriftAxis {
		out.DriftAxis[b] = b
	}
	out.Mobiligram, out.Chromatogram = Project(matrix, len(out.VoltageAxis))

	return out, nil
}

// Project returns the row sums (mobiligram) and column sums (chromatogram)
// of a [drift][voltage] matrix with the given number of columns.
func Project(matrix [][]float64, columns int) (mobiligram, chromatogram []float64) {
	mobiligram = make([]float64, len(matrix))
	chromatogram = make([]float64, columns)
	for b, row := range matrix {
		for j, v := range row {
			mobiligram[b] += v
			chromatogram[j] += v
		}
	}
	return mobiligram, chromatogram
}
