// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package reduce

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/pdiddy/ciu-engine/internal/resample"
	"github.com/pdiddy/ciu-engine/pkg/types"
)

// --- helpers ---

func testEngine(buf *bytes.Buffer) *Engine {
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewEngine(types.ReductionConfig{}, logger)
}

func constantRaw(scans, bins int, v float64) *types.RawHeatmap {
	m := make([][]float64, scans)
	for s := range m {
		m[s] = make([]float64, bins)
		for b := range m[s] {
			m[s][b] = v
		}
	}
	return &types.RawHeatmap{Matrix: m, DriftBinCount: bins}
}

// patternRaw fills the matrix with a deterministic, non-constant pattern.
func patternRaw(scans, bins int) *types.RawHeatmap {
	m := make([][]float64, scans)
	for s := range m {
		m[s] = make([]float64, bins)
		for b := range m[s] {
			m[s][b] = float64((s*7+b*3)%11) + 0.5
		}
	}
	return &types.RawHeatmap{Matrix: m, DriftBinCount: bins}
}

func scenarioParams() types.AcquisitionParameters {
	return types.AcquisitionParameters{
		Protocol:        types.RampLinear,
		StartVoltage:    10,
		EndVoltage:      30,
		StepVoltage:     10,
		ScansPerVoltage: 5,
	}
}

func sumFrom(raw *types.RawHeatmap, first int) float64 {
	var total float64
	for _, row := range raw.Matrix[first:] {
		for _, v := range row {
			total += v
		}
	}
	return total
}

// --- tests ---

func TestReduceLinearScenario(t *testing.T) {
	var logs bytes.Buffer
	out, err := testEngine(&logs).Reduce(context.Background(), constantRaw(15, 2, 1), scenarioParams())
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}

	wantMatrix := [][]float64{{5, 5, 5}, {5, 5, 5}}
	if !reflect.DeepEqual(out.Matrix, wantMatrix) {
		t.Errorf("matrix = %v, want %v", out.Matrix, wantMatrix)
	}
	if want := []float64{10, 20, 30}; !reflect.DeepEqual(out.VoltageAxis, want) {
		t.Errorf("voltage axis = %v, want %v", out.VoltageAxis, want)
	}
	if want := []int{0, 1}; !reflect.DeepEqual(out.DriftAxis, want) {
		t.Errorf("drift axis = %v, want %v", out.DriftAxis, want)
	}
	if want := []float64{15, 15}; !reflect.DeepEqual(out.Mobiligram, want) {
		t.Errorf("mobiligram = %v, want %v", out.Mobiligram, want)
	}
	if want := []float64{10, 10, 10}; !reflect.DeepEqual(out.Chromatogram, want) {
		t.Errorf("chromatogram = %v, want %v", out.Chromatogram, want)
	}
	wantSchedule := []types.ScanStep{
		{StartScan: 0, EndScan: 5, Voltage: 10},
		{StartScan: 5, EndScan: 10, Voltage: 20},
		{StartScan: 10, EndScan: 15, Voltage: 30},
	}
	if !reflect.DeepEqual(out.ScanSchedule, wantSchedule) {
		t.Errorf("schedule = %v, want %v", out.ScanSchedule, wantSchedule)
	}
	if out.Protocol != types.RampLinear {
		t.Errorf("protocol = %q", out.Protocol)
	}
	if out.Resample != nil {
		t.Errorf("unexpected resample warning %v", out.Resample)
	}
	if logs.Len() != 0 {
		t.Errorf("unexpected log output: %s", logs.String())
	}
}

func TestReduceInsufficientScans(t *testing.T) {
	var logs bytes.Buffer
	_, err := testEngine(&logs).Reduce(context.Background(), constantRaw(12, 2, 1), scenarioParams())

	var ise *types.InsufficientScansError
	if !errors.As(err, &ise) {
		t.Fatalf("got %v, want *InsufficientScansError", err)
	}
	if ise.Required != 15 || ise.Available != 12 {
		t.Errorf("got required=%d available=%d, want 15/12", ise.Required, ise.Available)
	}
}

func TestReduceConservesMass(t *testing.T) {
	protocols := map[string]types.AcquisitionParameters{
		"linear": {
			Protocol: types.RampLinear, FirstScan: 3,
			StartVoltage: 5, EndVoltage: 45, StepVoltage: 5, ScansPerVoltage: 4,
		},
		"exponential": {
			Protocol: types.RampExponential, FirstScan: 1,
			StartVoltage: 0, EndVoltage: 50, StepVoltage: 10, ScansPerVoltage: 3,
			ExponentialIncrement: 2, ExponentialPercentage: 40,
		},
		"boltzmann": {
			Protocol: types.RampBoltzmann, FirstScan: 2,
			StartVoltage: 0, EndVoltage: 100, StepVoltage: 10, ScansPerVoltage: 6,
			BoltzmannOffset: -10,
		},
		"user defined": {
			Protocol: types.RampUserDefined, FirstScan: 4,
			UserDefinedTable: []types.UserDefinedStep{
				{ScanCount: 3, Voltage: 10}, {ScanCount: 5, Voltage: 20}, {ScanCount: 2, Voltage: 30},
			},
		},
	}

	for name, params := range protocols {
		t.Run(name, func(t *testing.T) {
			raw := patternRaw(120, 5)
			out, err := testEngine(&bytes.Buffer{}).Reduce(context.Background(), raw, params)
			if err != nil {
				t.Fatal(err)
			}
			var total float64
			for _, row := range out.Matrix {
				for _, v := range row {
					total += v
				}
			}
			want := sumFrom(raw, params.FirstScan)
			if math.Abs(total-want) > 1e-6 {
				t.Errorf("combined sum = %v, want %v", total, want)
			}
			if math.Abs(out.Total()-want) > 1e-6 {
				t.Errorf("chromatogram total = %v, want %v", out.Total(), want)
			}
		})
	}
}

func TestReduceResamplesUnevenAxis(t *testing.T) {
	params := types.AcquisitionParameters{
		Protocol: types.RampUserDefined,
		UserDefinedTable: []types.UserDefinedStep{
			{ScanCount: 2, Voltage: 10}, {ScanCount: 2, Voltage: 15}, {ScanCount: 2, Voltage: 30},
		},
	}
	var logs bytes.Buffer
	out, err := testEngine(&logs).Reduce(context.Background(), constantRaw(6, 3, 1), params)
	if err != nil {
		t.Fatal(err)
	}

	if out.Resample == nil {
		t.Fatal("expected resample warning")
	}
	if out.Resample.Steps != 3 || math.Abs(out.Resample.Deviation-10) > 1e-9 {
		t.Errorf("warning = %+v, want steps=3 deviation=10", out.Resample)
	}
	if !resample.Uniform(out.VoltageAxis, 1e-9) {
		t.Errorf("voltage axis %v is not uniform", out.VoltageAxis)
	}
	if want := []float64{10, 20, 30}; !reflect.DeepEqual(out.VoltageAxis, want) {
		t.Errorf("voltage axis = %v, want %v", out.VoltageAxis, want)
	}
	for b, row := range out.Matrix {
		if len(row) != 3 {
			t.Errorf("row %d has %d columns", b, len(row))
		}
	}
	if !strings.Contains(logs.String(), "voltage axis resampled") || !strings.Contains(logs.String(), "level=WARN") {
		t.Errorf("missing warning log, got: %s", logs.String())
	}
}

func TestReduceCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testEngine(&bytes.Buffer{}).Reduce(ctx, constantRaw(15, 2, 1), scenarioParams())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestReduceDoesNotMutateRaw(t *testing.T) {
	raw := patternRaw(20, 4)
	before := sumFrom(raw, 0)
	if _, err := testEngine(&bytes.Buffer{}).Reduce(context.Background(), raw, scenarioParams()); err != nil {
		t.Fatal(err)
	}
	if after := sumFrom(raw, 0); after != before {
		t.Errorf("raw sum changed from %v to %v", before, after)
	}
}

func TestReduceRejectsRaggedMatrix(t *testing.T) {
	raw := constantRaw(15, 2, 1)
	raw.Matrix[4] = []float64{1}
	if _, err := testEngine(&bytes.Buffer{}).Reduce(context.Background(), raw, scenarioParams()); err == nil {
		t.Error("expected error for ragged matrix")
	}
}

func TestReduceNilRaw(t *testing.T) {
	_, err := testEngine(&bytes.Buffer{}).Reduce(context.Background(), nil, scenarioParams())
	if !errors.Is(err, types.ErrNotExtracted) {
		t.Errorf("got %v, want ErrNotExtracted", err)
	}
}

func TestProject(t *testing.T) {
	mob, chrom := Project([][]float64{{1, 2}, {3, 4}, {5, 6}}, 2)
	if want := []float64{3, 7, 11}; !reflect.DeepEqual(mob, want) {
		t.Errorf("mobiligram = %v, want %v", mob, want)
	}
	if want := []float64{9, 12}; !reflect.DeepEqual(chrom, want) {
		t.Errorf("chromatogram = %v, want %v", chrom, want)
	}
}
