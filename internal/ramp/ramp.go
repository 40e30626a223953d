// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ramp reconstructs the scan-to-voltage schedule of a collision
// voltage ramp from its acquisition parameters.
//
// Every protocol produces a per-step scan count and voltage. Schedule turns
// those into contiguous [start, end) scan ranges beginning at FirstScan and
// ending at the last scan of the raw data. All functions are pure.
package ramp

import (
	"fmt"
	"math"
	"sort"

	"github.com/pdiddy/ciu-engine/pkg/types"
)

// stepEpsilon absorbs floating-point error when counting voltage steps, so
// that (30-10)/10 yields 3 steps rather than 2.
const stepEpsilon = 1e-9

// maxStepScans bounds a single step's scan count; exponential growth beyond
// it is treated as invalid parameters.
const maxStepScans = math.MaxInt32

// maxSteps bounds the number of voltage steps of a ramp.
const maxSteps = 1 << 20

// Plan is the per-step layout of a ramp before it is anchored to raw data.
type Plan struct {
	Counts   []int
	Voltages []float64
}

// Total returns the number of scans consumed by all steps.
func (p Plan) Total() int {
	total := 0
	for _, c := range p.Counts {
		total += c
	}
	return total
}

// NewPlan computes the scan count and voltage of every step of the ramp.
func NewPlan(params types.AcquisitionParameters) (Plan, error) {
	if params.FirstScan < 0 {
		return Plan{}, fmt.Errorf("%w: first scan %d is negative", types.ErrInvalidParameters, params.FirstScan)
	}

	switch params.Protocol {
	case types.RampLinear:
		return linear(params)
	case types.RampExponential:
		return exponential(params)
	case types.RampBoltzmann:
		return boltzmann(params)
	case types.RampUserDefined:
		return userDefined(params)
	}
	return Plan{}, fmt.Errorf("%w: unknown ramp protocol %q", types.ErrInvalidParameters, params.Protocol)
}

// Required returns the number of raw scans the ramp needs, counting the
// scans before FirstScan.
func Required(params types.AcquisitionParameters) (int, error) {
	plan, err := NewPlan(params)
	if err != nil {
		return 0, err
	}
	return params.FirstScan + plan.Total(), nil
}

// Schedule anchors the ramp to raw data holding nScans scans. It fails with
// an *types.InsufficientScansError when the ramp needs more scans than
// available. Scans left over after the last step are assigned to it, so the
// schedule always covers [FirstScan, nScans).
func Schedule(params types.AcquisitionParameters, nScans int) ([]types.ScanStep, error) {
	plan, err := NewPlan(params)
	if err != nil {
		return nil, err
	}

	required := params.FirstScan + plan.Total()
	if required > nScans {
		return nil, &types.InsufficientScansError{Required: required, Available: nScans}
	}

	steps := make([]types.ScanStep, len(plan.Counts))
	scan := params.FirstScan
	for i, c := range plan.Counts {
		steps[i] = types.ScanStep{StartScan: scan, EndScan: scan + c, Voltage: plan.Voltages[i]}
		scan += c
	}
	steps[len(steps)-1].EndScan = nScans

	return steps, nil
}

// voltages validates the start/end/step triple and returns the voltage of
// every step.
func voltages(params types.AcquisitionParameters) ([]float64, error) {
	start, end, step := params.StartVoltage, params.EndVoltage, params.StepVoltage
	for _, v := range []float64{start, end, step} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: voltage %v is not finite", types.ErrInvalidParameters, v)
		}
	}
	if step <= 0 {
		return nil, fmt.Errorf("%w: step voltage %g must be positive", types.ErrInvalidParameters, step)
	}
	if end < start {
		return nil, fmt.Errorf("%w: end voltage %g is below start voltage %g", types.ErrInvalidParameters, end, start)
	}
	if params.ScansPerVoltage < 1 || params.ScansPerVoltage > maxStepScans {
		return nil, fmt.Errorf("%w: scans per voltage %d must be between 1 and %d", types.ErrInvalidParameters, params.ScansPerVoltage, maxStepScans)
	}

	count := math.Floor((end-start)/step+stepEpsilon) + 1
	if math.IsInf(count, 0) || count > maxSteps {
		return nil, fmt.Errorf("%w: %g to %g V in %g V steps exceeds %d steps", types.ErrInvalidParameters, start, end, step, maxSteps)
	}
	n := int(count)
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out, nil
}

func linear(params types.AcquisitionParameters) (Plan, error) {
	volts, err := voltages(params)
	if err != nil {
		return Plan{}, err
	}
	counts := make([]int, len(volts))
	for i := range counts {
		counts[i] = params.ScansPerVoltage
	}
	return Plan{Counts: counts, Voltages: volts}, nil
}

// exponential grows scans-per-step by ExponentialPercentage every
// ExponentialIncrement steps. Step i consumes
// round(spv * (1+pct/100)^floor(i/increment)) scans, at least one. The
// growth is applied to the unrounded base so rounding never compounds.
func exponential(params types.AcquisitionParameters) (Plan, error) {
	volts, err := voltages(params)
	if err != nil {
		return Plan{}, err
	}
	if params.ExponentialIncrement < 1 {
		return Plan{}, fmt.Errorf("%w: exponential increment %d must be at least 1", types.ErrInvalidParameters, params.ExponentialIncrement)
	}
	pct := params.ExponentialPercentage
	if math.IsNaN(pct) || math.IsInf(pct, 0) || pct < 0 {
		return Plan{}, fmt.Errorf("%w: exponential percentage %v must be a non-negative number", types.ErrInvalidParameters, pct)
	}

	growth := 1 + pct/100
	counts := make([]int, len(volts))
	for i := range counts {
		k := i / params.ExponentialIncrement
		c := math.Round(float64(params.ScansPerVoltage) * math.Pow(growth, float64(k)))
		if c > maxStepScans {
			return Plan{}, fmt.Errorf("%w: exponential growth exceeds %d scans at step %d", types.ErrInvalidParameters, maxStepScans, i)
		}
		counts[i] = max(1, int(c))
	}
	return Plan{Counts: counts, Voltages: volts}, nil
}

// boltzmann keeps the linear scan budget n_steps*spv but concentrates it near
// the transition voltage. Every step gets one scan; the rest of the budget is
// shared in proportion to s(1-s), the derivative of the logistic curve
// s = 1/(1+exp(-(v-vc)/width)), with vc = mid-ramp + BoltzmannOffset and
// width = max(step, span/10). Shares are rounded with the largest-remainder
// method, ties going to the lower step.
func boltzmann(params types.AcquisitionParameters) (Plan, error) {
	volts, err := voltages(params)
	if err != nil {
		return Plan{}, err
	}
	if math.IsNaN(params.BoltzmannOffset) || math.IsInf(params.BoltzmannOffset, 0) {
		return Plan{}, fmt.Errorf("%w: boltzmann offset %v is not finite", types.ErrInvalidParameters, params.BoltzmannOffset)
	}

	n := len(volts)
	budget := n * params.ScansPerVoltage
	remaining := budget - n

	center := (params.StartVoltage+params.EndVoltage)/2 + params.BoltzmannOffset
	width := max(params.StepVoltage, (params.EndVoltage-params.StartVoltage)/10)

	weights := make([]float64, n)
	var sum float64
	for i, v := range volts {
		s := 1 / (1 + math.Exp(-(v-center)/width))
		weights[i] = s * (1 - s)
		sum += weights[i]
	}
	// A transition far outside the ramp underflows every weight.
	if sum == 0 {
		for i := range weights {
			weights[i] = 1
		}
		sum = float64(n)
	}

	counts := make([]int, n)
	fractions := make([]float64, n)
	assigned := 0
	for i, w := range weights {
		share := float64(remaining) * w / sum
		whole := math.Floor(share)
		counts[i] = 1 + int(whole)
		fractions[i] = share - whole
		assigned += int(whole)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return fractions[order[a]] > fractions[order[b]]
	})
	for i := 0; i < remaining-assigned; i++ {
		counts[order[i%n]]++
	}

	return Plan{Counts: counts, Voltages: volts}, nil
}

func userDefined(params types.AcquisitionParameters) (Plan, error) {
	table := params.UserDefinedTable
	if len(table) == 0 {
		return Plan{}, fmt.Errorf("%w: user-defined ramp has no steps", types.ErrInvalidParameters)
	}
	if len(table) > maxSteps {
		return Plan{}, fmt.Errorf("%w: user-defined ramp has %d steps, at most %d allowed", types.ErrInvalidParameters, len(table), maxSteps)
	}

	counts := make([]int, len(table))
	volts := make([]float64, len(table))
	for i, row := range table {
		if row.ScanCount < 1 || row.ScanCount > maxStepScans {
			return Plan{}, fmt.Errorf("%w: step %d has %d scans", types.ErrInvalidParameters, i, row.ScanCount)
		}
		if math.IsNaN(row.Voltage) || math.IsInf(row.Voltage, 0) {
			return Plan{}, fmt.Errorf("%w: step %d voltage %v is not finite", types.ErrInvalidParameters, i, row.Voltage)
		}
		if i > 0 && row.Voltage <= table[i-1].Voltage {
			return Plan{}, fmt.Errorf("%w: step %d voltage %g does not increase", types.ErrInvalidParameters, i, row.Voltage)
		}
		counts[i] = row.ScanCount
		volts[i] = row.Voltage
	}
	return Plan{Counts: counts, Voltages: volts}, nil
}
