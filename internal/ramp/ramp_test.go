// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ramp

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/pdiddy/ciu-engine/pkg/types"
)

func linearParams() types.AcquisitionParameters {
	return types.AcquisitionParameters{
		Protocol:        types.RampLinear,
		FirstScan:       0,
		StartVoltage:    10,
		EndVoltage:      30,
		StepVoltage:     10,
		ScansPerVoltage: 5,
	}
}

// protocolCases returns one valid parameter set per protocol.
func protocolCases() map[string]types.AcquisitionParameters {
	exp := linearParams()
	exp.Protocol = types.RampExponential
	exp.FirstScan = 2
	exp.EndVoltage = 60
	exp.ExponentialIncrement = 2
	exp.ExponentialPercentage = 50

	boltz := linearParams()
	boltz.Protocol = types.RampBoltzmann
	boltz.FirstScan = 1
	boltz.StartVoltage = 0
	boltz.EndVoltage = 100
	boltz.ScansPerVoltage = 10
	boltz.BoltzmannOffset = 5

	user := types.AcquisitionParameters{
		Protocol:  types.RampUserDefined,
		FirstScan: 3,
		UserDefinedTable: []types.UserDefinedStep{
			{ScanCount: 2, Voltage: 10},
			{ScanCount: 3, Voltage: 15},
			{ScanCount: 4, Voltage: 30},
		},
	}

	return map[string]types.AcquisitionParameters{
		"linear":       linearParams(),
		"exponential":  exp,
		"boltzmann":    boltz,
		"user defined": user,
	}
}

func TestScheduleLinearScenario(t *testing.T) {
	steps, err := Schedule(linearParams(), 15)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	want := []types.ScanStep{
		{StartScan: 0, EndScan: 5, Voltage: 10},
		{StartScan: 5, EndScan: 10, Voltage: 20},
		{StartScan: 10, EndScan: 15, Voltage: 30},
	}
	if !reflect.DeepEqual(steps, want) {
		t.Errorf("schedule = %v, want %v", steps, want)
	}

	required, err := Required(linearParams())
	if err != nil {
		t.Fatal(err)
	}
	if required != 15 {
		t.Errorf("required = %d, want 15", required)
	}
}

func TestScheduleInsufficientScans(t *testing.T) {
	_, err := Schedule(linearParams(), 12)
	if err == nil {
		t.Fatal("expected error for 12 scans")
	}
	if !errors.Is(err, types.ErrInsufficientScans) {
		t.Errorf("error %v does not match ErrInsufficientScans", err)
	}
	var ise *types.InsufficientScansError
	if !errors.As(err, &ise) {
		t.Fatalf("error %T is not *InsufficientScansError", err)
	}
	if ise.Required != 15 || ise.Available != 12 {
		t.Errorf("got required=%d available=%d, want 15/12", ise.Required, ise.Available)
	}
}

func TestScheduleFeasibilityBoundary(t *testing.T) {
	for name, params := range protocolCases() {
		t.Run(name, func(t *testing.T) {
			required, err := Required(params)
			if err != nil {
				t.Fatalf("Required: %v", err)
			}
			if _, err := Schedule(params, required-1); !errors.Is(err, types.ErrInsufficientScans) {
				t.Errorf("n=required-1: got %v, want ErrInsufficientScans", err)
			}
			if _, err := Schedule(params, required); err != nil {
				t.Errorf("n=required: unexpected error %v", err)
			}
		})
	}
}

func TestScheduleCompleteness(t *testing.T) {
	for name, params := range protocolCases() {
		required, err := Required(params)
		if err != nil {
			t.Fatalf("%s: Required: %v", name, err)
		}
		for _, extra := range []int{0, 1, 7} {
			nScans := required + extra
			steps, err := Schedule(params, nScans)
			if err != nil {
				t.Fatalf("%s n=%d: %v", name, nScans, err)
			}
			if steps[0].StartScan != params.FirstScan {
				t.Errorf("%s: first step starts at %d, want %d", name, steps[0].StartScan, params.FirstScan)
			}
			if last := steps[len(steps)-1].EndScan; last != nScans {
				t.Errorf("%s: last step ends at %d, want %d", name, last, nScans)
			}
			covered := 0
			for i, s := range steps {
				if s.Scans() < 1 {
					t.Errorf("%s: step %d is empty: %v", name, i, s)
				}
				if i > 0 && s.StartScan != steps[i-1].EndScan {
					t.Errorf("%s: gap or overlap between step %d and %d", name, i-1, i)
				}
				covered += s.Scans()
			}
			if covered != nScans-params.FirstScan {
				t.Errorf("%s: covered %d scans, want %d", name, covered, nScans-params.FirstScan)
			}
		}
	}
}

func TestScheduleAbsorbsTrailingScans(t *testing.T) {
	steps, err := Schedule(linearParams(), 17)
	if err != nil {
		t.Fatal(err)
	}
	if got := steps[2]; got.StartScan != 10 || got.EndScan != 17 {
		t.Errorf("last step = %v, want [10,17)", got)
	}
}

func TestExponentialCounts(t *testing.T) {
	params := linearParams()
	params.Protocol = types.RampExponential
	params.StartVoltage = 0
	params.EndVoltage = 50
	params.ScansPerVoltage = 2
	params.ExponentialIncrement = 2
	params.ExponentialPercentage = 50

	plan, err := NewPlan(params)
	if err != nil {
		t.Fatal(err)
	}
	// Growth events every two steps: 2, 2, 3, 3, round(4.5)=5, 5.
	want := []int{2, 2, 3, 3, 5, 5}
	if !reflect.DeepEqual(plan.Counts, want) {
		t.Errorf("counts = %v, want %v", plan.Counts, want)
	}
}

func TestExponentialZeroGrowthMatchesLinear(t *testing.T) {
	params := linearParams()
	params.Protocol = types.RampExponential
	params.ExponentialIncrement = 1

	exp, err := NewPlan(params)
	if err != nil {
		t.Fatal(err)
	}
	lin, err := NewPlan(linearParams())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(exp, lin) {
		t.Errorf("exponential with 0%% growth = %v, want %v", exp, lin)
	}
}

func TestBoltzmannBudget(t *testing.T) {
	tests := []struct {
		name    string
		start   float64
		end     float64
		step    float64
		spv     int
		offset  float64
		wantMax int
	}{
		{name: "centered", start: 0, end: 100, step: 10, spv: 10, wantMax: 5},
		{name: "offset up", start: 0, end: 100, step: 10, spv: 10, offset: 20, wantMax: 7},
		{name: "offset down", start: 0, end: 100, step: 10, spv: 10, offset: -30, wantMax: 2},
		{name: "single scan per step", start: 5, end: 50, step: 5, spv: 1, wantMax: -1},
		{name: "far offset", start: 0, end: 20, step: 2, spv: 4, offset: 1e6, wantMax: -1},
		{name: "single step", start: 10, end: 10, step: 5, spv: 7, wantMax: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := types.AcquisitionParameters{
				Protocol:        types.RampBoltzmann,
				StartVoltage:    tt.start,
				EndVoltage:      tt.end,
				StepVoltage:     tt.step,
				ScansPerVoltage: tt.spv,
				BoltzmannOffset: tt.offset,
			}
			plan, err := NewPlan(params)
			if err != nil {
				t.Fatal(err)
			}
			n := len(plan.Counts)
			if got := plan.Total(); got != n*tt.spv {
				t.Errorf("total = %d, want %d", got, n*tt.spv)
			}
			argmax := 0
			for i, c := range plan.Counts {
				if c < 1 {
					t.Errorf("step %d has %d scans", i, c)
				}
				if c > plan.Counts[argmax] {
					argmax = i
				}
			}
			if tt.wantMax >= 0 && argmax != tt.wantMax {
				t.Errorf("densest step = %d (%v), want %d", argmax, plan.Counts, tt.wantMax)
			}
		})
	}
}

func TestUserDefinedRebase(t *testing.T) {
	params := protocolCases()["user defined"]
	steps, err := Schedule(params, 12)
	if err != nil {
		t.Fatal(err)
	}
	want := []types.ScanStep{
		{StartScan: 3, EndScan: 5, Voltage: 10},
		{StartScan: 5, EndScan: 8, Voltage: 15},
		{StartScan: 8, EndScan: 12, Voltage: 30},
	}
	if !reflect.DeepEqual(steps, want) {
		t.Errorf("schedule = %v, want %v", steps, want)
	}
}

func TestScheduleRejectsUnboundedStepCount(t *testing.T) {
	params := linearParams()
	params.StepVoltage = 1e-20

	if _, err := Schedule(params, 100); !errors.Is(err, types.ErrInvalidParameters) {
		t.Errorf("Schedule: got %v, want ErrInvalidParameters", err)
	}
	if _, err := Required(params); !errors.Is(err, types.ErrInvalidParameters) {
		t.Errorf("Required: got %v, want ErrInvalidParameters", err)
	}
}

func TestNewPlanInvalidParameters(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *types.AcquisitionParameters)
	}{
		{"negative first scan", func(p *types.AcquisitionParameters) { p.FirstScan = -1 }},
		{"zero step", func(p *types.AcquisitionParameters) { p.StepVoltage = 0 }},
		{"end below start", func(p *types.AcquisitionParameters) { p.EndVoltage = 5 }},
		{"zero scans per voltage", func(p *types.AcquisitionParameters) { p.ScansPerVoltage = 0 }},
		{"tiny step", func(p *types.AcquisitionParameters) { p.StepVoltage = 1e-20 }},
		{"span overflows", func(p *types.AcquisitionParameters) {
			p.StartVoltage = -math.MaxFloat64
			p.EndVoltage = math.MaxFloat64
		}},
		{"exponential tiny step", func(p *types.AcquisitionParameters) {
			p.Protocol = types.RampExponential
			p.ExponentialIncrement = 1
			p.StepVoltage = 1e-20
		}},
		{"boltzmann tiny step", func(p *types.AcquisitionParameters) {
			p.Protocol = types.RampBoltzmann
			p.StepVoltage = 1e-20
		}},
		{"unknown protocol", func(p *types.AcquisitionParameters) { p.Protocol = "stepped" }},
		{"exponential without increment", func(p *types.AcquisitionParameters) {
			p.Protocol = types.RampExponential
			p.ExponentialPercentage = 10
		}},
		{"exponential negative growth", func(p *types.AcquisitionParameters) {
			p.Protocol = types.RampExponential
			p.ExponentialIncrement = 1
			p.ExponentialPercentage = -5
		}},
		{"user defined empty", func(p *types.AcquisitionParameters) { p.Protocol = types.RampUserDefined }},
		{"user defined decreasing", func(p *types.AcquisitionParameters) {
			p.Protocol = types.RampUserDefined
			p.UserDefinedTable = []types.UserDefinedStep{{ScanCount: 1, Voltage: 20}, {ScanCount: 1, Voltage: 10}}
		}},
		{"user defined empty step", func(p *types.AcquisitionParameters) {
			p.Protocol = types.RampUserDefined
			p.UserDefinedTable = []types.UserDefinedStep{{ScanCount: 0, Voltage: 20}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := linearParams()
			tt.mutate(&params)
			if _, err := NewPlan(params); !errors.Is(err, types.ErrInvalidParameters) {
				t.Errorf("got %v, want ErrInvalidParameters", err)
			}
		})
	}
}

func TestScheduleDeterministic(t *testing.T) {
	for name, params := range protocolCases() {
		required, _ := Required(params)
		a, err := Schedule(params, required+3)
		if err != nil {
			t.Fatal(err)
		}
		b, _ := Schedule(params, required+3)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("%s: schedules differ between calls", name)
		}
	}
}
