// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the ciu-engine reduction
// pipeline: acquisition parameters, raw and combined heatmaps, documents,
// extraction records, errors, and configuration.
package types

import (
	"fmt"
	"strings"
)

// RampKind identifies the protocol that maps acquisition scans to collision
// voltages.
type RampKind string

const (
	RampLinear      RampKind = "linear"
	RampExponential RampKind = "exponential"
	RampBoltzmann   RampKind = "boltzmann"
	RampUserDefined RampKind = "user_defined"
)

// RampKinds lists every supported protocol in display order.
var RampKinds = []RampKind{RampLinear, RampExponential, RampBoltzmann, RampUserDefined}

// ParseRampKind converts a protocol name (case-insensitive; "user-defined"
// and "fitted" are accepted aliases) into a RampKind.
func ParseRampKind(s string) (RampKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "linear":
		return RampLinear, nil
	case "exponential":
		return RampExponential, nil
	case "boltzmann", "fitted":
		return RampBoltzmann, nil
	case "user_defined", "user-defined", "user":
		return RampUserDefined, nil
	}
	return "", fmt.Errorf("%w: unknown ramp protocol %q", ErrInvalidParameters, s)
}

// UnmarshalText normalises protocol names and aliases when decoding YAML or
// JSON. An empty name is kept empty.
func (k *RampKind) UnmarshalText(text []byte) error {
	if strings.TrimSpace(string(text)) == "" {
		*k = ""
		return nil
	}
	kind, err := ParseRampKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// UserDefinedStep is one row of a user-defined ramp table.
type UserDefinedStep struct {
	// ScanCount is the number of scans acquired at Voltage.
	ScanCount int `json:"scan_count" yaml:"scan_count"`

	// Voltage is the collision voltage for this step.
	Voltage float64 `json:"voltage" yaml:"voltage"`
}

// AcquisitionParameters describe the collision-voltage ramp of one CIU run.
// A reduction takes the parameters by value; a running reduction never sees
// later edits.
type AcquisitionParameters struct {
	// Protocol selects the scan grouping rule.
	Protocol RampKind `json:"protocol" yaml:"protocol"`

	// FirstScan is the first scan belonging to the ramp. Scans before it are
	// ignored by the reduction.
	FirstScan int `json:"first_scan" yaml:"first_scan"`

	StartVoltage float64 `json:"start_voltage" yaml:"start_voltage"`
	EndVoltage   float64 `json:"end_voltage" yaml:"end_voltage"`
	StepVoltage  float64 `json:"step_voltage" yaml:"step_voltage"`

	// ScansPerVoltage is the base number of scans acquired per voltage step.
	ScansPerVoltage int `json:"scans_per_voltage" yaml:"scans_per_voltage"`

	// ExponentialIncrement is the number of steps between two growth events
	// of the exponential protocol.
	ExponentialIncrement int `json:"exponential_increment,omitempty" yaml:"exponential_increment,omitempty"`

	// ExponentialPercentage is the growth applied to scans-per-step at each
	// growth event, in percent.
	ExponentialPercentage float64 `json:"exponential_percentage,omitempty" yaml:"exponential_percentage,omitempty"`

	// BoltzmannOffset shifts the transition voltage of the Boltzmann protocol
	// away from the middle of the ramp, in volts.
	BoltzmannOffset float64 `json:"boltzmann_offset,omitempty" yaml:"boltzmann_offset,omitempty"`

	// UserDefinedTable is the verbatim schedule of the user-defined protocol.
	UserDefinedTable []UserDefinedStep `json:"user_defined_table,omitempty" yaml:"user_defined_table,omitempty"`
}

// ScanStep is one entry of a scan schedule: scans [StartScan, EndScan) were
// acquired at Voltage.
type ScanStep struct {
	StartScan int     `json:"start_scan" yaml:"start_scan"`
	EndScan   int     `json:"end_scan" yaml:"end_scan"`
	Voltage   float64 `json:"voltage" yaml:"voltage"`
}

// Scans returns the number of scans covered by the step.
func (s ScanStep) Scans() int {
	return s.EndScan - s.StartScan
}
