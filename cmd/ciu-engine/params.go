// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/ciu-engine/pkg/types"
)

// addRampFlags registers the acquisition parameter flags on cmd.
func addRampFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("params", "", "YAML file with acquisition parameters (overrides the flags below)")
	f.String("protocol", string(types.RampLinear), "ramp protocol: linear, exponential, boltzmann, user_defined")
	f.Int("first-scan", 0, "index of the first scan belonging to the ramp")
	f.Float64("start-voltage", 0, "first collision voltage (V)")
	f.Float64("end-voltage", 0, "last collision voltage (V)")
	f.Float64("step-voltage", 0, "collision voltage increment (V)")
	f.Int("scans-per-voltage", 1, "scans acquired per voltage step")
	f.Int("exp-increment", 1, "exponential: steps between growth applications")
	f.Float64("exp-percentage", 0, "exponential: growth per increment (%)")
	f.Float64("boltzmann-offset", 0, "boltzmann: transition offset from the ramp midpoint (V)")
	f.String("user-table", "", "user_defined: comma-separated scans:voltage pairs, e.g. 3:10,5:15")
}

// rampParams builds AcquisitionParameters from the --params file or, when
// none is given, from the individual flags.
func rampParams(cmd *cobra.Command) (types.AcquisitionParameters, error) {
	if path, _ := cmd.Flags().GetString("params"); path != "" {
		return loadParams(path)
	}

	f := cmd.Flags()
	protocol, _ := f.GetString("protocol")
	kind, err := types.ParseRampKind(protocol)
	if err != nil {
		return types.AcquisitionParameters{}, err
	}

	var p types.AcquisitionParameters
	p.Protocol = kind
	p.FirstScan, _ = f.GetInt("first-scan")
	p.StartVoltage, _ = f.GetFloat64("start-voltage")
	p.EndVoltage, _ = f.GetFloat64("end-voltage")
	p.StepVoltage, _ = f.GetFloat64("step-voltage")
	p.ScansPerVoltage, _ = f.GetInt("scans-per-voltage")
	p.ExponentialIncrement, _ = f.GetInt("exp-increment")
	p.ExponentialPercentage, _ = f.GetFloat64("exp-percentage")
	p.BoltzmannOffset, _ = f.GetFloat64("boltzmann-offset")

	table, _ := f.GetString("user-table")
	if p.UserDefinedTable, err = parseUserTable(table); err != nil {
		return types.AcquisitionParameters{}, err
	}
	return p, nil
}

// rampFlagsChanged reports whether any acquisition parameter was given.
func rampFlagsChanged(cmd *cobra.Command) bool {
	for _, name := range []string{
		"params", "protocol", "first-scan", "start-voltage", "end-voltage",
		"step-voltage", "scans-per-voltage", "exp-increment", "exp-percentage",
		"boltzmann-offset", "user-table",
	} {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}

func loadParams(path string) (types.AcquisitionParameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.AcquisitionParameters{}, fmt.Errorf("reading parameters file: %w", err)
	}
	var p types.AcquisitionParameters
	if err := yaml.Unmarshal(data, &p); err != nil {
		return types.AcquisitionParameters{}, fmt.Errorf("parsing parameters file %s: %w", path, err)
	}
	if p.Protocol == "" {
		p.Protocol = types.RampLinear
	}
	kind, err := types.ParseRampKind(string(p.Protocol))
	if err != nil {
		return types.AcquisitionParameters{}, err
	}
	p.Protocol = kind
	return p, nil
}

// parseUserTable parses "scans:voltage,scans:voltage".
func parseUserTable(s string) ([]types.UserDefinedStep, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var table []types.UserDefinedStep
	for _, part := range strings.Split(s, ",") {
		count, voltage, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("%w: user table entry %q is not scans:voltage", types.ErrInvalidParameters, part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(count))
		if err != nil {
			return nil, fmt.Errorf("%w: user table scan count %q", types.ErrInvalidParameters, count)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(voltage), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: user table voltage %q", types.ErrInvalidParameters, voltage)
		}
		table = append(table, types.UserDefinedStep{ScanCount: n, Voltage: v})
	}
	return table, nil
}

// parseIon parses an m/z window "lo-hi" into an ion key of docID.
func parseIon(docID, s string) (types.IonKey, error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return types.IonKey{}, fmt.Errorf("%w: ion %q is not lo-hi", types.ErrInvalidIonKey, s)
	}
	start, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	if err != nil {
		return types.IonKey{}, fmt.Errorf("%w: ion %q: %v", types.ErrInvalidIonKey, s, err)
	}
	end, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err != nil {
		return types.IonKey{}, fmt.Errorf("%w: ion %q: %v", types.ErrInvalidIonKey, s, err)
	}
	return types.IonKey{DocumentID: docID, MZStart: start, MZEnd: end}.Normalize()
}

func parseIons(docID string, values []string) ([]types.IonKey, error) {
	keys := make([]types.IonKey, 0, len(values))
	for _, v := range values {
		key, err := parseIon(docID, v)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
