// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ciu-engine/internal/dispatch"
	"github.com/pdiddy/ciu-engine/internal/rawfile"
	"github.com/pdiddy/ciu-engine/internal/reduce"
	"github.com/pdiddy/ciu-engine/pkg/types"
)

var reduceCmd = &cobra.Command{
	Use:   "reduce <raw.yaml>",
	Short: "Reduce one m/z window of a raw export without storing it",
	Long: `Reduce reads the drift-time matrix of one m/z window from a raw export,
combines its scans into voltage steps according to the ramp protocol, and
prints the scan schedule with the mobiligram and chromatogram. Nothing is
written to the document database. Status lines, including the warning when
the voltage axis had to be resampled, go to stderr.`,
	Args: cobra.ExactArgs(1),
	RunE: runReduce,
}

func runReduce(cmd *cobra.Command, args []string) error {
	params, err := rampParams(cmd)
	if err != nil {
		return err
	}
	mzStart, _ := cmd.Flags().GetFloat64("mz-start")
	mzEnd, _ := cmd.Flags().GetFloat64("mz-end")
	key, err := types.IonKey{DocumentID: args[0], MZStart: mzStart, MZEnd: mzEnd}.Normalize()
	if err != nil {
		return err
	}

	d := dispatch.New(nil, statusSink(cmd.ErrOrStderr()), engineCfg.Dispatch, logger)
	var heatmap *types.CombinedHeatmap
	task := func(ctx context.Context) error {
		raw, err := rawfile.NewReader().DriftTimeMatrix(ctx, args[0], key.MZStart, key.MZEnd)
		if err != nil {
			return err
		}
		heatmap, err = d.Reduce(ctx, reduce.NewEngine(engineCfg.Reduction, logger), key, raw, params)
		return err
	}
	if err := d.Run(cmd.Context(), task); err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(heatmap)
	}
	printHeatmap(cmd.OutOrStdout(), heatmap)
	return nil
}

func printHeatmap(w io.Writer, h *types.CombinedHeatmap) {
	fmt.Fprintf(w, "protocol: %s\n\n", h.Protocol)
	fmt.Fprintf(w, "%-6s  %-10s  %-10s  %s\n", "Step", "Scans", "Voltage", "Intensity")
	fmt.Fprintln(w, strings.Repeat("-", 44))
	for i, step := range h.ScanSchedule {
		fmt.Fprintf(w, "%-6d  %-10s  %-10g  %g\n",
			i, fmt.Sprintf("%d-%d", step.StartScan, step.EndScan-1), step.Voltage, h.Chromatogram[i])
	}
	fmt.Fprintf(w, "\nvoltage axis: %v\n", h.VoltageAxis)
	fmt.Fprintf(w, "mobiligram:   %v\n", h.Mobiligram)
	fmt.Fprintf(w, "total:        %g\n", h.Total())
}

func addReduceFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("mz-start", 0, "lower bound of the m/z window")
	cmd.Flags().Float64("mz-end", 0, "upper bound of the m/z window")
	cmd.Flags().Bool("json", false, "output the combined heatmap as JSON")
	addRampFlags(cmd)
}

func init() {
	addReduceFlags(reduceCmd)
	rootCmd.AddCommand(reduceCmd)
}
