// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ciu-engine/internal/dispatch"
	"github.com/pdiddy/ciu-engine/internal/document"
	"github.com/pdiddy/ciu-engine/pkg/types"
)

var extractCmd = &cobra.Command{
	Use:   "extract <doc-id>",
	Short: "Extract ions from a document and combine them into heatmaps",
	Long: `Extract reads the drift-time matrix of every --ion window from the
document's raw export and, for CIU documents, combines the scans into a
voltage-resolved heatmap. Results are saved back to the database.

--mode new skips ions that already hold a result, --mode selected only
re-extracts the ions named by --select, and --mode all re-extracts
everything. One failing ion never stops the batch.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	docID := args[0]
	ionFlags, _ := cmd.Flags().GetStringArray("ion")
	keys, err := parseIons(docID, ionFlags)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("at least one --ion lo-hi is required")
	}

	modeFlag, _ := cmd.Flags().GetString("mode")
	mode, err := types.ParseExtractionMode(modeFlag)
	if err != nil {
		return err
	}
	selectFlags, _ := cmd.Flags().GetStringArray("select")
	selected, err := parseIons(docID, selectFlags)
	if err != nil {
		return err
	}
	concurrent, _ := cmd.Flags().GetBool("concurrent")

	e, err := openEngine(os.Stdout, document.WithSelector(document.NewSelectionSet(selected...)))
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	if _, err := e.load(ctx, docID); err != nil {
		return err
	}

	var summary dispatch.BatchSummary
	task := func(ctx context.Context) error {
		if concurrent {
			summary = e.dispatcher.ExtractIonsConcurrent(ctx, keys, mode)
		} else {
			summary = e.dispatcher.ExtractIons(ctx, keys, mode)
		}
		return nil
	}
	if err := e.run(ctx, task); err != nil {
		return err
	}

	if err := e.save(ctx, docID); err != nil {
		return fmt.Errorf("saving %s: %w", docID, err)
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d ion(s) failed extraction", summary.Failed)
	}
	return nil
}

var combineCmd = &cobra.Command{
	Use:   "combine <doc-id>",
	Short: "Re-combine extracted ions with the document's current parameters",
	Long: `Combine re-runs the scan-to-voltage reduction on ions whose raw
drift-time matrix is already stored, without reading the raw export again.
Use it after changing the acquisition parameters with document params.
Without --ion every extracted ion of the document is combined.`,
	Args: cobra.ExactArgs(1),
	RunE: runCombine,
}

func runCombine(cmd *cobra.Command, args []string) error {
	docID := args[0]
	ionFlags, _ := cmd.Flags().GetStringArray("ion")
	keys, err := parseIons(docID, ionFlags)
	if err != nil {
		return err
	}

	e, err := openEngine(os.Stdout)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	if _, err := e.load(ctx, docID); err != nil {
		return err
	}
	if len(keys) == 0 {
		records, err := e.docs.Records(docID)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if rec.Raw != nil {
				keys = append(keys, rec.Key)
			}
		}
	}

	failed := 0
	task := func(ctx context.Context) error {
		for _, key := range keys {
			if _, err := e.dispatcher.CombineIon(ctx, key); err != nil {
				failed++
			}
		}
		return nil
	}
	if err := e.run(ctx, task); err != nil {
		return err
	}

	if err := e.save(ctx, docID); err != nil {
		return fmt.Errorf("saving %s: %w", docID, err)
	}
	if failed > 0 {
		return fmt.Errorf("%d ion(s) failed combination", failed)
	}
	return nil
}

func init() {
	extractCmd.Flags().StringArray("ion", nil, "m/z window lo-hi to extract (repeatable)")
	extractCmd.Flags().String("mode", string(types.ModeNew), "extraction mode: new, selected, all")
	extractCmd.Flags().StringArray("select", nil, "m/z window lo-hi marked as selected for --mode selected (repeatable)")
	extractCmd.Flags().Bool("concurrent", false, "extract ions concurrently (limited by --concurrency)")

	combineCmd.Flags().StringArray("ion", nil, "m/z window lo-hi to combine (repeatable; default all extracted ions)")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(combineCmd)
}
