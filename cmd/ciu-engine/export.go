// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"
)

var exportCmd = &cobra.Command{
	Use:   "export <doc-id>",
	Short: "Export the combined heatmaps of a document",
	Long: `Export writes a document, its acquisition parameters and the combined
heatmap of every ion to <data-dir>/export/<doc-id>.yaml or .json.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	e, err := openEngine(os.Stdout)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	var paths []string
	switch strings.ToLower(format) {
	case "yaml":
		p, err := e.db.ExportYAML(ctx, args[0])
		if err != nil {
			return err
		}
		paths = append(paths, p)
	case "json":
		p, err := e.db.ExportJSON(ctx, args[0])
		if err != nil {
			return err
		}
		paths = append(paths, p)
	case "both":
		y, err := e.db.ExportYAML(ctx, args[0])
		if err != nil {
			return err
		}
		j, err := e.db.ExportJSON(ctx, args[0])
		if err != nil {
			return err
		}
		paths = append(paths, y, j)
	default:
		return fmt.Errorf("unknown export format %q (want yaml, json or both)", format)
	}

	for _, p := range paths {
		fmt.Fprintf(os.Stdout, "exported %s\n", p)
	}
	return nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding YAML: %w", err)
	}
	return enc.Close()
}

func init() {
	exportCmd.Flags().String("format", "yaml", "export format: yaml, json or both")

	rootCmd.AddCommand(exportCmd)
}
