// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ciu-engine/internal/rawfile"
	"github.com/pdiddy/ciu-engine/pkg/types"
)

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Open, list and remove documents",
	Long: `Document manages the documents held in the local database. A document
records a raw export, its experiment kind and its acquisition parameters;
extraction results are attached to it by the extract and combine commands.`,
}

// --- open subcommand ---

var documentOpenCmd = &cobra.Command{
	Use:   "open <raw.yaml>",
	Short: "Register a raw export as a new document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentOpen,
}

func runDocumentOpen(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolving %s: %w", args[0], err)
	}
	if _, err := rawfile.Load(path); err != nil {
		return err
	}

	kindFlag, _ := cmd.Flags().GetString("kind")
	kind, err := types.ParseDocumentKind(kindFlag)
	if err != nil {
		return err
	}
	params, err := rampParams(cmd)
	if err != nil {
		return err
	}
	title, _ := cmd.Flags().GetString("title")
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	e, err := openEngine(os.Stdout)
	if err != nil {
		return err
	}
	defer e.Close()

	doc, err := e.docs.Add(types.Document{Title: title, SourcePath: path, Kind: kind, Parameters: params})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if _, err := e.dispatcher.LoadChromatogram(ctx, doc.ID); err != nil {
		return err
	}
	if err := e.save(ctx, doc.ID); err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, doc.ID)
	return nil
}

// --- list subcommand ---

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored documents",
	Args:  cobra.NoArgs,
	RunE:  runDocumentList,
}

func runDocumentList(cmd *cobra.Command, args []string) error {
	e, err := openEngine(os.Stdout)
	if err != nil {
		return err
	}
	defer e.Close()

	docs, err := e.db.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No documents found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-36s  %-24s  %-8s  %-12s  %s\n", "ID", "Title", "Kind", "Protocol", "Created")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
	for _, d := range docs {
		title := d.Title
		if len(title) > 24 {
			title = title[:21] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-36s  %-24s  %-8s  %-12s  %s\n",
			d.ID, title, d.Kind, d.Parameters.Protocol, d.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// --- params subcommand ---

var documentParamsCmd = &cobra.Command{
	Use:   "params <doc-id>",
	Short: "Show or replace the acquisition parameters of a document",
	Long: `Params prints the acquisition parameters of a document as YAML. When any
parameter flag is given the parameters are replaced first; run combine to
apply them to ions that were already extracted.`,
	Args: cobra.ExactArgs(1),
	RunE: runDocumentParams,
}

func runDocumentParams(cmd *cobra.Command, args []string) error {
	e, err := openEngine(os.Stdout)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	doc, err := e.load(ctx, args[0])
	if err != nil {
		return err
	}

	if rampFlagsChanged(cmd) {
		params, err := rampParams(cmd)
		if err != nil {
			return err
		}
		if err := e.docs.SetParameters(doc.ID, params); err != nil {
			return err
		}
		if err := e.save(ctx, doc.ID); err != nil {
			return err
		}
		doc.Parameters = params
	}

	return writeYAML(os.Stdout, doc.Parameters)
}

// --- remove subcommand ---

var documentRemoveCmd = &cobra.Command{
	Use:   "remove <doc-id>",
	Short: "Delete a document and its extraction results",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentRemove,
}

func runDocumentRemove(cmd *cobra.Command, args []string) error {
	e, err := openEngine(os.Stdout)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.db.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "removed %s\n", args[0])
	return nil
}

func init() {
	documentOpenCmd.Flags().String("title", "", "document title (default: file name)")
	documentOpenCmd.Flags().String("kind", string(types.DocumentCIU), "experiment kind: ciu or mobility")
	addRampFlags(documentOpenCmd)
	addRampFlags(documentParamsCmd)

	documentCmd.AddCommand(documentOpenCmd)
	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentParamsCmd)
	documentCmd.AddCommand(documentRemoveCmd)
	rootCmd.AddCommand(documentCmd)
}
