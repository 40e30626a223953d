// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/ciu-engine/pkg/types"
)

// ExportDocument holds a document with its combined heatmaps for export.
type ExportDocument struct {
	ID         string                      `json:"id" yaml:"id"`
	Title      string                      `json:"title" yaml:"title"`
	SourcePath string                      `json:"source_path" yaml:"source_path"`
	Kind       types.DocumentKind          `json:"kind" yaml:"kind"`
	Parameters types.AcquisitionParameters `json:"parameters" yaml:"parameters"`
	CreatedAt  time.Time                   `json:"created_at" yaml:"created_at"`
	Ions       []ExportIon                 `json:"ions" yaml:"ions"`
}

// ExportIon holds one extraction record. The raw heatmap is left out.
type ExportIon struct {
	MZStart  float64                `json:"mz_start" yaml:"mz_start"`
	MZEnd    float64                `json:"mz_end" yaml:"mz_end"`
	State    types.ExtractionState  `json:"state" yaml:"state"`
	Combined *types.CombinedHeatmap `json:"combined,omitempty" yaml:"combined,omitempty"`
	Error    *types.ErrorInfo       `json:"error,omitempty" yaml:"error,omitempty"`
}

// ExportYAML writes a stored document to dataDir/export/<id>.yaml and
// returns the path written.
func (s *Store) ExportYAML(ctx context.Context, id string) (string, error) {
	entry, err := s.exportEntry(ctx, id)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("marshaling YAML: %w", err)
	}
	return s.writeExport(id+".yaml", data)
}

// ExportJSON writes a stored document to dataDir/export/<id>.json and
// returns the path written.
func (s *Store) ExportJSON(ctx context.Context, id string) (string, error) {
	entry, err := s.exportEntry(ctx, id)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	return s.writeExport(id+".json", data)
}

func (s *Store) exportEntry(ctx context.Context, id string) (ExportDocument, error) {
	doc, records, err := s.Load(ctx, id)
	if err != nil {
		return ExportDocument{}, fmt.Errorf("loading for export: %w", err)
	}

	entry := ExportDocument{
		ID:         doc.ID,
		Title:      doc.Title,
		SourcePath: doc.SourcePath,
		Kind:       doc.Kind,
		Parameters: doc.Parameters,
		CreatedAt:  doc.CreatedAt,
		Ions:       make([]ExportIon, len(records)),
	}
	for i, rec := range records {
		entry.Ions[i] = ExportIon{
			MZStart:  rec.Key.MZStart,
			MZEnd:    rec.Key.MZEnd,
			State:    rec.State,
			Combined: rec.Combined,
			Error:    rec.Error,
		}
	}
	return entry, nil
}

func (s *Store) writeExport(name string, data []byte) (string, error) {
	dir := filepath.Join(s.dataDir, exportDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing export: %w", err)
	}
	return path, nil
}
