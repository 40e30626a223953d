// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package persist

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/ciu-engine/pkg/types"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(types.StoreConfig{DataDir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func sampleDocument() types.Document {
	return types.Document{
		ID:         "4f1c2d9e-0000-4000-8000-000000000001",
		Title:      "ubiquitin 6+",
		SourcePath: "/data/ubq.yaml",
		Kind:       types.DocumentCIU,
		Parameters: types.AcquisitionParameters{
			Protocol:         types.RampUserDefined,
			StartVoltage:     10,
			EndVoltage:       30,
			StepVoltage:      10,
			ScansPerVoltage:  5,
			UserDefinedTable: []types.UserDefinedStep{{ScanCount: 3, Voltage: 10}, {ScanCount: 4, Voltage: 15.5}},
		},
		Chromatogram: []float64{1.25, 0.1, 3e-7},
		CreatedAt:    time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC),
	}
}

func sampleRecords(docID string) []types.ExtractionRecord {
	return []types.ExtractionRecord{
		{
			Key:   types.IonKey{DocumentID: docID, MZStart: 1428.5, MZEnd: 1432.5},
			State: types.StateCombined,
			Raw:   &types.RawHeatmap{Matrix: [][]float64{{1, 0.1}, {2, 0.2}}, DriftBinCount: 2},
			Combined: &types.CombinedHeatmap{
				Matrix:       [][]float64{{3}, {0.30000000000000004}},
				VoltageAxis:  []float64{10},
				DriftAxis:    []int{0, 1},
				Mobiligram:   []float64{3, 0.30000000000000004},
				Chromatogram: []float64{3.3000000000000003},
				Protocol:     types.RampLinear,
				ScanSchedule: []types.ScanStep{{StartScan: 0, EndScan: 2, Voltage: 10}},
			},
		},
		{
			Key:   types.IonKey{DocumentID: docID, MZStart: 800, MZEnd: 805},
			State: types.StateFailed,
			Raw:   &types.RawHeatmap{Matrix: [][]float64{{7}}, DriftBinCount: 1},
			Error: &types.ErrorInfo{Kind: types.ErrorInsufficientScans, Message: "ramp requires 15 scans but only 1 are available"},
		},
		{
			Key:   types.IonKey{DocumentID: docID, MZStart: 900, MZEnd: 901},
			State: types.StateNotExtracted,
		},
	}
}

func TestNewStoreCreatesDBFile(t *testing.T) {
	_, dir := newTestStore(t)
	_, err := os.Stat(filepath.Join(dir, indexDir, dbFile))
	assert.NoError(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	doc := sampleDocument()
	records := sampleRecords(doc.ID)

	require.NoError(t, s.Save(ctx, doc, records))

	gotDoc, gotRecords, err := s.Load(ctx, doc.ID)
	require.NoError(t, err)

	assert.True(t, doc.CreatedAt.Equal(gotDoc.CreatedAt))
	gotDoc.CreatedAt = doc.CreatedAt
	assert.Equal(t, doc, gotDoc)

	// Records come back ordered by m/z.
	require.Len(t, gotRecords, 3)
	assert.Equal(t, records[1], gotRecords[0])
	assert.Equal(t, records[2], gotRecords[1])
	assert.Equal(t, records[0], gotRecords[2])
}

func TestSaveReplacesRecords(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	doc := sampleDocument()
	records := sampleRecords(doc.ID)

	require.NoError(t, s.Save(ctx, doc, records))
	doc.Title = "renamed"
	require.NoError(t, s.Save(ctx, doc, records[:1]))

	gotDoc, gotRecords, err := s.Load(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", gotDoc.Title)
	assert.Len(t, gotRecords, 1)
}

func TestSaveRejectsForeignRecord(t *testing.T) {
	s, _ := newTestStore(t)
	doc := sampleDocument()
	records := sampleRecords("someone-else")

	err := s.Save(context.Background(), doc, records)
	assert.Error(t, err)

	_, _, err = s.Load(context.Background(), doc.ID)
	assert.ErrorIs(t, err, types.ErrDocumentNotFound, "failed save must roll back")
}

func TestLoadMissing(t *testing.T) {
	s, _ := newTestStore(t)
	_, _, err := s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, types.ErrDocumentNotFound)
}

func TestListOrdersByCreation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	late := sampleDocument()
	late.ID = "b"
	late.Chromatogram = nil
	early := late
	early.ID = "a"
	early.CreatedAt = late.CreatedAt.Add(-time.Hour)

	require.NoError(t, s.Save(ctx, late, nil))
	require.NoError(t, s.Save(ctx, early, nil))

	docs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "b", docs[1].ID)
	assert.Nil(t, docs[0].Chromatogram)
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	doc := sampleDocument()
	require.NoError(t, s.Save(ctx, doc, sampleRecords(doc.ID)))

	require.NoError(t, s.Delete(ctx, doc.ID))
	_, _, err := s.Load(ctx, doc.ID)
	assert.ErrorIs(t, err, types.ErrDocumentNotFound)

	assert.ErrorIs(t, s.Delete(ctx, doc.ID), types.ErrDocumentNotFound)
}

func TestExportJSON(t *testing.T) {
	s, dir := newTestStore(t)
	ctx := context.Background()
	doc := sampleDocument()
	require.NoError(t, s.Save(ctx, doc, sampleRecords(doc.ID)))

	path, err := s.ExportJSON(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, exportDir, doc.ID+".json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got ExportDocument
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, doc.ID, got.ID)
	require.Len(t, got.Ions, 3)
	assert.Equal(t, types.StateCombined, got.Ions[2].State)
	assert.Equal(t, [][]float64{{3}, {0.30000000000000004}}, got.Ions[2].Combined.Matrix)
	assert.Equal(t, types.ErrorInsufficientScans, got.Ions[0].Error.Kind)
	assert.Nil(t, got.Ions[1].Combined)
}

func TestExportYAML(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	doc := sampleDocument()
	require.NoError(t, s.Save(ctx, doc, sampleRecords(doc.ID)))

	path, err := s.ExportYAML(ctx, doc.ID)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "drift_bin_count", "raw heatmaps are not exported")

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, doc.Title, got["title"])
	assert.Len(t, got["ions"], 3)
}

func TestExportMissing(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.ExportYAML(context.Background(), "nope")
	assert.ErrorIs(t, err, types.ErrDocumentNotFound)
}
