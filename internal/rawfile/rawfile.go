// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rawfile reads and writes the YAML raw export format: a sparse list
// of (scan, drift bin, m/z, intensity) peaks with the acquisition dimensions.
// Reader extracts scan-indexed drift-time matrices for an m/z window and the
// 1D chromatogram and mobiligram projections.
package rawfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/ciu-engine/pkg/types"
)

// Peak is one centroided intensity in the raw export.
type Peak struct {
	Scan      int     `json:"scan" yaml:"scan"`
	Bin       int     `json:"bin" yaml:"bin"`
	MZ        float64 `json:"mz" yaml:"mz"`
	Intensity float64 `json:"intensity" yaml:"intensity"`
}

// Export is the content of a raw export file.
type Export struct {
	ScanCount int    `json:"scan_count" yaml:"scan_count"`
	DriftBins int    `json:"drift_bins" yaml:"drift_bins"`
	Peaks     []Peak `json:"peaks" yaml:"peaks"`
}

// Validate checks the dimensions and that every peak lies inside them.
func (e *Export) Validate() error {
	if e.ScanCount < 1 || e.DriftBins < 1 {
		return fmt.Errorf("invalid dimensions %d scans x %d drift bins", e.ScanCount, e.DriftBins)
	}
	for i, p := range e.Peaks {
		if p.Scan < 0 || p.Scan >= e.ScanCount {
			return fmt.Errorf("peak %d: scan %d outside [0,%d)", i, p.Scan, e.ScanCount)
		}
		if p.Bin < 0 || p.Bin >= e.DriftBins {
			return fmt.Errorf("peak %d: drift bin %d outside [0,%d)", i, p.Bin, e.DriftBins)
		}
	}
	return nil
}

// Load reads and validates a raw export. A missing file yields an error
// matching types.ErrSourceUnavailable.
func Load(path string) (*Export, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no raw file path", types.ErrSourceUnavailable)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", types.ErrSourceUnavailable, path)
		}
		return nil, fmt.Errorf("reading raw file %s: %w", path, err)
	}

	var exp Export
	if err := yaml.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("parsing raw file %s: %w", path, err)
	}
	if err := exp.Validate(); err != nil {
		return nil, fmt.Errorf("raw file %s: %w", path, err)
	}
	return &exp, nil
}

// Write marshals exp to path through a temporary file that is renamed into
// place on success.
func Write(path string, exp *Export) error {
	if err := exp.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(exp)
	if err != nil {
		return fmt.Errorf("marshaling raw export: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".rawfile-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing raw export: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// Reader serves extractions from raw export files. Parsed files are cached
// until their modification time changes. Reader is safe for concurrent use.
type Reader struct {
	mu    sync.Mutex
	cache map[string]cached
}

type cached struct {
	modTime time.Time
	export  *Export
}

// NewReader creates a Reader with an empty cache.
func NewReader() *Reader {
	return &Reader{cache: make(map[string]cached)}
}

func (r *Reader) load(ctx context.Context, path string) (*Export, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("%w: no raw file path", types.ErrSourceUnavailable)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", types.ErrSourceUnavailable, path)
		}
		return nil, fmt.Errorf("stat raw file %s: %w", path, err)
	}

	r.mu.Lock()
	c, ok := r.cache[path]
	r.mu.Unlock()
	if ok && c.modTime.Equal(info.ModTime()) {
		return c.export, nil
	}

	exp, err := Load(path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[path] = cached{modTime: info.ModTime(), export: exp}
	r.mu.Unlock()
	return exp, nil
}

func inWindow(mz, lo, hi float64) bool {
	return mz >= lo && mz <= hi
}

// DriftTimeMatrix sums the intensities of peaks with m/z in [mzStart, mzEnd]
// into a [scan][drift bin] matrix.
func (r *Reader) DriftTimeMatrix(ctx context.Context, path string, mzStart, mzEnd float64) (*types.RawHeatmap, error) {
	exp, err := r.load(ctx, path)
	if err != nil {
		return nil, err
	}
	m := make([][]float64, exp.ScanCount)
	for s := range m {
		m[s] = make([]float64, exp.DriftBins)
	}
	for _, p := range exp.Peaks {
		if inWindow(p.MZ, mzStart, mzEnd) {
			m[p.Scan][p.Bin] += p.Intensity
		}
	}
	return &types.RawHeatmap{Matrix: m, DriftBinCount: exp.DriftBins}, nil
}

// Chromatogram returns the total intensity of every scan.
func (r *Reader) Chromatogram(ctx context.Context, path string) ([]float64, error) {
	exp, err := r.load(ctx, path)
	if err != nil {
		return nil, err
	}
	out := make([]float64, exp.ScanCount)
	for _, p := range exp.Peaks {
		out[p.Scan] += p.Intensity
	}
	return out, nil
}

// Mobiligram returns the per-drift-bin intensity of peaks with m/z in
// [mzStart, mzEnd], summed over all scans.
func (r *Reader) Mobiligram(ctx context.Context, path string, mzStart, mzEnd float64) ([]float64, error) {
	exp, err := r.load(ctx, path)
	if err != nil {
		return nil, err
	}
	out := make([]float64, exp.DriftBins)
	for _, p := range exp.Peaks {
		if inWindow(p.MZ, mzStart, mzEnd) {
			out[p.Bin] += p.Intensity
		}
	}
	return out, nil
}

// Synthesize builds an export of scans x bins peaks at a single m/z, with
// intensity(scan, bin) giving each cell. Zero intensities are omitted.
func Synthesize(scans, bins int, mz float64, intensity func(scan, bin int) float64) *Export {
	exp := &Export{ScanCount: scans, DriftBins: bins}
	for s := 0; s < scans; s++ {
		for b := 0; b < bins; b++ {
			if v := intensity(s, b); v != 0 {
				exp.Peaks = append(exp.Peaks, Peak{Scan: s, Bin: b, MZ: mz, Intensity: v})
			}
		}
	}
	return exp
}
