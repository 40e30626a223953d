//go:build mage

// Package main contains Mage build targets for ciu-engine developer tooling.
package main

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"

	"github.com/pdiddy/ciu-engine/internal/rawfile"
)

// projectDirs lists the working directories the CLI expects.
var projectDirs = []string{
	"data/raw",
	"data/index",
	"data/export",
}

// Init creates the data directory structure.
func Init() error {
	for _, dir := range projectDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}
	fmt.Println("Project directories initialized.")
	return nil
}

const (
	binDir  = "bin"
	binName = "ciu-engine"
	cmdPkg  = "./cmd/ciu-engine"
)

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	out := filepath.Join(binDir, binName)
	if err := sh.RunV("go", "build", "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", out)
	return nil
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Check runs go vet and the tests.
func Check() error {
	if err := sh.RunV("go", "vet", "./..."); err != nil {
		return err
	}
	mg.Deps(Test)
	return nil
}

const (
	sampleScans = 150
	sampleBins  = 200
	sampleMZ    = 1430.2
)

// Sample writes a synthetic raw export to data/raw/sample.yaml. Its drift
// peak moves from a compact to an unfolded conformer halfway through a
// 10-110 V, 10 V step, 10 scans-per-voltage linear ramp.
func Sample() error {
	mg.Deps(Init)

	exp := rawfile.Synthesize(sampleScans, sampleBins, sampleMZ, func(scan, bin int) float64 {
		// Fraction unfolded follows a logistic in scan index.
		f := 1 / (1 + math.Exp(-float64(scan-75)/8))
		compact := gaussian(float64(bin), 60, 6)
		unfolded := gaussian(float64(bin), 130, 10)
		v := 1000 * ((1-f)*compact + f*unfolded)
		if v < 0.5 {
			return 0
		}
		return math.Round(v)
	})

	path := filepath.Join("data", "raw", "sample.yaml")
	if err := rawfile.Write(path, exp); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d scans, %d drift bins, m/z %.1f)\n", path, sampleScans, sampleBins, sampleMZ)
	fmt.Println("Try: ciu-engine reduce data/raw/sample.yaml --mz-start 1429 --mz-end 1431 \\")
	fmt.Println("       --start-voltage 10 --end-voltage 110 --step-voltage 10 --scans-per-voltage 10")
	return nil
}

func gaussian(x, mu, sigma float64) float64 {
	d := (x - mu) / sigma
	return math.Exp(-d * d / 2)
}

// Stats prints project metrics: Go production/test LOC and documentation word count.
func Stats() error {
	prodLines, err := countGoLines(".", false)
	if err != nil {
		return err
	}
	testLines, err := countGoLines(".", true)
	if err != nil {
		return err
	}
	docWords, err := countDocWords(".")
	if err != nil {
		return err
	}

	fmt.Printf("Lines of code (Go, production): %d\n", prodLines)
	fmt.Printf("Lines of code (Go, tests):      %d\n", testLines)
	fmt.Printf("Words (documentation):           %d\n", docWords)
	return nil
}

// skipDir reports whether a directory is outside the project sources.
func skipDir(name string) bool {
	return name == "bin" || name == "data" || (strings.HasPrefix(name, ".") && name != ".") || strings.HasPrefix(name, "_")
}

// countGoLines walks the directory tree and counts non-blank lines in Go files.
// If testOnly is true, count only _test.go files; otherwise count non-test .go files.
func countGoLines(root string, testOnly bool) (int, error) {
	total := 0
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if skipDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		if strings.HasSuffix(path, "_test.go") != testOnly {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		for _, line := range bytes.Split(data, []byte("\n")) {
			if len(bytes.TrimSpace(line)) > 0 {
				total++
			}
		}
		return nil
	})
	return total, err
}

// countDocWords counts words in top-level Markdown files.
func countDocWords(root string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(root, "*.md"))
	if err != nil {
		return 0, err
	}
	total := 0
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("reading %s: %w", path, err)
		}
		total += len(bytes.Fields(data))
	}
	return total, nil
}
