// Package workdir describes the output directory of a sherlock run.
//
// Structure created by Create:
//
//	<root>/
//	├── logs/             <- run logs, ledger, metrics, job graphs
//	├── kallisto_output/  <- one folder per sample
//	├── sleuth_output/    <- one workspace per comparison
//	└── sherlock_output/  <- occupancy shift report
package workdir

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	LogsDir     = "logs"
	KallistoDir = "kallisto_output"
	SleuthDir   = "sleuth_output"
	SherlockDir = "sherlock_output"
)

// Layout resolves every path of a run relative to its output directory.
type Layout struct {
	Root string
}

// New returns the layout rooted at root.
func New(root string) Layout {
	return Layout{Root: filepath.Clean(root)}
}

func (l Layout) Logs() string     { return filepath.Join(l.Root, LogsDir) }
func (l Layout) Kallisto() string { return filepath.Join(l.Root, KallistoDir) }
func (l Layout) Sleuth() string   { return filepath.Join(l.Root, SleuthDir) }
func (l Layout) Sherlock() string { return filepath.Join(l.Root, SherlockDir) }

// SampleDir is the quantification output folder of a sample.
func (l Layout) SampleDir(sampleID string) string {
	return filepath.Join(l.Kallisto(), sampleID)
}

// WorkspaceDir is the differential expression workspace of a comparison.
func (l Layout) WorkspaceDir(comparisonID string) string {
	return filepath.Join(l.Sleuth(), comparisonID)
}

// Create makes the four top level folders if they are missing.
func (l Layout) Create() error {
	for _, dir := range []string{l.Logs(), l.Kallisto(), l.Sleuth(), l.Sherlock()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "unable to create %s", dir)
		}
	}

	return nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.IsDir()
}
