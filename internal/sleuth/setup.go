// Package sleuth prepares, runs and consolidates the differential expression
// analysis of every comparison with sleuth.
package sleuth

import (
	_ "embed"
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/askiada/sherlock/internal/workdir"
	"github.com/askiada/sherlock/pkg/manifest"
)

// Files of a workspace.
const (
	MetadataName = "metadata.txt"
	ResultName   = "sleuth_results.tsv"
	LogName      = "log.txt"
	ScriptName   = "sleuth.R"
)

//go:embed sleuth.R
var script []byte

// Script returns the bundled R script.
func Script() []byte {
	return script
}

// ScriptPath is where Setup writes the bundled R script.
func ScriptPath(layout workdir.Layout) string {
	return filepath.Join(layout.Sleuth(), ScriptName)
}

// Workspace is the working folder of one comparison.
type Workspace struct {
	Comparison   *manifest.Comparison
	Dir          string
	MetadataPath string
	ResultPath   string
	LogPath      string
	// Err is set when the analysis of the comparison failed.
	Err error
}

// Setup creates one workspace per comparison, each with the metadata file
// read by the R script, and writes the R script. Every sample must have been
// quantified or located before.
func Setup(meta *manifest.Metadata, layout workdir.Layout) ([]*Workspace, error) {
	err := os.MkdirAll(layout.Sleuth(), 0o755)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create %s", layout.Sleuth())
	}
	err = os.WriteFile(ScriptPath(layout), script, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "unable to write sleuth script")
	}

	workspaces := make([]*Workspace, 0, len(meta.Comparisons))
	for _, c := range meta.Comparisons {
		ws, err := setupWorkspace(meta, layout, c)
		if err != nil {
			return workspaces, errors.Wrapf(err, "comparison %s", c.ID)
		}
		workspaces = append(workspaces, ws)
	}

	return workspaces, nil
}

func setupWorkspace(meta *manifest.Metadata, layout workdir.Layout, c *manifest.Comparison) (*Workspace, error) {
	samples := meta.ComparisonSamples(c)
	for _, s := range samples {
		if s.QuantDir == "" {
			return nil, errors.Errorf("sample %s has no quantification output", s.ID)
		}
	}

	dir := layout.WorkspaceDir(c.ID)
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create %s", dir)
	}
	ws := &Workspace{
		Comparison:   c,
		Dir:          dir,
		MetadataPath: filepath.Join(dir, MetadataName),
		ResultPath:   filepath.Join(dir, ResultName),
		LogPath:      filepath.Join(dir, LogName),
	}
	err = writeMetadata(ws.MetadataPath, samples)
	if err != nil {
		return nil, err
	}
	c.WorkspaceDir = ws.Dir
	c.ResultPath = ws.ResultPath

	return ws, nil
}

func writeMetadata(path string, samples []*manifest.Sample) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", path)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	w.Comma = '\t'
	records := [][]string{{"sample", "condition", "path"}}
	for _, s := range samples {
		records = append(records, []string{s.ID, s.Condition(), s.QuantDir})
	}
	err = w.WriteAll(records)
	if err != nil {
		return errors.Wrapf(err, "unable to write %s", path)
	}

	return errors.Wrapf(file.Close(), "unable to close %s", path)
}
