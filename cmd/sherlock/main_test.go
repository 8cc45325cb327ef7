package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/sherlock/internal/failure"
	"github.com/askiada/sherlock/pkg/manifest"
)

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), args, &stdout, &stderr)

	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	t.Parallel()

	code, stdout, _ := run(t, "--version")
	assert.Equal(t, failure.ExitOK, code)
	assert.Contains(t, stdout, version)
}

func TestCreateManifest(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "study")
	code, stdout, _ := run(t, "create_manifest", "-o", dir)
	require.Equal(t, failure.ExitOK, code)
	assert.Contains(t, stdout, "manifest template written")
	assert.FileExists(t, filepath.Join(dir, manifest.FileName))
	assert.FileExists(t, filepath.Join(dir, manifest.SampleTableName))

	code, _, stderr := run(t, "create_manifest", "-o", dir)
	assert.Equal(t, failure.ExitConfig, code)
	assert.Contains(t, stderr, "already exists")
}

func TestConfigErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tcs := map[string][]string{
		"missing output": {"run"},
		"invalid level":  {"run", "-o", dir, "--log", "verbose"},
		"unknown flag":   {"run", "-o", dir, "--threads", "4"},
		"no manifest":    {"run", "-o", dir},
	}
	for name, args := range tcs {
		code, _, _ := run(t, args...)
		assert.Equal(t, failure.ExitConfig, code, name)
	}
}

func TestRunMissingPriorOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := `
parameters:
  kallisto:
    skip: yes
  sleuth:
    skip: yes
samples:
  - {id: S1, fraction: mono, files: [S1_1.fq, S1_2.fq]}
  - {id: S2, fraction: poly, files: [S2_1.fq, S2_2.fq]}
comparisons:
  - {id: C1, samples: [S1, S2]}
`
	manifestPath := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(manifestPath, []byte(content), 0o644))

	code, stdout, stderr := run(t, "run", "-o", dir, "--manifest", manifestPath, "--log", "debug")
	assert.Equal(t, failure.ExitMissingPriorOutput, code)
	assert.Contains(t, stderr, "S1")
	assert.Contains(t, stdout, "skipping kallisto quant")
}
