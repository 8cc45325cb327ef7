package driver_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/askiada/sherlock/internal/driver"
	"github.com/askiada/sherlock/internal/failure"
	"github.com/askiada/sherlock/internal/ledger"
	"github.com/askiada/sherlock/internal/quant"
	"github.com/askiada/sherlock/internal/sleuth"
	"github.com/askiada/sherlock/internal/toolexec"
	"github.com/askiada/sherlock/internal/workdir"
	"github.com/askiada/sherlock/pkg/manifest"
)

const scenario = `
parameters:
  kallisto:
    index: transcripts.idx
    skip: %QUANT_SKIP%
  sleuth:
    skip: %DE_SKIP%
samples:
  - {id: S1, group: g, fraction: mono, files: [S1_1.fq, S1_2.fq]}
  - {id: S2, group: g, fraction: poly, files: [S2_1.fq, S2_2.fq]}
comparisons:
  - {id: C1, samples: [S1, S2]}
`

const sleuthResults = "target_id\tpval\tqval\tb\nENST1\t0.001\t0.01\t1.5\nENST2\t0.5\t0.9\t-0.2\n"

// fakeTools stands for kallisto and Rscript.
type fakeTools struct {
	mu       sync.Mutex
	commands []toolexec.Command
	fail     map[string]int
}

func (f *fakeTools) Execute(_ context.Context, cmd toolexec.Command) (*toolexec.Result, error) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.mu.Unlock()
	if code, ok := f.fail[cmd.Subject]; ok {
		return &toolexec.Result{ExitCode: code}, nil
	}
	if cmd.Tool == sleuth.Tool {
		err := os.WriteFile(filepath.Join(cmd.Args[2], sleuth.ResultName), []byte(sleuthResults), 0o644)
		if err != nil {
			return nil, err
		}
	}

	return &toolexec.Result{ExitCode: 0}, nil
}

func (f *fakeTools) calls(tool string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []string
	for _, c := range f.commands {
		if c.Tool == tool {
			res = append(res, c.Subject)
		}
	}

	return res
}

func lookPathAll(file string) (string, error) {
	return "/usr/bin/" + file, nil
}

func writeScenario(t *testing.T, quantSkip, deSkip string) string {
	t.Helper()
	dir := t.TempDir()
	content := strings.NewReplacer("%QUANT_SKIP%", quantSkip, "%DE_SKIP%", deSkip).Replace(scenario)
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(content), 0o644))

	return dir
}

func newDriver(dir string, tools *fakeTools, lookPath toolexec.LookPathFunc) *driver.Driver {
	return driver.New(driver.Config{
		OutputDir: dir,
		Version:   "test",
		Executor:  tools,
		LookPath:  lookPath,
	}, zap.NewNop())
}

func workspaceDirs(t *testing.T, layout workdir.Layout) []string {
	t.Helper()
	entries, err := os.ReadDir(layout.Sleuth())
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}

	return dirs
}

func TestRunFullScenario(t *testing.T) {
	t.Parallel()

	dir := writeScenario(t, "no", "no")
	tools := &fakeTools{}
	out := newDriver(dir, tools, lookPathAll).Run(context.Background())

	require.NoError(t, out.Err)
	assert.Equal(t, driver.Done, out.State)
	assert.Equal(t, failure.ExitOK, out.ExitCode)

	assert.Equal(t, []string{"S1", "S2"}, tools.calls(quant.Tool))
	assert.Equal(t, []string{"C1"}, tools.calls(sleuth.Tool))
	layout := workdir.New(dir)
	assert.Equal(t, []string{"C1"}, workspaceDirs(t, layout))
	for _, s := range out.Metadata.Samples {
		assert.Equal(t, layout.SampleDir(s.ID), s.QuantDir)
	}

	require.Len(t, out.Consolidated.Results, 1)
	assert.True(t, out.Consolidated.Results["C1"].Present)
	assert.Equal(t, []string{"C1"}, out.Report.Comparisons)
	assert.FileExists(t, out.Report.ResultsPath)

	states := make([]string, 0, len(out.Transitions))
	for _, tr := range out.Transitions {
		states = append(states, tr.To)
	}
	assert.Equal(t, []string{"ManifestParsed", "ReadyChecked", "Quantified", "DESetupDone", "DEExecuted", "Consolidated", "Compared", "Done"}, states)

	assert.FileExists(t, filepath.Join(layout.Logs(), driver.MetricsName))
	assert.FileExists(t, filepath.Join(layout.Logs(), driver.QuantDOTName))
	assert.FileExists(t, filepath.Join(layout.Logs(), driver.DEDOTName))
	logs, err := filepath.Glob(filepath.Join(layout.Logs(), "log.sherlock.*.txt"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	ldg, err := ledger.Open(filepath.Join(layout.Logs(), ledger.FileName))
	require.NoError(t, err)
	defer ldg.Close()
	invocations, err := ldg.Invocations(context.Background(), out.RunID)
	require.NoError(t, err)
	assert.Len(t, invocations, 3)
	recorded, err := ldg.Transitions(context.Background(), out.RunID)
	require.NoError(t, err)
	assert.Len(t, recorded, len(out.Transitions))
	state, code, finished, err := ldg.RunState(context.Background(), out.RunID)
	require.NoError(t, err)
	assert.True(t, finished)
	assert.Equal(t, string(driver.Done), state)
	assert.Equal(t, 0, code)
}

func TestRunQuantSkipWithExistingOutput(t *testing.T) {
	t.Parallel()

	dir := writeScenario(t, "yes", "no")
	layout := workdir.New(dir)
	for _, id := range []string{"S1", "S2"} {
		require.NoError(t, os.MkdirAll(layout.SampleDir(id), 0o755))
	}
	tools := &fakeTools{}
	out := newDriver(dir, tools, lookPathAll).Run(context.Background())

	require.NoError(t, out.Err)
	assert.Equal(t, driver.Done, out.State)
	assert.Empty(t, tools.calls(quant.Tool))
	assert.Equal(t, driver.QuantSkipped, driver.State(out.Transitions[2].To))
}

func TestRunQuantSkipMissingOutput(t *testing.T) {
	t.Parallel()

	dir := writeScenario(t, "yes", "no")
	layout := workdir.New(dir)
	require.NoError(t, os.MkdirAll(layout.SampleDir("S2"), 0o755))
	tools := &fakeTools{}
	out := newDriver(dir, tools, lookPathAll).Run(context.Background())

	assert.True(t, errors.Is(out.Err, failure.ErrMissingPriorOutput))
	assert.Equal(t, failure.ExitMissingPriorOutput, out.ExitCode)
	assert.Equal(t, driver.Aborted, out.State)
	assert.Empty(t, workspaceDirs(t, layout))
	assert.Empty(t, tools.commands)
}

func TestRunQuantFailure(t *testing.T) {
	t.Parallel()

	dir := writeScenario(t, "no", "no")
	tools := &fakeTools{fail: map[string]int{"S1": 1}}
	out := newDriver(dir, tools, lookPathAll).Run(context.Background())

	assert.Equal(t, failure.ExitToolFailure, out.ExitCode)
	assert.Equal(t, driver.Aborted, out.State)
	assert.Equal(t, []string{"S1"}, tools.calls(quant.Tool))
	assert.Empty(t, tools.calls(sleuth.Tool))
}

func TestRunDEFailureIsReported(t *testing.T) {
	t.Parallel()

	dir := writeScenario(t, "no", "no")
	tools := &fakeTools{fail: map[string]int{"C1": 1}}
	out := newDriver(dir, tools, lookPathAll).Run(context.Background())

	require.NoError(t, out.Err)
	assert.Equal(t, driver.Done, out.State)
	require.Len(t, out.DEOutcomes, 1)
	assert.Error(t, out.DEOutcomes[0].Err)
	assert.False(t, out.Consolidated.Results["C1"].Present)
	assert.Empty(t, out.Report.Comparisons)
}

func TestRunDESkipped(t *testing.T) {
	t.Parallel()

	dir := writeScenario(t, "no", "yes")
	var looked []string
	tools := &fakeTools{}
	out := newDriver(dir, tools, func(file string) (string, error) {
		looked = append(looked, file)

		return lookPathAll(file)
	}).Run(context.Background())

	require.NoError(t, out.Err)
	assert.Equal(t, []string{"kallisto"}, looked)
	assert.Empty(t, tools.calls(sleuth.Tool))
	assert.Equal(t, []string{"C1"}, workspaceDirs(t, workdir.New(dir)))
	assert.False(t, out.Consolidated.Results["C1"].Present)
	assert.Equal(t, driver.DESkipped, driver.State(out.Transitions[4].To))
}

func TestRunMissingDependency(t *testing.T) {
	t.Parallel()

	dir := writeScenario(t, "no", "no")
	tools := &fakeTools{}
	out := newDriver(dir, tools, func(file string) (string, error) {
		if file == "Rscript" {
			return "", assert.AnError
		}

		return lookPathAll(file)
	}).Run(context.Background())

	assert.Equal(t, failure.ExitMissingDependency, out.ExitCode)
	assert.Equal(t, driver.Aborted, out.State)
	assert.NoDirExists(t, filepath.Join(dir, workdir.LogsDir))
	assert.NoDirExists(t, filepath.Join(dir, workdir.KallistoDir))
}

func TestRunInvalidManifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifest.FileName), []byte("parameters:\n  kallisto:\n    skip: maybe\n"), 0o644))
	out := newDriver(dir, &fakeTools{}, lookPathAll).Run(context.Background())

	assert.Equal(t, failure.ExitConfig, out.ExitCode)
	assert.Equal(t, driver.Aborted, out.State)
	require.Len(t, out.Transitions, 1)
	assert.Equal(t, "Init", out.Transitions[0].From)
}

func TestRunMissingIndex(t *testing.T) {
	t.Parallel()

	dir := writeScenario(t, "no", "no")
	path := filepath.Join(dir, manifest.FileName)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(string(content), "index: transcripts.idx", "index: \"\"", 1)), 0o644))

	out := newDriver(dir, &fakeTools{}, lookPathAll).Run(context.Background())
	assert.Equal(t, failure.ExitMissingIndex, out.ExitCode)
	assert.Equal(t, driver.Aborted, out.State)
}
