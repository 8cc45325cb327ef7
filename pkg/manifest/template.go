package manifest

import (
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/askiada/sherlock/internal/failure"
)

// SampleTableName is the sample table written next to the manifest template.
const SampleTableName = "sample_table.csv"

// Template is the manifest written by create_manifest.
const Template = `# sherlock manifest
#
# Flags take yes or no. Durations are written 90s, 30m, 2h or 0 for none.
parameters:
  # kallisto quant
  kallisto:
    skip: no
    binary: kallisto
    # Path to the kallisto index of the organism used in the study.
    index: ""
    bias: no
    bootstrap-samples: 0
    seed: 42
    plaintext: no
    fusion: no
    single: no
    single-overhang: no
    # unstranded, rf-stranded or fr-stranded
    strand: unstranded
    # Required in single-end mode.
    fragment-length: 0
    sd: 0
    threads: 0
    pseudobam: no
    genomebam: no
    gtf: ""
    chromosomes: ""
    workers: 1
    timeout: 0
    retries: 0
    retry-backoff: 5s

  # sleuth differential expression, run with Rscript
  sleuth:
    skip: no
    rscript: Rscript
    # Leave empty to use the bundled script.
    script: ""
    # lrt or wt
    test: lrt
    workers: 1
    timeout: 0
    retries: 0
    retry-backoff: 5s

  # occupancy shift analysis
  sherlock:
    alpha: 0.05
    min-effect: 0

# Samples are read from the sample table. They can also be listed inline:
#
# samples:
#   - id: S1
#     group: control
#     fraction: monosome
#     files: [S1_R1.fastq.gz, S1_R2.fastq.gz]
sample_table: sample_table.csv

# Each comparison contrasts the fractions of a group, or an explicit sample list.
#
# comparisons:
#   - id: control_mono_vs_poly
#     group: control
#     fractions: [monosome, polysome]
#   - id: S1_vs_S2
#     samples: [S1, S2]
comparisons: []
`

// WriteTemplate writes the manifest template and an empty sample table into
// dir. Existing files are left untouched.
func WriteTemplate(dir string) error {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", dir)
	}

	manifestPath := filepath.Join(dir, FileName)
	f, err := os.OpenFile(manifestPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return failure.Configf("%s already exists", manifestPath)
		}

		return errors.Wrapf(err, "unable to create %s", manifestPath)
	}
	_, err = f.WriteString(Template)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrapf(err, "unable to write %s", manifestPath)
	}

	tablePath := filepath.Join(dir, SampleTableName)
	if _, err := os.Stat(tablePath); err == nil {
		return nil
	}
	t, err := os.Create(tablePath)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", tablePath)
	}
	w := csv.NewWriter(t)
	err = w.Write(SampleTableHeader)
	w.Flush()
	if err == nil {
		err = w.Error()
	}
	if cerr := t.Close(); err == nil {
		err = cerr
	}

	return errors.Wrapf(err, "unable to write %s", tablePath)
}
