package manifest

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/askiada/sherlock/internal/failure"
)

// SampleTableHeader is the header row of a sample table.
var SampleTableHeader = []string{"sample_id", "group", "fraction", "fastq_1", "fastq_2"}

// ReadSampleTable reads samples from a CSV sample table. FASTQ paths are
// resolved against the table directory.
func ReadSampleTable(path string) ([]*Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, failure.Config(err, "unable to open sample table")
	}
	defer f.Close()

	samples, err := readSampleTable(f, filepath.Dir(path))
	if err != nil {
		return nil, failure.Config(err, "invalid sample table "+path)
	}

	return samples, nil
}

func readSampleTable(r io.Reader, base string) ([]*Sample, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "unable to read header")
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"sample_id", "fastq_1"} {
		if _, ok := cols[required]; !ok {
			return nil, errors.Errorf("missing column %s", required)
		}
	}

	get := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}

		return strings.TrimSpace(record[i])
	}

	var samples []*Sample
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "unable to read row")
		}
		if strings.TrimSpace(strings.Join(record, "")) == "" {
			continue
		}
		s := &Sample{
			ID:       get(record, "sample_id"),
			Group:    get(record, "group"),
			Fraction: get(record, "fraction"),
		}
		for _, col := range []string{"fastq_1", "fastq_2"} {
			if v := get(record, col); v != "" {
				s.Files = append(s.Files, resolve(base, v))
			}
		}
		samples = append(samples, s)
	}

	return samples, nil
}
