// Package occupancy compares the differential expression results of every
// comparison to report the transcripts shifting between polysome fractions.
package occupancy

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/askiada/sherlock/internal/sleuth"
	"github.com/askiada/sherlock/internal/workdir"
	"github.com/askiada/sherlock/pkg/manifest"
)

// Files written under sherlock_output/.
const (
	ResultsName = "sherlock_results.tsv"
	SummaryName = "summary.tsv"
)

// Call is the shift of a transcript in one comparison.
type Call string

const (
	Up   Call = "up"
	Down Call = "down"
	None Call = "none"
	// Missing marks a transcript absent from a comparison's results.
	Missing Call = "NA"
)

// Classify returns Up or Down when row is significant at alpha with an effect
// larger than minEffect, None otherwise.
func Classify(row sleuth.Row, opts manifest.CompareOptions) Call {
	if math.IsNaN(row.QVal) || math.IsNaN(row.B) {
		return None
	}
	if row.QVal >= opts.Alpha || math.Abs(row.B) <= opts.MinEffect {
		return None
	}
	if row.B > 0 {
		return Up
	}

	return Down
}

// Transcript holds the calls of one transcript across present comparisons.
type Transcript struct {
	TargetID string
	Rows     map[string]sleuth.Row
	Calls    map[string]Call
	// Shifts counts the comparisons where the transcript is up or down.
	Shifts int
}

// Summary counts calls for one comparison.
type Summary struct {
	ComparisonID string
	Present      bool
	Reason       string
	Up           int
	Down         int
	None         int
}

// Report is the outcome of the comparative analysis.
type Report struct {
	// Comparisons lists the IDs of the present comparisons, in manifest order.
	Comparisons []string
	Transcripts []*Transcript
	Summaries   []Summary
	ResultsPath string
	SummaryPath string
}

// Compare classifies every transcript of every present comparison and writes
// the wide result table and the per comparison summary.
func Compare(layout workdir.Layout, cons *sleuth.Consolidated, comparisons []*manifest.Comparison, opts manifest.CompareOptions) (*Report, error) {
	report := &Report{
		ResultsPath: filepath.Join(layout.Sherlock(), ResultsName),
		SummaryPath: filepath.Join(layout.Sherlock(), SummaryName),
	}
	byID := make(map[string]*Transcript)
	for _, c := range comparisons {
		summary := Summary{ComparisonID: c.ID}
		res, ok := cons.Results[c.ID]
		switch {
		case !ok:
			summary.Reason = "not analysed"
		case !res.Present:
			summary.Reason = res.Reason
		default:
			summary.Present = true
			report.Comparisons = append(report.Comparisons, c.ID)
			for _, row := range res.Rows {
				tr, ok := byID[row.TargetID]
				if !ok {
					tr = &Transcript{TargetID: row.TargetID, Rows: map[string]sleuth.Row{}, Calls: map[string]Call{}}
					byID[row.TargetID] = tr
				}
				call := Classify(row, opts)
				tr.Rows[c.ID] = row
				tr.Calls[c.ID] = call
				switch call {
				case Up:
					summary.Up++
					tr.Shifts++
				case Down:
					summary.Down++
					tr.Shifts++
				case None, Missing:
					summary.None++
				}
			}
		}
		report.Summaries = append(report.Summaries, summary)
	}

	report.Transcripts = make([]*Transcript, 0, len(byID))
	for _, tr := range byID {
		report.Transcripts = append(report.Transcripts, tr)
	}
	sort.Slice(report.Transcripts, func(i, j int) bool {
		return report.Transcripts[i].TargetID < report.Transcripts[j].TargetID
	})

	err := os.MkdirAll(layout.Sherlock(), 0o755)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create %s", layout.Sherlock())
	}
	err = writeTable(report.ResultsPath, report.resultRecords())
	if err != nil {
		return nil, err
	}
	err = writeTable(report.SummaryPath, report.summaryRecords())
	if err != nil {
		return nil, err
	}

	return report, nil
}

// Call returns the call of targetID in comparisonID, Missing when the
// transcript is not part of that comparison's results.
func (t *Transcript) Call(comparisonID string) Call {
	if c, ok := t.Calls[comparisonID]; ok {
		return c
	}

	return Missing
}

func (r *Report) resultRecords() [][]string {
	header := []string{"target_id"}
	for _, id := range r.Comparisons {
		header = append(header, id+".b", id+".qval", id+".call")
	}
	header = append(header, "shifts")

	records := [][]string{header}
	for _, tr := range r.Transcripts {
		record := []string{tr.TargetID}
		for _, id := range r.Comparisons {
			row, ok := tr.Rows[id]
			if !ok {
				record = append(record, string(Missing), string(Missing), string(Missing))

				continue
			}
			record = append(record, sleuth.FormatValue(row.B), sleuth.FormatValue(row.QVal), string(tr.Call(id)))
		}
		records = append(records, append(record, strconv.Itoa(tr.Shifts)))
	}

	return records
}

func (r *Report) summaryRecords() [][]string {
	records := [][]string{{"comparison", "status", "up", "down", "none", "reason"}}
	for _, s := range r.Summaries {
		status := "absent"
		if s.Present {
			status = "present"
		}
		records = append(records, []string{
			s.ComparisonID, status, strconv.Itoa(s.Up), strconv.Itoa(s.Down), strconv.Itoa(s.None), s.Reason,
		})
	}

	return records
}

func writeTable(path string, records [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", path)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	w.Comma = '\t'
	err = w.WriteAll(records)
	if err != nil {
		return errors.Wrapf(err, "unable to write %s", path)
	}

	return errors.Wrapf(file.Close(), "unable to close %s", path)
}
