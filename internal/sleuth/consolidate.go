package sleuth

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/askiada/sherlock/internal/failure"
	"github.com/askiada/sherlock/internal/workdir"
)

// ConsolidatedName is the merged result table written under sleuth_output/.
const ConsolidatedName = "consolidated.tsv"

var resultColumns = []string{"target_id", "pval", "qval", "b"}

// Row is one transcript of a sleuth result table. Missing values are NaN.
//
// With the lrt test, PVal and QVal test every fraction of the comparison at
// once while B is always the effect of the second fraction against the first,
// in the order of metadata.txt. A comparison of three or more fractions
// therefore reports no effect size for its later fractions.
type Row struct {
	TargetID string
	PVal     float64
	QVal     float64
	// B is the wald estimate of the second fraction against the first.
	B float64
}

// Result is the outcome of one comparison. Absent results carry the reason.
type Result struct {
	ComparisonID string
	Present      bool
	Reason       string
	Rows         []Row
}

// Consolidated holds the results of every comparison, keyed by comparison ID.
type Consolidated struct {
	// Order lists comparison IDs in manifest order.
	Order   []string
	Results map[string]*Result
}

// Present returns the present results in manifest order.
func (c *Consolidated) Present() []*Result {
	res := make([]*Result, 0, len(c.Order))
	for _, id := range c.Order {
		if r := c.Results[id]; r.Present {
			res = append(res, r)
		}
	}

	return res
}

// Consolidate reads the result table of every workspace and writes them all to
// sleuth_output/consolidated.tsv. A failed comparison or a missing or
// unreadable table is recorded as absent.
func Consolidate(layout workdir.Layout, workspaces []*Workspace) (*Consolidated, error) {
	cons := &Consolidated{Results: make(map[string]*Result, len(workspaces))}
	for _, ws := range workspaces {
		id := ws.Comparison.ID
		cons.Order = append(cons.Order, id)
		res := &Result{ComparisonID: id}
		cons.Results[id] = res

		if ws.Err != nil {
			res.Reason = ws.Err.Error()

			continue
		}
		if _, err := os.Stat(ws.ResultPath); err != nil {
			res.Reason = failure.MissingPriorOutput(id, ws.ResultPath).Error()

			continue
		}
		rows, err := ReadResults(ws.ResultPath)
		if err != nil {
			res.Reason = err.Error()

			continue
		}
		res.Present = true
		res.Rows = rows
	}

	err := writeConsolidated(filepath.Join(layout.Sleuth(), ConsolidatedName), cons)
	if err != nil {
		return nil, err
	}

	return cons, nil
}

// ReadResults reads a sleuth result table. Columns are matched by name.
func ReadResults(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", path)
	}
	defer file.Close()

	rows, err := readResults(file)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %s", path)
	}

	return rows, nil
}

func readResults(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "missing header")
	}
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.TrimSpace(col)] = i
	}
	cols := make([]int, len(resultColumns))
	for i, name := range resultColumns {
		pos, ok := idx[name]
		if !ok {
			return nil, errors.Errorf("missing column %s", name)
		}
		cols[i] = pos
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := Row{TargetID: record[cols[0]]}
		for i, dst := range []*float64{&row.PVal, &row.QVal, &row.B} {
			*dst, err = parseValue(record[cols[i+1]])
			if err != nil {
				return nil, errors.Wrapf(err, "transcript %s", row.TargetID)
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func parseValue(s string) (float64, error) {
	switch s {
	case "", "NA", "NaN":
		return math.NaN(), nil
	}

	return strconv.ParseFloat(s, 64)
}

// FormatValue renders v the way R writes it in a table.
func FormatValue(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}

	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeConsolidated(path string, cons *Consolidated) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", path)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	w.Comma = '\t'
	err = w.Write(append([]string{"comparison"}, resultColumns...))
	if err != nil {
		return errors.Wrapf(err, "unable to write %s", path)
	}
	for _, res := range cons.Present() {
		for _, row := range res.Rows {
			err = w.Write([]string{res.ComparisonID, row.TargetID, FormatValue(row.PVal), FormatValue(row.QVal), FormatValue(row.B)})
			if err != nil {
				return errors.Wrapf(err, "unable to write %s", path)
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrapf(err, "unable to write %s", path)
	}

	return errors.Wrapf(file.Close(), "unable to close %s", path)
}
