package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/askiada/sherlock/internal/failure"
)

// FileName is the manifest file looked up in the output directory.
const FileName = "manifest.yaml"

// Sample is one sequenced library.
type Sample struct {
	ID       string   `yaml:"id"`
	Group    string   `yaml:"group,omitempty"`
	Fraction string   `yaml:"fraction,omitempty"`
	Files    []string `yaml:"files"`

	// QuantDir is set once the quantification output of the sample is known.
	QuantDir string `yaml:"-"`
}

// Condition is the label the statistics engine contrasts.
func (s *Sample) Condition() string {
	if s.Fraction != "" {
		return s.Fraction
	}

	return s.ID
}

// Comparison contrasts the fractions of a set of samples.
type Comparison struct {
	ID        string   `yaml:"id"`
	Samples   []string `yaml:"samples,omitempty"`
	Group     string   `yaml:"group,omitempty"`
	Fractions []string `yaml:"fractions,omitempty"`

	WorkspaceDir string `yaml:"-"`
	ResultPath   string `yaml:"-"`
}

// Metadata is a parsed manifest.
type Metadata struct {
	Path        string
	Parameters  Parameters
	Samples     []*Sample
	Comparisons []*Comparison

	byID map[string]*Sample
}

// Sample returns the sample with the given id.
func (m *Metadata) Sample(id string) (*Sample, bool) {
	s, ok := m.byID[id]

	return s, ok
}

// ComparisonSamples returns the samples contrasted by c, in the order c lists them.
func (m *Metadata) ComparisonSamples(c *Comparison) []*Sample {
	res := make([]*Sample, 0, len(c.Samples))
	for _, id := range c.Samples {
		if s, ok := m.byID[id]; ok {
			res = append(res, s)
		}
	}

	return res
}

type document struct {
	Parameters  Parameters    `yaml:"parameters"`
	SampleTable string        `yaml:"sample_table,omitempty"`
	Samples     []*Sample     `yaml:"samples,omitempty"`
	Comparisons []*Comparison `yaml:"comparisons"`
}

// Parse reads and validates the manifest at path. Relative paths inside the
// manifest are resolved against its directory.
func Parse(path string) (*Metadata, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, failure.Config(err, "unable to read manifest")
	}

	doc := document{Parameters: DefaultParameters()}
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	err = dec.Decode(&doc)
	if err != nil {
		return nil, failure.Config(err, fmt.Sprintf("unable to parse manifest %s", path))
	}

	base := filepath.Dir(path)
	if doc.SampleTable != "" {
		tableSamples, err := ReadSampleTable(resolve(base, doc.SampleTable))
		if err != nil {
			return nil, err
		}
		doc.Samples = append(doc.Samples, tableSamples...)
	}

	meta := &Metadata{
		Path:        path,
		Parameters:  doc.Parameters,
		Samples:     doc.Samples,
		Comparisons: doc.Comparisons,
	}
	if meta.Parameters.Quant.Index != "" {
		meta.Parameters.Quant.Index = resolve(base, meta.Parameters.Quant.Index)
	}
	if meta.Parameters.DE.Script != "" {
		meta.Parameters.DE.Script = resolve(base, meta.Parameters.DE.Script)
	}
	for _, s := range meta.Samples {
		if s == nil {
			continue
		}
		for i, f := range s.Files {
			s.Files[i] = resolve(base, f)
		}
	}

	err = meta.validate()
	if err != nil {
		return nil, failure.Config(err, fmt.Sprintf("invalid manifest %s", path))
	}

	return meta, nil
}

func resolve(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}

	return filepath.Join(base, p)
}

// ReservedComparisonIDs are the names of the files written next to the
// comparison workspaces under sleuth_output/.
var ReservedComparisonIDs = []string{"sleuth.R", "consolidated.tsv"}

func reservedComparisonID(id string) bool {
	for _, r := range ReservedComparisonIDs {
		if strings.EqualFold(id, r) {
			return true
		}
	}

	return false
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`) && strings.TrimSpace(id) == id
}

func (m *Metadata) validate() error {
	if err := m.Parameters.validate(); err != nil {
		return err
	}
	if len(m.Samples) == 0 {
		return errors.New("no samples defined")
	}
	m.byID = make(map[string]*Sample, len(m.Samples))
	for i, s := range m.Samples {
		if s == nil {
			return errors.Errorf("sample %d is empty", i+1)
		}
		if err := m.validateSample(s); err != nil {
			return err
		}
		m.byID[s.ID] = s
	}

	seen := make(map[string]struct{}, len(m.Comparisons))
	for i, c := range m.Comparisons {
		if c == nil {
			return errors.Errorf("comparison %d is empty", i+1)
		}
		if !validID(c.ID) {
			return errors.Errorf("comparison %d: invalid id %q", i+1, c.ID)
		}
		if reservedComparisonID(c.ID) {
			return errors.Errorf("comparison %d: id %q is reserved", i+1, c.ID)
		}
		if _, ok := seen[c.ID]; ok {
			return errors.Errorf("comparison %s defined twice", c.ID)
		}
		seen[c.ID] = struct{}{}
		if err := m.resolveComparison(c); err != nil {
			return errors.Wrapf(err, "comparison %s", c.ID)
		}
	}

	return nil
}

func (m *Metadata) validateSample(s *Sample) error {
	if !validID(s.ID) {
		return errors.Errorf("invalid sample id %q", s.ID)
	}
	if _, ok := m.byID[s.ID]; ok {
		return errors.Errorf("sample %s defined twice", s.ID)
	}
	if len(s.Files) == 0 {
		return errors.Errorf("sample %s: no FASTQ files", s.ID)
	}
	for _, f := range s.Files {
		if f == "" {
			return errors.Errorf("sample %s: empty FASTQ path", s.ID)
		}
	}
	if !bool(m.Parameters.Quant.Single) && len(s.Files)%2 != 0 {
		return errors.Errorf("sample %s: paired-end mode expects FASTQ files in pairs, got %d", s.ID, len(s.Files))
	}

	return nil
}

func (m *Metadata) resolveComparison(c *Comparison) error {
	if len(c.Samples) == 0 {
		if c.Group == "" {
			return errors.New("either samples or group must be set")
		}
		wanted := make(map[string]struct{}, len(c.Fractions))
		for _, f := range c.Fractions {
			wanted[f] = struct{}{}
		}
		for _, s := range m.Samples {
			if s.Group != c.Group {
				continue
			}
			if _, ok := wanted[s.Fraction]; len(wanted) > 0 && !ok {
				continue
			}
			c.Samples = append(c.Samples, s.ID)
		}
	}

	used := make(map[string]struct{}, len(c.Samples))
	conditions := make(map[string]struct{})
	for _, id := range c.Samples {
		s, ok := m.byID[id]
		if !ok {
			return errors.Errorf("references undefined sample %q", id)
		}
		if _, ok := used[id]; ok {
			return errors.Errorf("lists sample %s twice", id)
		}
		used[id] = struct{}{}
		conditions[s.Condition()] = struct{}{}
	}
	if len(c.Samples) < 2 {
		return errors.Errorf("needs at least two samples, got %d", len(c.Samples))
	}
	if len(conditions) < 2 {
		return errors.New("needs at least two distinct fractions")
	}

	return nil
}
