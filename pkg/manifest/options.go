package manifest

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Flag is a yes/no manifest value.
type Flag bool

const (
	yes = "yes"
	no  = "no"
)

func (f Flag) String() string {
	if f {
		return yes
	}

	return no
}

// UnmarshalYAML accepts exactly "yes" or "no".
func (f *Flag) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return errors.Errorf("line %d: expected yes or no", node.Line)
	}
	switch strings.ToLower(strings.TrimSpace(node.Value)) {
	case yes:
		*f = true
	case no:
		*f = false
	default:
		return errors.Errorf("line %d: invalid value %q, expected yes or no", node.Line, node.Value)
	}

	return nil
}

func (f Flag) MarshalYAML() (interface{}, error) {
	return f.String(), nil
}

// Strand selects the strand specific mode of the quantifier.
type Strand string

const (
	Unstranded Strand = ""
	RFStranded Strand = "rf-stranded"
	FRStranded Strand = "fr-stranded"
)

func (s *Strand) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return errors.Errorf("line %d: expected unstranded, rf-stranded or fr-stranded", node.Line)
	}
	switch v := strings.ToLower(strings.TrimSpace(node.Value)); v {
	case "", "unstranded", "none":
		*s = Unstranded
	case string(RFStranded), string(FRStranded):
		*s = Strand(v)
	default:
		return errors.Errorf("line %d: invalid strand %q, expected unstranded, rf-stranded or fr-stranded", node.Line, node.Value)
	}

	return nil
}

// Duration is a time.Duration written as "30m", "2h" or "0" for none.
type Duration time.Duration

func (d Duration) String() string {
	if d == 0 {
		return "0"
	}

	return time.Duration(d).String()
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return errors.Errorf("line %d: expected a duration", node.Line)
	}
	v := strings.TrimSpace(node.Value)
	if v == "" || v == "0" {
		*d = 0

		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return errors.Errorf("line %d: invalid duration %q", node.Line, node.Value)
	}
	if parsed < 0 {
		return errors.Errorf("line %d: duration %q must not be negative", node.Line, node.Value)
	}
	*d = Duration(parsed)

	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Execution holds the options shared by every stage that invokes an external
// tool once per job.
type Execution struct {
	Workers      int      `yaml:"workers"`
	Timeout      Duration `yaml:"timeout"`
	Retries      int      `yaml:"retries"`
	RetryBackoff Duration `yaml:"retry-backoff"`
}

func defaultExecution() Execution {
	return Execution{Workers: 1, RetryBackoff: Duration(5 * time.Second)}
}

func (e Execution) validate(stage string) error {
	if e.Workers < 1 {
		return errors.Errorf("%s: workers must be at least 1", stage)
	}
	if e.Retries < 0 {
		return errors.Errorf("%s: retries must not be negative", stage)
	}

	return nil
}

func (e Execution) fill(m map[string]string) {
	m["workers"] = strconv.Itoa(e.Workers)
	m["timeout"] = e.Timeout.String()
	m["retries"] = strconv.Itoa(e.Retries)
	m["retry-backoff"] = e.RetryBackoff.String()
}

// QuantOptions configures kallisto quant.
type QuantOptions struct {
	Skip             Flag    `yaml:"skip"`
	Binary           string  `yaml:"binary"`
	Index            string  `yaml:"index"`
	Bias             Flag    `yaml:"bias"`
	BootstrapSamples int     `yaml:"bootstrap-samples"`
	Seed             int     `yaml:"seed"`
	Plaintext        Flag    `yaml:"plaintext"`
	Fusion           Flag    `yaml:"fusion"`
	Single           Flag    `yaml:"single"`
	SingleOverhang   Flag    `yaml:"single-overhang"`
	Strand           Strand  `yaml:"strand"`
	FragmentLength   float64 `yaml:"fragment-length"`
	SD               float64 `yaml:"sd"`
	Threads          int     `yaml:"threads"`
	Pseudobam        Flag    `yaml:"pseudobam"`
	Genomebam        Flag    `yaml:"genomebam"`
	GTF              string  `yaml:"gtf"`
	Chromosomes      string  `yaml:"chromosomes"`

	Execution `yaml:",inline"`
}

// Defaults of the kallisto quant options that are only emitted when changed.
const (
	DefaultBootstrapSamples = 0
	DefaultSeed             = 42
)

// DefaultQuantOptions returns the options used for keys missing from a manifest.
func DefaultQuantOptions() QuantOptions {
	return QuantOptions{
		Binary:           "kallisto",
		BootstrapSamples: DefaultBootstrapSamples,
		Seed:             DefaultSeed,
		Execution:        defaultExecution(),
	}
}

func (o QuantOptions) validate() error {
	if o.Binary == "" {
		return errors.New("kallisto: binary must be set")
	}
	if o.BootstrapSamples < 0 || o.Threads < 0 || o.FragmentLength < 0 || o.SD < 0 {
		return errors.New("kallisto: bootstrap-samples, threads, fragment-length and sd must not be negative")
	}
	if bool(o.Single) && (o.FragmentLength == 0 || o.SD == 0) {
		return errors.New("kallisto: single-end mode requires fragment-length and sd")
	}
	if bool(o.Genomebam) && o.GTF == "" {
		return errors.New("kallisto: genomebam requires gtf")
	}

	return o.Execution.validate("kallisto")
}

func formatFloat(f float64) string {
	if f == 0 {
		return ""
	}

	return strconv.FormatFloat(f, 'g', -1, 64)
}

func formatInt(i int) string {
	if i == 0 {
		return ""
	}

	return strconv.Itoa(i)
}

// Map is the flat string view of the options.
func (o QuantOptions) Map() map[string]string {
	m := map[string]string{
		"skip":              o.Skip.String(),
		"binary":            o.Binary,
		"index":             o.Index,
		"bias":              o.Bias.String(),
		"bootstrap-samples": strconv.Itoa(o.BootstrapSamples),
		"seed":              strconv.Itoa(o.Seed),
		"plaintext":         o.Plaintext.String(),
		"fusion":            o.Fusion.String(),
		"single":            o.Single.String(),
		"single-overhang":   o.SingleOverhang.String(),
		"strand":            string(o.Strand),
		"fragment-length":   formatFloat(o.FragmentLength),
		"sd":                formatFloat(o.SD),
		"threads":           formatInt(o.Threads),
		"pseudobam":         o.Pseudobam.String(),
		"genomebam":         o.Genomebam.String(),
		"gtf":               o.GTF,
		"chromosomes":       o.Chromosomes,
	}
	o.Execution.fill(m)

	return m
}

// Statistical tests supported by the sleuth script.
const (
	TestLRT = "lrt"
	TestWT  = "wt"
)

// DEOptions configures the differential expression stage.
type DEOptions struct {
	Skip    Flag   `yaml:"skip"`
	Rscript string `yaml:"rscript"`
	// Script overrides the bundled sleuth script when set.
	Script string `yaml:"script"`
	Test   string `yaml:"test"`

	Execution `yaml:",inline"`
}

func DefaultDEOptions() DEOptions {
	return DEOptions{
		Rscript:   "Rscript",
		Test:      TestLRT,
		Execution: defaultExecution(),
	}
}

func (o DEOptions) validate() error {
	if o.Rscript == "" {
		return errors.New("sleuth: rscript must be set")
	}
	if o.Test != TestLRT && o.Test != TestWT {
		return errors.Errorf("sleuth: invalid test %q, expected %s or %s", o.Test, TestLRT, TestWT)
	}

	return o.Execution.validate("sleuth")
}

func (o DEOptions) Map() map[string]string {
	m := map[string]string{
		"skip":    o.Skip.String(),
		"rscript": o.Rscript,
		"script":  o.Script,
		"test":    o.Test,
	}
	o.Execution.fill(m)

	return m
}

// CompareOptions configures the occupancy shift analysis.
type CompareOptions struct {
	Alpha     float64 `yaml:"alpha"`
	MinEffect float64 `yaml:"min-effect"`
}

func DefaultCompareOptions() CompareOptions {
	return CompareOptions{Alpha: 0.05}
}

func (o CompareOptions) validate() error {
	if o.Alpha <= 0 || o.Alpha > 1 {
		return errors.New("sherlock: alpha must be in (0, 1]")
	}
	if o.MinEffect < 0 {
		return errors.New("sherlock: min-effect must not be negative")
	}

	return nil
}

func (o CompareOptions) Map() map[string]string {
	return map[string]string{
		"alpha":      strconv.FormatFloat(o.Alpha, 'g', -1, 64),
		"min-effect": strconv.FormatFloat(o.MinEffect, 'g', -1, 64),
	}
}

// Stage names used as keys of the parameters block.
const (
	StageQuant   = "kallisto"
	StageDE      = "sleuth"
	StageCompare = "sherlock"
)

// Parameters is the parameters block of a manifest.
type Parameters struct {
	Quant   QuantOptions   `yaml:"kallisto"`
	DE      DEOptions      `yaml:"sleuth"`
	Compare CompareOptions `yaml:"sherlock"`
}

// DefaultParameters returns the parameters of an empty parameters block.
func DefaultParameters() Parameters {
	return Parameters{
		Quant:   DefaultQuantOptions(),
		DE:      DefaultDEOptions(),
		Compare: DefaultCompareOptions(),
	}
}

func (p Parameters) validate() error {
	if err := p.Quant.validate(); err != nil {
		return err
	}
	if err := p.DE.validate(); err != nil {
		return err
	}

	return p.Compare.validate()
}

// Options returns stage name -> option name -> value.
func (p Parameters) Options() map[string]map[string]string {
	return map[string]map[string]string{
		StageQuant:   p.Quant.Map(),
		StageDE:      p.DE.Map(),
		StageCompare: p.Compare.Map(),
	}
}

// MarshalParameters serialises p as a YAML parameters block.
func MarshalParameters(p Parameters) ([]byte, error) {
	return yaml.Marshal(map[string]Parameters{"parameters": p})
}
