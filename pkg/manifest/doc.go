// Package manifest parses the declarative description of a sherlock
// experiment: tool parameters per stage, the sequenced samples and the
// comparisons to run between their fractions.
//
// A manifest is a YAML document with three blocks. Unknown keys are rejected,
// and every yes/no flag must be spelled yes or no. Values left out of the
// parameters block take the defaults of DefaultParameters.
package manifest
