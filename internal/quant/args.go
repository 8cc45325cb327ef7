package quant

import (
	"strconv"

	"github.com/askiada/sherlock/pkg/manifest"
)

// Args translates opts into the kallisto quant argument list. Flags only
// appear when they differ from kallisto's own defaults.
func Args(opts manifest.QuantOptions, index, outDir string, files []string) []string {
	args := []string{"quant"}
	if opts.Bias {
		args = append(args, "--bias")
	}
	if opts.BootstrapSamples != manifest.DefaultBootstrapSamples {
		args = append(args, "-b", strconv.Itoa(opts.BootstrapSamples))
	}
	if opts.Seed != manifest.DefaultSeed {
		args = append(args, "--seed", strconv.Itoa(opts.Seed))
	}
	if opts.Plaintext {
		args = append(args, "--plaintext")
	}
	if opts.Fusion {
		args = append(args, "--fusion")
	}
	if opts.Single {
		args = append(args, "--single")
	}
	if opts.SingleOverhang {
		args = append(args, "--single-overhang")
	}
	switch opts.Strand {
	case manifest.RFStranded:
		args = append(args, "--rf-stranded")
	case manifest.FRStranded:
		args = append(args, "--fr-stranded")
	case manifest.Unstranded:
	}
	if opts.FragmentLength != 0 {
		args = append(args, "-l", strconv.FormatFloat(opts.FragmentLength, 'g', -1, 64))
	}
	if opts.SD != 0 {
		args = append(args, "-s", strconv.FormatFloat(opts.SD, 'g', -1, 64))
	}
	if opts.Threads != 0 {
		args = append(args, "-t", strconv.Itoa(opts.Threads))
	}
	if opts.Pseudobam {
		args = append(args, "--pseudobam")
	}
	if opts.Genomebam {
		args = append(args, "--genomebam")
	}
	if opts.GTF != "" {
		args = append(args, "--gtf", opts.GTF)
	}
	if opts.Chromosomes != "" {
		args = append(args, "--chromosomes", opts.Chromosomes)
	}
	args = append(args, "-i", index, "-o", outDir)

	return append(args, files...)
}
