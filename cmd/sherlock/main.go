// Command sherlock quantitates shifts in ribosomal occupancy of transcripts
// from polysome fractionated RNA-seq data.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/askiada/sherlock/internal/driver"
	"github.com/askiada/sherlock/internal/failure"
	"github.com/askiada/sherlock/internal/logging"
	"github.com/askiada/sherlock/pkg/manifest"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type cli struct {
	outputDir    string
	logLevel     string
	manifestPath string

	logger *zap.Logger
	stdout io.Writer
	// ran is set once a command starts, flag parsing errors happen before.
	ran bool
}

func newRootCmd(c *cli) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sherlock",
		Short:         "Quantitate shifts of transcripts in polysomes",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c.ran = true
			level, err := logging.ParseLevel(c.logLevel)
			if err != nil {
				return err
			}
			if c.outputDir == "" {
				return failure.Configf("required flag --output not set")
			}
			c.logger = logging.New(zapcore.AddSync(c.stdout), level)

			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	rootCmd.PersistentFlags().StringVarP(&c.outputDir, "output", "o", "", "output directory of the analysis")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log", "info", "log level, one of "+strings.Join(logging.Levels, ", "))

	createManifestCmd := &cobra.Command{
		Use:   "create_manifest",
		Short: "Write a manifest template and an empty sample table in the output directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := manifest.WriteTemplate(c.outputDir)
			if err != nil {
				return err
			}
			c.logger.Info("manifest template written", zap.String("output", c.outputDir))

			return nil
		},
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the analysis described by the manifest of the output directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := driver.New(driver.Config{
				OutputDir:    c.outputDir,
				ManifestPath: c.manifestPath,
				Version:      version,
			}, c.logger).Run(ctx)

			return out.Err
		},
	}
	runCmd.Flags().StringVar(&c.manifestPath, "manifest", "", "manifest path, defaults to <output>/"+manifest.FileName)

	rootCmd.AddCommand(createManifestCmd, runCmd)

	return rootCmd
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout}
	rootCmd := newRootCmd(c)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return failure.ExitOK
	}
	fmt.Fprintln(stderr, "Error:", err)
	if !c.ran {
		return failure.ExitConfig
	}

	return failure.ExitCode(err)
}

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
