// Package cli provides the autoencode command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/backmassage/autoencode/internal/compiler"
	"github.com/backmassage/autoencode/internal/config"
	"github.com/backmassage/autoencode/internal/detect"
	"github.com/backmassage/autoencode/internal/logging"
	"github.com/backmassage/autoencode/internal/probe"
	"github.com/backmassage/autoencode/internal/term"
)

var (
	// Version and Commit are set at build time via -ldflags.
	Version = "0.1.0-dev"
	Commit  = "unknown"

	cfgPath string

	cfg config.Config
	log *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "autoencode",
	Short: "Compile finished renders into farm transcode graphs",
	Long: `Autoencode turns render-completion events into job graphs that encode the
rendered frames into a delivery movie: one encode node per chunk and, when
chunked, a concat node that joins them and removes the intermediates.

Settings come from (lowest to highest) defaults, the config file,
AUTOENCODE_* environment variables, flags, per-job metadata and tokens in
the job or file name such as [h265] or [prores:4444][24fps].`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgPath, cmd.Flags())
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		term.Configure(cfg.Color)

		log, err = logging.NewLogger(&cfg)
		if err != nil {
			return fmt.Errorf("open log: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			if err := log.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "autoencode: close log: %v\n", err)
			}
		}
	},
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd.Version = Version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "autoencode: %v\n", err)
		return 1
	}
	return 0
}

func init() {
	rootCmd.SetVersionTemplate("autoencode {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default ./autoencode.yaml or ~/.config/autoencode/autoencode.yaml)")
	config.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

// compilerDeps wires the ffprobe-backed detector. ffmpeg is the executable
// written into node commands.
func compilerDeps(ffmpeg string) (compiler.Deps, error) {
	ffprobe, err := cfg.FFprobe()
	if err != nil {
		return compiler.Deps{}, err
	}
	det, err := detect.NewDetector(probe.New(ffprobe), log, &cfg)
	if err != nil {
		return compiler.Deps{}, err
	}
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	return compiler.Deps{Detector: det, Log: log, FFmpeg: ffmpeg}, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "autoencode %s (%s)\n", Version, Commit)
	},
}

// signalContext is cancelled on SIGINT or SIGTERM so work stops between
// jobs instead of leaving partial output.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
