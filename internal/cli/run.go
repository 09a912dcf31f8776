package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/backmassage/autoencode/internal/check"
	"github.com/backmassage/autoencode/internal/display"
	"github.com/backmassage/autoencode/internal/farm"
	"github.com/backmassage/autoencode/internal/pipeline"
	"github.com/backmassage/autoencode/internal/scheduler"
)

var (
	runTrack   bool
	runArchive bool
)

var runCmd = &cobra.Command{
	Use:   "run <job.json|dir>...",
	Short: "Compile render jobs and run the graphs on this machine",
	Long: `Run compiles each render job and executes its graph locally: encode nodes
in parallel up to the graph's concurrency limit, then the concat node, then
cleanup of intermediates once the output exists.

Examples:
  autoencode run job.json
  autoencode run --codec prores --prores-profile 4444 renders/shot010.json
  autoencode run --track job.json   # record node status in Redis`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runTrack, "track", false, "record node status in the Redis ledger")
	runCmd.Flags().BoolVar(&runArchive, "archive", false, "archive manifests to the configured storage")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	files, err := discoverAll(args)
	if err != nil {
		return err
	}
	if err := check.CheckDeps(ctx, &cfg); err != nil {
		return err
	}
	ffmpeg, err := cfg.FFmpeg()
	if err != nil {
		return err
	}
	deps, err := compilerDeps(ffmpeg)
	if err != nil {
		return err
	}

	display.PrintBanner(os.Stdout, Version)

	runner := farm.NewRunner(farm.ExecExecutor{Verbose: cfg.Verbose}, log)
	if runTrack {
		ledger, err := scheduler.NewRedisLedger(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer ledger.Close()
		runner.Status = ledger
	}

	p := &pipeline.Pipeline{Cfg: &cfg, Log: log, Deps: deps, Runner: runner, Out: cmd.OutOrStdout()}
	if runArchive {
		if p.Store, err = openStore(ctx); err != nil {
			return err
		}
	}

	if stats := p.RunFiles(ctx, files); stats.Failed > 0 {
		return fmt.Errorf("%d job(s) failed", stats.Failed)
	}
	return nil
}
