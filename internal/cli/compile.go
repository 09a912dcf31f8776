package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/backmassage/autoencode/internal/event"
	"github.com/backmassage/autoencode/internal/manifest"
	"github.com/backmassage/autoencode/internal/pipeline"
	"github.com/backmassage/autoencode/internal/scheduler"
)

var (
	compileFormat  string
	compileSubmit  bool
	compileArchive bool
)

var compileCmd = &cobra.Command{
	Use:   "compile <job.json|dir>...",
	Short: "Compile render jobs into job graphs",
	Long: `Compile reads render-job JSON files (or every *.json under a directory),
compiles each into a job graph and prints it. Nothing runs.

Examples:
  autoencode compile job.json
  autoencode compile --format yaml renders/
  autoencode compile --submit --archive job.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCompile,
}

func init() {
	compileCmd.Flags().StringVarP(&compileFormat, "format", "f", "text", "output format: text | json | yaml")
	compileCmd.Flags().BoolVar(&compileSubmit, "submit", false, "publish graphs to the farm topic")
	compileCmd.Flags().BoolVar(&compileArchive, "archive", false, "archive manifests to the configured storage")
}

func runCompile(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	format, err := pipeline.ParseFormat(compileFormat)
	if err != nil {
		return err
	}
	files, err := discoverAll(args)
	if err != nil {
		return err
	}
	deps, err := compilerDeps(cfg.FFmpegPath)
	if err != nil {
		return err
	}

	p := &pipeline.Pipeline{Cfg: &cfg, Log: log, Deps: deps, Out: cmd.OutOrStdout(), Format: format}
	if compileArchive {
		if p.Store, err = openStore(ctx); err != nil {
			return err
		}
	}
	if compileSubmit {
		sub, closeFn, err := newSubmitter(ctx)
		if err != nil {
			return err
		}
		defer closeFn()
		p.Submitter = sub
	}

	if stats := p.RunFiles(ctx, files); stats.Failed > 0 {
		return fmt.Errorf("%d job(s) failed", stats.Failed)
	}
	return nil
}

// discoverAll expands every argument with pipeline.Discover.
func discoverAll(args []string) ([]string, error) {
	var files []string
	for _, a := range args {
		found, err := pipeline.Discover(a)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no job files in %v", args)
	}
	return files, nil
}

func openStore(ctx context.Context) (manifest.Store, error) {
	st, err := manifest.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("no storage configured (set storage.kind to 'fs' or 'minio')")
	}
	return st, nil
}

// newSubmitter connects the Redis ledger and the Kafka writer.
func newSubmitter(ctx context.Context) (scheduler.Submitter, func(), error) {
	ledger, err := scheduler.NewRedisLedger(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	sub := scheduler.NewKafkaSubmitter(scheduler.NewKafkaWriter(&cfg), ledger, event.Strategy(cfg.Retry), log)
	return sub, func() {
		if err := sub.Close(); err != nil {
			log.Warn("close kafka writer: %v", err)
		}
		if err := ledger.Close(); err != nil {
			log.Warn("close redis: %v", err)
		}
	}, nil
}
