package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/backmassage/autoencode/internal/display"
	"github.com/backmassage/autoencode/internal/event"
	"github.com/backmassage/autoencode/internal/manifest"
	"github.com/backmassage/autoencode/internal/pipeline"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Consume render-completion events and submit job graphs",
	Long: `Listen joins the configured Kafka consumer group on the event topic. Each
completed render job is compiled and its graph published node by node to
the submission topic. A Redis ledger makes submission idempotent, so a
redelivered event never schedules the same graph twice.

Examples:
  autoencode listen
  AUTOENCODE_KAFKA_BROKERS=kafka:9092 AUTOENCODE_STORAGE_KIND=fs autoencode listen`,
	Args: cobra.NoArgs,
	RunE: runListen,
}

func runListen(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	deps, err := compilerDeps(cfg.FFmpegPath)
	if err != nil {
		return err
	}
	store, err := manifest.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	sub, closeSub, err := newSubmitter(ctx)
	if err != nil {
		return err
	}
	defer closeSub()

	display.PrintBanner(os.Stdout, Version)
	log.Info("=== autoencode %s (%s) ===", Version, Commit)
	log.Info("Brokers: %v", cfg.Kafka.Brokers)
	log.Info("Events:  %s (group %s)", cfg.Kafka.EventTopic, cfg.Kafka.GroupID)
	log.Info("Submit:  %s", cfg.Kafka.SubmitTopic)

	p := &pipeline.Pipeline{Cfg: &cfg, Log: log, Deps: deps, Store: store, Submitter: sub}
	consumer := event.NewConsumer(&cfg, p, log)
	defer consumer.Close()

	if err := consumer.Consume(ctx); err != nil {
		return err
	}
	log.Info("Stopped: %d compiled, %d skipped, %d failed, %d submitted",
		p.Stats.Compiled, p.Stats.Skipped, p.Stats.Failed, p.Stats.Submitted)
	return nil
}
