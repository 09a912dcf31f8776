package cli

import (
	"github.com/spf13/cobra"

	"github.com/backmassage/autoencode/internal/check"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report ffmpeg, ffprobe and encoder availability",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		check.RunCheck(ctx, &cfg, log)
		return check.CheckDeps(ctx, &cfg)
	},
}
