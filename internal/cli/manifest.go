package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/backmassage/autoencode/internal/display"
	"github.com/backmassage/autoencode/internal/manifest"
)

var manifestYAML bool

var manifestCmd = &cobra.Command{
	Use:   "manifest <graph-id>",
	Short: "Show an archived graph manifest",
	Long: `Manifest loads the manifest archived for a graph id from the configured
storage and prints its node table, or the full YAML with --yaml.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		m, err := st.Get(ctx, strings.TrimSuffix(args[0], ".yaml")+".yaml")
		if err != nil {
			return err
		}
		if manifestYAML {
			return manifest.Encode(cmd.OutOrStdout(), m)
		}
		log.Info("Job %s (%s), frames %s", m.JobName, m.JobID, display.FormatFrames(m.FirstFrame, m.LastFrame))
		log.Info("Source %s", m.Source)
		if m.AudioPath != "" {
			log.Info("Audio %s", m.AudioPath)
		}
		display.PrintGraph(cmd.OutOrStdout(), m.Graph)
		return nil
	},
}

func init() {
	manifestCmd.Flags().BoolVar(&manifestYAML, "yaml", false, "print the full manifest as YAML")
}
