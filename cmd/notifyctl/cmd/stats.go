package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lupppig/notifyflow/internal/domain"
)

var statsChannel string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show delivery outcome totals per channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		channels := domain.Channels()
		if statsChannel != "" {
			ch, err := domain.ParseChannel(statsChannel)
			if err != nil {
				return err
			}
			channels = []domain.Channel{ch}
		}

		ctx, cancel := NewCommandContext(cmd.Context())
		defer cancel()

		b, err := openBackend(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		totals := make(map[domain.Channel]map[domain.Status]int64, len(channels))
		for _, ch := range channels {
			stats, err := b.Stats(ctx, ch)
			if err != nil {
				return fmt.Errorf("stats for %s: %w", ch, err)
			}
			totals[ch] = stats
		}

		out := cmd.OutOrStdout()
		if IsJSONOutput() {
			data, _ := json.MarshalIndent(totals, "", "  ")
			fmt.Fprintln(out, string(data))
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CHANNEL\tSUCCESS\tFAILED")
		for _, ch := range channels {
			fmt.Fprintf(w, "%s\t%d\t%d\n", ch, totals[ch][domain.StatusSuccess], totals[ch][domain.StatusFailed])
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringVar(&statsChannel, "channel", "", "Only show this channel")
}
