package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/lupppig/notifyflow/internal/domain"
	"github.com/lupppig/notifyflow/internal/events"
)

var (
	watchChannel string
	watchLimit   int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch delivery outcomes in real-time",
	RunE: func(cmd *cobra.Command, args []string) error {
		var channel domain.Channel
		if watchChannel != "" {
			ch, err := domain.ParseChannel(watchChannel)
			if err != nil {
				return err
			}
			channel = ch
		}

		b, err := openBackend(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		if IsQuiet() || IsJSONOutput() {
			return streamOutcomes(cmd.Context(), b, channel, watchLimit, cmd.OutOrStdout())
		}
		return runWatchUI(b, channel)
	},
}

// streamOutcomes prints one line per outcome until limit outcomes were seen
// (0 means no limit) or ctx is done.
func streamOutcomes(ctx context.Context, b backend, channel domain.Channel, limit int, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make(chan events.Outcome, 64)
	unsubscribe, err := b.WatchOutcomes(channel, func(o events.Outcome) {
		select {
		case outcomes <- o:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case o := <-outcomes:
			if IsJSONOutput() {
				data, _ := json.Marshal(o)
				fmt.Fprintln(out, string(data))
			} else {
				fmt.Fprintf(out, "%s %s %s %d\n", o.NotificationID, o.Channel, o.Status, o.Attempts)
			}
			seen++
			if limit > 0 && seen >= limit {
				return nil
			}
		}
	}
}

func runWatchUI(b backend, channel domain.Channel) error {
	m := NewWatchModel(channel)
	p := tea.NewProgram(m)

	unsubscribe, err := b.WatchOutcomes(channel, func(o events.Outcome) {
		p.Send(outcomeMsg(o))
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	_, err = p.Run()
	return err
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchChannel, "channel", "", "Only show outcomes for this channel")
	watchCmd.Flags().IntVarP(&watchLimit, "limit", "n", 0, "Stop after this many outcomes (quiet and JSON output only)")
}
