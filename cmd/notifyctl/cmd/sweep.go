package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Re-queue failed notifications that still have attempts left",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := NewCommandContext(cmd.Context())
		defer cancel()

		b, err := openBackend(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		res := b.Sweep(ctx)

		out := cmd.OutOrStdout()
		if IsJSONOutput() {
			data, _ := json.MarshalIndent(res, "", "  ")
			fmt.Fprintln(out, string(data))
		} else {
			fmt.Fprintf(out, "%s requeued=%d errors=%d\n",
				successStyle.Render("sweep complete"), res.Requeued, res.Errors)
		}
		if res.Errors > 0 {
			return fmt.Errorf("%d notification(s) could not be re-queued", res.Errors)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
