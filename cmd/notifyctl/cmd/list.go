package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lupppig/notifyflow/internal/domain"
)

var (
	listStatus string
	listLimit  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := domain.ParseStatus(listStatus)
		if err != nil {
			return err
		}

		ctx, cancel := NewCommandContext(cmd.Context())
		defer cancel()

		b, err := openBackend(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		notifications, err := b.List(ctx, status, listLimit)
		if err != nil {
			return fmt.Errorf("list notifications: %w", err)
		}

		out := cmd.OutOrStdout()
		if IsJSONOutput() {
			data, _ := json.MarshalIndent(notifications, "", "  ")
			fmt.Fprintln(out, string(data))
			return nil
		}
		if IsQuiet() {
			for _, n := range notifications {
				fmt.Fprintln(out, n.ID)
			}
			return nil
		}

		if len(notifications) == 0 {
			fmt.Fprintf(out, "No %s notifications.\n", status)
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCHANNEL\tTEMPLATE\tSTATUS\tATTEMPTS\tUPDATED")
		for _, n := range notifications {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				n.ID, n.Channel, n.TemplateName, n.Status, n.Attempts, n.UpdatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listStatus, "status", string(domain.StatusFailed), "Status to list (pending, success, failed)")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "Maximum number of notifications")
}
