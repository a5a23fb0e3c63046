package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lupppig/notifyflow/internal/store"
)

var getCmd = &cobra.Command{
	Use:   "get <notification-id>",
	Short: "Show one notification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := NewCommandContext(cmd.Context())
		defer cancel()

		b, err := openBackend(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		n, err := b.Get(ctx, args[0])
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("notification %s not found", args[0])
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if IsJSONOutput() {
			data, _ := json.MarshalIndent(n, "", "  ")
			fmt.Fprintln(out, string(data))
			return nil
		}
		if IsQuiet() {
			fmt.Fprintln(out, n.Status)
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "ID\t%s\n", n.ID)
		fmt.Fprintf(w, "Channel\t%s\n", n.Channel)
		fmt.Fprintf(w, "Template\t%s\n", n.TemplateName)
		fmt.Fprintf(w, "Status\t%s\n", n.Status)
		fmt.Fprintf(w, "Attempts\t%d\n", n.Attempts)
		fmt.Fprintf(w, "Parameters\t%s\n", n.Parameters)
		fmt.Fprintf(w, "Created\t%s\n", n.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(w, "Updated\t%s\n", n.UpdatedAt.Format(time.RFC3339))
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
