package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lupppig/notifyflow/internal/security"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate an admin API key",
	Long: `Generate a random admin API key.

Set it as admin_token (or NOTIFYFLOW_ADMIN_TOKEN) on the worker and pass it
to notifyctl with --token.`,
	// No configuration is needed to mint a key.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := security.GenerateKey()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch {
		case IsJSONOutput():
			data, _ := json.Marshal(map[string]string{"key": key, "hash": security.HashKey(key)})
			fmt.Fprintln(out, string(data))
		case IsQuiet():
			fmt.Fprintln(out, key)
		default:
			fmt.Fprintf(out, "%s %s\n", titleStyle.Render("key"), key)
			fmt.Fprintf(out, "%s %s\n", idStyle.Render("sha256"), security.HashKey(key))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
