package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lupppig/notifyflow/internal/templates"
)

var (
	templateContent string
	templateFile    string
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage message templates",
}

var templateSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Create or replace a template",
	Long: `Create or replace a template.

Workers cache templates, so a replaced template is picked up once the
cached copy expires (templates.cache_ttl).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.TrimSpace(args[0])
		content, err := readTemplateContent()
		if err != nil {
			return err
		}
		// Reject content the workers could not parse.
		if err := templates.NewRenderer().Check(content); err != nil {
			return err
		}

		ctx, cancel := NewCommandContext(cmd.Context())
		defer cancel()

		b, err := openBackend(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		if err := b.PutTemplate(ctx, name, content); err != nil {
			return err
		}
		if !IsQuiet() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", successStyle.Render("saved"), name)
		}
		return nil
	},
}

func readTemplateContent() (string, error) {
	switch {
	case templateContent != "" && templateFile != "":
		return "", fmt.Errorf("cannot provide both --content and --file")
	case templateFile != "":
		data, err := os.ReadFile(templateFile)
		if err != nil {
			return "", fmt.Errorf("read template file: %w", err)
		}
		return string(data), nil
	case templateContent != "":
		return templateContent, nil
	}
	return "", fmt.Errorf("one of --content or --file is required")
}

func init() {
	rootCmd.AddCommand(templateCmd)
	templateCmd.AddCommand(templateSetCmd)

	templateSetCmd.Flags().StringVar(&templateContent, "content", "", "Template body")
	templateSetCmd.Flags().StringVarP(&templateFile, "file", "f", "", "Path to a file with the template body")
}
