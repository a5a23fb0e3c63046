package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lupppig/notifyflow/internal/domain"
	"github.com/lupppig/notifyflow/internal/intake"
)

var (
	sendTemplate   string
	sendChannels   []string
	sendParams     string
	sendParamsPath string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Enqueue a notification on one or more channels",
	Example: `  notifyctl send --template welcome --channel email --channel sms \
    --params '{"username":"ada","email":"ada@example.com","phoneNumber":"+15550100"}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildSendRequest()
		if err != nil {
			return err
		}

		if IsQuiet() || IsJSONOutput() {
			ctx, cancel := NewCommandContext(cmd.Context())
			defer cancel()

			created, err := enqueue(ctx, req)
			if err != nil {
				return err
			}

			if IsJSONOutput() {
				data, _ := json.MarshalIndent(created, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			for _, n := range created {
				fmt.Fprintln(cmd.OutOrStdout(), n.ID)
			}
			return nil
		}

		return NewUI(NewSendModel(req)).Run()
	},
}

func buildSendRequest() (intake.Request, error) {
	if sendParams != "" && sendParamsPath != "" {
		return intake.Request{}, fmt.Errorf("cannot provide both --params and --params-file")
	}

	var params []byte
	switch {
	case sendParamsPath != "":
		data, err := os.ReadFile(sendParamsPath)
		if err != nil {
			return intake.Request{}, fmt.Errorf("read parameters file: %w", err)
		}
		params = data
	case sendParams != "":
		params = []byte(sendParams)
	}

	channels := make([]domain.Channel, 0, len(sendChannels))
	for _, raw := range sendChannels {
		ch, err := domain.ParseChannel(raw)
		if err != nil {
			return intake.Request{}, err
		}
		channels = append(channels, ch)
	}

	req := intake.Request{
		TemplateName: sendTemplate,
		Channels:     channels,
		Parameters:   params,
	}
	return req, req.Validate()
}

func enqueue(ctx context.Context, req intake.Request) ([]*domain.Notification, error) {
	b, err := openBackend(ctx)
	if err != nil {
		return nil, err
	}
	defer b.Close()
	return b.Enqueue(ctx, req)
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVarP(&sendTemplate, "template", "t", "", "Template name")
	sendCmd.Flags().StringSliceVar(&sendChannels, "channel", nil, "Delivery channel (email, sms, push); repeatable")
	sendCmd.Flags().StringVar(&sendParams, "params", "", "Template parameters as a JSON object")
	sendCmd.Flags().StringVar(&sendParamsPath, "params-file", "", "Path to a JSON file with template parameters")
}
