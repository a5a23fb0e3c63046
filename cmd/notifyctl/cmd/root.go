package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/metadata"

	"github.com/lupppig/notifyflow/internal/config"
	grpcauth "github.com/lupppig/notifyflow/internal/grpc"
)

var (
	cfg        *config.Config
	configPath string
	serverAddr string
	authToken  string
	timeout    time.Duration
	jsonOut    bool
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "notifyctl",
	Short: "CLI for the notifyflow delivery pipeline",
	Long: `notifyctl drives the notifyflow delivery pipeline.

Enqueue notifications, inspect their status, re-queue failures and watch
delivery outcomes in real-time.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		if authToken == "" {
			authToken = cfg.AdminToken
		}
		if serverAddr == "" {
			serverAddr = cfg.GRPCAddr
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFileName, "Path to the configuration file")
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "", "Worker gRPC address (defaults to grpc_addr)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Admin API key (defaults to admin_token)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Timeout for each request")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Print only identifiers, no interactive UI")
}

func IsJSONOutput() bool { return jsonOut }

func IsQuiet() bool { return quiet }

// NewCommandContext bounds a request by --timeout and attaches the admin key
// for gRPC calls.
func NewCommandContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := parent, context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	}
	if authToken != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, grpcauth.APIKeyHeader, authToken)
	}
	return ctx, cancel
}
