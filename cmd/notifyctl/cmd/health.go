package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	grpcauth "github.com/lupppig/notifyflow/internal/grpc"
)

var healthWatch bool

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check whether the worker is serving",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := dialWorker()
		if err != nil {
			return err
		}
		defer conn.Close()

		client := healthpb.NewHealthClient(conn)
		out := cmd.OutOrStdout()
		if healthWatch {
			return watchHealth(cmd.Context(), client, out)
		}

		// The interceptors attach the key, so only the timeout is applied here.
		ctx, cancel := cmd.Context(), context.CancelFunc(func() {})
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, timeout)
		}
		defer cancel()

		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
		if err != nil {
			return fmt.Errorf("health check: %w", err)
		}
		return printHealth(out, resp.GetStatus())
	},
}

func dialWorker() (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(serverAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(grpcauth.UnaryAuthInterceptor(authToken)),
		grpc.WithStreamInterceptor(grpcauth.StreamAuthInterceptor(authToken)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", serverAddr, err)
	}
	return conn, nil
}

// watchHealth prints every serving status change until the stream ends.
func watchHealth(ctx context.Context, client healthpb.HealthClient, out io.Writer) error {
	stream, err := client.Watch(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("watch health: %w", err)
	}
	for {
		resp, err := stream.Recv()
		if err == io.EOF || ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("watch health: %w", err)
		}
		_ = printHealth(out, resp.GetStatus())
	}
}

func printHealth(out io.Writer, st healthpb.HealthCheckResponse_ServingStatus) error {
	if st != healthpb.HealthCheckResponse_SERVING {
		fmt.Fprintln(out, errorStyle.Render(st.String()))
		return fmt.Errorf("worker at %s is %s", serverAddr, st)
	}
	fmt.Fprintln(out, successStyle.Render(st.String()))
	return nil
}

func init() {
	rootCmd.AddCommand(healthCmd)

	healthCmd.Flags().BoolVarP(&healthWatch, "watch", "w", false, "Stream status changes until interrupted (requires --token when auth is enabled)")
}
