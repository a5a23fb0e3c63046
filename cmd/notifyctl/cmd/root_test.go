package cmd

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc/metadata"

	grpcauth "github.com/lupppig/notifyflow/internal/grpc"
)

func TestNewCommandContext(t *testing.T) {
	origTimeout := timeout
	origAuthToken := authToken
	defer func() {
		timeout = origTimeout
		authToken = origAuthToken
	}()

	tests := []struct {
		name        string
		timeoutVal  time.Duration
		tokenVal    string
		expectOutMD string
	}{
		{
			name:       "Timeout only",
			timeoutVal: 100 * time.Millisecond,
			tokenVal:   "",
		},
		{
			name:        "Auth token only",
			timeoutVal:  0,
			tokenVal:    "nf_token",
			expectOutMD: "nf_token",
		},
		{
			name:        "Both timeout and token",
			timeoutVal:  500 * time.Millisecond,
			tokenVal:    "nf_secret",
			expectOutMD: "nf_secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timeout = tt.timeoutVal
			authToken = tt.tokenVal

			ctx, cancel := NewCommandContext(context.Background())
			defer cancel()

			deadline, ok := ctx.Deadline()
			if tt.timeoutVal > 0 {
				if !ok {
					t.Error("expected context to have a deadline")
				}
				if deadline.After(time.Now().Add(tt.timeoutVal + time.Second)) {
					t.Errorf("deadline too far in the future: %v", deadline)
				}
			} else if ok {
				t.Error("expected no deadline when timeout is zero")
			}

			md, _ := metadata.FromOutgoingContext(ctx)
			vals := md.Get(grpcauth.APIKeyHeader)
			if tt.expectOutMD == "" {
				if len(vals) != 0 {
					t.Errorf("expected no api key metadata, got %v", vals)
				}
				return
			}
			if len(vals) != 1 || vals[0] != tt.expectOutMD {
				t.Errorf("expected api key %q, got %v", tt.expectOutMD, vals)
			}
		})
	}
}
