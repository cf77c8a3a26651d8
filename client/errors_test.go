package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		label     string
		quota     bool
		retryable bool
	}{
		{
			name:      "forbidden maps to quota",
			status:    403,
			label:     "quota",
			quota:     true,
			retryable: false,
		},
		{
			name:      "rate limited maps to quota",
			status:    429,
			label:     "quota",
			quota:     true,
			retryable: false,
		},
		{
			name:      "not found is terminal",
			status:    404,
			label:     "client",
			retryable: false,
		},
		{
			name:      "server error is retryable",
			status:    500,
			label:     "server",
			retryable: true,
		},
		{
			name:      "deadline exceeded is timeout",
			err:       context.DeadlineExceeded,
			label:     "timeout",
			retryable: true,
		},
		{
			name:      "net timeout is timeout",
			err:       &timeoutNetError{},
			label:     "timeout",
			retryable: true,
		},
		{
			name:      "op error is connection",
			err:       &net.OpError{Op: "dial", Err: errors.New("refused")},
			label:     "connection",
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := Classify(tt.err, tt.status)
			if classified == nil {
				t.Fatal("expected classified error")
			}
			if got := ErrorTypeLabel(classified); got != tt.label {
				t.Fatalf("label = %q, want %q", got, tt.label)
			}
			if got := IsQuota(classified); got != tt.quota {
				t.Fatalf("IsQuota = %v, want %v", got, tt.quota)
			}
			if got := IsRetryable(classified); got != tt.retryable {
				t.Fatalf("IsRetryable = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestClassifyPassThrough(t *testing.T) {
	if got := Classify(nil, 200); got != nil {
		t.Fatalf("2xx with nil error should classify to nil, got %v", got)
	}
	plain := fmt.Errorf("local failure")
	if got := Classify(plain, 0); !errors.Is(got, plain) {
		t.Fatalf("unclassifiable error should pass through, got %v", got)
	}
}

func TestQuotaWrapsStatus(t *testing.T) {
	err := Classify(nil, 403)
	var quota ErrQuota
	if !errors.As(err, &quota) {
		t.Fatalf("expected ErrQuota, got %T", err)
	}
	if quota.Unwrap() == nil {
		t.Fatal("quota error should wrap a cause")
	}
}

type timeoutNetError struct{}

func (*timeoutNetError) Error() string { return "i/o timeout" }
func (*timeoutNetError) Timeout() bool { return true }
func (*timeoutNetError) Temporary() bool {
	return true
}

var _ net.Error = (*timeoutNetError)(nil)

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, Backoff: time.Second, BackoffMax: 5 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{0, time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Fatalf("Delay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}
