package downloader

import (
	"context"
	"testing"
	"time"

	"github.com/clocksmith/doppler/pkg/distribution/types"
)

func TestRetryPolicy_HTTP429Retries(t *testing.T) {
	retry, delay := retryPolicy(0, &types.HTTPError{Status: 429, URL: "http://x"})
	if !retry {
		t.Fatal("expected retry on 429")
	}
	if delay != types.InitialRetryDelay {
		t.Errorf("delay = %v, want %v", delay, types.InitialRetryDelay)
	}
}

func TestRetryPolicy_HTTP404NeverRetries(t *testing.T) {
	retry, _ := retryPolicy(0, &types.HTTPError{Status: 404, URL: "http://x"})
	if retry {
		t.Fatal("expected no retry on 404")
	}
}

func TestRetryPolicy_HashMismatchRetries(t *testing.T) {
	retry, delay := retryPolicy(0, &types.HashMismatchError{Index: 3, Expected: "a", Actual: "b"})
	if !retry {
		t.Fatal("expected retry on hash mismatch within the retry budget")
	}
	if delay != types.InitialRetryDelay {
		t.Errorf("delay = %v, want %v", delay, types.InitialRetryDelay)
	}
}

func TestRetryPolicy_HashMismatchExhaustsAtMaxRetries(t *testing.T) {
	err := &types.HashMismatchError{Index: 3, Expected: "a", Actual: "b"}
	retry, _ := retryPolicy(types.MaxRetries-1, err)
	if retry {
		t.Fatal("expected no retry once MaxRetries attempts have been made, even for hash mismatches")
	}
}

func TestRetryPolicy_CancelNeverRetries(t *testing.T) {
	retry, _ := retryPolicy(0, context.Canceled)
	if retry {
		t.Fatal("expected no retry on cancellation")
	}
}

func TestRetryPolicy_ExhaustsAtMaxRetries(t *testing.T) {
	err := &types.NetworkError{Retryable: true}
	retry, _ := retryPolicy(types.MaxRetries-1, err)
	if retry {
		t.Fatal("expected no retry once MaxRetries attempts have been made")
	}
}

func TestBackoffDelay_CapsAtMax(t *testing.T) {
	d := backoffDelay(10)
	if d != types.MaxRetryDelay {
		t.Errorf("backoffDelay(10) = %v, want cap %v", d, types.MaxRetryDelay)
	}
	if backoffDelay(0) != types.InitialRetryDelay {
		t.Errorf("backoffDelay(0) = %v, want %v", backoffDelay(0), types.InitialRetryDelay)
	}
	if backoffDelay(1) != 2*time.Second {
		t.Errorf("backoffDelay(1) = %v, want 2s", backoffDelay(1))
	}
}
