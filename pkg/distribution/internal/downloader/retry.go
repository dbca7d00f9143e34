package downloader

import (
	"context"
	"errors"
	"time"

	"github.com/clocksmith/doppler/pkg/distribution/types"
)

// retryPolicy decides, for the error produced by the attempt'th try
// (0-indexed), whether another attempt should be made and how long to wait
// first. It is a pure function of (attempt, err) so the backoff/retry
// semantics can be unit-tested without a real clock or network.
func retryPolicy(attempt int, err error) (retry bool, delay time.Duration) {
	if attempt+1 >= types.MaxRetries {
		return false, 0
	}
	if errors.Is(err, context.Canceled) {
		return false, 0
	}
	if !isRetryable(err) {
		return false, 0
	}
	return true, backoffDelay(attempt)
}

// backoffDelay computes the exponential delay for a given attempt index,
// doubling from InitialRetryDelay and capping at MaxRetryDelay.
func backoffDelay(attempt int) time.Duration {
	d := types.InitialRetryDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= types.MaxRetryDelay {
			return types.MaxRetryDelay
		}
	}
	return d
}

// isRetryable classifies err by the closed set of transport and integrity
// error types: HTTPError retries only on 429/5xx, NetworkError carries its
// own verdict, a timeout is always worth one more attempt, and a
// HashMismatchError is retried too — a corrupt response body is usually
// transient, and persistent corruption still surfaces as ShardFailedError
// once the bounded retry count in retryPolicy is exhausted (spec §4.D step
// 5). Anything else is treated as non-transient.
func isRetryable(err error) bool {
	var httpErr *types.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	var netErr *types.NetworkError
	if errors.As(err, &netErr) {
		return netErr.Retryable
	}
	var timeoutErr *types.TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}
	var hashErr *types.HashMismatchError
	if errors.As(err, &hashErr) {
		return true
	}
	return false
}
