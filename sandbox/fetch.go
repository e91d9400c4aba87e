package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/ipvm-wg/homestar/invocation"
	"github.com/ipvm-wg/homestar/store"
)

// FetchRetryPolicy governs retrying a task resource fetch with
// exponential backoff (§7: "configurable, default 4 retries, 30s base").
type FetchRetryPolicy struct {
	MaxRetries  uint64
	BaseBackoff time.Duration
}

// DefaultFetchRetryPolicy matches §7's stated default.
func DefaultFetchRetryPolicy() FetchRetryPolicy {
	return FetchRetryPolicy{MaxRetries: 4, BaseBackoff: 30 * time.Second}
}

// backoff builds the exponential-with-max-retries schedule policy
// describes, mirroring module/dkg/broker.go's retry.NewExponential +
// retry.WithMaxRetries pairing.
func (p FetchRetryPolicy) backoff() (retry.Backoff, error) {
	b := retry.NewExponential(p.BaseBackoff)
	return retry.WithMaxRetries(p.MaxRetries, b), nil
}

// FetchResource resolves a task's resource bytes from bs, retrying
// transient failures with exponential backoff per policy. Bytes are
// cached by the block store itself, keyed by resource URL (§4.2 step 1).
func FetchResource(ctx context.Context, log zerolog.Logger, bs store.BlockStore, resource invocation.Resource, policy FetchRetryPolicy) ([]byte, error) {
	b, err := policy.backoff()
	if err != nil {
		return nil, newError(FailureResourceFetch, err)
	}

	var (
		data     []byte
		lastErr  error
		attempts int
	)
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		got, err := bs.Get(ctx, resource.String())
		if err == nil {
			data = got
			return nil
		}
		lastErr = err
		attempts++
		log.Warn().Err(err).Str("resource", resource.String()).Int("attempt", attempts).Msg("resource fetch failed")
		return retry.RetryableError(err)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, newError(FailureCancelled, ctxErr)
		}
		return nil, newError(FailureResourceFetch, fmt.Errorf("exhausted %d retries fetching %s: %w", policy.MaxRetries, resource.String(), lastErr))
	}
	return data, nil
}
