package sandbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ipvm-wg/homestar/invocation"
	"github.com/ipvm-wg/homestar/sandbox"
)

type fakeBlockStore struct {
	failuresBeforeSuccess int
	calls                 int
	body                  []byte
}

func (f *fakeBlockStore) Get(ctx context.Context, url string) ([]byte, error) {
	f.calls++
	if f.calls <= f.failuresBeforeSuccess {
		return nil, errors.New("transient fetch error")
	}
	return f.body, nil
}
func (f *fakeBlockStore) Has(ctx context.Context, url string) (bool, error) { return true, nil }
func (f *fakeBlockStore) Put(ctx context.Context, url string, data []byte) error {
	f.body = data
	return nil
}

func TestFetchResourceRetriesThenSucceeds(t *testing.T) {
	bs := &fakeBlockStore{failuresBeforeSuccess: 2, body: []byte("wasm-bytes")}
	resource, err := invocation.ParseResource("https://example.com/f.wasm")
	require.NoError(t, err)

	policy := sandbox.FetchRetryPolicy{MaxRetries: 4, BaseBackoff: time.Millisecond}
	b, err := sandbox.FetchResource(context.Background(), zerolog.Nop(), bs, resource, policy)
	require.NoError(t, err)
	require.Equal(t, "wasm-bytes", string(b))
	require.Equal(t, 3, bs.calls)
}

func TestFetchResourceExhaustsRetries(t *testing.T) {
	bs := &fakeBlockStore{failuresBeforeSuccess: 100}
	resource, err := invocation.ParseResource("https://example.com/f.wasm")
	require.NoError(t, err)

	policy := sandbox.FetchRetryPolicy{MaxRetries: 2, BaseBackoff: time.Millisecond}
	_, err = sandbox.FetchResource(context.Background(), zerolog.Nop(), bs, resource, policy)
	require.Error(t, err)
	var sErr *sandbox.Error
	require.ErrorAs(t, err, &sErr)
	require.Equal(t, sandbox.FailureResourceFetch, sErr.Kind)
	require.Equal(t, 3, bs.calls) // initial attempt + 2 retries
}

func TestFetchResourceHonorsCancellation(t *testing.T) {
	bs := &fakeBlockStore{failuresBeforeSuccess: 100}
	resource, err := invocation.ParseResource("https://example.com/f.wasm")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := sandbox.FetchRetryPolicy{MaxRetries: 4, BaseBackoff: time.Hour}
	_, err = sandbox.FetchResource(ctx, zerolog.Nop(), bs, resource, policy)
	require.Error(t, err)
	var sErr *sandbox.Error
	require.ErrorAs(t, err, &sErr)
	require.Equal(t, sandbox.FailureCancelled, sErr.Kind)
}

func TestDefaultFetchRetryPolicyMatchesSpec(t *testing.T) {
	p := sandbox.DefaultFetchRetryPolicy()
	require.Equal(t, uint64(4), p.MaxRetries)
	require.Equal(t, 30*time.Second, p.BaseBackoff)
}
