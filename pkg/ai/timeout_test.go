package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithTimeoutPassesThroughFastCalls(t *testing.T) {
	provider := WithTimeout(&scriptedProvider{replies: []scriptedReply{{content: "ok"}}}, time.Second)

	resp, err := provider.Call(context.Background(), "s", "u", CallConfig{})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Content)
	require.Equal(t, "scripted", provider.Name())
}

func TestWithTimeoutReturnsProviderErrorOnDeadline(t *testing.T) {
	provider := WithTimeout(&scriptedProvider{replies: []scriptedReply{{block: true}}}, 10*time.Millisecond)

	_, err := provider.Call(context.Background(), "s", "u", CallConfig{})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrAttemptTimeout))

	var providerErr *ProviderError
	require.True(t, errors.As(err, &providerErr))
	require.Equal(t, "scripted", providerErr.Provider)
}

func TestWithTimeoutSurfacesParentCancellation(t *testing.T) {
	provider := WithTimeout(&scriptedProvider{replies: []scriptedReply{{block: true}}}, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := provider.Call(ctx, "s", "u", CallConfig{})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, errors.Is(err, ErrAttemptTimeout))
}

func TestWithTimeoutZeroDisablesWrapper(t *testing.T) {
	inner := &scriptedProvider{}
	require.Same(t, Provider(inner), WithTimeout(inner, 0))
}
