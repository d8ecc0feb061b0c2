package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHostLimiterWait(t *testing.T) {
	t.Parallel()

	l := NewHostLimiter(HostConfig{RPS: 10, Burst: 1})
	ctx := context.Background()

	// Burst 1 means the first call is immediate and the second waits ~100ms.
	require.NoError(t, l.Wait(ctx, "https://test.com/a"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://test.com/b"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestHostLimiterSeparatesHosts(t *testing.T) {
	t.Parallel()

	l := NewHostLimiter(HostConfig{RPS: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.com/1"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://B.com/1"))
	require.Less(t, time.Since(start), 50*time.Millisecond, "host b must not be blocked by host a")
	require.Equal(t, 2, l.Hosts())
}

func TestHostLimiterDisabledIsUnbounded(t *testing.T) {
	t.Parallel()

	l := NewHostLimiter(HostConfig{})
	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://a.com/"))
	}
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestHostLimiterCanceled(t *testing.T) {
	t.Parallel()

	l := NewHostLimiter(HostConfig{RPS: 0.001, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://slow.com/"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, l.Wait(ctx, "https://slow.com/"))
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, "example.com", hostOf("https://Example.com:8443/x"))
	require.Equal(t, "unknown", hostOf("::not a url"))
	require.Equal(t, "unknown", hostOf(""))
}
