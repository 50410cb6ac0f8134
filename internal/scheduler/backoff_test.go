package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDelayGrows(t *testing.T) {
	t.Parallel()

	b := Backoff{Initial: 100 * time.Millisecond, Max: 2 * time.Second}

	for attempt := 1; attempt <= 6; attempt++ {
		delay := b.Delay(attempt)
		base := 100 * time.Millisecond << (attempt - 1)
		if base > b.Max {
			base = b.Max
		}
		require.GreaterOrEqual(t, delay, base, "attempt %d", attempt)
		require.LessOrEqual(t, delay, b.Max+b.Max/4, "attempt %d", attempt)
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	t.Parallel()

	b := Backoff{Initial: time.Second, Max: 3 * time.Second}
	require.LessOrEqual(t, b.Delay(10), 3*time.Second)
}

func TestBackoffRetryAfter(t *testing.T) {
	t.Parallel()

	b := Backoff{Initial: 100 * time.Millisecond, Max: 5 * time.Second}

	require.Equal(t, 2*time.Second, b.RetryAfter(2*time.Second, 1))
	require.Equal(t, 5*time.Second, b.RetryAfter(time.Minute, 1), "hints clamp to max")
	require.GreaterOrEqual(t, b.RetryAfter(0, 2), 200*time.Millisecond, "no hint falls back to backoff")
}
