package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fast = Options{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func TestDo_RetriesRetryableUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, func() error {
		calls++
		if calls < 3 {
			return &HTTPError{StatusCode: 503}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, func() error {
		calls++
		return &HTTPError{StatusCode: 404}
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)

	calls = 0
	plain := errors.New("decode failed")
	err = Do(context.Background(), fast, func() error {
		calls++
		return plain
	})
	require.ErrorIs(t, err, plain)
	require.Equal(t, 1, calls)
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	retries := 0
	opts := fast
	opts.OnRetry = func(int, time.Duration, error) { retries++ }

	err := Do(context.Background(), opts, func() error {
		calls++
		return &HTTPError{StatusCode: 429}
	})

	var he *HTTPError
	require.ErrorAs(t, err, &he)
	require.Equal(t, 429, he.StatusCode)
	require.Equal(t, 4, calls)
	require.Equal(t, 3, retries)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, fast, func() error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestParseRetryAfter(t *testing.T) {
	require.Equal(t, 2*time.Second, ParseRetryAfter("2"))
	require.Zero(t, ParseRetryAfter(""))
	require.Zero(t, ParseRetryAfter("-1"))
	require.Zero(t, ParseRetryAfter("soon"))

	future := time.Now().Add(time.Hour).UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")
	require.Greater(t, ParseRetryAfter(future), 50*time.Minute)
}

func TestJitterDelay_Bounds(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := JitterDelay(attempt, 10*time.Millisecond, 40*time.Millisecond)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 40*time.Millisecond)
	}
	require.Zero(t, JitterDelay(3, 0, time.Second))
}
