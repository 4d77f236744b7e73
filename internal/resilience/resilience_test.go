package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		kind ErrorKind
	}{
		{errors.New("429 too many requests"), KindRateLimit},
		{errors.New("quota exceeded for project"), KindQuotaExceeded},
		{errors.New("401 unauthorized"), KindAuthFailure},
		{context.DeadlineExceeded, KindNetworkTimeout},
		{errors.New("invalid argument: bad channel"), KindInvalidInput},
		{errors.New("something exploded"), KindUnclassified},
	}
	for _, c := range cases {
		assert.Equal(t, c.kind, Classify(c.err))
	}
}

func TestClassify_PreClassified(t *testing.T) {
	err := Wrap(KindGraphEngine, errors.New("boom"))
	assert.Equal(t, KindGraphEngine, Classify(err))
}

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return Wrap(KindRateLimit, errors.New("slow down"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_StopsOnPermanentError(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(ctx context.Context) error {
		attempts++
		return Wrap(KindAuthFailure, errors.New("bad token"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, KindAuthFailure, Classify(err))
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithRetry(ctx, Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(ctx context.Context) error {
		t.Fatal("fn should not be called with a cancelled context")
		return nil
	})
	require.Error(t, err)
}
