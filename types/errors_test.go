package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSentinelErrors(t *testing.T) {
	t.Run("wrapped errors keep identity", func(t *testing.T) {
		wrapped := fmt.Errorf("decode %q: %w", "abc", ErrInvalidShortID)
		require.True(t, errors.Is(wrapped, ErrInvalidShortID))
		require.False(t, errors.Is(wrapped, ErrInvalidCursor))
	})

	t.Run("all errors are distinct", func(t *testing.T) {
		allErrors := []error{
			ErrInvalidShortID,
			ErrInvalidArgument,
			ErrInvalidCursor,
			ErrInvalidUserID,
			ErrDirectoryCorrupted,
			ErrNoParent,
			ErrInvalidPath,
			ErrDirectoryClosed,
			ErrNotInitialized,
			ErrInvalidTransition,
			ErrLifecycleClosed,
			ErrQueueClosed,
			ErrElectionStopped,
			ErrElectionStarted,
			ErrCapacityExhausted,
			ErrShardOffline,
			ErrNoKeysFound,
		}

		for i, a := range allErrors {
			for j, b := range allErrors {
				if i == j {
					continue
				}
				require.False(t, errors.Is(a, b), "%v should not match %v", a, b)
			}
		}
	})
}

func TestIsNoKeysFoundError(t *testing.T) {
	require.False(t, IsNoKeysFoundError(nil))
	require.True(t, IsNoKeysFoundError(ErrNoKeysFound))
	require.True(t, IsNoKeysFoundError(errors.New("nats: no keys found")))
	require.True(t, IsNoKeysFoundError(fmt.Errorf("failed to list KV keys: %w", errors.New("nats: no keys found"))))
	require.False(t, IsNoKeysFoundError(errors.New("nats: timeout")))
}
