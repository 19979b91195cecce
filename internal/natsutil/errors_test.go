package natsutil

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", nats.ErrTimeout, true},
		{"wrapped timeout", fmt.Errorf("delete: %w", nats.ErrTimeout), true},
		{"no servers", nats.ErrNoServers, true},
		{"disconnected", nats.ErrDisconnected, true},
		{"closed", nats.ErrConnectionClosed, true},
		{"no responders", nats.ErrNoResponders, true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"io timeout text", errors.New("read tcp: i/o timeout"), true},
		{"refused text", errors.New("dial tcp: connection refused"), true},
		{"key not found", jetstream.ErrKeyNotFound, false},
		{"key exists", jetstream.ErrKeyExists, false},
		{"other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsNotFound(t *testing.T) {
	require.True(t, IsNotFound(jetstream.ErrKeyNotFound))
	require.True(t, IsNotFound(fmt.Errorf("get: %w", jetstream.ErrKeyDeleted)))
	require.False(t, IsNotFound(nats.ErrTimeout))
	require.False(t, IsNotFound(nil))
}

func TestIsConflict(t *testing.T) {
	require.True(t, IsConflict(jetstream.ErrKeyExists))
	require.True(t, IsConflict(fmt.Errorf("update: %w", jetstream.ErrKeyExists)))
	require.True(t, IsConflict(errors.New("nats: wrong last sequence: 4")))
	require.False(t, IsConflict(jetstream.ErrKeyNotFound))
	require.False(t, IsConflict(nil))
}
