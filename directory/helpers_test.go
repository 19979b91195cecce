package directory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	coordtest "github.com/arloliu/shardcoord/testing"
)

const testSessionTTL = time.Second

func testConfig() Config {
	return Config{
		PersistentBucket: "test-nodes",
		EphemeralBucket:  "test-sessions",
		SessionTTL:       testSessionTTL,
		OperationTimeout: 2 * time.Second,
		PollInterval:     150 * time.Millisecond,
		WatchDebounce:    20 * time.Millisecond,
		Replicas:         1,
		MemoryStorage:    true,
	}
}

func newTestDirectory(t *testing.T, nc *nats.Conn) *NATS {
	t.Helper()

	d, err := New(t.Context(), nc, testConfig(), WithLogger(coordtest.NewTestLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Close(ctx)
	})

	return d
}

// connect opens an extra client connection, standing in for a second process.
func connect(t *testing.T, url string) *nats.Conn {
	t.Helper()

	nc, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	return nc
}

type childrenRecorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *childrenRecorder) handle(_ context.Context, children []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, children)

	return nil
}

func (r *childrenRecorder) last() ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil, false
	}

	return r.calls[len(r.calls)-1], true
}

type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *eventRecorder) listen(event interface{ String() string }) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event.String())
}

func (r *eventRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.events...)
}
