package directory

import (
	"context"
	"sync"
	"time"

	"github.com/arloliu/shardcoord/internal/kvutil"
	"github.com/arloliu/shardcoord/internal/natsutil"
)

type ownedKey struct {
	value    []byte
	revision uint64
}

// session tracks the ephemeral keys created through one directory and keeps
// them alive.
type session struct {
	d *NATS

	mu    sync.Mutex
	owned map[string]ownedKey
}

func newSession(d *NATS) *session {
	return &session{d: d, owned: make(map[string]ownedKey)}
}

func (s *session) track(key string, value []byte, revision uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owned[key] = ownedKey{value: value, revision: revision}
}

func (s *session) forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.owned, key)
}

func (s *session) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.owned)
}

// drain empties the session and returns the keys it owned.
func (s *session) drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.owned))
	for key := range s.owned {
		keys = append(keys, key)
	}
	s.owned = make(map[string]ownedKey)

	return keys
}

func (s *session) snapshot() map[string]ownedKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]ownedKey, len(s.owned))
	for k, v := range s.owned {
		out[k] = v
	}

	return out
}

// renewLoop rewrites owned keys every SessionTTL/3 until the directory closes.
func (s *session) renewLoop() {
	ticker := time.NewTicker(s.d.cfg.renewInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.d.ctx.Done():
			return
		case <-ticker.C:
			s.renewAll(s.d.ctx)
		}
	}
}

func (s *session) renewAll(ctx context.Context) {
	for key, owned := range s.snapshot() {
		if ctx.Err() != nil {
			return
		}
		s.renew(ctx, key, owned)
	}
}

func (s *session) renew(ctx context.Context, key string, owned ownedKey) {
	start := time.Now()
	opCtx, cancel := s.d.opContext(ctx)
	revision, err := s.d.ephemeral.Update(opCtx, key, owned.value, owned.revision)
	cancel()
	s.d.metrics.RecordDirectoryOperation("renew", time.Since(start).Seconds(), err == nil)

	s.mu.Lock()
	defer s.mu.Unlock()

	current, stillOwned := s.owned[key]
	if !stillOwned || current.revision != owned.revision {
		// Deleted or replaced while the update was in flight.
		return
	}

	switch {
	case err == nil:
		s.owned[key] = ownedKey{value: owned.value, revision: revision}
	case natsutil.IsConflict(err) || natsutil.IsNotFound(err):
		delete(s.owned, key)
		s.d.logger.Warn("ephemeral node lost, dropping from session",
			"path", kvutil.KeyToPath(key),
			"error", err,
		)
	default:
		s.d.logger.Warn("ephemeral node renewal failed, will retry",
			"path", kvutil.KeyToPath(key),
			"error", err,
		)
	}
}
