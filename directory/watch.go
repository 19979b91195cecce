package directory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/shardcoord/internal/kvutil"
	"github.com/arloliu/shardcoord/types"
)

// SubscribeChildrenChanged registers handler for changes under parentPath.
//
// One monitor runs per parent path and is shared by all of its handlers. A
// monitor notifies on every debounced watch event and, from polling, whenever
// the child list differs from the last one it delivered. The monitor stops
// when its last handler unsubscribes.
func (d *NATS) SubscribeChildrenChanged(
	ctx context.Context,
	parentPath string,
	handler types.ChildrenChangedHandler,
) (func(), error) {
	if d.closed.Load() {
		return nil, types.ErrDirectoryClosed
	}

	parentKey, err := kvutil.PathToKey(parentPath)
	if err != nil {
		return nil, err
	}

	d.monitorsMu.Lock()
	defer d.monitorsMu.Unlock()

	m, ok := d.monitors[parentKey]
	if !ok {
		m = newChildrenMonitor(d, parentPath, parentKey)
		if err := m.start(ctx); err != nil {
			return nil, err
		}
		d.monitors[parentKey] = m
	}

	id := m.add(handler)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			d.monitorsMu.Lock()
			if m.remove(id) == 0 && d.monitors[parentKey] == m {
				delete(d.monitors, parentKey)
				d.monitorsMu.Unlock()
				// Handlers may unsubscribe from inside a notification, so do not wait here.
				m.halt()

				return
			}
			d.monitorsMu.Unlock()
		})
	}

	return unsubscribe, nil
}

// childrenMonitor combines KV watchers with a polling fallback for one parent.
type childrenMonitor struct {
	d          *NATS
	parentPath string
	parentKey  string

	handlers  *xsync.Map[uint64, types.ChildrenChangedHandler]
	nextID    atomic.Uint64
	count     atomic.Int64
	watchers  []jetstream.KeyWatcher
	lastMu    sync.Mutex
	last      []string
	delivered bool

	cancel   context.CancelFunc
	haltOnce sync.Once
	wg       sync.WaitGroup
}

func newChildrenMonitor(d *NATS, parentPath, parentKey string) *childrenMonitor {
	return &childrenMonitor{
		d:          d,
		parentPath: parentPath,
		parentKey:  parentKey,
		handlers:   xsync.NewMap[uint64, types.ChildrenChangedHandler](),
	}
}

func (m *childrenMonitor) add(handler types.ChildrenChangedHandler) uint64 {
	id := m.nextID.Add(1)
	m.handlers.Store(id, handler)
	m.count.Add(1)

	return id
}

// remove drops a handler and returns the number remaining.
func (m *childrenMonitor) remove(id uint64) int64 {
	if _, ok := m.handlers.LoadAndDelete(id); ok {
		return m.count.Add(-1)
	}

	return m.count.Load()
}

func (m *childrenMonitor) start(ctx context.Context) error {
	pattern := m.parentKey + ".*"
	for _, kv := range []jetstream.KeyValue{m.d.ephemeral, m.d.persistent} {
		w, err := kv.Watch(ctx, pattern, jetstream.UpdatesOnly())
		if err != nil {
			m.stopWatchers()
			return fmt.Errorf("failed to watch %s: %w", m.parentPath, err)
		}
		m.watchers = append(m.watchers, w)
	}

	// Monitors outlive the subscribing call; they stop on unsubscribe or Close.
	loopCtx, cancel := context.WithCancel(m.d.ctx)
	m.cancel = cancel

	triggers := make(chan struct{}, 1)
	for _, w := range m.watchers {
		m.wg.Go(func() { m.forwardUpdates(loopCtx, w, triggers) })
	}
	m.wg.Go(func() { m.run(loopCtx, triggers) })

	m.d.logger.Debug("children monitor started", "path", m.parentPath, "pattern", pattern)

	return nil
}

// halt stops the watchers and signals the loops to exit.
func (m *childrenMonitor) halt() {
	m.haltOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		m.stopWatchers()
		m.d.logger.Debug("children monitor stopped", "path", m.parentPath)
	})
}

// stop halts the monitor and waits for its loops to exit.
func (m *childrenMonitor) stop() {
	m.halt()
	m.wg.Wait()
}

func (m *childrenMonitor) stopWatchers() {
	for _, w := range m.watchers {
		if err := w.Stop(); err != nil {
			m.d.logger.Warn("failed to stop watcher", "path", m.parentPath, "error", err)
		}
	}
	m.watchers = nil
}

// forwardUpdates turns watcher entries into non-blocking trigger signals.
func (m *childrenMonitor) forwardUpdates(ctx context.Context, w jetstream.KeyWatcher, triggers chan<- struct{}) {
	updates := w.Updates()
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-updates:
			if !ok {
				return
			}
			if entry == nil {
				continue
			}
			if _, direct := kvutil.ChildName(m.parentKey, entry.Key()); !direct {
				continue
			}

			m.d.logger.Debug("watch: child changed",
				"path", m.parentPath,
				"key", entry.Key(),
				"operation", entry.Operation().String(),
			)

			select {
			case triggers <- struct{}{}:
			default:
			}
		}
	}
}

// run debounces watch triggers and polls for changes the watchers cannot see.
func (m *childrenMonitor) run(ctx context.Context, triggers <-chan struct{}) {
	debounce := m.d.cfg.WatchDebounce
	debounceTimer := time.NewTimer(debounce)
	debounceTimer.Stop()
	var pending bool

	ticker := time.NewTicker(m.d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			debounceTimer.Stop()
			return

		case <-triggers:
			if !pending {
				pending = true
				debounceTimer.Reset(debounce)
			}

		case <-debounceTimer.C:
			if pending {
				pending = false
				m.refresh(ctx, true)
			}

		case <-ticker.C:
			m.refresh(ctx, false)
		}
	}
}

// refresh re-lists the children and notifies the handlers.
//
// Polling refreshes (force=false) only notify when the list changed since the
// last delivery.
func (m *childrenMonitor) refresh(ctx context.Context, force bool) {
	children, err := m.d.ListChildren(ctx, m.parentPath)
	if err != nil {
		if ctx.Err() == nil {
			m.d.logger.Warn("failed to list children", "path", m.parentPath, "error", err)
		}

		return
	}

	m.lastMu.Lock()
	unchanged := m.delivered && slices.Equal(children, m.last)
	if !force && unchanged {
		m.lastMu.Unlock()
		return
	}
	m.last = children
	m.delivered = true
	m.lastMu.Unlock()

	m.handlers.Range(func(_ uint64, handler types.ChildrenChangedHandler) bool {
		if err := handler(ctx, slices.Clone(children)); err != nil {
			m.d.logger.Error("children change handler failed",
				"path", m.parentPath,
				"children", len(children),
				"error", err,
			)
			m.d.metrics.RecordDirectoryOperation("children_handler", 0, false)
		}

		return true
	})
}
