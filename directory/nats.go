package directory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/shardcoord/internal/kvutil"
	"github.com/arloliu/shardcoord/internal/logging"
	"github.com/arloliu/shardcoord/internal/metrics"
	"github.com/arloliu/shardcoord/internal/natsutil"
	"github.com/arloliu/shardcoord/types"
)

const (
	sequenceKeyPrefix  = "_seq"
	sequenceDigits     = 10
	maxSequenceRetries = 16
	bucketAttempts     = 5
)

// NATS is a types.Directory backed by JetStream KV.
//
// A NATS directory owns the connection state handlers of the *nats.Conn it is
// given; callers must not install their own disconnect, reconnect or closed
// handlers on that connection.
type NATS struct {
	nc         *nats.Conn
	persistent jetstream.KeyValue
	ephemeral  jetstream.KeyValue
	cfg        Config
	logger     types.Logger
	metrics    types.MetricsCollector

	session *session

	connSubs   *xsync.Map[uint64, types.ConnectionStateHandler]
	nextSubID  atomic.Uint64
	monitorsMu sync.Mutex
	monitors   map[string]*childrenMonitor

	ctx    context.Context //nolint:containedctx // background loop lifetime
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

var _ types.Directory = (*NATS)(nil)

// New opens (creating if needed) the directory buckets and starts the session.
//
// Parameters:
//   - ctx: Context for bucket creation
//   - nc: Connected NATS connection
//   - cfg: Directory configuration (zero fields take defaults)
//   - opts: WithLogger, WithMetrics
//
// Returns:
//   - *NATS: The directory
//   - error: Configuration or bucket creation error
//
// Example:
//
//	nc, _ := nats.Connect(nats.DefaultURL)
//	dir, err := directory.New(ctx, nc, directory.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer dir.Close(context.Background())
func New(ctx context.Context, nc *nats.Conn, cfg Config, opts ...Option) (*NATS, error) {
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid directory config: %w", err)
	}

	o := options{logger: logging.NewNop(), metrics: metrics.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	persistent, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.PersistentBucket,
		Description: "shardcoord persistent nodes",
		History:     1,
		Storage:     cfg.storage(),
		Replicas:    cfg.Replicas,
	}, bucketAttempts)
	if err != nil {
		return nil, err
	}

	ephemeral, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.EphemeralBucket,
		Description: "shardcoord session-owned nodes",
		History:     1,
		TTL:         cfg.SessionTTL,
		Storage:     cfg.storage(),
		Replicas:    cfg.Replicas,
	}, bucketAttempts)
	if err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	d := &NATS{
		nc:         nc,
		persistent: persistent,
		ephemeral:  ephemeral,
		cfg:        cfg,
		logger:     o.logger,
		metrics:    o.metrics,
		connSubs:   xsync.NewMap[uint64, types.ConnectionStateHandler](),
		monitors:   make(map[string]*childrenMonitor),
		ctx:        loopCtx,
		cancel:     cancel,
	}
	d.session = newSession(d)

	d.installConnectionHandlers()
	d.metrics.RecordConnectionState(nc.IsConnected())

	d.wg.Go(d.session.renewLoop)

	d.logger.Info("directory opened",
		"persistent_bucket", cfg.PersistentBucket,
		"ephemeral_bucket", cfg.EphemeralBucket,
		"session_ttl", cfg.SessionTTL,
	)

	return d, nil
}

// Config returns the effective configuration.
func (d *NATS) Config() Config {
	return d.cfg
}

// CreatePersistentNode creates a persistent node. Parents are not required.
func (d *NATS) CreatePersistentNode(ctx context.Context, path string, data []byte) (created bool, err error) {
	defer d.observe("create_persistent", time.Now(), &err)

	key, err := kvutil.PathToKey(path)
	if err != nil {
		return false, err
	}

	ctx, cancel := d.opContext(ctx)
	defer cancel()

	if _, err = d.persistent.Create(ctx, key, data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return false, nil
		}

		return false, fmt.Errorf("failed to create node %s: %w", path, err)
	}

	d.logger.Debug("persistent node created", "path", path)

	return true, nil
}

// CreateEphemeralNode creates a session-owned node.
//
// The parent must exist as a persistent node. With sequential set, a
// 10-digit zero-padded sequence number unique under the parent is appended
// to the last path segment.
func (d *NATS) CreateEphemeralNode(ctx context.Context, path string, data []byte, sequential bool) (actual string, err error) {
	defer d.observe("create_ephemeral", time.Now(), &err)

	if d.closed.Load() {
		return "", types.ErrDirectoryClosed
	}

	key, err := kvutil.PathToKey(path)
	if err != nil {
		return "", err
	}

	ctx, cancel := d.opContext(ctx)
	defer cancel()

	parentKey, hasParent := kvutil.ParentKey(key)
	if hasParent {
		if _, err = d.persistent.Get(ctx, parentKey); err != nil {
			if natsutil.IsNotFound(err) {
				return "", fmt.Errorf("%w: %s", types.ErrNoParent, kvutil.KeyToPath(parentKey))
			}

			return "", fmt.Errorf("failed to check parent of %s: %w", path, err)
		}
	}

	if sequential {
		seq, seqErr := d.nextSequence(ctx, parentKey)
		if seqErr != nil {
			return "", seqErr
		}
		key += fmt.Sprintf("%0*d", sequenceDigits, seq)
	}

	revision, err := d.ephemeral.Create(ctx, key, data)
	if err != nil {
		return "", fmt.Errorf("failed to create ephemeral node %s: %w", kvutil.KeyToPath(key), err)
	}

	d.session.track(key, data, revision)
	actual = kvutil.KeyToPath(key)
	d.logger.Debug("ephemeral node created", "path", actual, "revision", revision)

	return actual, nil
}

// nextSequence increments the per-parent counter with compare-and-set.
func (d *NATS) nextSequence(ctx context.Context, parentKey string) (uint64, error) {
	counterKey := sequenceKeyPrefix
	if parentKey != "" {
		counterKey += "." + parentKey
	}

	for range maxSequenceRetries {
		entry, err := d.persistent.Get(ctx, counterKey)
		if err != nil {
			if !natsutil.IsNotFound(err) {
				return 0, fmt.Errorf("failed to read sequence %s: %w", counterKey, err)
			}

			if _, err = d.persistent.Create(ctx, counterKey, []byte("1")); err == nil {
				return 1, nil
			}
			if natsutil.IsConflict(err) {
				continue
			}

			return 0, fmt.Errorf("failed to create sequence %s: %w", counterKey, err)
		}

		current, err := strconv.ParseUint(string(entry.Value()), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: sequence %s holds %q", types.ErrDirectoryCorrupted, counterKey, entry.Value())
		}

		next := current + 1
		_, err = d.persistent.Update(ctx, counterKey, []byte(strconv.FormatUint(next, 10)), entry.Revision())
		if err == nil {
			return next, nil
		}
		if !natsutil.IsConflict(err) {
			return 0, fmt.Errorf("failed to advance sequence %s: %w", counterKey, err)
		}
	}

	return 0, fmt.Errorf("sequence %s contended after %d attempts", counterKey, maxSequenceRetries)
}

// DeleteNode deletes a node from whichever bucket holds it.
//
// Returns false, nil when the node was already absent.
func (d *NATS) DeleteNode(ctx context.Context, path string) (existed bool, err error) {
	defer d.observe("delete", time.Now(), &err)

	key, err := kvutil.PathToKey(path)
	if err != nil {
		return false, err
	}

	// Forget first so a concurrent renewal cannot revive the key.
	d.session.forget(key)

	ctx, cancel := d.opContext(ctx)
	defer cancel()

	for _, kv := range []jetstream.KeyValue{d.ephemeral, d.persistent} {
		if _, err = kv.Get(ctx, key); err != nil {
			if natsutil.IsNotFound(err) {
				continue
			}

			return false, fmt.Errorf("failed to read node %s: %w", path, err)
		}

		if err = kv.Delete(ctx, key); err != nil {
			return false, fmt.Errorf("failed to delete node %s: %w", path, err)
		}

		d.logger.Debug("node deleted", "path", path)

		return true, nil
	}

	return false, nil
}

// NodeExists reports whether a node exists in either bucket.
func (d *NATS) NodeExists(ctx context.Context, path string) (exists bool, err error) {
	defer d.observe("exists", time.Now(), &err)

	key, err := kvutil.PathToKey(path)
	if err != nil {
		return false, err
	}

	ctx, cancel := d.opContext(ctx)
	defer cancel()

	for _, kv := range []jetstream.KeyValue{d.ephemeral, d.persistent} {
		if _, err = kv.Get(ctx, key); err == nil {
			return true, nil
		}
		if !natsutil.IsNotFound(err) {
			return false, fmt.Errorf("failed to read node %s: %w", path, err)
		}
	}

	return false, nil
}

// ListChildren returns the sorted names of the direct children of parentPath.
func (d *NATS) ListChildren(ctx context.Context, parentPath string) (children []string, err error) {
	defer d.observe("list", time.Now(), &err)

	parentKey, err := kvutil.PathToKey(parentPath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := d.opContext(ctx)
	defer cancel()

	children = []string{}
	for _, kv := range []jetstream.KeyValue{d.ephemeral, d.persistent} {
		keys, keysErr := kv.Keys(ctx)
		if keysErr != nil {
			if errors.Is(keysErr, jetstream.ErrNoKeysFound) || types.IsNoKeysFoundError(keysErr) {
				continue
			}

			return nil, fmt.Errorf("failed to list children of %s: %w", parentPath, keysErr)
		}

		for _, key := range keys {
			if name, ok := kvutil.ChildName(parentKey, key); ok {
				children = append(children, name)
			}
		}
	}

	slices.Sort(children)

	return slices.Compact(children), nil
}

// Close stops background loops and deletes the nodes owned by this session.
//
// Election handles created from this directory stop renewing; their leases
// expire after SessionTTL unless stopped first.
func (d *NATS) Close(ctx context.Context) error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	d.monitorsMu.Lock()
	monitors := make([]*childrenMonitor, 0, len(d.monitors))
	for _, m := range d.monitors {
		monitors = append(monitors, m)
	}
	d.monitors = make(map[string]*childrenMonitor)
	d.monitorsMu.Unlock()

	for _, m := range monitors {
		m.stop()
	}

	d.cancel()
	d.wg.Wait()

	var errs []error
	for _, key := range d.session.drain() {
		if err := d.ephemeral.Delete(ctx, key); err != nil && !natsutil.IsNotFound(err) {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", kvutil.KeyToPath(key), err))
		}
	}

	d.logger.Info("directory closed")

	return errors.Join(errs...)
}

func (d *NATS) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, d.cfg.OperationTimeout)
}

func (d *NATS) observe(op string, start time.Time, errp *error) {
	d.metrics.RecordDirectoryOperation(op, time.Since(start).Seconds(), *errp == nil)
}
