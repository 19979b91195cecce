// Package shardcoord provides the shard coordination core of a horizontally
// sharded URL shortener.
//
// Each shard owns a fixed range of short-identifier slots. Shards advertise
// themselves and their capacity state in a coordination directory; routing
// clients watch that directory to decide where requests and new users go.
// No central lookup table is involved: a short identifier encodes the shard
// that owns it.
//
// # Quick Start
//
// A shard process:
//
//	dir, _ := directory.New(ctx, nc, cfg.Directory)
//	alloc, _ := allocator.NewRedis(redisClient, cfg.RedisKeyPrefix, cfg.ShardID, shortid.RangeSize)
//
//	shard, err := shardcoord.NewShard(cfg, dir, alloc, alloc)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := shard.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer shard.Stop(context.Background())
//
//	code, err := shard.MintShortID(ctx) // e.g. "1L9zO9O"
//
// A routing client:
//
//	router, _ := shardcoord.NewRouter(cfg, dir)
//	if err := router.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	shard, err := router.RouteShortID(code)
//	newUserShard, err := router.ShardForNewUser()
//
// # Lifecycle
//
// A shard's state only becomes more restrictive as its range fills:
//
//	ReadWrite → WriteUrlsOnly → ReadOnly
//
// ReadWrite shards accept new users and new URLs, WriteUrlsOnly shards only
// new URLs for existing users, and ReadOnly shards neither.
//
// # Packages
//
//   - shortid: short identifier and user subject codecs
//   - cursor: opaque keyset pagination cursors
//   - directory: coordination directory on NATS JetStream KV
//   - election: leader election with reconnect handling
//   - lifecycle: per-shard state and directory entry management
//   - registry: client-side view of online shards
//   - allocator: Redis-backed local index allocation
//   - testing: embedded NATS, test logger and an in-memory directory
package shardcoord
