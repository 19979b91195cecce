// Package shortid encodes short identifiers that embed shard routing.
//
// A ShortID is a (range, index) pair where range is the owning shard and
// index is the shard-local slot. Its public form is a fixed-width base-62
// string of
//
//	range*RangeSize + index + StarterRange
//
// so any routing client can recover the owning shard from the string alone,
// without a lookup table. StarterRange keeps low numeric values (and thus
// short, hand-typed strings) out of the generated space.
//
// The package also carries UserID, the "{shardId}:{localId}" subject used to
// route user-scoped requests.
package shortid
