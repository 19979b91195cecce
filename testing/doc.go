// Package testing provides test helpers for shardcoord.
//
// It follows the net/http/httptest convention of shipping test utilities in
// a dedicated package:
//
//   - StartEmbeddedNATS: in-process NATS server with JetStream for directory tests
//   - NewTestLogger: types.Logger writing through testing.T
//   - MemoryDirectory: in-memory types.Directory with operation counters,
//     fault injection, session expiry and a simple leader election
//
// Example:
//
//	import coordtest "github.com/arloliu/shardcoord/testing"
//
//	func TestRegistry(t *testing.T) {
//	    dir := coordtest.NewMemoryDirectory()
//	    reg := registry.New(dir, "/shards")
//	    // ...
//	}
package testing
