package kvutil

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/arloliu/shardcoord/types"
)

var segmentPattern = regexp.MustCompile(`^[-_=a-zA-Z0-9]+$`)

// PathToKey maps a directory path to a KV key.
//
// "/shards/3_shard-3_ReadWrite_0000000001" becomes "shards.3_shard-3_ReadWrite_0000000001".
// The root path "/" is rejected because it has no key.
func PathToKey(path string) (string, error) {
	segments, err := SplitPath(path)
	if err != nil {
		return "", err
	}

	return strings.Join(segments, "."), nil
}

// KeyToPath maps a KV key back to its directory path.
func KeyToPath(key string) string {
	return "/" + strings.ReplaceAll(key, ".", "/")
}

// SplitPath validates path and returns its segments.
func SplitPath(path string) ([]string, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("%w: %q must start with /", types.ErrInvalidPath, path)
	}

	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: root path has no key", types.ErrInvalidPath)
	}

	segments := strings.Split(trimmed, "/")
	for _, seg := range segments {
		if !segmentPattern.MatchString(seg) {
			return nil, fmt.Errorf("%w: bad segment %q in %q", types.ErrInvalidPath, seg, path)
		}
	}

	return segments, nil
}

// ParentKey returns the key of the parent of key, and false for a top-level key.
func ParentKey(key string) (string, bool) {
	idx := strings.LastIndexByte(key, '.')
	if idx < 0 {
		return "", false
	}

	return key[:idx], true
}

// ChildName returns the direct child name of parentKey encoded in key.
//
// Returns false when key is not a direct child (deeper descendants, siblings,
// or the parent itself).
func ChildName(parentKey, key string) (string, bool) {
	prefix := parentKey + "."
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}

	name := key[len(prefix):]
	if name == "" || strings.Contains(name, ".") {
		return "", false
	}

	return name, true
}

// JoinPath joins a parent path and a child name.
func JoinPath(parent, name string) string {
	return strings.TrimSuffix(parent, "/") + "/" + name
}
