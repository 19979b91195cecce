// Package cursor encodes opaque keyset pagination cursors.
//
// A cursor is the base-64 (standard alphabet, padded) form of
// "{localId}:{updatedAtUnixMillis}". It marks an exclusive boundary in a
// per-owner collection ordered by (updatedAt, localId) and is never used to
// fetch data directly.
package cursor

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/arloliu/shardcoord/types"
)

const separator = ":"

// Representable instant range: years 1 through 9999 UTC.
var (
	minMillis = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	maxMillis = time.Date(9999, time.December, 31, 23, 59, 59, 999_000_000, time.UTC).UnixMilli()
)

// Cursor is a decoded keyset position.
type Cursor struct {
	LocalID   int64
	UpdatedAt time.Time
}

// Encode returns the opaque form of (localID, updatedAt).
//
// updatedAt is truncated to millisecond precision.
func Encode(localID int64, updatedAt time.Time) string {
	plain := strconv.FormatInt(localID, 10) + separator + strconv.FormatInt(updatedAt.UnixMilli(), 10)
	return base64.StdEncoding.EncodeToString([]byte(plain))
}

// String returns the opaque form of c.
func (c Cursor) String() string {
	return Encode(c.LocalID, c.UpdatedAt)
}

// Decode parses an opaque cursor.
//
// The returned time is in UTC with millisecond precision.
//
// Returns:
//   - Cursor: Decoded position
//   - error: types.ErrInvalidCursor when s is empty, not base-64, does not
//     contain exactly two ":"-separated integers, has a negative id, or has a
//     timestamp outside years 1-9999
func Decode(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, fmt.Errorf("%w: empty", types.ErrInvalidCursor)
	}

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", types.ErrInvalidCursor, err)
	}

	fields := strings.Split(string(raw), separator)
	if len(fields) != 2 {
		return Cursor{}, fmt.Errorf("%w: expected 2 fields, got %d", types.ErrInvalidCursor, len(fields))
	}

	localID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: bad id: %v", types.ErrInvalidCursor, err)
	}
	if localID < 0 {
		return Cursor{}, fmt.Errorf("%w: negative id %d", types.ErrInvalidCursor, localID)
	}

	millis, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: bad timestamp: %v", types.ErrInvalidCursor, err)
	}
	if millis < minMillis || millis > maxMillis {
		return Cursor{}, fmt.Errorf("%w: timestamp %d out of range", types.ErrInvalidCursor, millis)
	}

	return Cursor{LocalID: localID, UpdatedAt: time.UnixMilli(millis).UTC()}, nil
}
