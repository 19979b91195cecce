package shortid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arloliu/shardcoord/types"
)

const userIDSeparator = ":"

// UserID is a user's home shard and shard-local id, carried as the token subject.
type UserID struct {
	ShardID types.ShardID
	ID      int64
}

// String returns "{shardId}:{id}".
func (u UserID) String() string {
	return strconv.FormatInt(int64(u.ShardID), 10) + userIDSeparator + strconv.FormatInt(u.ID, 10)
}

// ParseUserID parses a "{shardId}:{id}" subject.
//
// Returns:
//   - UserID: Parsed id
//   - error: types.ErrInvalidUserID unless s is exactly two non-negative integers
func ParseUserID(s string) (UserID, error) {
	shardPart, idPart, ok := strings.Cut(s, userIDSeparator)
	if !ok || strings.Contains(idPart, userIDSeparator) {
		return UserID{}, fmt.Errorf("%w: %q", types.ErrInvalidUserID, s)
	}

	shard, err := strconv.ParseInt(shardPart, 10, 64)
	if err != nil || shard < 0 {
		return UserID{}, fmt.Errorf("%w: bad shard in %q", types.ErrInvalidUserID, s)
	}

	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id < 0 {
		return UserID{}, fmt.Errorf("%w: bad id in %q", types.ErrInvalidUserID, s)
	}

	return UserID{ShardID: types.ShardID(shard), ID: id}, nil
}
