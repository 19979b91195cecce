package shortid

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/arloliu/shardcoord/types"
)

// ShortID identifies one URL slot: the owning shard and its local index.
type ShortID struct {
	Range types.ShardID
	Index int64
}

// Encode returns the public form of the identifier using the Default codec.
func (id ShortID) Encode() (string, error) {
	return Default.Encode(id.Range, id.Index)
}

// String returns the encoded identifier, or a debug form if it cannot be encoded.
func (id ShortID) String() string {
	s, err := id.Encode()
	if err != nil {
		return fmt.Sprintf("ShortID(%d,%d)", id.Range, id.Index)
	}

	return s
}

// URL returns the redirect URL "{scheme}://{host}/{code}".
func (id ShortID) URL(scheme, host string) (string, error) {
	code, err := id.Encode()
	if err != nil {
		return "", err
	}

	return scheme + "://" + host + "/" + code, nil
}

// ParseURL extracts the ShortID from a redirect URL such as "https://sho.rt/00Bj7wq".
//
// Only absolute http(s) URLs whose path is a single encoded identifier are accepted.
//
// Returns:
//   - ShortID: Decoded identifier
//   - error: types.ErrInvalidShortID for anything else
func ParseURL(raw string) (ShortID, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ShortID{}, fmt.Errorf("%w: %v", types.ErrInvalidShortID, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return ShortID{}, fmt.Errorf("%w: %q is not an http(s) URL", types.ErrInvalidShortID, raw)
	}

	code, ok := strings.CutPrefix(u.Path, "/")
	if !ok {
		return ShortID{}, fmt.Errorf("%w: %q has no path", types.ErrInvalidShortID, raw)
	}

	return Decode(code)
}
