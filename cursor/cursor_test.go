package cursor

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/shardcoord/types"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestEncode_Format(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_123)
	require.Equal(t, b64("42:1700000000123"), Encode(42, ts))
	require.Equal(t, Encode(42, ts), Cursor{LocalID: 42, UpdatedAt: ts}.String())
}

func TestRoundtrip(t *testing.T) {
	times := []time.Time{
		time.UnixMilli(0).UTC(),
		time.UnixMilli(1_700_000_000_123).UTC(),
		time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(1969, time.July, 20, 20, 17, 40, 0, time.UTC),
		time.Date(9999, time.December, 31, 23, 59, 59, 999_000_000, time.UTC),
	}
	ids := []int64{0, 1, 2_147_483_647, 9_223_372_036_854_775_807}

	for _, id := range ids {
		for _, ts := range times {
			c, err := Decode(Encode(id, ts))
			require.NoError(t, err)
			require.Equal(t, id, c.LocalID)
			require.True(t, ts.Equal(c.UpdatedAt), "want %v got %v", ts, c.UpdatedAt)
			require.Equal(t, time.UTC, c.UpdatedAt.Location())
		}
	}
}

func TestRoundtrip_TruncatesToMillis(t *testing.T) {
	ts := time.Date(2024, time.March, 1, 12, 0, 0, 123_456_789, time.FixedZone("x", 3600))

	c, err := Decode(Encode(7, ts))
	require.NoError(t, err)
	require.True(t, ts.Truncate(time.Millisecond).Equal(c.UpdatedAt))
}

func TestDecode_RejectsGarbage(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not base64", "!!!not-base64!!!"},
		{"url alphabet", "MTo-Mg=="},
		{"missing padding", "MTo"},
		{"no separator", b64("421700000000123")},
		{"two separators", b64("1:2:3")},
		{"empty fields", b64(":")},
		{"non-numeric id", b64("abc:1700000000123")},
		{"non-numeric timestamp", b64("42:yesterday")},
		{"float timestamp", b64("42:1.5")},
		{"negative id", b64("-1:1700000000123")},
		{"id overflow", b64("9223372036854775808:0")},
		{"timestamp overflow", b64("1:9223372036854775808")},
		{"timestamp past year 9999", b64("1:253402300800000")},
		{"timestamp before year 1", b64("1:-62135596800001")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Decode(tt.input)
			require.ErrorIs(t, err, types.ErrInvalidCursor)
			require.Equal(t, Cursor{}, c)
		})
	}
}
