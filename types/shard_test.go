package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntryNamePrefix(t *testing.T) {
	require.Equal(t, "3_shard-3_ReadWrite_", EntryNamePrefix(3, "shard-3", StateReadWrite))
	require.Equal(t, "12_backend12_ReadOnly_", EntryNamePrefix(12, "backend12", StateReadOnly))
}

func TestParseDirectoryEntry(t *testing.T) {
	t.Run("parses name with sequence suffix", func(t *testing.T) {
		entry, err := ParseDirectoryEntry("3_shard-3_WriteUrlsOnly_0000000007")
		require.NoError(t, err)
		require.Equal(t, ShardID(3), entry.ShardID)
		require.Equal(t, "shard-3", entry.NodeIdentity)
		require.Equal(t, StateWriteUrlsOnly, entry.State)
		require.Equal(t, "3_shard-3_WriteUrlsOnly_0000000007", entry.Name)
	})

	t.Run("roundtrips prefix", func(t *testing.T) {
		entry, err := ParseDirectoryEntry(EntryNamePrefix(7, "node", StateReadOnly) + "0000000001")
		require.NoError(t, err)
		require.Equal(t, ShardID(7), entry.ShardID)
		require.Equal(t, StateReadOnly, entry.State)
	})

	invalid := []string{
		"",
		"3_shard-3_ReadWrite",
		"3_shard_3_ReadWrite_0000000001",
		"x_shard-3_ReadWrite_0000000001",
		"-1_shard-3_ReadWrite_0000000001",
		"3__ReadWrite_0000000001",
		"3_shard-3_Bogus_0000000001",
	}
	for _, name := range invalid {
		t.Run("rejects "+name, func(t *testing.T) {
			_, err := ParseDirectoryEntry(name)
			require.ErrorIs(t, err, ErrDirectoryCorrupted)
		})
	}
}
