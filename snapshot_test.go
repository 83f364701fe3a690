package main

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.snapshot")

	entries := []SnapshotEntry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("two"), ExpiresAt: time.Now().Add(time.Hour)},
	}
	require.NoError(t, WriteSnapshot(path, entries))

	loaded, err := LoadSnapshot(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, []byte("a"), loaded[0].Key)
	assert.Equal(t, []byte("1"), loaded[0].Value)
	assert.True(t, loaded[0].ExpiresAt.IsZero())
	assert.Equal(t, []byte("b"), loaded[1].Key)
	assert.False(t, loaded[1].ExpiresAt.IsZero())
}

func TestSnapshotFileLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.snapshot")
	require.NoError(t, WriteSnapshot(path, []SnapshotEntry{{Key: []byte("k"), Value: []byte("v")}}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	// Magic, version, count are little-endian, unlike the wire protocol.
	assert.Equal(t, []byte("CELS"), raw[0:4])
	assert.Equal(t, byte(1), raw[4])
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(raw[13:17]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(raw[17:21])) // keylen
	assert.Equal(t, byte('k'), raw[21])
}

func TestSnapshotDropsExpiredOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expired.snapshot")

	entries := []SnapshotEntry{
		{Key: []byte("live"), Value: []byte("v"), ExpiresAt: time.Now().Add(time.Hour)},
		{Key: []byte("dead"), Value: []byte("v"), ExpiresAt: time.Now().Add(-time.Hour)},
	}
	require.NoError(t, WriteSnapshot(path, entries))

	loaded, err := LoadSnapshot(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, []byte("live"), loaded[0].Key)
}

func TestRestoreSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restore.snapshot")

	store := NewStore(4)
	store.Set([]byte("x"), []byte("1"), 0)
	store.Set([]byte("y"), []byte("2"), time.Hour)
	require.NoError(t, WriteSnapshot(path, store.Snapshot()))

	fresh := NewStore(4)
	n, err := RestoreSnapshot(path, fresh)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, ok := fresh.Get([]byte("x"))
	require.True(t, ok)
	assert.Equal(t, []byte("1"), got)
	assert.True(t, fresh.Exists([]byte("y")))
}

func TestRestoreSnapshotMissingFile(t *testing.T) {
	store := NewStore(4)
	n, err := RestoreSnapshot(filepath.Join(t.TempDir(), "absent.snapshot"), store)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLoadSnapshotBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.snapshot")
	require.NoError(t, os.WriteFile(path, []byte("CELXnot a snapshot at all"), 0o644))

	_, err := LoadSnapshot(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "magic")
}
