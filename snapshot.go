package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Snapshot file layout, all integers little-endian (deliberately distinct
// from the big-endian wire protocol):
//
//	magic "CELS" | version u8 | created_ms u64 | count u32 |
//	count × ( keylen u32 | key | vallen u32 | value | expires_at_ms u64 )
//
// expires_at_ms of 0 means no expiry.

var snapshotMagic = [4]byte{'C', 'E', 'L', 'S'}

const snapshotVersion = 1

// SnapshotEntry is one persisted key/value pair.
type SnapshotEntry struct {
	Key       []byte
	Value     []byte
	ExpiresAt time.Time // zero = no expiry
}

// WriteSnapshot persists entries to path atomically (write temp file,
// rename over).
func WriteSnapshot(path string, entries []SnapshotEntry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ioError("create snapshot dir", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return ioError("create snapshot", err)
	}

	w := bufio.NewWriter(f)
	if err := writeSnapshotTo(w, entries); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return ioError("flush snapshot", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return ioError("close snapshot", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return ioError("rename snapshot", err)
	}
	return nil
}

func writeSnapshotTo(w io.Writer, entries []SnapshotEntry) error {
	var hdr [17]byte
	copy(hdr[0:4], snapshotMagic[:])
	hdr[4] = snapshotVersion
	binary.LittleEndian.PutUint64(hdr[5:13], uint64(time.Now().UnixMilli()))
	binary.LittleEndian.PutUint32(hdr[13:17], uint32(len(entries)))
	if _, err := w.Write(hdr[:]); err != nil {
		return ioError("write snapshot header", err)
	}

	var scratch [8]byte
	for _, e := range entries {
		binary.LittleEndian.PutUint32(scratch[:4], uint32(len(e.Key)))
		if _, err := w.Write(scratch[:4]); err != nil {
			return ioError("write snapshot entry", err)
		}
		if _, err := w.Write(e.Key); err != nil {
			return ioError("write snapshot entry", err)
		}
		binary.LittleEndian.PutUint32(scratch[:4], uint32(len(e.Value)))
		if _, err := w.Write(scratch[:4]); err != nil {
			return ioError("write snapshot entry", err)
		}
		if _, err := w.Write(e.Value); err != nil {
			return ioError("write snapshot entry", err)
		}

		var expiresMs uint64
		if !e.ExpiresAt.IsZero() {
			expiresMs = uint64(e.ExpiresAt.UnixMilli())
		}
		binary.LittleEndian.PutUint64(scratch[:8], expiresMs)
		if _, err := w.Write(scratch[:8]); err != nil {
			return ioError("write snapshot entry", err)
		}
	}
	return nil
}

// LoadSnapshot reads a snapshot file. Entries that expired before load
// time are dropped.
func LoadSnapshot(path string) ([]SnapshotEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioError("open snapshot", err)
	}
	defer f.Close()

	return readSnapshotFrom(bufio.NewReader(f))
}

func readSnapshotFrom(r io.Reader) ([]SnapshotEntry, error) {
	var hdr [17]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, ioError("read snapshot header", err)
	}
	if [4]byte(hdr[0:4]) != snapshotMagic {
		return nil, fmt.Errorf("not a snapshot file: bad magic %x", hdr[0:4])
	}
	if hdr[4] != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", hdr[4])
	}
	count := binary.LittleEndian.Uint32(hdr[13:17])

	now := time.Now()
	entries := make([]SnapshotEntry, 0, count)
	var scratch [8]byte

	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(r, scratch[:4]); err != nil {
			return nil, ioError("read snapshot entry", err)
		}
		key := make([]byte, binary.LittleEndian.Uint32(scratch[:4]))
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, ioError("read snapshot entry", err)
		}

		if _, err := io.ReadFull(r, scratch[:4]); err != nil {
			return nil, ioError("read snapshot entry", err)
		}
		value := make([]byte, binary.LittleEndian.Uint32(scratch[:4]))
		if _, err := io.ReadFull(r, value); err != nil {
			return nil, ioError("read snapshot entry", err)
		}

		if _, err := io.ReadFull(r, scratch[:8]); err != nil {
			return nil, ioError("read snapshot entry", err)
		}
		expiresMs := binary.LittleEndian.Uint64(scratch[:8])

		entry := SnapshotEntry{Key: key, Value: value}
		if expiresMs > 0 {
			entry.ExpiresAt = time.UnixMilli(int64(expiresMs))
			if !entry.ExpiresAt.After(now) {
				continue
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// RestoreSnapshot loads path into the store. A missing file is not an
// error; there is simply nothing to restore.
func RestoreSnapshot(path string, store *Store) (int, error) {
	entries, err := LoadSnapshot(path)
	if err != nil {
		if os.IsNotExist(underlying(err)) {
			return 0, nil
		}
		return 0, err
	}

	for _, e := range entries {
		store.SetAbsolute(e.Key, e.Value, e.ExpiresAt)
	}
	return len(entries), nil
}

func underlying(err error) error {
	if e, ok := err.(*Error); ok && e.Err != nil {
		return e.Err
	}
	return err
}
