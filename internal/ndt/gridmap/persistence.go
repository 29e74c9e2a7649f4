package gridmap

import (
	"errors"
	"fmt"
	"time"
)

// SnapshotRecord matches the ndt_map_snapshots table structure.
type SnapshotRecord struct {
	SnapshotID     string
	MapName        string
	TakenUnixNanos int64
	Resolution     float64
	BundleCount    int
	ByteSize       int64
	Reason         string
	Blob           []byte
}

// SnapshotStore persists snapshot records. Implemented by ndtdb.DB.
type SnapshotStore interface {
	InsertSnapshot(r *SnapshotRecord) error
}

// SnapshotSource looks up the most recent snapshot of a named map.
// Implemented by ndtdb.DB.
type SnapshotSource interface {
	LatestSnapshot(mapName string) (*SnapshotRecord, error)
}

// Persist encodes m and writes it as a new record named mapName via store.
// The returned record carries the identifier assigned by the store.
func (m *Gridmap) Persist(store SnapshotStore, mapName, reason string) (*SnapshotRecord, error) {
	if store == nil {
		return nil, errors.New("gridmap: nil snapshot store")
	}
	blob, err := EncodeSnapshot(m.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	rec := &SnapshotRecord{
		MapName:        mapName,
		TakenUnixNanos: time.Now().UnixNano(),
		Resolution:     m.resolution,
		BundleCount:    m.bundles.Len(),
		ByteSize:       int64(m.ByteSize()),
		Reason:         reason,
		Blob:           blob,
	}
	if err := store.InsertSnapshot(rec); err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	diagf("Persist: map=%s id=%s bundles=%d blob=%d bytes reason=%s",
		mapName, rec.SnapshotID, rec.BundleCount, len(blob), reason)
	return rec, nil
}

// FromRecord decodes and restores the map stored in r.
func FromRecord(r *SnapshotRecord) (*Gridmap, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil record", ErrCorruptSnapshot)
	}
	s, err := DecodeSnapshot(r.Blob)
	if err != nil {
		return nil, err
	}
	m, err := RestoreSnapshot(s)
	if err != nil {
		opsf("FromRecord: snapshot %s of map %s rejected: %v", r.SnapshotID, r.MapName, err)
		return nil, err
	}
	return m, nil
}

// LoadLatest restores the most recent snapshot of mapName from src.
func LoadLatest(src SnapshotSource, mapName string) (*Gridmap, error) {
	r, err := src.LatestSnapshot(mapName)
	if err != nil {
		return nil, err
	}
	return FromRecord(r)
}
