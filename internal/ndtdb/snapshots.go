package ndtdb

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/ndtgrid/internal/ndt/gridmap"
	"github.com/google/uuid"
)

// ErrSnapshotNotFound is returned when no snapshot matches a lookup.
var ErrSnapshotNotFound = errors.New("ndtdb: snapshot not found")

const snapshotColumns = `snapshot_id, map_name, taken_unix_nanos, resolution, bundle_count, byte_size, snapshot_reason`

// InsertSnapshot stores r. If r.SnapshotID is empty a new UUID is
// generated; a zero TakenUnixNanos is set to the current time.
func (db *DB) InsertSnapshot(r *gridmap.SnapshotRecord) error {
	if r == nil {
		return errors.New("ndtdb: nil snapshot record")
	}
	if r.SnapshotID == "" {
		r.SnapshotID = uuid.New().String()
	}
	if r.TakenUnixNanos == 0 {
		r.TakenUnixNanos = time.Now().UnixNano()
	}

	stmt := `INSERT INTO ndt_map_snapshots (` + snapshotColumns + `, map_blob)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.Exec(stmt,
		r.SnapshotID,
		r.MapName,
		r.TakenUnixNanos,
		r.Resolution,
		r.BundleCount,
		r.ByteSize,
		nullString(r.Reason),
		r.Blob,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	diagf("inserted snapshot %s map=%s bundles=%d blob=%d bytes", r.SnapshotID, r.MapName, r.BundleCount, len(r.Blob))
	return nil
}

// GetSnapshot returns the snapshot with the given id, blob included.
func (db *DB) GetSnapshot(snapshotID string) (*gridmap.SnapshotRecord, error) {
	row := db.QueryRow(`SELECT `+snapshotColumns+`, map_blob FROM ndt_map_snapshots WHERE snapshot_id = ?`, snapshotID)
	r, err := scanSnapshot(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, snapshotID)
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return r, nil
}

// LatestSnapshot returns the most recently taken snapshot of mapName,
// blob included.
func (db *DB) LatestSnapshot(mapName string) (*gridmap.SnapshotRecord, error) {
	row := db.QueryRow(`SELECT `+snapshotColumns+`, map_blob FROM ndt_map_snapshots
		WHERE map_name = ? ORDER BY taken_unix_nanos DESC, rowid DESC LIMIT 1`, mapName)
	r, err := scanSnapshot(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: map %s", ErrSnapshotNotFound, mapName)
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return r, nil
}

// ListSnapshots returns the snapshots of mapName, newest first. Blobs are
// not loaded. An empty mapName lists every map.
func (db *DB) ListSnapshots(mapName string) ([]*gridmap.SnapshotRecord, error) {
	query := `SELECT ` + snapshotColumns + ` FROM ndt_map_snapshots`
	var args []interface{}
	if mapName != "" {
		query += ` WHERE map_name = ?`
		args = append(args, mapName)
	}
	query += ` ORDER BY taken_unix_nanos DESC, rowid DESC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []*gridmap.SnapshotRecord
	for rows.Next() {
		r, err := scanSnapshot(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteSnapshot removes the snapshot with the given id.
func (db *DB) DeleteSnapshot(snapshotID string) error {
	res, err := db.Exec(`DELETE FROM ndt_map_snapshots WHERE snapshot_id = ?`, snapshotID)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, snapshotID)
	}
	return nil
}

// SaveGridmap persists m under mapName.
func (db *DB) SaveGridmap(m *gridmap.Gridmap, mapName, reason string) (*gridmap.SnapshotRecord, error) {
	return m.Persist(db, mapName, reason)
}

// LoadGridmap restores the snapshot with the given id.
func (db *DB) LoadGridmap(snapshotID string) (*gridmap.Gridmap, error) {
	r, err := db.GetSnapshot(snapshotID)
	if err != nil {
		return nil, err
	}
	m, err := gridmap.FromRecord(r)
	if err != nil {
		opsf("snapshot %s could not be restored: %v", snapshotID, err)
		return nil, err
	}
	return m, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner, withBlob bool) (*gridmap.SnapshotRecord, error) {
	var r gridmap.SnapshotRecord
	var reason sql.NullString
	dest := []interface{}{
		&r.SnapshotID,
		&r.MapName,
		&r.TakenUnixNanos,
		&r.Resolution,
		&r.BundleCount,
		&r.ByteSize,
		&reason,
	}
	if withBlob {
		dest = append(dest, &r.Blob)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if reason.Valid {
		r.Reason = reason.String
	}
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
