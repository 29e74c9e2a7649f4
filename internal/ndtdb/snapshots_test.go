package ndtdb

import (
	"path/filepath"
	"testing"

	"github.com/banshee-data/ndtgrid/internal/ndt/gridmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "ndt.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testMap(t *testing.T) *gridmap.Gridmap {
	t.Helper()
	m, err := gridmap.New(gridmap.Translate(r3.Vec{X: 2}), 0.5)
	require.NoError(t, err)
	m.InsertPoints([]r3.Vec{
		{X: 2.1, Y: 0.1, Z: 0.1},
		{X: 2.2, Y: 0.15, Z: 0.12},
		{X: 3.4, Y: -1.0, Z: 0.3},
	}, gridmap.Identity())
	return m
}

func TestOpen_MigratesSchema(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='ndt_map_snapshots'`).Scan(&name)
	require.NoError(t, err)

	// Re-running is a no-op.
	require.NoError(t, db.MigrateUp())
}

func TestMigrateDown(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	require.NoError(t, db.MigrateDown())

	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='ndt_map_snapshots'`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestInsertAndGetSnapshot(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	rec := &gridmap.SnapshotRecord{
		MapName:     "yard",
		Resolution:  0.5,
		BundleCount: 3,
		ByteSize:    1024,
		Blob:        []byte{1, 2, 3},
	}
	require.NoError(t, db.InsertSnapshot(rec))
	assert.Len(t, rec.SnapshotID, 36)
	assert.Positive(t, rec.TakenUnixNanos)

	got, err := db.GetSnapshot(rec.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = db.GetSnapshot("missing")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	assert.Error(t, db.InsertSnapshot(rec), "duplicate id")
	assert.Error(t, db.InsertSnapshot(nil))
}

func TestLatestAndListSnapshots(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	insert := func(name string, taken int64, reason string) string {
		r := &gridmap.SnapshotRecord{MapName: name, TakenUnixNanos: taken, Resolution: 1, Reason: reason, Blob: []byte{byte(taken)}}
		require.NoError(t, db.InsertSnapshot(r))
		return r.SnapshotID
	}
	insert("a", 10, "first")
	latestA := insert("a", 30, "third")
	insert("a", 20, "second")
	latestB := insert("b", 5, "")

	got, err := db.LatestSnapshot("a")
	require.NoError(t, err)
	assert.Equal(t, latestA, got.SnapshotID)
	assert.Equal(t, "third", got.Reason)
	assert.Equal(t, []byte{30}, got.Blob)

	got, err = db.LatestSnapshot("b")
	require.NoError(t, err)
	assert.Equal(t, latestB, got.SnapshotID)
	assert.Empty(t, got.Reason)

	_, err = db.LatestSnapshot("c")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	list, err := db.ListSnapshots("a")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int64{30, 20, 10}, []int64{list[0].TakenUnixNanos, list[1].TakenUnixNanos, list[2].TakenUnixNanos})
	for _, r := range list {
		assert.Nil(t, r.Blob)
	}

	all, err := db.ListSnapshots("")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	none, err := db.ListSnapshots("c")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteSnapshot(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	r := &gridmap.SnapshotRecord{MapName: "a", Resolution: 1, Blob: []byte{0}}
	require.NoError(t, db.InsertSnapshot(r))

	require.NoError(t, db.DeleteSnapshot(r.SnapshotID))
	_, err := db.GetSnapshot(r.SnapshotID)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
	assert.ErrorIs(t, db.DeleteSnapshot(r.SnapshotID), ErrSnapshotNotFound)
}

func TestSaveAndLoadGridmap(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	m := testMap(t)

	rec, err := db.SaveGridmap(m, "yard", "test")
	require.NoError(t, err)
	require.NotEmpty(t, rec.SnapshotID)

	loaded, err := db.LoadGridmap(rec.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, m.Len(), loaded.Len())
	assert.Equal(t, m.MinBundleIndex(), loaded.MinBundleIndex())
	assert.Equal(t, m.MaxBundleIndex(), loaded.MaxBundleIndex())
	p := r3.Vec{X: 2.15, Y: 0.12, Z: 0.11}
	assert.Equal(t, m.Sample(p), loaded.Sample(p))

	latest, err := gridmap.LoadLatest(db, "yard")
	require.NoError(t, err)
	assert.Equal(t, m.Len(), latest.Len())

	_, err = db.LoadGridmap("missing")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestLoadGridmap_CorruptBlob(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	r := &gridmap.SnapshotRecord{MapName: "a", Resolution: 1, Blob: []byte("garbage")}
	require.NoError(t, db.InsertSnapshot(r))
	_, err := db.LoadGridmap(r.SnapshotID)
	assert.Error(t, err)
}
