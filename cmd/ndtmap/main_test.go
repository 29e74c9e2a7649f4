package main

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/ndtgrid/internal/ndt/pointio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestFlagDefaults(t *testing.T) {
	if *mapName != "default" {
		t.Errorf("expected -name default %q, got %q", "default", *mapName)
	}
	if *densify || *resume || *verbose {
		t.Error("boolean flags should default to false")
	}
	if *dbPath != "" || *sensorOrigin != "" {
		t.Error("-db and -sensor-origin should default to empty")
	}
}

func TestParseVec(t *testing.T) {
	v, err := parseVec("1.5, -2,3e-1")
	require.NoError(t, err)
	assert.Equal(t, r3.Vec{X: 1.5, Y: -2, Z: 0.3}, v)

	for _, bad := range []string{"", "1,2", "1,2,3,4", "1,x,3"} {
		_, err := parseVec(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

// wallPoints samples a flat wall at x=4 seen from the origin.
func wallPoints(n int) []r3.Vec {
	rng := rand.New(rand.NewSource(11))
	pts := make([]r3.Vec, n)
	for i := range pts {
		pts[i] = r3.Vec{X: 4 + 0.02*rng.NormFloat64(), Y: rng.Float64()*2 - 1, Z: rng.Float64()}
	}
	return pts
}

func TestRun_BuildPersistResume(t *testing.T) {
	dir := t.TempDir()
	points := filepath.Join(dir, "wall.pcd")
	require.NoError(t, pointio.WriteFile(points, wallPoints(400)))

	opts := options{
		PointsPath:   points,
		SensorOrigin: "0,0,0.5",
		Densify:      true,
		DBPath:       filepath.Join(dir, "maps.db"),
		MapName:      "wall",
		PlotPath:     filepath.Join(dir, "out", "slice.png"),
		PlotZ:        0.5,
		HTMLPath:     filepath.Join(dir, "out", "occupancy.html"),
		ExportPath:   filepath.Join(dir, "out", "occupied.asc"),
	}
	var out bytes.Buffer
	require.NoError(t, run(opts, &out))
	text := out.String()
	assert.Contains(t, text, "inserted 400 of 400 points")
	assert.Contains(t, text, "saved snapshot")
	assert.Contains(t, text, "exported")

	for _, p := range []string{opts.PlotPath, opts.HTMLPath, opts.ExportPath} {
		info, err := os.Stat(p)
		require.NoError(t, err, p)
		assert.Greater(t, info.Size(), int64(0), p)
	}

	exported, err := pointio.ReadFile(opts.ExportPath)
	require.NoError(t, err)
	require.NotEmpty(t, exported)
	for _, p := range exported {
		assert.Greater(t, p.X, 3.0, "occupied bundle away from the wall: %v", p)
	}

	resumed := options{DBPath: opts.DBPath, MapName: "wall", Resume: true}
	out.Reset()
	require.NoError(t, run(resumed, &out))
	assert.Contains(t, out.String(), `resumed map "wall"`)
}

func TestRun_ResumeWithoutSnapshotStartsEmpty(t *testing.T) {
	opts := options{DBPath: filepath.Join(t.TempDir(), "maps.db"), MapName: "fresh", Resume: true}
	var out bytes.Buffer
	require.NoError(t, run(opts, &out))
	assert.Contains(t, out.String(), "bundles: 0")
}

func TestRun_ResumeRejectsConflictingConfig(t *testing.T) {
	dir := t.TempDir()
	points := filepath.Join(dir, "wall.pcd")
	require.NoError(t, pointio.WriteFile(points, wallPoints(50)))
	db := filepath.Join(dir, "maps.db")

	var out bytes.Buffer
	require.NoError(t, run(options{PointsPath: points, DBPath: db, MapName: "wall"}, &out))

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"resolution", `{"resolution": 0.5}`, "resolution"},
		{"origin", `{"origin": {"x": 3, "y": 0, "z": 0, "roll": 0, "pitch": 0, "yaw": 0}}`, "origin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := filepath.Join(t.TempDir(), "map.json")
			require.NoError(t, os.WriteFile(cfg, []byte(tt.body), 0644))
			err := run(options{ConfigPath: cfg, DBPath: db, MapName: "wall", Resume: true}, &bytes.Buffer{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	cfg := filepath.Join(dir, "same.json")
	require.NoError(t, os.WriteFile(cfg, []byte(`{"resolution": 1.0, "max_ray_length": 50}`), 0644))
	out.Reset()
	require.NoError(t, run(options{ConfigPath: cfg, DBPath: db, MapName: "wall", Resume: true}, &out))
	assert.Contains(t, out.String(), `resumed map "wall"`)
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	points := filepath.Join(dir, "pts.asc")
	require.NoError(t, pointio.WriteFile(points, []r3.Vec{{X: 1, Y: 1, Z: 1}}))
	badConfig := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badConfig, []byte(`{"prob_free": 2}`), 0644))

	tests := []struct {
		name    string
		opts    options
		wantErr string
	}{
		{"resume without db", options{Resume: true}, "-resume requires -db"},
		{"missing points", options{PointsPath: filepath.Join(dir, "none.asc")}, "read points"},
		{"bad sensor origin", options{PointsPath: points, SensorOrigin: "1,2"}, "-sensor-origin"},
		{"invalid config", options{ConfigPath: badConfig}, "prob_free"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(tt.opts, &bytes.Buffer{})
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), "error %q lacks %q", err, tt.wantErr)
		})
	}
}

func TestRun_MultipleFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.xyz")
	b := filepath.Join(dir, "b.pcd")
	require.NoError(t, pointio.WriteFile(a, []r3.Vec{{X: 0.1, Y: 0.1, Z: 0.1}, {X: 0.2, Y: 0.1, Z: 0.1}}))
	require.NoError(t, pointio.WriteFile(b, []r3.Vec{{X: 5.1, Y: 0.1, Z: 0.1}}))

	var out bytes.Buffer
	require.NoError(t, run(options{PointsPath: a + "," + b}, &out))
	assert.Contains(t, out.String(), "inserted 2 of 2 points from "+a)
	assert.Contains(t, out.String(), "inserted 1 of 1 points from "+b)
	assert.Contains(t, out.String(), "bundles: 2")
}
