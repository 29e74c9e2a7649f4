// Command ndtmap builds an NDT occupancy map from a point cloud file,
// optionally densifies it, persists a snapshot and renders debug output.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/ndtgrid/internal/config"
	"github.com/banshee-data/ndtgrid/internal/ndt/gridmap"
	"github.com/banshee-data/ndtgrid/internal/ndt/monitor"
	"github.com/banshee-data/ndtgrid/internal/ndt/occupancy"
	"github.com/banshee-data/ndtgrid/internal/ndt/pointio"
	"github.com/banshee-data/ndtgrid/internal/ndtdb"
	"github.com/banshee-data/ndtgrid/internal/version"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	configPath   = flag.String("config", "", "Map config file (.json, .yaml); defaults apply when empty")
	pointsPath   = flag.String("points", "", "Comma separated point clouds to insert (.pcd, .asc, .xyz, .txt, .csv)")
	sensorOrigin = flag.String("sensor-origin", "", "Sensor position \"x,y,z\" for scan insertion; empty inserts occupied points only")
	densify      = flag.Bool("densify", false, "Pre-allocate the neighbourhood of supported bundles")
	dbPath       = flag.String("db", "", "SQLite database for map snapshots; empty disables persistence")
	mapName      = flag.String("name", "default", "Map name used for snapshots")
	resume       = flag.Bool("resume", false, "Start from the latest snapshot of -name in -db")
	plotPath     = flag.String("plot", "", "Write a density slice image to this path")
	plotZ        = flag.Float64("plot-z", 0, "Map-frame height of the density slice")
	htmlPath     = flag.String("html", "", "Write an occupancy scatter page to this path")
	exportPath   = flag.String("export", "", "Write bundle centres with occupancy above 0.5 to this point file")
	verbose      = flag.Bool("verbose", false, "Enable diag and trace logging")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

// options collects the parsed flags for run.
type options struct {
	ConfigPath   string
	PointsPath   string
	SensorOrigin string
	Densify      bool
	DBPath       string
	MapName      string
	Resume       bool
	PlotPath     string
	PlotZ        float64
	HTMLPath     string
	ExportPath   string
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	gridmap.SetLogWriters(os.Stderr, nil, nil)
	ndtdb.SetLogWriters(os.Stderr, nil)
	if *verbose {
		gridmap.SetLogWriters(os.Stderr, os.Stderr, os.Stderr)
		ndtdb.SetLogWriters(os.Stderr, os.Stderr)
	}

	opts := options{
		ConfigPath:   *configPath,
		PointsPath:   *pointsPath,
		SensorOrigin: *sensorOrigin,
		Densify:      *densify,
		DBPath:       *dbPath,
		MapName:      *mapName,
		Resume:       *resume,
		PlotPath:     *plotPath,
		PlotZ:        *plotZ,
		HTMLPath:     *htmlPath,
		ExportPath:   *exportPath,
	}
	if err := run(opts, os.Stdout); err != nil {
		log.Fatalf("ndtmap: %v", err)
	}
}

func run(opts options, out io.Writer) error {
	cfg := config.DefaultGridConfig()
	if opts.ConfigPath != "" {
		var err error
		if cfg, err = config.LoadGridConfig(opts.ConfigPath); err != nil {
			return err
		}
	}
	model, err := cfg.InverseModel()
	if err != nil {
		return err
	}
	if opts.Resume && opts.DBPath == "" {
		return errors.New("-resume requires -db")
	}

	var db *ndtdb.DB
	if opts.DBPath != "" {
		if db, err = ndtdb.Open(opts.DBPath); err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()
	}

	var m *gridmap.Gridmap
	if opts.Resume {
		m, err = gridmap.LoadLatest(db, opts.MapName)
		switch {
		case errors.Is(err, ndtdb.ErrSnapshotNotFound):
			log.Printf("no snapshot of map %q yet, starting empty", opts.MapName)
		case err != nil:
			return fmt.Errorf("resume map %q: %w", opts.MapName, err)
		default:
			if err := checkResumeGeometry(m, cfg, opts.ConfigPath); err != nil {
				return err
			}
			if err := m.SetMaxRayLength(cfg.GetMaxRayLength()); err != nil {
				return err
			}
			fmt.Fprintf(out, "resumed map %q with %d bundles\n", opts.MapName, m.Len())
		}
	}
	if m == nil {
		if m, err = cfg.NewGridmap(); err != nil {
			return err
		}
	}

	if opts.PointsPath != "" {
		if err := insertFiles(m, cfg, opts, out); err != nil {
			return err
		}
	}

	if opts.Densify {
		added := m.Densify(cfg.DensifyOptions())
		fmt.Fprintf(out, "densify allocated %d bundles\n", added)
	}

	printSummary(out, m)

	if db != nil {
		rec, err := db.SaveGridmap(m, opts.MapName, "ndtmap")
		if err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		fmt.Fprintf(out, "saved snapshot %s (%d bytes)\n", rec.SnapshotID, len(rec.Blob))
	}

	if m.Empty() {
		if opts.PlotPath != "" || opts.HTMLPath != "" || opts.ExportPath != "" {
			log.Printf("map is empty, skipping plot and export output")
		}
		return nil
	}

	if opts.PlotPath != "" {
		if err := monitor.PlotDensitySlice(m, opts.PlotZ, opts.PlotPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote density slice %s\n", opts.PlotPath)
	}
	if opts.HTMLPath != "" {
		if err := writeScatter(m, model, opts.HTMLPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote occupancy scatter %s\n", opts.HTMLPath)
	}
	if opts.ExportPath != "" {
		n, err := exportOccupied(m, model, opts.ExportPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "exported %d occupied bundles to %s\n", n, opts.ExportPath)
	}
	return nil
}

// insertFiles reads every file of opts.PointsPath and inserts them in
// order, as scans when a sensor origin is given.
func insertFiles(m *gridmap.Gridmap, cfg *config.GridConfig, opts options, out io.Writer) error {
	var origin r3.Vec
	if opts.SensorOrigin != "" {
		var err error
		if origin, err = parseVec(opts.SensorOrigin); err != nil {
			return fmt.Errorf("invalid -sensor-origin: %w", err)
		}
	}
	paths := strings.Split(opts.PointsPath, ",")
	sets, err := pointio.ReadFiles(context.Background(), paths)
	if err != nil {
		return fmt.Errorf("read points: %w", err)
	}
	for i, points := range sets {
		var n int
		if opts.SensorOrigin != "" {
			n = m.InsertScan(origin, points, cfg.GetFreeWeight())
		} else {
			n = m.InsertPoints(points, gridmap.Identity())
		}
		fmt.Fprintf(out, "inserted %d of %d points from %s\n", n, len(points), paths[i])
	}
	return nil
}

// checkResumeGeometry rejects a resumed map whose resolution or origin
// disagrees with an explicitly given config. Without a config the snapshot
// geometry is used as is.
func checkResumeGeometry(m *gridmap.Gridmap, cfg *config.GridConfig, configPath string) error {
	if configPath == "" {
		log.Printf("resuming with snapshot geometry: resolution %g", m.Resolution())
		return nil
	}
	if m.Resolution() != cfg.GetResolution() {
		return fmt.Errorf("snapshot resolution %g does not match config resolution %g", m.Resolution(), cfg.GetResolution())
	}
	if !m.InitialOrigin().ApproxEqual(cfg.GetOrigin(), 1e-9) {
		return fmt.Errorf("snapshot origin %+v does not match config origin %+v", m.InitialOrigin(), cfg.GetOrigin())
	}
	return nil
}

func printSummary(out io.Writer, m *gridmap.Gridmap) {
	fmt.Fprintf(out, "bundles: %d\n", m.Len())
	if !m.Empty() {
		lo, hi := m.Min(), m.Max()
		fmt.Fprintf(out, "extent: (%.3f, %.3f, %.3f) -> (%.3f, %.3f, %.3f)\n", lo.X, lo.Y, lo.Z, hi.X, hi.Y, hi.Z)
		fmt.Fprintf(out, "size: %.3f x %.3f x %.3f m\n", m.Width(), m.Height(), m.Depth())
	}
	fmt.Fprintf(out, "memory: %d bytes\n", m.ByteSize())
}

func writeScatter(m *gridmap.Gridmap, model *occupancy.InverseModel, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	if err := monitor.WriteBundleScatter(m, model, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// exportOccupied writes the centres of bundles more likely occupied than
// not. ASC output carries the occupancy as a fourth column.
func exportOccupied(m *gridmap.Gridmap, model *occupancy.InverseModel, path string) (int, error) {
	all, err := monitor.CollectOccupancy(m, model)
	if err != nil {
		return 0, err
	}
	var points []r3.Vec
	var occ []float64
	for _, b := range all {
		if b.Occupancy > 0.5 {
			points = append(points, r3.Vec{X: b.X, Y: b.Y, Z: b.Z})
			occ = append(occ, b.Occupancy)
		}
	}

	if strings.ToLower(filepath.Ext(path)) != ".asc" {
		return len(points), pointio.WriteFile(path, points)
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return 0, err
	}
	if err := pointio.WriteASC(f, points, " Occupancy", occ); err != nil {
		f.Close()
		return 0, err
	}
	return len(points), f.Close()
}

// parseVec parses "x,y,z".
func parseVec(s string) (r3.Vec, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return r3.Vec{}, fmt.Errorf("expected x,y,z, got %q", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return r3.Vec{}, fmt.Errorf("component %d: %w", i+1, err)
		}
		v[i] = f
	}
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, nil
}
