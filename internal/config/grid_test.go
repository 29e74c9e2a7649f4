package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/ndtgrid/internal/ndt/gridmap"
	"gonum.org/v1/gonum/spatial/r3"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestDefaultGridConfig(t *testing.T) {
	cfg := DefaultGridConfig()

	if cfg.Resolution == nil || *cfg.Resolution != 1.0 {
		t.Errorf("Expected Resolution 1.0, got %v", cfg.Resolution)
	}
	if cfg.DensifyMinSamples == nil || *cfg.DensifyMinSamples != 3 {
		t.Errorf("Expected DensifyMinSamples 3, got %v", cfg.DensifyMinSamples)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}

	empty := EmptyGridConfig()
	if empty.GetResolution() != cfg.GetResolution() {
		t.Errorf("GetResolution() = %f, want %f", empty.GetResolution(), cfg.GetResolution())
	}
	if empty.GetProbFree() != 0.45 || empty.GetProbOccupied() != 0.65 || empty.GetProbPrior() != 0.5 {
		t.Errorf("unexpected probability defaults: %f %f %f", empty.GetProbPrior(), empty.GetProbFree(), empty.GetProbOccupied())
	}
	if empty.GetNeighborhoodRadius() != 1 {
		t.Errorf("GetNeighborhoodRadius() = %d, want 1", empty.GetNeighborhoodRadius())
	}
	if empty.GetMaxRayLength() != gridmap.DefaultMaxRayLength {
		t.Errorf("GetMaxRayLength() = %f, want %f", empty.GetMaxRayLength(), gridmap.DefaultMaxRayLength)
	}
	if empty.GetFreeWeight() != 1.0 {
		t.Errorf("GetFreeWeight() = %f, want 1", empty.GetFreeWeight())
	}
	if !empty.GetOrigin().ApproxEqual(gridmap.Identity(), 0) {
		t.Errorf("GetOrigin() = %+v, want identity", empty.GetOrigin())
	}
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg, err := LoadGridConfig("../../config/ndtmap.defaults.json")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}
	def := DefaultGridConfig()
	if cfg.GetResolution() != def.GetResolution() {
		t.Errorf("resolution %f, want %f", cfg.GetResolution(), def.GetResolution())
	}
	if cfg.GetProbFree() != def.GetProbFree() {
		t.Errorf("prob_free %f, want %f", cfg.GetProbFree(), def.GetProbFree())
	}
	if cfg.GetDensifyMinSamples() != def.GetDensifyMinSamples() {
		t.Errorf("densify_min_samples %d, want %d", cfg.GetDensifyMinSamples(), def.GetDensifyMinSamples())
	}

	must := MustLoadDefaultConfig()
	if must.GetResolution() != cfg.GetResolution() {
		t.Errorf("MustLoadDefaultConfig resolution %f, want %f", must.GetResolution(), cfg.GetResolution())
	}
}

func TestLoadExampleConfigFile(t *testing.T) {
	cfg, err := LoadGridConfig("../../config/ndtmap.example.json")
	if err != nil {
		t.Fatalf("Failed to load example: %v", err)
	}
	if cfg.GetResolution() != 0.5 {
		t.Errorf("Expected 0.5, got %f", cfg.GetResolution())
	}
	if cfg.GetProbOccupied() != 0.7 {
		t.Errorf("Expected 0.7, got %f", cfg.GetProbOccupied())
	}
	// Omitted fields keep their defaults.
	if cfg.GetProbFree() != 0.45 {
		t.Errorf("Expected default prob_free 0.45, got %f", cfg.GetProbFree())
	}

	p := cfg.GetOrigin().Apply(r3.Vec{X: 1})
	if math.Abs(p.X-12.5) > 1e-9 || math.Abs(p.Y-(-2.0)) > 1e-9 {
		t.Errorf("origin applied to (1,0,0) = %v, want (12.5, -2, 0)", p)
	}
}

func TestLoadGridConfigPartial(t *testing.T) {
	path := writeConfig(t, "partial.json", `{"resolution": 0.25, "max_ray_length": 80}`)
	cfg, err := LoadGridConfig(path)
	if err != nil {
		t.Fatalf("Failed to load partial config: %v", err)
	}
	if cfg.GetResolution() != 0.25 {
		t.Errorf("Expected overridden resolution 0.25, got %f", cfg.GetResolution())
	}
	if cfg.GetDensifyMinSamples() != 3 {
		t.Errorf("Expected default densify_min_samples 3, got %d", cfg.GetDensifyMinSamples())
	}

	m, err := cfg.NewGridmap()
	if err != nil {
		t.Fatalf("NewGridmap: %v", err)
	}
	if m.Resolution() != 0.25 {
		t.Errorf("map resolution %f, want 0.25", m.Resolution())
	}
	if m.MaxRayLength() != 80 {
		t.Errorf("map max ray length %f, want 80", m.MaxRayLength())
	}
}

func TestLoadGridConfigYAML(t *testing.T) {
	body := `resolution: 0.4
origin:
  x: 2
  yaw: 0
prob_occupied: 0.75
densify_min_samples: 6
`
	for _, name := range []string{"map.yaml", "map.yml"} {
		cfg, err := LoadGridConfig(writeConfig(t, name, body))
		if err != nil {
			t.Fatalf("Failed to load %s: %v", name, err)
		}
		if cfg.GetResolution() != 0.4 {
			t.Errorf("%s: resolution %f, want 0.4", name, cfg.GetResolution())
		}
		if cfg.GetProbOccupied() != 0.75 {
			t.Errorf("%s: prob_occupied %f, want 0.75", name, cfg.GetProbOccupied())
		}
		if cfg.GetDensifyMinSamples() != 6 {
			t.Errorf("%s: densify_min_samples %d, want 6", name, cfg.GetDensifyMinSamples())
		}
		if cfg.GetProbFree() != 0.45 {
			t.Errorf("%s: prob_free %f, want default 0.45", name, cfg.GetProbFree())
		}
		if p := cfg.GetOrigin().Apply(r3.Vec{}); p.X != 2 {
			t.Errorf("%s: origin x %f, want 2", name, p.X)
		}
	}

	if _, err := LoadGridConfig(writeConfig(t, "bad.yml", "prob_free: 1.5\n")); err == nil {
		t.Error("expected validation error for prob_free 1.5")
	}
}

func TestLoadGridConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing", func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing.json") }},
		{"unsupported extension", func(t *testing.T) string { return "/some/path/config.toml" }},
		{"malformed yaml", func(t *testing.T) string { return writeConfig(t, "bad.yaml", "resolution: [1") }},
		{"path traversal without extension", func(t *testing.T) string { return "../../etc/passwd" }},
		{"malformed", func(t *testing.T) string { return writeConfig(t, "bad.json", `{"resolution": }`) }},
		{"invalid value", func(t *testing.T) string { return writeConfig(t, "neg.json", `{"resolution": -1}`) }},
		{"too large", func(t *testing.T) string {
			path := filepath.Join(t.TempDir(), "large.json")
			if err := os.WriteFile(path, make([]byte, 2*1024*1024), 0644); err != nil {
				t.Fatalf("Failed to write large file: %v", err)
			}
			return path
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadGridConfig(tt.path(t)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name    string
		cfg     GridConfig
		wantErr bool
	}{
		{"empty", GridConfig{}, false},
		{"zero resolution", GridConfig{Resolution: ptrFloat64(0)}, true},
		{"infinite resolution", GridConfig{Resolution: ptrFloat64(math.Inf(1))}, true},
		{"nan origin", GridConfig{Origin: &OriginConfig{Yaw: nan}}, true},
		{"prior at one", GridConfig{ProbPrior: ptrFloat64(1)}, true},
		{"free at zero", GridConfig{ProbFree: ptrFloat64(0)}, true},
		{"occupied nan", GridConfig{ProbOccupied: ptrFloat64(nan)}, true},
		{"negative free weight", GridConfig{FreeWeight: ptrFloat64(-0.1)}, true},
		{"zero ray length", GridConfig{MaxRayLength: ptrFloat64(0)}, true},
		{"infinite ray length", GridConfig{MaxRayLength: ptrFloat64(math.Inf(1))}, true},
		{"zero min samples", GridConfig{DensifyMinSamples: ptrInt(0)}, true},
		{"negative radius", GridConfig{NeighborhoodRadius: ptrInt(-1)}, true},
		{"radius zero", GridConfig{NeighborhoodRadius: ptrInt(0)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDerivedSettings(t *testing.T) {
	cfg := EmptyGridConfig()
	cfg.ProbOccupied = ptrFloat64(0.8)
	cfg.NeighborhoodRadius = ptrInt(2)
	cfg.DensifyMinSamples = ptrInt(4)

	model, err := cfg.InverseModel()
	if err != nil {
		t.Fatalf("InverseModel: %v", err)
	}
	if model.Occupied != 0.8 || model.Free != 0.45 || model.Prior != 0.5 {
		t.Errorf("unexpected model %+v", *model)
	}

	opts := cfg.DensifyOptions()
	if opts.MinSamples != 4 {
		t.Errorf("MinSamples = %d, want 4", opts.MinSamples)
	}
	if opts.Neighborhood.Len() != 125 {
		t.Errorf("neighborhood size = %d, want 125", opts.Neighborhood.Len())
	}
}
