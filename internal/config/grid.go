package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/ndtgrid/internal/ndt/gridmap"
	"github.com/banshee-data/ndtgrid/internal/ndt/neighborhood"
	"github.com/banshee-data/ndtgrid/internal/ndt/occupancy"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical map defaults file.
const DefaultConfigPath = "config/ndtmap.defaults.json"

// GridConfig represents the root configuration of an NDT map build.
// Unset fields fall back to the defaults returned by the Get* methods.
type GridConfig struct {
	// Map geometry
	Resolution *float64      `json:"resolution,omitempty" yaml:"resolution,omitempty"`
	Origin     *OriginConfig `json:"origin,omitempty" yaml:"origin,omitempty"`

	// Inverse sensor model
	ProbPrior    *float64 `json:"prob_prior,omitempty" yaml:"prob_prior,omitempty"`
	ProbFree     *float64 `json:"prob_free,omitempty" yaml:"prob_free,omitempty"`
	ProbOccupied *float64 `json:"prob_occupied,omitempty" yaml:"prob_occupied,omitempty"`

	// Scan insertion
	FreeWeight   *float64 `json:"free_weight,omitempty" yaml:"free_weight,omitempty"`
	MaxRayLength *float64 `json:"max_ray_length,omitempty" yaml:"max_ray_length,omitempty"`

	// Densification
	DensifyMinSamples  *int `json:"densify_min_samples,omitempty" yaml:"densify_min_samples,omitempty"`
	NeighborhoodRadius *int `json:"neighborhood_radius,omitempty" yaml:"neighborhood_radius,omitempty"`
}

// OriginConfig places the map frame in the world. Angles are radians.
type OriginConfig struct {
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
	Z     float64 `json:"z" yaml:"z"`
	Roll  float64 `json:"roll" yaml:"roll"`
	Pitch float64 `json:"pitch" yaml:"pitch"`
	Yaw   float64 `json:"yaw" yaml:"yaw"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }

const (
	defaultResolution         = 1.0
	defaultProbPrior          = 0.5
	defaultProbFree           = 0.45
	defaultProbOccupied       = 0.65
	defaultFreeWeight         = 1.0
	defaultNeighborhoodRadius = 1
)

// EmptyGridConfig returns a GridConfig with all fields set to nil.
// Use LoadGridConfig to load actual values from the defaults file.
func EmptyGridConfig() *GridConfig {
	return &GridConfig{}
}

// DefaultGridConfig returns a GridConfig with every field set to its
// default.
func DefaultGridConfig() *GridConfig {
	return &GridConfig{
		Resolution:         ptrFloat64(defaultResolution),
		Origin:             &OriginConfig{},
		ProbPrior:          ptrFloat64(defaultProbPrior),
		ProbFree:           ptrFloat64(defaultProbFree),
		ProbOccupied:       ptrFloat64(defaultProbOccupied),
		FreeWeight:         ptrFloat64(defaultFreeWeight),
		MaxRayLength:       ptrFloat64(gridmap.DefaultMaxRayLength),
		DensifyMinSamples:  ptrInt(gridmap.DefaultDensifyMinSamples),
		NeighborhoodRadius: ptrInt(defaultNeighborhoodRadius),
	}
}

// LoadGridConfig loads a GridConfig from a JSON or YAML file.
// The file is validated to ensure it has a .json, .yaml or .yml extension
// and is under the max file size.
// Fields omitted from the file retain their default values, so
// partial configs are safe.
func LoadGridConfig(path string) (*GridConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyGridConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *GridConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from internal/ndt/<pkg>/
	}
	for _, path := range candidates {
		if cfg, err := LoadGridConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *GridConfig) Validate() error {
	if c.Resolution != nil {
		if !(*c.Resolution > 0) || math.IsInf(*c.Resolution, 0) {
			return fmt.Errorf("resolution must be positive and finite, got %f", *c.Resolution)
		}
	}

	if c.Origin != nil {
		o := c.Origin
		for _, v := range []float64{o.X, o.Y, o.Z, o.Roll, o.Pitch, o.Yaw} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("origin values must be finite, got %+v", *o)
			}
		}
	}

	probs := []struct {
		name string
		v    *float64
	}{
		{"prob_prior", c.ProbPrior},
		{"prob_free", c.ProbFree},
		{"prob_occupied", c.ProbOccupied},
	}
	for _, p := range probs {
		if p.v != nil && !(*p.v > 0 && *p.v < 1) {
			return fmt.Errorf("%s must be in (0, 1), got %f", p.name, *p.v)
		}
	}

	if c.FreeWeight != nil && !(*c.FreeWeight >= 0) {
		return fmt.Errorf("free_weight must be non-negative, got %f", *c.FreeWeight)
	}

	if c.MaxRayLength != nil && (!(*c.MaxRayLength > 0) || math.IsInf(*c.MaxRayLength, 0)) {
		return fmt.Errorf("max_ray_length must be positive and finite, got %f", *c.MaxRayLength)
	}

	if c.DensifyMinSamples != nil && *c.DensifyMinSamples < 1 {
		return fmt.Errorf("densify_min_samples must be at least 1, got %d", *c.DensifyMinSamples)
	}

	if c.NeighborhoodRadius != nil && *c.NeighborhoodRadius < 0 {
		return fmt.Errorf("neighborhood_radius must be non-negative, got %d", *c.NeighborhoodRadius)
	}

	return nil
}

// GetResolution returns the resolution value or the default.
func (c *GridConfig) GetResolution() float64 {
	if c.Resolution == nil {
		return defaultResolution
	}
	return *c.Resolution
}

// GetOrigin returns the map-to-world transform, identity by default.
func (c *GridConfig) GetOrigin() gridmap.Transform {
	if c.Origin == nil {
		return gridmap.Identity()
	}
	o := c.Origin
	return gridmap.NewTransform(r3.Vec{X: o.X, Y: o.Y, Z: o.Z}, o.Roll, o.Pitch, o.Yaw)
}

// GetProbPrior returns the prob_prior value or the default.
func (c *GridConfig) GetProbPrior() float64 {
	if c.ProbPrior == nil {
		return defaultProbPrior
	}
	return *c.ProbPrior
}

// GetProbFree returns the prob_free value or the default.
func (c *GridConfig) GetProbFree() float64 {
	if c.ProbFree == nil {
		return defaultProbFree
	}
	return *c.ProbFree
}

// GetProbOccupied returns the prob_occupied value or the default.
func (c *GridConfig) GetProbOccupied() float64 {
	if c.ProbOccupied == nil {
		return defaultProbOccupied
	}
	return *c.ProbOccupied
}

// GetFreeWeight returns the free_weight value or the default.
func (c *GridConfig) GetFreeWeight() float64 {
	if c.FreeWeight == nil {
		return defaultFreeWeight
	}
	return *c.FreeWeight
}

// GetMaxRayLength returns the max_ray_length value or the default.
func (c *GridConfig) GetMaxRayLength() float64 {
	if c.MaxRayLength == nil {
		return gridmap.DefaultMaxRayLength
	}
	return *c.MaxRayLength
}

// GetDensifyMinSamples returns the densify_min_samples value or the default.
func (c *GridConfig) GetDensifyMinSamples() int {
	if c.DensifyMinSamples == nil {
		return gridmap.DefaultDensifyMinSamples
	}
	return *c.DensifyMinSamples
}

// GetNeighborhoodRadius returns the neighborhood_radius value or the default.
func (c *GridConfig) GetNeighborhoodRadius() int {
	if c.NeighborhoodRadius == nil {
		return defaultNeighborhoodRadius
	}
	return *c.NeighborhoodRadius
}

// InverseModel builds the inverse sensor model from the probability fields.
func (c *GridConfig) InverseModel() (*occupancy.InverseModel, error) {
	return occupancy.NewInverseModel(c.GetProbPrior(), c.GetProbFree(), c.GetProbOccupied())
}

// DensifyOptions returns the densification settings.
func (c *GridConfig) DensifyOptions() gridmap.DensifyOptions {
	return gridmap.DensifyOptions{
		MinSamples:   uint64(c.GetDensifyMinSamples()),
		Neighborhood: neighborhood.NewGrid(3, c.GetNeighborhoodRadius()),
	}
}

// NewGridmap creates an empty map with the configured origin, resolution
// and ray length limit.
func (c *GridConfig) NewGridmap() (*gridmap.Gridmap, error) {
	m, err := gridmap.New(c.GetOrigin(), c.GetResolution())
	if err != nil {
		return nil, err
	}
	if err := m.SetMaxRayLength(c.GetMaxRayLength()); err != nil {
		return nil, err
	}
	return m, nil
}
