// Package monitor renders gridmaps for inspection: PNG density slices
// through gonum/plot and interactive bundle scatters through go-echarts.
package monitor

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/banshee-data/ndtgrid/internal/ndt/gridmap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ErrEmptyMap is returned when there is nothing to render.
var ErrEmptyMap = errors.New("monitor: map has no allocated bundles")

// DensitySlice holds Gridmap.Sample evaluated at the centre of every fine
// voxel of one horizontal layer, padded by one voxel on each side of the
// allocated x/y extent. Coordinates are in the map frame. It implements
// plotter.GridXYZ.
type DensitySlice struct {
	Layer int

	xs, ys []float64
	values *mat.Dense // rows follow y, columns follow x
}

// NewDensitySlice samples m on the fine layer containing map-frame height z.
func NewDensitySlice(m *gridmap.Gridmap, z float64) (*DensitySlice, error) {
	if m.Empty() {
		return nil, ErrEmptyMap
	}
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return nil, fmt.Errorf("monitor: slice height must be finite, got %v", z)
	}
	res := m.BundleResolution()
	lo, hi := m.MinBundleIndex(), m.MaxBundleIndex()
	x0, x1 := lo[0]-1, hi[0]+1
	y0, y1 := lo[1]-1, hi[1]+1

	s := &DensitySlice{
		Layer:  int(math.Floor(z / res)),
		xs:     make([]float64, x1-x0+1),
		ys:     make([]float64, y1-y0+1),
		values: mat.NewDense(y1-y0+1, x1-x0+1, nil),
	}
	for c := range s.xs {
		s.xs[c] = (float64(x0+c) + 0.5) * res
	}
	for r := range s.ys {
		s.ys[r] = (float64(y0+r) + 0.5) * res
	}
	for r := range s.ys {
		for c := range s.xs {
			bi := gridmap.Index{x0 + c, y0 + r, s.Layer}
			if m.Bundle(bi) == nil {
				continue
			}
			s.values.Set(r, c, m.Sample(m.BundleCenter(bi)))
		}
	}
	return s, nil
}

// Dims returns the number of columns (x) and rows (y).
func (s *DensitySlice) Dims() (c, r int) { return len(s.xs), len(s.ys) }

// Z returns the density at column c, row r.
func (s *DensitySlice) Z(c, r int) float64 { return s.values.At(r, c) }

// X returns the map-frame x of column c.
func (s *DensitySlice) X(c int) float64 { return s.xs[c] }

// Y returns the map-frame y of row r.
func (s *DensitySlice) Y(r int) float64 { return s.ys[r] }

// Peak returns the map-frame position and value of the densest voxel.
func (s *DensitySlice) Peak() (x, y, v float64) {
	v = math.Inf(-1)
	for r := range s.ys {
		for c := range s.xs {
			if z := s.values.At(r, c); z > v {
				x, y, v = s.xs[c], s.ys[r], z
			}
		}
	}
	return x, y, v
}

// PlotDensitySlice renders the density of m on the layer at map-frame
// height z as a heatmap image. The format follows the extension of out.
func PlotDensitySlice(m *gridmap.Gridmap, z float64, out string) error {
	s, err := NewDensitySlice(m, z)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("NDT density, layer %d (res %.3gm)", s.Layer, m.BundleResolution())
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	hm := plotter.NewHeatMap(s, palette.Heat(16, 1))
	if hm.Max <= hm.Min {
		hm.Max = hm.Min + 1
	}
	p.Add(hm)

	if dir := filepath.Dir(out); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create plot dir: %w", err)
		}
	}
	if err := p.Save(8*vg.Inch, 8*vg.Inch, out); err != nil {
		return fmt.Errorf("save density plot: %w", err)
	}
	return nil
}
