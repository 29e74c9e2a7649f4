package monitor

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/banshee-data/ndtgrid/internal/ndt/gridmap"
	"github.com/banshee-data/ndtgrid/internal/ndt/occupancy"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

var viridis = []string{
	"#440154", "#482777", "#3e4989", "#31688e", "#26828e",
	"#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725",
}

// BundleOccupancy is one scatter point: the world centre of a bundle and
// its occupancy probability.
type BundleOccupancy struct {
	Index     gridmap.Index
	X, Y, Z   float64
	Occupancy float64
}

// CollectOccupancy evaluates model at the centre of every bundle of m,
// ordered by fine index.
func CollectOccupancy(m *gridmap.Gridmap, model *occupancy.InverseModel) ([]BundleOccupancy, error) {
	if model == nil {
		return nil, occupancy.ErrInverseModelNotSet
	}
	indices := m.BundleIndices()
	sort.Slice(indices, func(a, b int) bool {
		ia, ib := indices[a], indices[b]
		for k := 2; k >= 0; k-- {
			if ia[k] != ib[k] {
				return ia[k] < ib[k]
			}
		}
		return false
	})

	out := make([]BundleOccupancy, 0, len(indices))
	for _, bi := range indices {
		c := m.BundleCenter(bi)
		occ, err := m.Occupancy(c, model)
		if err != nil {
			return nil, fmt.Errorf("occupancy at %v: %w", bi, err)
		}
		out = append(out, BundleOccupancy{Index: bi, X: c.X, Y: c.Y, Z: c.Z, Occupancy: occ})
	}
	return out, nil
}

// WriteBundleScatter writes an HTML page with a top-down scatter of the
// bundle centres of m coloured by occupancy under model.
func WriteBundleScatter(m *gridmap.Gridmap, model *occupancy.InverseModel, w io.Writer) error {
	if m.Empty() {
		return ErrEmptyMap
	}
	pts, err := CollectOccupancy(m, model)
	if err != nil {
		return err
	}

	lo, hi := m.Min(), m.Max()
	pad := 0.5 * m.Resolution()
	xMin, xMax := math.Min(lo.X, hi.X)-pad, math.Max(lo.X, hi.X)+pad
	yMin, yMax := math.Min(lo.Y, hi.Y)-pad, math.Max(lo.Y, hi.Y)+pad

	data := make([]opts.ScatterData, 0, len(pts))
	for _, p := range pts {
		data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y, p.Occupancy}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "NDT occupancy", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "NDT bundle occupancy",
			Subtitle: fmt.Sprintf("bundles=%d res=%.3gm", len(pts), m.Resolution()),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: xMin, Max: xMax, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: yMin, Max: yMax, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        1,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("occupancy", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("render scatter: %w", err)
	}
	return nil
}
