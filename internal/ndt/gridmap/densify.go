package gridmap

import (
	"github.com/banshee-data/ndtgrid/internal/ndt/neighborhood"
)

// DefaultDensifyMinSamples is the occupied sample count a cell needs before
// its bundle's neighbourhood is pre-allocated.
const DefaultDensifyMinSamples = 3

// DensifyOptions configures Densify. Zero values select the defaults.
type DensifyOptions struct {
	MinSamples   uint64
	Neighborhood *neighborhood.Grid
}

// Densify pre-allocates the neighbourhood of every bundle holding at least
// one cell with MinSamples occupied samples, so later consumers can rely on
// neighbour availability. Only bundles allocated before the call are
// considered. It returns the number of newly allocated bundles.
func (m *Gridmap) Densify(opts DensifyOptions) int {
	minSamples := opts.MinSamples
	if minSamples == 0 {
		minSamples = DefaultDensifyMinSamples
	}
	grid := opts.Neighborhood
	if grid == nil {
		grid = neighborhood.Default()
	}

	before := m.bundles.Len()
	expanded := 0
	for _, bi := range m.bundles.Indices() {
		b := m.bundles.Get(bi)
		if !hasSupport(b, minSamples) {
			continue
		}
		expanded++
		grid.Visit(func(o neighborhood.Offset) {
			m.bundles.GetOrAllocate(bi.Add(Index(o)))
		})
	}

	added := m.bundles.Len() - before
	diagf("Densify: expanded=%d/%d bundles, allocated=%d, neighborhood=%d", expanded, before, added, grid.Len())
	return added
}

func hasSupport(b *Bundle, minSamples uint64) bool {
	for _, c := range b.cells {
		if c.SampleCount() >= minSamples {
			return true
		}
	}
	return false
}
