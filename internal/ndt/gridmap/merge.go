package gridmap

import (
	"errors"
	"fmt"

	"github.com/banshee-data/ndtgrid/internal/ndt/occupancy"
)

// ErrIncompatibleMaps is returned when merging maps with different
// resolutions or origins.
var ErrIncompatibleMaps = errors.New("gridmap: incompatible maps")

const originTolerance = 1e-9

// Merge folds all evidence of other into m. Every bundle of other is
// allocated in m, then each octant cell of other is merged into the cell at
// the same coarse index of m exactly once, so cells shared by several
// bundles are not counted twice.
func (m *Gridmap) Merge(other *Gridmap) error {
	if other == nil || other == m {
		return nil
	}
	if other.resolution != m.resolution {
		return fmt.Errorf("%w: resolution %v != %v", ErrIncompatibleMaps, other.resolution, m.resolution)
	}
	if !other.wTm.ApproxEqual(m.wTm, originTolerance) {
		return fmt.Errorf("%w: origins differ", ErrIncompatibleMaps)
	}

	before := m.bundles.Len()
	other.bundles.Traverse(func(bi Index, _ *Bundle) {
		m.bundles.GetOrAllocate(bi)
	})
	for o, st := range other.storages {
		dst := m.storages[o]
		st.Traverse(func(ci Index, c *occupancy.Cell) {
			dst.GetOrInsert(ci, occupancy.Cell{}).Merge(c)
		})
	}
	diagf("Merge: merged %d bundles, allocated %d new", other.bundles.Len(), m.bundles.Len()-before)
	return nil
}
