package gridmap

import (
	"math"

	"github.com/banshee-data/ndtgrid/internal/ndt/stats"
	"github.com/banshee-data/ndtgrid/internal/ndt/storage"
	"gonum.org/v1/gonum/spatial/r3"
)

// InsertPoints inserts a batch of points given in the frame pointsOrigin
// (world from points). Points are first accumulated per fine voxel, then
// each voxel's statistics are merged into its bundle once. Non-finite
// points and points beyond MaxIndex are skipped. It returns the number of
// points inserted.
//
// The result equals calling Insert for every indexable point.
func (m *Gridmap) InsertPoints(points []r3.Vec, pointsOrigin Transform) int {
	local := storage.New[stats.WeightedDistribution]()
	inserted := 0
	for _, p := range points {
		pw := pointsOrigin.Apply(p)
		pm := m.mTw.Apply(pw)
		if !m.indexable(pm) {
			continue
		}
		d := local.GetOrInsert(m.mapToIndex(pm), stats.WeightedDistribution{})
		d.Add(pw, 1)
		inserted++
	}

	local.Traverse(func(bi Index, d *stats.WeightedDistribution) {
		b := m.bundles.GetOrAllocate(bi)
		for _, c := range b.cells {
			c.MergeOccupied(d)
		}
	})

	if dropped := len(points) - inserted; dropped > 0 {
		opsf("InsertPoints: dropped %d/%d unindexable points", dropped, len(points))
	}
	return inserted
}

// InsertScan inserts a scan taken from sensorOrigin (world frame). Every
// fine voxel crossed by the ray towards an endpoint, excluding the endpoint
// voxel, receives one free-space observation of freeWeight; the endpoints
// are then inserted as occupied samples via InsertPoints. Unindexable
// endpoints and endpoints farther than MaxRayLength from the sensor are
// dropped along with their rays. It returns the number of endpoints
// inserted.
func (m *Gridmap) InsertScan(sensorOrigin r3.Vec, endpoints []r3.Vec, freeWeight float64) int {
	om := m.mTw.Apply(sensorOrigin)
	if !m.indexable(om) {
		opsf("InsertScan: unindexable sensor origin %v, scan dropped", sensorOrigin)
		return 0
	}
	kept := make([]r3.Vec, 0, len(endpoints))
	tooFar := 0
	for _, p := range endpoints {
		pm := m.mTw.Apply(p)
		if !m.indexable(pm) {
			continue
		}
		if r3.Norm(r3.Sub(pm, om)) > m.maxRayLength {
			tooFar++
			continue
		}
		m.traceRay(om, pm, func(bi Index) {
			m.insertFreeAt(bi, freeWeight)
		})
		kept = append(kept, p)
	}
	if dropped := len(endpoints) - len(kept); dropped > 0 {
		opsf("InsertScan: dropped %d/%d endpoints (%d beyond %.1f m)", dropped, len(endpoints), tooFar, m.maxRayLength)
	}
	return m.InsertPoints(kept, Identity())
}

// traceRay calls fn for each fine voxel crossed by the segment from a to b
// (map frame), in order, excluding the voxel containing b. It follows the
// Amanatides-Woo voxel traversal.
func (m *Gridmap) traceRay(a, b r3.Vec, fn func(Index)) {
	cur := m.mapToIndex(a)
	end := m.mapToIndex(b)
	if cur == end {
		return
	}

	from := [3]float64{a.X, a.Y, a.Z}
	dir := [3]float64{b.X - a.X, b.Y - a.Y, b.Z - a.Z}
	var step Index
	var tMax, tDelta [3]float64
	for k := 0; k < 3; k++ {
		switch {
		case dir[k] > 0:
			step[k] = 1
			boundary := float64(cur[k]+1) * m.bundleResolution
			tMax[k] = (boundary - from[k]) / dir[k]
			tDelta[k] = m.bundleResolution / dir[k]
		case dir[k] < 0:
			step[k] = -1
			boundary := float64(cur[k]) * m.bundleResolution
			tMax[k] = (boundary - from[k]) / dir[k]
			tDelta[k] = -m.bundleResolution / dir[k]
		default:
			tMax[k] = math.Inf(1)
			tDelta[k] = math.Inf(1)
		}
	}

	// A ray never crosses more voxels than the Manhattan index distance.
	limit := 0
	for k := 0; k < 3; k++ {
		d := end[k] - cur[k]
		if d < 0 {
			d = -d
		}
		limit += d
	}

	for n := 0; n < limit && cur != end; n++ {
		fn(cur)
		k := 0
		if tMax[1] < tMax[k] {
			k = 1
		}
		if tMax[2] < tMax[k] {
			k = 2
		}
		cur[k] += step[k]
		tMax[k] += tDelta[k]
	}
}
