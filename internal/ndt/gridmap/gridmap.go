package gridmap

import (
	"errors"
	"fmt"
	"math"
	"unsafe"

	"github.com/banshee-data/ndtgrid/internal/ndt/occupancy"
	"github.com/banshee-data/ndtgrid/internal/ndt/storage"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidResolution is returned for non-positive or non-finite
// resolutions.
var ErrInvalidResolution = errors.New("gridmap: resolution must be positive and finite")

// ErrInvalidRayLength is returned for non-positive or non-finite ray
// length limits.
var ErrInvalidRayLength = errors.New("gridmap: max ray length must be positive and finite")

// MaxIndex bounds the magnitude of a fine index on each axis. Points that
// would map beyond it are dropped by the insertion calls.
const MaxIndex = 1 << 40

// DefaultMaxRayLength is the longest sensor ray, in metres, that InsertScan
// accepts.
const DefaultMaxRayLength = 500.0

// Gridmap is a sparse, dynamically growing NDT map. It owns eight octant
// cell storages and the bundle storage referencing them.
type Gridmap struct {
	resolution          float64
	bundleResolution    float64
	bundleResolutionInv float64
	wTm                 Transform // map -> world
	mTw                 Transform // world -> map
	maxRayLength        float64

	storages [Octants]*CellStorage
	bundles  *BundleStorage
}

// New creates an empty map whose frame is placed at origin in the world,
// with coarse voxel edge resolution.
func New(origin Transform, resolution float64) (*Gridmap, error) {
	if !(resolution > 0) || math.IsInf(resolution, 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidResolution, resolution)
	}
	m := &Gridmap{
		resolution:          resolution,
		bundleResolution:    0.5 * resolution,
		bundleResolutionInv: 2 / resolution,
		wTm:                 origin,
		mTw:                 origin.Inverse(),
		maxRayLength:        DefaultMaxRayLength,
	}
	for o := range m.storages {
		m.storages[o] = storage.New[occupancy.Cell]()
	}
	m.bundles = NewBundleStorage(m.storages)
	return m, nil
}

// Resolution returns the coarse voxel edge length.
func (m *Gridmap) Resolution() float64 { return m.resolution }

// BundleResolution returns the fine voxel edge length (resolution / 2).
func (m *Gridmap) BundleResolution() float64 { return m.bundleResolution }

// InitialOrigin returns the map-to-world transform given at construction.
func (m *Gridmap) InitialOrigin() Transform { return m.wTm }

// Origin returns the initial origin with its translation moved to the
// minimum allocated corner. The translation is expressed in the world frame,
// i.e. InitialOrigin().Apply of the map-frame corner, and the rotation is the
// initial rotation.
func (m *Gridmap) Origin() Transform {
	o := m.wTm
	o.Translation = m.Min()
	return o
}

// MaxRayLength returns the longest sensor ray InsertScan accepts.
func (m *Gridmap) MaxRayLength() float64 { return m.maxRayLength }

// SetMaxRayLength bounds the sensor-to-endpoint distance, in metres, of the
// rays InsertScan traces. Longer rays are dropped with their endpoints.
func (m *Gridmap) SetMaxRayLength(l float64) error {
	if !(l > 0) || math.IsInf(l, 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidRayLength, l)
	}
	m.maxRayLength = l
	return nil
}

// Storages exposes the octant storages for consumers that compare cells by
// octant position. Callers must not insert into them.
func (m *Gridmap) Storages() [Octants]*CellStorage { return m.storages }

// ToBundleIndex returns the fine index of world point p.
func (m *Gridmap) ToBundleIndex(p r3.Vec) Index {
	return m.mapToIndex(m.mTw.Apply(p))
}

// indexable reports whether map-frame point pm is finite and maps to a fine
// index within MaxIndex on every axis.
func (m *Gridmap) indexable(pm r3.Vec) bool {
	if !isFinite(pm) {
		return false
	}
	const limit = float64(MaxIndex)
	return math.Abs(pm.X*m.bundleResolutionInv) < limit &&
		math.Abs(pm.Y*m.bundleResolutionInv) < limit &&
		math.Abs(pm.Z*m.bundleResolutionInv) < limit
}

func (m *Gridmap) mapToIndex(pm r3.Vec) Index {
	return Index{
		int(math.Floor(pm.X * m.bundleResolutionInv)),
		int(math.Floor(pm.Y * m.bundleResolutionInv)),
		int(math.Floor(pm.Z * m.bundleResolutionInv)),
	}
}

// Insert adds world point p as an occupied sample to all eight cells of
// its bundle. Non-finite points and points beyond MaxIndex are dropped.
func (m *Gridmap) Insert(p r3.Vec) {
	m.InsertWeighted(p, 1)
}

// InsertWeighted is Insert with an explicit sample weight.
func (m *Gridmap) InsertWeighted(p r3.Vec, weight float64) {
	pm := m.mTw.Apply(p)
	if !m.indexable(pm) {
		opsf("InsertWeighted: dropped unindexable point %v", p)
		return
	}
	b := m.bundles.GetOrAllocate(m.mapToIndex(pm))
	for _, c := range b.cells {
		c.AddOccupied(p, weight)
	}
}

// InsertFree adds one free-space observation of the given weight to all
// eight cells of the bundle containing world point p. Unindexable points
// are dropped as in Insert.
func (m *Gridmap) InsertFree(p r3.Vec, weight float64) {
	pm := m.mTw.Apply(p)
	if !m.indexable(pm) {
		opsf("InsertFree: dropped unindexable point %v", p)
		return
	}
	m.insertFreeAt(m.mapToIndex(pm), weight)
}

func (m *Gridmap) insertFreeAt(bi Index, weight float64) {
	b := m.bundles.GetOrAllocate(bi)
	for _, c := range b.cells {
		c.AddFree(1, weight)
	}
}

// Sample returns the mean normalised density of the eight cells of the
// bundle containing world point p, or 0 if no bundle is allocated there.
func (m *Gridmap) Sample(p r3.Vec) float64 {
	b := m.bundles.Get(m.ToBundleIndex(p))
	if b == nil {
		return 0
	}
	var sum float64
	for _, c := range b.cells {
		sum += c.Density(p)
	}
	return sum / Octants
}

// SampleUnnormalized is Sample using unnormalised cell densities.
func (m *Gridmap) SampleUnnormalized(p r3.Vec) float64 {
	b := m.bundles.Get(m.ToBundleIndex(p))
	if b == nil {
		return 0
	}
	var sum float64
	for _, c := range b.cells {
		sum += c.UnnormalizedDensity(p)
	}
	return sum / Octants
}

// Occupancy returns the mean occupancy probability of the eight cells of
// the bundle containing world point p under model, or 0 if no bundle is
// allocated there.
func (m *Gridmap) Occupancy(p r3.Vec, model *occupancy.InverseModel) (float64, error) {
	if model == nil {
		return 0, occupancy.ErrInverseModelNotSet
	}
	b := m.bundles.Get(m.ToBundleIndex(p))
	if b == nil {
		return 0, nil
	}
	var sum float64
	for _, c := range b.cells {
		v, err := c.Occupancy(model)
		if err != nil {
			return 0, err
		}
		sum += v
	}
	return sum / Octants, nil
}

// Bundle returns the bundle at fine index bi without allocating, or nil.
func (m *Gridmap) Bundle(bi Index) *Bundle {
	return m.bundles.Get(bi)
}

// DistributionBundle returns the bundle containing world point p,
// allocating it if absent.
func (m *Gridmap) DistributionBundle(p r3.Vec) *Bundle {
	return m.bundles.GetOrAllocate(m.ToBundleIndex(p))
}

// DistributionBundleAt returns the bundle at fine index bi, allocating it
// if absent.
func (m *Gridmap) DistributionBundleAt(bi Index) *Bundle {
	return m.bundles.GetOrAllocate(bi)
}

// Empty reports whether no bundle has been allocated.
func (m *Gridmap) Empty() bool { return m.bundles.Empty() }

// Len returns the number of allocated bundles.
func (m *Gridmap) Len() int { return m.bundles.Len() }

// MinBundleIndex returns the componentwise minimum allocated fine index.
func (m *Gridmap) MinBundleIndex() Index {
	lo, _ := m.bundles.Extent()
	return lo
}

// MaxBundleIndex returns the componentwise maximum allocated fine index.
func (m *Gridmap) MaxBundleIndex() Index {
	_, hi := m.bundles.Extent()
	return hi
}

// Min returns the world position of the lower corner of the allocated
// extent. An empty map reports the map origin.
func (m *Gridmap) Min() r3.Vec {
	if m.Empty() {
		return m.wTm.Apply(r3.Vec{})
	}
	lo := m.MinBundleIndex()
	return m.wTm.Apply(m.corner(lo))
}

// Max returns the world position of the upper corner of the allocated
// extent. An empty map reports the map origin.
func (m *Gridmap) Max() r3.Vec {
	if m.Empty() {
		return m.wTm.Apply(r3.Vec{})
	}
	hi := m.MaxBundleIndex()
	return m.wTm.Apply(m.corner(hi.Add(Index{1, 1, 1})))
}

func (m *Gridmap) corner(i Index) r3.Vec {
	return r3.Vec{
		X: float64(i[0]) * m.bundleResolution,
		Y: float64(i[1]) * m.bundleResolution,
		Z: float64(i[2]) * m.bundleResolution,
	}
}

// BundleCenter returns the world position of the centre of fine voxel bi.
func (m *Gridmap) BundleCenter(bi Index) r3.Vec {
	c := m.corner(bi)
	h := 0.5 * m.bundleResolution
	return m.wTm.Apply(r3.Vec{X: c.X + h, Y: c.Y + h, Z: c.Z + h})
}

func (m *Gridmap) span(axis int) float64 {
	if m.Empty() {
		return 0
	}
	lo, hi := m.bundles.Extent()
	return float64(hi[axis]-lo[axis]+1) * m.bundleResolution
}

// Width returns the x extent of the allocated region.
func (m *Gridmap) Width() float64 { return m.span(0) }

// Height returns the y extent of the allocated region.
func (m *Gridmap) Height() float64 { return m.span(1) }

// Depth returns the z extent of the allocated region.
func (m *Gridmap) Depth() float64 { return m.span(2) }

// Validate reports whether pose lies inside the allocated fine-index
// extent. Planar poses use a vertical index of 0.
func (m *Gridmap) Validate(pose Pose) bool {
	if pose == nil || m.Empty() {
		return false
	}
	pm := m.mTw.Apply(pose.position())
	if !m.indexable(pm) {
		return false
	}
	i := m.mapToIndex(pm)
	if pose.planar() {
		i[2] = 0
	}
	lo, hi := m.bundles.Extent()
	for a := 0; a < 3; a++ {
		if i[a] < lo[a] || i[a] > hi[a] {
			return false
		}
	}
	return true
}

// Traverse visits every allocated (fine index, bundle) pair once.
func (m *Gridmap) Traverse(fn func(Index, *Bundle)) {
	m.bundles.Traverse(fn)
}

// BundleIndices returns a snapshot of the allocated fine indices.
func (m *Gridmap) BundleIndices() []Index {
	return m.bundles.Indices()
}

// ByteSize estimates the memory held by the map and all its storages.
func (m *Gridmap) ByteSize() uintptr {
	size := unsafe.Sizeof(*m) + m.bundles.ByteSize()
	for _, s := range m.storages {
		size += s.ByteSize()
	}
	return size
}
