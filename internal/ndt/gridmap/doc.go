// Package gridmap owns the dynamic multi-resolution NDT voxel map.
//
// Responsibilities: world/map frame transforms, fine (bundle) indexing,
// lazy allocation of bundles over eight shifted coarse lattices, point and
// free-space insertion, density and occupancy queries, densification,
// merge and snapshotting.
// Key types: Gridmap, Bundle, BundleStorage, Transform, Snapshot.
//
// Each fine voxel of edge resolution/2 is viewed through eight coarse cells
// of edge resolution, one per octant lattice. Neighbouring fine voxels share
// coarse cells depending on index parity, which smooths discretisation
// artefacts of a single lattice.
//
// The map is not safe for concurrent use. Callers serialise mutating calls
// (insertion, densification, allocating lookups) themselves.
//
// No SQL/database code is allowed in this package.
package gridmap
