package gridmap

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/banshee-data/ndtgrid/internal/ndt/occupancy"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrCorruptSnapshot is returned when a snapshot does not describe a map
// that the allocation protocol can reproduce.
var ErrCorruptSnapshot = errors.New("gridmap: corrupt snapshot")

// Snapshot is the serialisable state of a Gridmap. Bundles are stored by
// fine index only; their cell references are rebuilt by re-running the
// allocation protocol, which restores the cell sharing exactly.
type Snapshot struct {
	Resolution float64
	Rotation   [4]float64 // real, i, j, k
	Origin     [3]float64
	MinIndex   Index
	MaxIndex   Index
	Bundles    []Index
	Octants    [Octants][]CellRecord
}

// CellRecord is one octant cell of a Snapshot.
type CellRecord struct {
	Index Index
	State occupancy.CellState
}

// Snapshot captures the current map state.
func (m *Gridmap) Snapshot() *Snapshot {
	rot := m.wTm.rotation()
	lo, hi := m.bundles.Extent()
	s := &Snapshot{
		Resolution: m.resolution,
		Rotation:   [4]float64{rot.Real, rot.Imag, rot.Jmag, rot.Kmag},
		Origin:     [3]float64{m.wTm.Translation.X, m.wTm.Translation.Y, m.wTm.Translation.Z},
		MinIndex:   lo,
		MaxIndex:   hi,
		Bundles:    m.bundles.Indices(),
	}
	for o, st := range m.storages {
		records := make([]CellRecord, 0, st.Len())
		st.Traverse(func(ci Index, c *occupancy.Cell) {
			records = append(records, CellRecord{Index: ci, State: c.State()})
		})
		s.Octants[o] = records
	}
	return s
}

// OriginTransform returns the map-to-world transform recorded in s.
func (s *Snapshot) OriginTransform() Transform {
	return Transform{
		Rotation:    r3.Rotation{Real: s.Rotation[0], Imag: s.Rotation[1], Jmag: s.Rotation[2], Kmag: s.Rotation[3]},
		Translation: r3.Vec{X: s.Origin[0], Y: s.Origin[1], Z: s.Origin[2]},
	}
}

// RestoreSnapshot rebuilds a Gridmap from s.
func RestoreSnapshot(s *Snapshot) (*Gridmap, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil snapshot", ErrCorruptSnapshot)
	}
	m, err := New(s.OriginTransform(), s.Resolution)
	if err != nil {
		return nil, err
	}
	for _, bi := range s.Bundles {
		m.bundles.GetOrAllocate(bi)
	}
	if len(s.Bundles) > 0 {
		lo, hi := m.bundles.Extent()
		if lo != s.MinIndex || hi != s.MaxIndex {
			opsf("RestoreSnapshot: extent mismatch: recorded [%v, %v], rebuilt [%v, %v]", s.MinIndex, s.MaxIndex, lo, hi)
			return nil, fmt.Errorf("%w: extent [%v, %v] does not match bundles [%v, %v]", ErrCorruptSnapshot, s.MinIndex, s.MaxIndex, lo, hi)
		}
	}

	for o, records := range s.Octants {
		if len(records) != m.storages[o].Len() {
			return nil, fmt.Errorf("%w: octant %d has %d cells, bundles allocate %d", ErrCorruptSnapshot, o, len(records), m.storages[o].Len())
		}
		for _, r := range records {
			c := m.storages[o].Get(r.Index)
			if c == nil {
				return nil, fmt.Errorf("%w: octant %d cell %v not referenced by any bundle", ErrCorruptSnapshot, o, r.Index)
			}
			restored, err := occupancy.CellFromState(r.State)
			if err != nil {
				return nil, fmt.Errorf("%w: octant %d cell %v: %v", ErrCorruptSnapshot, o, r.Index, err)
			}
			*c = restored
		}
	}
	return m, nil
}

// Clone returns a deep copy of m with its own storages.
func (m *Gridmap) Clone() *Gridmap {
	c, err := RestoreSnapshot(m.Snapshot())
	if err != nil {
		// A snapshot of a live map always restores.
		panic(fmt.Sprintf("gridmap: clone failed: %v", err))
	}
	return c
}

// EncodeSnapshot serialises s using gob encoding and gzip compression.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := gob.NewEncoder(gz)
	if err := enc.Encode(s); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot decompresses and decodes a snapshot blob.
func DecodeSnapshot(blob []byte) (*Snapshot, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty snapshot blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var s Snapshot
	dec := gob.NewDecoder(gz)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &s, nil
}
