package pointio

import (
	"fmt"
	"io"

	"github.com/seqsense/pcgol/mat"
	"github.com/seqsense/pcgol/pc"
	"gonum.org/v1/gonum/spatial/r3"
)

// ReadPCD decodes a PCD stream and returns its x/y/z points.
func ReadPCD(r io.Reader) ([]r3.Vec, error) {
	pp, err := pc.Unmarshal(r)
	if err != nil {
		return nil, fmt.Errorf("decode pcd: %w", err)
	}
	it, err := pp.Vec3Iterator()
	if err != nil {
		return nil, fmt.Errorf("pcd has no xyz fields: %w", err)
	}
	points := make([]r3.Vec, 0, it.Len())
	for ; it.IsValid(); it.Incr() {
		v := it.Vec3()
		points = append(points, r3.Vec{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])})
	}
	return points, nil
}

// WritePCD encodes points as a binary PCD with float32 x/y/z fields.
func WritePCD(w io.Writer, points []r3.Vec) error {
	pp := &pc.PointCloud{
		PointCloudHeader: pc.PointCloudHeader{
			Version:   0.7,
			Fields:    []string{"x", "y", "z"},
			Size:      []int{4, 4, 4},
			Type:      []string{"F", "F", "F"},
			Count:     []int{1, 1, 1},
			Width:     len(points),
			Height:    1,
			Viewpoint: []float32{0, 0, 0, 1, 0, 0, 0},
		},
		Points: len(points),
		Data:   make([]byte, 4*3*len(points)),
	}
	it, err := pp.Vec3Iterator()
	if err != nil {
		return err
	}
	for _, p := range points {
		it.SetVec3(mat.Vec3{float32(p.X), float32(p.Y), float32(p.Z)})
		it.Incr()
	}
	if err := pc.Marshal(pp, w); err != nil {
		return fmt.Errorf("encode pcd: %w", err)
	}
	return nil
}
