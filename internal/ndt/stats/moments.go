package stats

import (
	"fmt"
	"unsafe"

	"gonum.org/v1/gonum/spatial/r3"
)

var sizeOfDistribution = unsafe.Sizeof(WeightedDistribution{})

// Moments is the serialisable form of a WeightedDistribution.
type Moments struct {
	SampleCount  uint64
	Weight       float64
	WeightSq     float64
	Mean         [3]float64
	SecondMoment [9]float64 // row-major
}

// Moments returns the sufficient statistics of d.
func (d *WeightedDistribution) Moments() Moments {
	m := Moments{
		SampleCount: d.n,
		Weight:      d.w,
		WeightSq:    d.w2,
		Mean:        vecArray(d.mean),
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.SecondMoment[3*i+j] = d.corr[i][j]
		}
	}
	return m
}

// FromMoments rebuilds a distribution from its sufficient statistics.
func FromMoments(m Moments) (*WeightedDistribution, error) {
	if m.SampleCount > 0 && !(m.Weight > 0) {
		return nil, fmt.Errorf("moments with %d samples have non-positive weight %f", m.SampleCount, m.Weight)
	}
	d := NewWeightedDistribution()
	d.n = m.SampleCount
	d.w = m.Weight
	d.w2 = m.WeightSq
	d.mean = r3.Vec{X: m.Mean[0], Y: m.Mean[1], Z: m.Mean[2]}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			d.corr[i][j] = m.SecondMoment[3*i+j]
		}
	}
	return d, nil
}
