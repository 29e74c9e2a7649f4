// Package stats provides the weighted Gaussian accumulator used by occupied
// NDT cells.
//
// A WeightedDistribution keeps sufficient statistics only (count, weight,
// squared weight, mean and second moment), so two accumulators can be merged
// exactly. Derived quantities (covariance, inverse, normalisation) are
// recomputed lazily on the first evaluation after a mutation.
package stats

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// MinSamples is the number of samples required before the distribution
// yields a non-zero density. Two distinct samples already give a rank-1
// covariance, which the eigenvalue floor turns into an invertible one.
const MinSamples = 2

// EigenvalueRatio floors every covariance eigenvalue at this fraction of the
// largest one, keeping flat or line-like clusters invertible.
const EigenvalueRatio = 0.01

// WeightedDistribution is a 3D weighted Gaussian estimator.
type WeightedDistribution struct {
	n    uint64
	w    float64
	w2   float64
	mean r3.Vec
	corr [3][3]float64 // weighted second moment: sum(w p pᵀ) / W

	dirty bool
	valid bool
	cov   [3][3]float64
	inv   [3][3]float64
	norm  float64
}

// NewWeightedDistribution returns an empty accumulator.
func NewWeightedDistribution() *WeightedDistribution {
	return &WeightedDistribution{dirty: true}
}

// Add absorbs one sample. Non-positive or NaN weights are ignored.
func (d *WeightedDistribution) Add(p r3.Vec, w float64) {
	if !(w > 0) {
		return
	}
	total := d.w + w
	a, b := d.w/total, w/total
	d.mean = r3.Add(r3.Scale(a, d.mean), r3.Scale(b, p))
	v := vecArray(p)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			d.corr[i][j] = a*d.corr[i][j] + b*v[i]*v[j]
		}
	}
	d.w = total
	d.w2 += w * w
	d.n++
	d.dirty = true
}

// Merge folds the sufficient statistics of other into d. A nil or empty
// other is a no-op.
func (d *WeightedDistribution) Merge(other *WeightedDistribution) {
	if other == nil || other.n == 0 {
		return
	}
	total := d.w + other.w
	a, b := d.w/total, other.w/total
	d.mean = r3.Add(r3.Scale(a, d.mean), r3.Scale(b, other.mean))
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			d.corr[i][j] = a*d.corr[i][j] + b*other.corr[i][j]
		}
	}
	d.w = total
	d.w2 += other.w2
	d.n += other.n
	d.dirty = true
}

// Clone returns an independent copy.
func (d *WeightedDistribution) Clone() *WeightedDistribution {
	c := *d
	return &c
}

// SampleCount returns the number of samples absorbed.
func (d *WeightedDistribution) SampleCount() uint64 { return d.n }

// Weight returns the accumulated sample weight.
func (d *WeightedDistribution) Weight() float64 { return d.w }

// Mean returns the weighted mean.
func (d *WeightedDistribution) Mean() r3.Vec { return d.mean }

// Valid reports whether the distribution has enough support to be
// evaluated.
func (d *WeightedDistribution) Valid() bool {
	d.update()
	return d.valid
}

// Covariance returns the unbiased weighted covariance, before eigenvalue
// regularisation. It is the zero matrix until two distinct weights exist.
func (d *WeightedDistribution) Covariance() *mat.SymDense {
	c := d.rawCovariance()
	return mat.NewSymDense(3, []float64{
		c[0][0], c[0][1], c[0][2],
		c[1][0], c[1][1], c[1][2],
		c[2][0], c[2][1], c[2][2],
	})
}

// Density evaluates the normalised Gaussian at p. It returns 0 while the
// distribution is not valid.
func (d *WeightedDistribution) Density(p r3.Vec) float64 {
	d.update()
	if !d.valid {
		return 0
	}
	return d.norm * math.Exp(-0.5*d.mahalanobisSq(p))
}

// UnnormalizedDensity evaluates exp(-½ qᵀΣ⁻¹q) without the normalisation
// constant. It returns 0 while the distribution is not valid.
func (d *WeightedDistribution) UnnormalizedDensity(p r3.Vec) float64 {
	d.update()
	if !d.valid {
		return 0
	}
	return math.Exp(-0.5 * d.mahalanobisSq(p))
}

func (d *WeightedDistribution) mahalanobisSq(p r3.Vec) float64 {
	q := vecArray(r3.Sub(p, d.mean))
	var s float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			s += q[i] * d.inv[i][j] * q[j]
		}
	}
	return s
}

func (d *WeightedDistribution) rawCovariance() [3][3]float64 {
	var c [3][3]float64
	denom := d.w*d.w - d.w2
	if denom <= 0 {
		return c
	}
	scale := d.w * d.w / denom
	m := vecArray(d.mean)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			c[i][j] = (d.corr[i][j] - m[i]*m[j]) * scale
		}
	}
	return c
}

func (d *WeightedDistribution) update() {
	if !d.dirty {
		return
	}
	d.dirty = false
	d.valid = false
	if d.n < MinSamples {
		return
	}
	d.cov = d.rawCovariance()

	sym := mat.NewSymDense(3, []float64{
		d.cov[0][0], d.cov[0][1], d.cov[0][2],
		d.cov[1][0], d.cov[1][1], d.cov[1][2],
		d.cov[2][0], d.cov[2][1], d.cov[2][2],
	})
	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	lmax := 0.0
	for _, v := range values {
		lmax = math.Max(lmax, v)
	}
	if !(lmax > 0) || math.IsInf(lmax, 0) {
		return
	}
	floor := lmax * EigenvalueRatio
	det := 1.0
	for i, v := range values {
		if v < floor {
			values[i] = floor
		}
		det *= values[i]
	}

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var s float64
			for k := 0; k < 3; k++ {
				s += vectors.At(i, k) * vectors.At(j, k) / values[k]
			}
			d.inv[i][j] = s
		}
	}
	d.norm = 1 / math.Sqrt(math.Pow(2*math.Pi, 3)*det)
	d.valid = true
}

// ByteSize returns an estimate of the memory held by d.
func (d *WeightedDistribution) ByteSize() uintptr {
	return sizeOfDistribution
}

func vecArray(v r3.Vec) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }
