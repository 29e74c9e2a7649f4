package gridmap

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Transform is a rigid transform: p' = R p + t.
// The zero value is the identity.
type Transform struct {
	Rotation    r3.Rotation
	Translation r3.Vec
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{Rotation: r3.Rotation{Real: 1}}
}

// NewTransform builds a transform from a translation and roll/pitch/yaw
// angles in radians, applied in roll, pitch, yaw order about fixed X, Y, Z.
func NewTransform(t r3.Vec, roll, pitch, yaw float64) Transform {
	qx := quat.Number(r3.NewRotation(roll, r3.Vec{X: 1}))
	qy := quat.Number(r3.NewRotation(pitch, r3.Vec{Y: 1}))
	qz := quat.Number(r3.NewRotation(yaw, r3.Vec{Z: 1}))
	return Transform{
		Rotation:    r3.Rotation(quat.Mul(qz, quat.Mul(qy, qx))),
		Translation: t,
	}
}

// Translate returns a pure translation.
func Translate(t r3.Vec) Transform {
	return Transform{Rotation: r3.Rotation{Real: 1}, Translation: t}
}

func (t Transform) rotation() r3.Rotation {
	if t.Rotation == (r3.Rotation{}) {
		return r3.Rotation{Real: 1}
	}
	return t.Rotation
}

// Apply maps p through t.
func (t Transform) Apply(p r3.Vec) r3.Vec {
	return r3.Add(t.rotation().Rotate(p), t.Translation)
}

// Inverse returns the transform undoing t.
func (t Transform) Inverse() Transform {
	inv := r3.Rotation(quat.Conj(quat.Number(t.rotation())))
	return Transform{
		Rotation:    inv,
		Translation: r3.Scale(-1, inv.Rotate(t.Translation)),
	}
}

// Compose returns t ∘ o, which applies o first.
func (t Transform) Compose(o Transform) Transform {
	return Transform{
		Rotation:    r3.Rotation(quat.Mul(quat.Number(t.rotation()), quat.Number(o.rotation()))),
		Translation: t.Apply(o.Translation),
	}
}

// ApproxEqual reports whether t and o describe the same transform within
// tol. Quaternions q and -q are treated as equal.
func (t Transform) ApproxEqual(o Transform, tol float64) bool {
	if r3.Norm(r3.Sub(t.Translation, o.Translation)) > tol {
		return false
	}
	a, b := quat.Number(t.rotation()), quat.Number(o.rotation())
	return quat.Abs(quat.Sub(a, b)) <= tol || quat.Abs(quat.Add(a, b)) <= tol
}

// Pose is a query pose for Validate. Implementations embed their position
// into the map frame; Pose2D additionally pins the vertical index to 0.
type Pose interface {
	position() r3.Vec
	planar() bool
}

// Pose3D is a full 6-DoF pose; only its position is used by the map.
type Pose3D struct {
	Transform
}

func (p Pose3D) position() r3.Vec { return p.Translation }
func (p Pose3D) planar() bool     { return false }

// Pose2D is a planar pose lying at z=0.
type Pose2D struct {
	X, Y float64
	Yaw  float64
}

func (p Pose2D) position() r3.Vec { return r3.Vec{X: p.X, Y: p.Y} }
func (p Pose2D) planar() bool     { return true }

func isFinite(p r3.Vec) bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0) &&
		!math.IsNaN(p.Z) && !math.IsInf(p.Z, 0)
}
