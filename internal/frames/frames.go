// Package frames provides the rotation and coordinate-frame helpers used to
// orient synthetic cameras: the along-track/cross-track/down basis, the
// aerospace roll/pitch/yaw composition, and conversions between rotation
// matrices and quaternions.
//
// The working frame for camera geometry is the map-local frame: x east,
// y north, z up, in the units of the DEM's projection. The camera frame has
// x along-track, y cross-track, and z along the boresight.
package frames

import (
	"errors"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateTangent is returned when a trajectory tangent has no direction.
var ErrDegenerateTangent = errors.New("frames: zero-length tangent, camera axes are undefined")

// Down is the nadir direction in the map-local frame.
var Down = r3.Vector{X: 0, Y: 0, Z: -1}

// Apply multiplies a 3x3 rotation by a vector.
func Apply(rot *mat.Dense, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: rot.At(0, 0)*v.X + rot.At(0, 1)*v.Y + rot.At(0, 2)*v.Z,
		Y: rot.At(1, 0)*v.X + rot.At(1, 1)*v.Y + rot.At(1, 2)*v.Z,
		Z: rot.At(2, 0)*v.X + rot.At(2, 1)*v.Y + rot.At(2, 2)*v.Z,
	}
}

// FromColumns builds a 3x3 matrix whose columns are the given vectors.
func FromColumns(x, y, z r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		x.X, y.X, z.X,
		x.Y, y.Y, z.Y,
		x.Z, y.Z, z.Z,
	})
}

// Mul returns the product a*b of two 3x3 matrices.
func Mul(a, b *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Mul(a, b)
	return &out
}

// NadirBasis derives the camera axes for a straight-down camera from the
// local trajectory tangent: x along-track, y cross-track, z down. The basis
// is right-handed with unit determinant.
func NadirBasis(tangent r3.Vector) (along, cross, down r3.Vector, err error) {
	if tangent.Norm() == 0 {
		return r3.Vector{}, r3.Vector{}, r3.Vector{}, ErrDegenerateTangent
	}
	along = tangent.Normalize()
	cross = Down.Cross(along)
	if cross.Norm() == 0 {
		return r3.Vector{}, r3.Vector{}, r3.Vector{}, ErrDegenerateTangent
	}
	cross = cross.Normalize()
	down = along.Cross(cross)
	return along, cross, down, nil
}

// LookAtBasis derives the camera axes for a camera at position pos whose
// boresight points at target, with the x axis as close to the trajectory
// tangent as orthonormality allows. Construction mirrors NadirBasis: the
// boresight replaces the down direction.
func LookAtBasis(pos, target, tangent r3.Vector) (along, cross, bore r3.Vector, err error) {
	look := target.Sub(pos)
	if look.Norm() == 0 || tangent.Norm() == 0 {
		return r3.Vector{}, r3.Vector{}, r3.Vector{}, ErrDegenerateTangent
	}
	bore = look.Normalize()
	cross = bore.Cross(tangent)
	if cross.Norm() == 0 {
		return r3.Vector{}, r3.Vector{}, r3.Vector{}, ErrDegenerateTangent
	}
	cross = cross.Normalize()
	along = cross.Cross(bore)
	return along, cross, bore, nil
}

// rotX, rotY, rotZ are elementary rotations by an angle in radians.
func rotX(a float64) *mat.Dense {
	c, s := math.Cos(a), math.Sin(a)
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	})
}

func rotY(a float64) *mat.Dense {
	c, s := math.Cos(a), math.Sin(a)
	return mat.NewDense(3, 3, []float64{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	})
}

func rotZ(a float64) *mat.Dense {
	c, s := math.Cos(a), math.Sin(a)
	return mat.NewDense(3, 3, []float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})
}

// RollPitchYaw composes the aerospace rotation sequence: yaw about the camera
// z (boresight/down) axis, then pitch about y (cross-track), then roll about
// x (along-track). Angles are in degrees. The result is applied on the right
// of the nominal basis: cam2world = basis * RollPitchYaw(r, p, y).
func RollPitchYaw(rollDeg, pitchDeg, yawDeg float64) *mat.Dense {
	const d2r = math.Pi / 180.0
	return Mul(Mul(rotZ(yawDeg*d2r), rotY(pitchDeg*d2r)), rotX(rollDeg*d2r))
}

// Quaternion is a unit quaternion (scalar-first) describing a rotation.
type Quaternion struct {
	W, X, Y, Z float64
}

// RotToQuat converts a proper rotation matrix to a unit quaternion with
// non-negative scalar part. Shepperd's method: pick the largest diagonal
// combination to avoid cancellation.
func RotToQuat(rot *mat.Dense) Quaternion {
	m00, m01, m02 := rot.At(0, 0), rot.At(0, 1), rot.At(0, 2)
	m10, m11, m12 := rot.At(1, 0), rot.At(1, 1), rot.At(1, 2)
	m20, m21, m22 := rot.At(2, 0), rot.At(2, 1), rot.At(2, 2)

	tr := m00 + m11 + m22
	var q Quaternion
	switch {
	case tr > 0:
		s := math.Sqrt(tr+1.0) * 2
		q = Quaternion{W: s / 4, X: (m21 - m12) / s, Y: (m02 - m20) / s, Z: (m10 - m01) / s}
	case m00 > m11 && m00 > m22:
		s := math.Sqrt(1.0+m00-m11-m22) * 2
		q = Quaternion{W: (m21 - m12) / s, X: s / 4, Y: (m01 + m10) / s, Z: (m02 + m20) / s}
	case m11 > m22:
		s := math.Sqrt(1.0+m11-m00-m22) * 2
		q = Quaternion{W: (m02 - m20) / s, X: (m01 + m10) / s, Y: s / 4, Z: (m12 + m21) / s}
	default:
		s := math.Sqrt(1.0+m22-m00-m11) * 2
		q = Quaternion{W: (m10 - m01) / s, X: (m02 + m20) / s, Y: (m12 + m21) / s, Z: s / 4}
	}
	if q.W < 0 {
		q = Quaternion{W: -q.W, X: -q.X, Y: -q.Y, Z: -q.Z}
	}
	return q
}

// QuatToRot converts a unit quaternion to a rotation matrix.
func QuatToRot(q Quaternion) *mat.Dense {
	w, x, y, z := q.W, q.X, q.Y, q.Z
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}
