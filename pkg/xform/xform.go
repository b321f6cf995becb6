// Package xform converts placement transforms between their three
// representations: translation/rotation/scale triples, homogeneous 4x4
// matrices and quaternions.
//
// Matrices follow mgl64's column-major storage internally. RowMajor is the
// only place the row-major convention of the query API appears.
package xform

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Transform is a local placement: scale first, then rotation, then translation.
type Transform struct {
	Translation mgl64.Vec3
	Rotation    mgl64.Quat
	Scale       mgl64.Vec3
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{
		Rotation: mgl64.QuatIdent(),
		Scale:    mgl64.Vec3{1, 1, 1},
	}
}

// Translate returns a pure translation.
func Translate(x, y, z float64) Transform {
	t := Identity()
	t.Translation = mgl64.Vec3{x, y, z}
	return t
}

// IsIdentity reports whether t is the identity within 1e-12.
func (t Transform) IsIdentity() bool {
	const eps = 1e-12
	id := Identity()
	return t.Translation.ApproxEqualThreshold(id.Translation, eps) &&
		t.Scale.ApproxEqualThreshold(id.Scale, eps) &&
		QuatAngle(t.Rotation, id.Rotation) < eps
}

// UniformScale returns the scale factor when all three axes agree.
func (t Transform) UniformScale() (float64, bool) {
	s := t.Scale
	if math.Abs(s[0]-s[1]) < 1e-12 && math.Abs(s[1]-s[2]) < 1e-12 {
		return s[0], true
	}
	return 0, false
}

// Matrix returns T * R * S.
func (t Transform) Matrix() mgl64.Mat4 {
	tr := mgl64.Translate3D(t.Translation[0], t.Translation[1], t.Translation[2])
	rot := t.Rotation.Normalize().Mat4()
	sc := mgl64.Scale3D(t.Scale[0], t.Scale[1], t.Scale[2])
	return tr.Mul4(rot).Mul4(sc)
}

// RowMajor returns the matrix flattened row by row.
func (t Transform) RowMajor() [16]float64 {
	return [16]float64(t.Matrix().Transpose())
}

// QuatXYZW returns the normalized rotation as [x, y, z, w].
func (t Transform) QuatXYZW() [4]float64 {
	q := t.Rotation.Normalize()
	return [4]float64{q.V[0], q.V[1], q.V[2], q.W}
}

// ApplyPoint transforms a point.
func (t Transform) ApplyPoint(p mgl64.Vec3) mgl64.Vec3 {
	return mgl64.TransformCoordinate(p, t.Matrix())
}

// NormalMatrix returns the inverse transpose of the linear part, which maps
// surface normals correctly under non-uniform scale.
func (t Transform) NormalMatrix() mgl64.Mat3 {
	return t.Matrix().Mat3().Inv().Transpose()
}

// Mul returns the transform equivalent to applying child then parent.
// Rotated non-uniform scale can introduce shear, which the result drops.
func Mul(parent, child Transform) Transform {
	return Decompose(parent.Matrix().Mul4(child.Matrix()))
}

// Decompose splits an affine matrix into translation, rotation and scale.
// A negative determinant is folded into the X scale.
func Decompose(m mgl64.Mat4) Transform {
	out := Transform{
		Translation: m.Col(3).Vec3(),
		Rotation:    mgl64.QuatIdent(),
	}
	c0, c1, c2 := m.Col(0).Vec3(), m.Col(1).Vec3(), m.Col(2).Vec3()
	out.Scale = mgl64.Vec3{c0.Len(), c1.Len(), c2.Len()}
	if m.Mat3().Det() < 0 {
		out.Scale[0] = -out.Scale[0]
	}
	if out.Scale[0] == 0 || out.Scale[1] == 0 || out.Scale[2] == 0 {
		return out
	}
	c0 = c0.Mul(1 / out.Scale[0])
	c1 = c1.Mul(1 / out.Scale[1])
	c2 = c2.Mul(1 / out.Scale[2])
	rot := mgl64.Mat4FromCols(c0.Vec4(0), c1.Vec4(0), c2.Vec4(0), mgl64.Vec4{0, 0, 0, 1})
	out.Rotation = mgl64.Mat4ToQuat(rot).Normalize()
	return out
}

// FromRowMajor builds a transform from a row-major 4x4 matrix.
func FromRowMajor(rm [16]float64) Transform {
	return Decompose(mgl64.Mat4(rm).Transpose())
}

// QuatFromXYZW builds a normalized quaternion from [x, y, z, w].
func QuatFromXYZW(v [4]float64) (mgl64.Quat, error) {
	q := mgl64.Quat{W: v[3], V: mgl64.Vec3{v[0], v[1], v[2]}}
	if q.Len() < 1e-12 {
		return mgl64.Quat{}, fmt.Errorf("xform: zero-length quaternion %v", v)
	}
	return q.Normalize(), nil
}

// FromEulerDegrees returns the rotation that turns about X, then the fixed
// Y axis, then the fixed Z axis.
func FromEulerDegrees(x, y, z float64) mgl64.Quat {
	qx := mgl64.QuatRotate(mgl64.DegToRad(x), mgl64.Vec3{1, 0, 0})
	qy := mgl64.QuatRotate(mgl64.DegToRad(y), mgl64.Vec3{0, 1, 0})
	qz := mgl64.QuatRotate(mgl64.DegToRad(z), mgl64.Vec3{0, 0, 1})
	return qz.Mul(qy).Mul(qx).Normalize()
}

// Rotation parses a rotation given as a quaternion [x, y, z, w] or as XYZ
// Euler angles in degrees. An empty slice is the identity.
func Rotation(v []float64) (mgl64.Quat, error) {
	switch len(v) {
	case 0:
		return mgl64.QuatIdent(), nil
	case 3:
		return FromEulerDegrees(v[0], v[1], v[2]), nil
	case 4:
		return QuatFromXYZW([4]float64{v[0], v[1], v[2], v[3]})
	}
	return mgl64.Quat{}, fmt.Errorf("xform: rotation needs 3 (euler degrees) or 4 (quaternion) values, got %d", len(v))
}

// Scale parses a scale given as one uniform factor or three per-axis factors.
// An empty slice is unit scale.
func Scale(v []float64) (mgl64.Vec3, error) {
	var s mgl64.Vec3
	switch len(v) {
	case 0:
		return mgl64.Vec3{1, 1, 1}, nil
	case 1:
		s = mgl64.Vec3{v[0], v[0], v[0]}
	case 3:
		s = mgl64.Vec3{v[0], v[1], v[2]}
	default:
		return mgl64.Vec3{}, fmt.Errorf("xform: scale needs 1 or 3 values, got %d", len(v))
	}
	if s[0] == 0 || s[1] == 0 || s[2] == 0 {
		return mgl64.Vec3{}, fmt.Errorf("xform: scale %v has a zero component", s)
	}
	return s, nil
}

// QuatAngle returns the rotation angle in radians separating a and b,
// treating q and -q as the same rotation.
func QuatAngle(a, b mgl64.Quat) float64 {
	d := math.Abs(a.Normalize().Dot(b.Normalize()))
	if d > 1 {
		d = 1
	}
	return 2 * math.Acos(d)
}
