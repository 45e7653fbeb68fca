package posemath

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Mat4 is a 4x4 transform stored row-major: m00,m01,m02,m03, m10,...
// The translation lives in elements 3, 7 and 11.
type Mat4 [16]float64

// Identity returns the identity transform.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translation returns a pure translation transform.
func Translation(t r3.Vec) Mat4 {
	m := Identity()
	m[3], m[7], m[11] = t.X, t.Y, t.Z
	return m
}

// Mat4FromRows builds a transform from nested rows, as stored in the
// calibration JSON. It fails unless rows is exactly 4x4.
func Mat4FromRows(rows [][]float64) (Mat4, error) {
	var m Mat4
	if len(rows) != 4 {
		return m, fmt.Errorf("transform must have 4 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if len(row) != 4 {
			return m, fmt.Errorf("transform row %d must have 4 columns, got %d", i, len(row))
		}
		copy(m[i*4:i*4+4], row)
	}
	return m, nil
}

// Apply transforms point p (w=1).
func (m Mat4) Apply(p r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0]*p.X + m[1]*p.Y + m[2]*p.Z + m[3],
		Y: m[4]*p.X + m[5]*p.Y + m[6]*p.Z + m[7],
		Z: m[8]*p.X + m[9]*p.Y + m[10]*p.Z + m[11],
	}
}

// ApplyDirection transforms direction d (w=0), ignoring translation.
func (m Mat4) ApplyDirection(d r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0]*d.X + m[1]*d.Y + m[2]*d.Z,
		Y: m[4]*d.X + m[5]*d.Y + m[6]*d.Z,
		Z: m[8]*d.X + m[9]*d.Y + m[10]*d.Z,
	}
}

// Position returns the translation column, i.e. where the transform maps the origin.
// For a camera-to-world transform this is the camera position in world space.
func (m Mat4) Position() r3.Vec {
	return r3.Vec{X: m[3], Y: m[7], Z: m[11]}
}

// Mul returns m·n, so that (m·n).Apply(p) == m.Apply(n.Apply(p)).
func (m Mat4) Mul(n Mat4) Mat4 {
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var s float64
			for k := 0; k < 4; k++ {
				s += m[r*4+k] * n[k*4+c]
			}
			out[r*4+c] = s
		}
	}
	return out
}

// Transpose returns the transpose of m. Some recorders store column-major matrices.
func (m Mat4) Transpose() Mat4 {
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[c*4+r] = m[r*4+c]
		}
	}
	return out
}

// Rows returns m as nested rows for JSON encoding.
func (m Mat4) Rows() [][]float64 {
	rows := make([][]float64, 4)
	for i := range rows {
		rows[i] = append([]float64(nil), m[i*4:i*4+4]...)
	}
	return rows
}
