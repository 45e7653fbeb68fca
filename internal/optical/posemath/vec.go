package posemath

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// MinNormalizeLength is the shortest vector Normalize will scale to unit length.
const MinNormalizeLength = 1e-9

// Normalize returns the unit vector of v. ok is false when v is shorter than
// MinNormalizeLength or contains NaN/Inf, in which case the zero vector is returned.
func Normalize(v r3.Vec) (r3.Vec, bool) {
	n := r3.Norm(v)
	if n < MinNormalizeLength || math.IsNaN(n) || math.IsInf(n, 0) {
		return r3.Vec{}, false
	}
	return r3.Scale(1/n, v), true
}

// IsFinite reports whether all components of v are finite.
func IsFinite(v r3.Vec) bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Mean returns the arithmetic mean of pts. The zero vector is returned for an empty slice.
func Mean(pts ...r3.Vec) r3.Vec {
	if len(pts) == 0 {
		return r3.Vec{}
	}
	var sum r3.Vec
	for _, p := range pts {
		sum = r3.Add(sum, p)
	}
	return r3.Scale(1/float64(len(pts)), sum)
}

// Distance is the Euclidean distance between p and q.
func Distance(p, q r3.Vec) float64 {
	return r3.Norm(r3.Sub(p, q))
}

// DistanceSquared is the squared Euclidean distance between p and q.
func DistanceSquared(p, q r3.Vec) float64 {
	return r3.Norm2(r3.Sub(p, q))
}
