// Package posemath holds the stateless geometry shared by the optical
// tracking layers: camera-space unprojection through the per-pixel lookup
// table, row-major 4x4 rigid transforms, look-rotation quaternions and
// covariance-based surface normals.
//
// Vectors are gonum r3.Vec values. Nothing here allocates per call except
// SamplePointCloud, which appends to a caller-supplied slice.
package posemath
