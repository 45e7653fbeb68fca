package posemath

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultNormal is reported when a surface normal cannot be estimated.
var DefaultNormal = r3.Vec{Y: 1}

// Covariance accumulates first and second moments of a point set in a single
// pass so that a disk's centroid and plane normal come out of the same loop.
// The zero value is ready to use.
type Covariance struct {
	n                      int
	sum                    r3.Vec
	xx, xy, xz, yy, yz, zz float64
}

// Reset empties the accumulator.
func (c *Covariance) Reset() { *c = Covariance{} }

// Add accumulates point p.
func (c *Covariance) Add(p r3.Vec) {
	c.n++
	c.sum = r3.Add(c.sum, p)
	c.xx += p.X * p.X
	c.xy += p.X * p.Y
	c.xz += p.X * p.Z
	c.yy += p.Y * p.Y
	c.yz += p.Y * p.Z
	c.zz += p.Z * p.Z
}

// Count returns the number of accumulated points.
func (c *Covariance) Count() int { return c.n }

// Mean returns the centroid of the accumulated points.
func (c *Covariance) Mean() r3.Vec {
	if c.n == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/float64(c.n), c.sum)
}

// Normal returns the unit normal of the best-fit plane through the
// accumulated points: the eigenvector of the smallest covariance eigenvalue.
// The normal is flipped to point toward viewpoint. ok is false when fewer
// than three points were added or the factorisation fails.
func (c *Covariance) Normal(viewpoint r3.Vec) (r3.Vec, bool) {
	if c.n < 3 {
		return DefaultNormal, false
	}
	inv := 1 / float64(c.n)
	m := c.Mean()
	cov := mat.NewSymDense(3, []float64{
		c.xx*inv - m.X*m.X, c.xy*inv - m.X*m.Y, c.xz*inv - m.X*m.Z,
		c.xy*inv - m.X*m.Y, c.yy*inv - m.Y*m.Y, c.yz*inv - m.Y*m.Z,
		c.xz*inv - m.X*m.Z, c.yz*inv - m.Y*m.Z, c.zz*inv - m.Z*m.Z,
	})

	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return DefaultNormal, false
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// Eigenvalues come back in ascending order.
	n, ok := Normalize(r3.Vec{X: vecs.At(0, 0), Y: vecs.At(1, 0), Z: vecs.At(2, 0)})
	if !ok {
		return DefaultNormal, false
	}
	if r3.Dot(n, r3.Sub(viewpoint, m)) < 0 {
		n = r3.Scale(-1, n)
	}
	return n, true
}
