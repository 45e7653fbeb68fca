package posemath

import "gonum.org/v1/gonum/spatial/r3"

// PointCloudConfig controls SamplePointCloud.
type PointCloudConfig struct {
	Spacing   int    // Sample every Spacing-th row and column
	Border    int    // Pixels skipped along each image edge
	MinDepth  uint16 // Exclusive lower bound, millimetres
	MaxDepth  uint16 // Exclusive upper bound, millimetres
	MaxPoints int    // Zero means unbounded
}

// DefaultPointCloudConfig returns the sampling used by the live preview.
func DefaultPointCloudConfig() PointCloudConfig {
	return PointCloudConfig{
		Spacing:  3,
		Border:   16,
		MinDepth: 100,
		MaxDepth: 4000,
	}
}

// SamplePointCloud unprojects a sparse grid of depth pixels through lut and
// appends the points to dst. When toWorld is non-nil each point is
// transformed by it.
func SamplePointCloud(dst []r3.Vec, depth []uint16, lut LUT, toWorld *Mat4, cfg PointCloudConfig) []r3.Vec {
	spacing := cfg.Spacing
	if spacing < 1 {
		spacing = 1
	}
	for row := cfg.Border; row < lut.Height-cfg.Border; row += spacing {
		for col := cfg.Border; col < lut.Width-cfg.Border; col += spacing {
			i := row*lut.Width + col
			d := depth[i]
			if d <= cfg.MinDepth || d >= cfg.MaxDepth {
				continue
			}
			p := lut.Unproject(i, d)
			if toWorld != nil {
				p = toWorld.Apply(p)
			}
			dst = append(dst, p)
			if cfg.MaxPoints > 0 && len(dst) >= cfg.MaxPoints {
				return dst
			}
		}
	}
	return dst
}
