package posemath

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// LUT maps each pixel of the depth image to a camera-space ray. Scaling a ray
// by the pixel's depth in millimetres and dividing by 1000 yields the point in
// metres. The table is row-major with Width columns.
type LUT struct {
	Width  int
	Height int
	Rays   []r3.Vec
}

// NewLUT wraps rays as a width x height lookup table.
func NewLUT(width, height int, rays []r3.Vec) (LUT, error) {
	if width <= 0 || height <= 0 {
		return LUT{}, fmt.Errorf("invalid LUT dimensions %dx%d", width, height)
	}
	if len(rays) != width*height {
		return LUT{}, fmt.Errorf("LUT has %d rays, want %d", len(rays), width*height)
	}
	return LUT{Width: width, Height: height, Rays: rays}, nil
}

// NewPinholeLUT builds the lookup table of an ideal pinhole camera with focal
// lengths fx, fy and principal point (cx, cy), all in pixels. Rays have z=1,
// x growing with the column and y growing with the row.
func NewPinholeLUT(width, height int, fx, fy, cx, cy float64) LUT {
	rays := make([]r3.Vec, width*height)
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			rays[row*width+col] = r3.Vec{
				X: (float64(col) - cx) / fx,
				Y: (float64(row) - cy) / fy,
				Z: 1,
			}
		}
	}
	return LUT{Width: width, Height: height, Rays: rays}
}

// Len returns the number of pixels covered by the table.
func (l LUT) Len() int { return len(l.Rays) }

// Unproject returns the camera-space point, in metres, of pixel idx at the
// given depth in millimetres.
func (l LUT) Unproject(idx int, depthMM uint16) r3.Vec {
	return Unproject(l.Rays[idx], depthMM)
}

// Unproject scales a lookup-table ray by a depth sample: ray * depth / 1000.
func Unproject(ray r3.Vec, depthMM uint16) r3.Vec {
	return r3.Scale(float64(depthMM)/1000, ray)
}
