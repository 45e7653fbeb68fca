// Package calib loads the depth camera's calibration bundle: the per-pixel
// unprojection mesh, the camera/rig extrinsics, and the rig-to-world pose
// of every recorded frame.
package calib

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/irtrack/internal/optical/posemath"
)

// ErrNoPose is returned when a timestamp has no rig-to-world entry.
var ErrNoPose = errors.New("no rig pose for timestamp")

// Metadata is the on-disk JSON layout. Matrices are row-major 4x4 arrays and
// rig2world is keyed by the decimal frame timestamp.
type Metadata struct {
	DepthMesh  [][][3]float64         `json:"depth_mesh"`
	RigToCam   [][]float64            `json:"rig2cam,omitempty"`
	CamToRig   [][]float64            `json:"cam2rig"`
	RigToWorld map[string][][]float64 `json:"rig2world,omitempty"`
}

// Bundle is decoded calibration ready for the detector.
type Bundle struct {
	LUT        posemath.LUT
	CamToRig   posemath.Mat4
	RigToCam   posemath.Mat4
	RigToWorld map[int64]posemath.Mat4

	timestamps []int64
}

// Load reads a calibration bundle from a JSON file.
func Load(path string) (*Bundle, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open calibration: %w", err)
	}
	defer f.Close()
	b, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// Decode parses a calibration bundle.
func Decode(r io.Reader) (*Bundle, error) {
	var md Metadata
	if err := json.NewDecoder(r).Decode(&md); err != nil {
		return nil, fmt.Errorf("decode calibration JSON: %w", err)
	}
	return md.Bundle()
}

// Bundle validates the metadata and converts it.
func (md *Metadata) Bundle() (*Bundle, error) {
	height := len(md.DepthMesh)
	if height == 0 {
		return nil, errors.New("depth_mesh is empty")
	}
	width := len(md.DepthMesh[0])
	rays := make([]r3.Vec, 0, width*height)
	for row, line := range md.DepthMesh {
		if len(line) != width {
			return nil, fmt.Errorf("depth_mesh row %d has %d columns, want %d", row, len(line), width)
		}
		for _, v := range line {
			rays = append(rays, r3.Vec{X: v[0], Y: v[1], Z: v[2]})
		}
	}
	lut, err := posemath.NewLUT(width, height, rays)
	if err != nil {
		return nil, err
	}

	b := &Bundle{
		LUT:        lut,
		RigToWorld: make(map[int64]posemath.Mat4, len(md.RigToWorld)),
	}
	if b.CamToRig, err = posemath.Mat4FromRows(md.CamToRig); err != nil {
		return nil, fmt.Errorf("cam2rig: %w", err)
	}
	if md.RigToCam != nil {
		if b.RigToCam, err = posemath.Mat4FromRows(md.RigToCam); err != nil {
			return nil, fmt.Errorf("rig2cam: %w", err)
		}
	} else {
		b.RigToCam = posemath.Identity()
	}
	for key, rows := range md.RigToWorld {
		ts, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("rig2world key %q: %w", key, err)
		}
		m, err := posemath.Mat4FromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("rig2world[%d]: %w", ts, err)
		}
		b.RigToWorld[ts] = m
		b.timestamps = append(b.timestamps, ts)
	}
	sort.Slice(b.timestamps, func(i, j int) bool { return b.timestamps[i] < b.timestamps[j] })
	return b, nil
}

// Timestamps returns the frame timestamps with a rig pose, ascending.
func (b *Bundle) Timestamps() []int64 { return b.timestamps }

// CamToWorld returns the camera-to-world transform at ts: camera to rig,
// then rig to world.
func (b *Bundle) CamToWorld(ts int64) (posemath.Mat4, error) {
	rigToWorld, ok := b.RigToWorld[ts]
	if !ok {
		return posemath.Identity(), fmt.Errorf("%w %d", ErrNoPose, ts)
	}
	return rigToWorld.Mul(b.CamToRig), nil
}
