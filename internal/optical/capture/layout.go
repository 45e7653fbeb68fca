// Package capture records and replays depth+IR footage. A recording is a
// directory holding, per frame, two 16-bit grayscale PNGs and a JSON
// sidecar:
//
//	000042_depth.png
//	000042_ir.png
//	000042.json
package capture

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	depthSuffix = "_depth.png"
	irSuffix    = "_ir.png"
	metaSuffix  = ".json"
)

// FrameMeta is the JSON sidecar of one recorded frame.
type FrameMeta struct {
	Index      uint64      `json:"index"`
	Timestamp  time.Time   `json:"timestamp"`
	CamToWorld [][]float64 `json:"cam2world"`
}

// DepthPath returns the depth image path of frame index in dir.
func DepthPath(dir string, index uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%06d%s", index, depthSuffix))
}

// IRPath returns the infrared image path of frame index in dir.
func IRPath(dir string, index uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%06d%s", index, irSuffix))
}

// MetaPath returns the sidecar path of frame index in dir.
func MetaPath(dir string, index uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%06d%s", index, metaSuffix))
}

// parseDepthName extracts the frame index from a depth image file name.
func parseDepthName(name string) (uint64, bool) {
	stem, ok := strings.CutSuffix(name, depthSuffix)
	if !ok {
		return 0, false
	}
	idx, err := strconv.ParseUint(stem, 10, 64)
	if err != nil {
		return 0, false
	}
	return idx, true
}
