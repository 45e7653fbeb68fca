package l3disks

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/irtrack/internal/optical/l1frames"
)

// Disk is one candidate marker summarised from a labeled region. Disks are
// values: the extractor creates them fresh each frame and nothing mutates
// them afterwards.
type Disk struct {
	Index          int                 // position in the frame's candidate list
	Area           int                 // pixel count
	Radius         float64             // sqrt(Area), pixels
	MeanDepth      float64             // millimetres
	ImageCentroid  l1frames.ImagePoint // mean (row, col)
	CameraCentroid r3.Vec              // metres, camera space
	WorldCentroid  r3.Vec              // metres; equals CameraCentroid when world space is off
	Normal         r3.Vec              // unit surface normal, pointing toward the camera
	IsProper       bool                // MeanDepth*Radius inside the plausibility band
	Extrapolated   bool                // predicted from a previous detection, not observed
}

// DepthRadius is the product used by the plausibility test. A marker of fixed
// physical size keeps it roughly constant as distance changes.
func (d Disk) DepthRadius() float64 {
	return d.MeanDepth * d.Radius
}

// RadiusFromArea returns the nominal radius of a region of the given area.
func RadiusFromArea(area int) float64 {
	return math.Sqrt(float64(area))
}
