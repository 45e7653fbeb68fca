package l4pose

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/irtrack/internal/optical/l3disks"
	"github.com/banshee-data/irtrack/internal/optical/posemath"
)

// AssignFromGeometry labels four candidates by their arrangement around
// their mean and derives the rig pose. camPos is the camera position in the
// same space as the candidates' world centroids. The result depends only on
// the positions, not on their order, except for exact distance ties.
func AssignFromGeometry(cands []l3disks.Disk, camPos r3.Vec) (Detection, error) {
	if len(cands) != l3disks.MarkerCount {
		return Detection{}, fmt.Errorf("%w: %d candidates, want %d", ErrDegenerateGeometry, len(cands), l3disks.MarkerCount)
	}
	var center r3.Vec
	for _, c := range cands {
		if !posemath.IsFinite(c.WorldCentroid) {
			return Detection{}, fmt.Errorf("%w: non-finite candidate %d", ErrDegenerateGeometry, c.Index)
		}
		center = r3.Add(center, c.WorldCentroid)
	}
	center = r3.Scale(1/float64(len(cands)), center)

	remaining := make([]int, 0, l3disks.MarkerCount)
	for i := range cands {
		remaining = append(remaining, i)
	}
	take := func(from r3.Vec) int {
		best, bestDist := 0, -1.0
		for k, i := range remaining {
			if d := posemath.DistanceSquared(cands[i].WorldCentroid, from); d > bestDist {
				best, bestDist = k, d
			}
		}
		idx := remaining[best]
		remaining = append(remaining[:best], remaining[best+1:]...)
		return idx
	}

	var det Detection
	det.Center = center

	south := take(center)
	forward, ok := posemath.Normalize(r3.Sub(cands[south].WorldCentroid, center))
	if !ok {
		return Detection{}, fmt.Errorf("%w: markers coincide with their center", ErrDegenerateGeometry)
	}
	toCamera, ok := posemath.Normalize(r3.Sub(camPos, center))
	if !ok {
		return Detection{}, fmt.Errorf("%w: camera at rig center", ErrDegenerateGeometry)
	}
	lateral, ok := posemath.Normalize(r3.Cross(forward, toCamera))
	if !ok {
		return Detection{}, fmt.Errorf("%w: camera in line with south marker", ErrDegenerateGeometry)
	}

	west := take(r3.Add(center, lateral))
	north := take(cands[south].WorldCentroid)
	east := remaining[0]

	left, ok := posemath.Normalize(r3.Sub(cands[west].WorldCentroid, center))
	if !ok {
		return Detection{}, fmt.Errorf("%w: west marker at center", ErrDegenerateGeometry)
	}
	up := r3.Cross(forward, left)
	if r3.Dot(up, toCamera) < 0 {
		up = r3.Scale(-1, up)
	}
	orientation, ok := posemath.LookRotation(left, up)
	if !ok {
		return Detection{}, fmt.Errorf("%w: south and west markers are collinear with center", ErrDegenerateGeometry)
	}

	det.Disks[South] = cands[south]
	det.Disks[West] = cands[west]
	det.Disks[North] = cands[north]
	det.Disks[East] = cands[east]
	det.Forward = forward
	det.Left = left
	det.Up, _ = posemath.Normalize(up)
	det.Orientation = orientation
	det.Valid = true

	if !posemath.IsFinite(det.Up) || math.IsNaN(orientation.Real) {
		return Detection{}, fmt.Errorf("%w: non-finite pose", ErrDegenerateGeometry)
	}
	return det, nil
}
