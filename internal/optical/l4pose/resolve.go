package l4pose

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/irtrack/internal/optical/l1frames"
	"github.com/banshee-data/irtrack/internal/optical/l3disks"
)

// ResolveFromThree recovers a detection when exactly one marker is missing.
// Each slot is tried as the missing one: its previous position is moved by
// the shift between the other three slots' previous centroid and the
// observed centroid, the four are assigned from geometry, and the result is
// scored against prev after removing the rigid translation. The lowest score
// wins. The returned slot is where the predicted disk ended up.
func ResolveFromThree(prev Detection, three []l3disks.Disk, camPos r3.Vec) (Detection, Slot, error) {
	if !prev.Valid {
		return Detection{}, South, fmt.Errorf("%w: no previous detection", ErrUnresolved)
	}
	if len(three) != l3disks.MarkerCount-1 {
		return Detection{}, South, fmt.Errorf("%w: %d candidates, want %d", ErrUnresolved, len(three), l3disks.MarkerCount-1)
	}

	var world, camera r3.Vec
	var image l1frames.ImagePoint
	for _, d := range three {
		world = r3.Add(world, d.WorldCentroid)
		camera = r3.Add(camera, d.CameraCentroid)
		image.Row += d.ImageCentroid.Row
		image.Col += d.ImageCentroid.Col
	}
	world = r3.Scale(1.0/3, world)
	camera = r3.Scale(1.0/3, camera)
	image.Row /= 3
	image.Col /= 3

	var (
		best      Detection
		bestSlot  Slot
		bestScore = math.Inf(1)
		found     int
		scores    [l3disks.MarkerCount]float64
		four      [l3disks.MarkerCount]l3disks.Disk
	)
	for _, missing := range Slots {
		pred := extrapolate(prev, missing, world, camera, image)
		pred.Index = len(three)
		copy(four[:], three)
		four[len(three)] = pred

		det, err := AssignFromGeometry(four[:], camPos)
		if err != nil {
			continue
		}
		score := Score(prev, det)
		if math.IsNaN(score) || math.IsInf(score, 0) {
			continue
		}
		scores[found] = score
		found++
		if score < bestScore {
			best, bestScore = det, score
			bestSlot, _ = det.Extrapolated()
		}
	}

	if found == 0 {
		return Detection{}, South, fmt.Errorf("%w: every hypothesis was degenerate", ErrUnresolved)
	}
	if found > 1 && bestScore > 0 {
		tied := true
		for _, s := range scores[1:found] {
			if s != scores[0] {
				tied = false
				break
			}
		}
		if tied {
			return Detection{}, South, fmt.Errorf("%w: %d hypotheses tie at %.6g", ErrUnresolved, found, bestScore)
		}
	}
	return best, bestSlot, nil
}

// extrapolate predicts where slot missing is now, given the centroids of the
// three observed candidates in each space.
func extrapolate(prev Detection, missing Slot, world, camera r3.Vec, image l1frames.ImagePoint) l3disks.Disk {
	var prevWorld, prevCamera r3.Vec
	var prevImage l1frames.ImagePoint
	for _, s := range Slots {
		if s == missing {
			continue
		}
		d := prev.Disks[s]
		prevWorld = r3.Add(prevWorld, d.WorldCentroid)
		prevCamera = r3.Add(prevCamera, d.CameraCentroid)
		prevImage.Row += d.ImageCentroid.Row
		prevImage.Col += d.ImageCentroid.Col
	}
	prevWorld = r3.Scale(1.0/3, prevWorld)
	prevCamera = r3.Scale(1.0/3, prevCamera)
	prevImage.Row /= 3
	prevImage.Col /= 3

	d := prev.Disks[missing]
	d.WorldCentroid = r3.Add(d.WorldCentroid, r3.Sub(world, prevWorld))
	d.CameraCentroid = r3.Add(d.CameraCentroid, r3.Sub(camera, prevCamera))
	d.ImageCentroid.Row += image.Row - prevImage.Row
	d.ImageCentroid.Col += image.Col - prevImage.Col
	d.IsProper = false
	d.Extrapolated = true
	return d
}

// Score sums, over all slots, how far next's marker is from prev's once the
// center shift between the two detections is removed. Zero means next is a
// pure translation of prev.
func Score(prev, next Detection) float64 {
	correction := r3.Sub(prev.Center, next.Center)
	var sum float64
	for _, s := range Slots {
		sum += r3.Norm(r3.Sub(r3.Add(correction, next.Position(s)), prev.Position(s)))
	}
	return sum
}
