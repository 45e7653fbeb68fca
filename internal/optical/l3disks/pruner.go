package l3disks

import (
	"github.com/banshee-data/irtrack/internal/optical/posemath"
)

// MarkerCount is the number of markers on a rig.
const MarkerCount = 4

// MinProperMarkers is how many of four candidates must pass the
// plausibility test for the set to be accepted.
const MinProperMarkers = 3

// Verdict is the outcome of pruning one frame's candidates.
type Verdict string

const (
	// VerdictInsufficient means the frame cannot support tracking.
	VerdictInsufficient Verdict = "insufficient"
	// VerdictThree means one marker is missing and must be extrapolated
	// from the previous detection.
	VerdictThree Verdict = "three"
	// VerdictFour means all four markers were found.
	VerdictFour Verdict = "four"
)

// Pruner reduces a candidate list to the markers of one rig. Its scratch
// buffers are reused between calls; it is not safe for concurrent use.
type Pruner struct {
	work []Disk
	sums []float64
}

// NewPruner returns a pruner sized for a frame's worth of candidates.
func NewPruner() *Pruner {
	return &Pruner{
		work: make([]Disk, 0, 255),
		sums: make([]float64, 0, 255),
	}
}

// Prune returns the candidates relevant to tracking and the verdict.
// hasPrior reports whether a previous detection exists to extrapolate a
// missing marker from. The returned slice is valid until the next call.
func (p *Pruner) Prune(disks []Disk, hasPrior bool) ([]Disk, Verdict) {
	switch {
	case len(disks) < MarkerCount-1:
		return nil, VerdictInsufficient
	case len(disks) == MarkerCount-1:
		if !hasPrior {
			return nil, VerdictInsufficient
		}
		p.work = append(p.work[:0], disks...)
		return p.work, VerdictThree
	}

	p.work = append(p.work[:0], disks...)
	for len(p.work) > MarkerCount {
		p.work = removeAt(p.work, p.mostIsolated())
	}

	proper := 0
	for _, d := range p.work {
		if d.IsProper {
			proper++
		}
	}
	if proper < MinProperMarkers {
		return nil, VerdictInsufficient
	}
	return p.work, VerdictFour
}

// mostIsolated returns the index of the candidate whose summed distance to
// every other candidate is largest. Ties go to the earliest candidate.
func (p *Pruner) mostIsolated() int {
	p.sums = p.sums[:0]
	for i := range p.work {
		var sum float64
		for j := range p.work {
			if i != j {
				sum += posemath.Distance(p.work[i].WorldCentroid, p.work[j].WorldCentroid)
			}
		}
		p.sums = append(p.sums, sum)
	}
	worst := 0
	for i, s := range p.sums {
		if s > p.sums[worst] {
			worst = i
		}
	}
	return worst
}

func removeAt(ds []Disk, i int) []Disk {
	copy(ds[i:], ds[i+1:])
	return ds[:len(ds)-1]
}
