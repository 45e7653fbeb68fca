package l4pose

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/irtrack/internal/optical/l1frames"
	"github.com/banshee-data/irtrack/internal/optical/l3disks"
	"github.com/banshee-data/irtrack/internal/optical/posemath"
)

// ErrDegenerateGeometry is returned when marker positions are too close
// together or non-finite to define a rig frame.
var ErrDegenerateGeometry = errors.New("degenerate marker geometry")

// ErrUnresolved is returned when no missing-marker hypothesis can be chosen.
var ErrUnresolved = errors.New("missing marker could not be resolved")

// Slot names one of the four rig markers.
type Slot int

const (
	South Slot = iota
	West
	North
	East
)

// Slots lists every slot in storage order.
var Slots = [l3disks.MarkerCount]Slot{South, West, North, East}

func (s Slot) String() string {
	switch s {
	case South:
		return "south"
	case West:
		return "west"
	case North:
		return "north"
	case East:
		return "east"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

// Detection is the resolved four-marker rig for one frame. When Valid, each
// slot holds a distinct candidate.
type Detection struct {
	Center      r3.Vec
	Disks       [l3disks.MarkerCount]l3disks.Disk // indexed by Slot
	Forward     r3.Vec                            // unit, center toward south
	Left        r3.Vec                            // unit, center toward west
	Up          r3.Vec                            // unit, toward the camera side
	Orientation quat.Number                       // facing Left with Up as up
	Valid       bool
}

// Disk returns the disk in slot s.
func (d Detection) Disk(s Slot) l3disks.Disk { return d.Disks[s] }

// Position returns the world centroid of slot s.
func (d Detection) Position(s Slot) r3.Vec { return d.Disks[s].WorldCentroid }

func (d Detection) South() l3disks.Disk { return d.Disks[South] }
func (d Detection) West() l3disks.Disk  { return d.Disks[West] }
func (d Detection) North() l3disks.Disk { return d.Disks[North] }
func (d Detection) East() l3disks.Disk  { return d.Disks[East] }

// Positions returns the four slot positions in slot order.
func (d Detection) Positions() [l3disks.MarkerCount]r3.Vec {
	var out [l3disks.MarkerCount]r3.Vec
	for _, s := range Slots {
		out[s] = d.Position(s)
	}
	return out
}

// ImagePoints returns the four image centroids, for building a scan hint.
func (d Detection) ImagePoints() []l1frames.ImagePoint {
	out := make([]l1frames.ImagePoint, 0, l3disks.MarkerCount)
	for _, s := range Slots {
		out = append(out, d.Disks[s].ImageCentroid)
	}
	return out
}

// Extrapolated reports which slot, if any, holds a predicted disk.
func (d Detection) Extrapolated() (Slot, bool) {
	for _, s := range Slots {
		if d.Disks[s].Extrapolated {
			return s, true
		}
	}
	return South, false
}

// SentinelDetection returns an invalid detection with the center and every
// marker parked at pos.
func SentinelDetection(pos r3.Vec) Detection {
	d := Detection{
		Center:      pos,
		Orientation: posemath.IdentityRotation,
	}
	for _, s := range Slots {
		d.Disks[s] = l3disks.Disk{
			Index:          -1,
			CameraCentroid: pos,
			WorldCentroid:  pos,
			Normal:         posemath.DefaultNormal,
		}
	}
	return d
}
