package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/banshee-data/irtrack/internal/optical/l2labels"
)

// FrameStats describes the work done on one frame.
type FrameStats struct {
	Region     l2labels.Region // scan window actually used
	Hinted     bool            // Region came from the previous detection
	LabelsUsed int             // provisional labels allocated
	Components int             // regions surviving the area cutoff
	Candidates int             // disks extracted
	Selected   int             // disks kept by the pruner
	Proper     int             // extracted disks passing the plausibility test
	Overflow   bool            // the label space was exhausted
	Elapsed    time.Duration
}

// Counters are cumulative detector totals. A snapshot is returned by
// Detector.Counters.
type Counters struct {
	Frames           uint64 `json:"frames"`
	Disabled         uint64 `json:"disabled"`
	Overflows        uint64 `json:"overflows"`
	Insufficient     uint64 `json:"insufficient"`
	GraceFrames      uint64 `json:"grace_frames"`
	Resets           uint64 `json:"resets"`
	Recoveries       uint64 `json:"recoveries"`
	GeometryFailures uint64 `json:"geometry_failures"`
	SinkErrors       uint64 `json:"sink_errors"`
}

type counters struct {
	frames           atomic.Uint64
	disabled         atomic.Uint64
	overflows        atomic.Uint64
	insufficient     atomic.Uint64
	graceFrames      atomic.Uint64
	resets           atomic.Uint64
	recoveries       atomic.Uint64
	geometryFailures atomic.Uint64
	sinkErrors       atomic.Uint64
}

func (c *counters) snapshot() Counters {
	return Counters{
		Frames:           c.frames.Load(),
		Disabled:         c.disabled.Load(),
		Overflows:        c.overflows.Load(),
		Insufficient:     c.insufficient.Load(),
		GraceFrames:      c.graceFrames.Load(),
		Resets:           c.resets.Load(),
		Recoveries:       c.recoveries.Load(),
		GeometryFailures: c.geometryFailures.Load(),
		SinkErrors:       c.sinkErrors.Load(),
	}
}
