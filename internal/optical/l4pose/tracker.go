package l4pose

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/irtrack/internal/config"
	"github.com/banshee-data/irtrack/internal/optical/l1frames"
	"github.com/banshee-data/irtrack/internal/optical/l3disks"
)

// Phase is the tracker's state-machine phase.
type Phase string

const (
	PhaseNoPrior  Phase = "no_prior" // nothing detected since start or Clear
	PhaseTracking Phase = "tracking" // last frame produced a detection
	PhaseGrace    Phase = "grace"    // previous detection re-published
	PhaseReset    Phase = "reset"    // sentinel published until the rig is found again
)

// TrackerConfig holds configuration parameters for the tracker.
type TrackerConfig struct {
	GraceFrames      int    // Consecutive insufficient frames masked by the previous detection
	SentinelPosition r3.Vec // Published for every marker once the rig is lost
}

// DefaultTrackerConfig returns tracker configuration loaded from the
// canonical tuning defaults file (config/tuning.defaults.json).
// Panics if the file cannot be found.
func DefaultTrackerConfig() TrackerConfig {
	cfg := config.MustLoadDefaultConfig()
	return TrackerConfigFromTuning(cfg)
}

// TrackerConfigFromTuning builds a TrackerConfig from a loaded TuningConfig.
func TrackerConfigFromTuning(cfg *config.TuningConfig) TrackerConfig {
	s := cfg.GetSentinelPosition()
	return TrackerConfig{
		GraceFrames:      cfg.GetGraceFrames(),
		SentinelPosition: r3.Vec{X: s[0], Y: s[1], Z: s[2]},
	}
}

// Result is what the tracker publishes for one frame.
type Result struct {
	Detection Detection
	Phase     Phase
	Verdict   l3disks.Verdict
	SessionID string // "rig_<uuid>", new each time tracking starts from nothing

	// Recovered is set when the detection was completed from three
	// observed markers; RecoveredSlot names the predicted one.
	Recovered     bool
	RecoveredSlot Slot

	// Err records why a frame with candidates still counted as
	// insufficient (ErrDegenerateGeometry or ErrUnresolved).
	Err error
}

// Tracker carries the previous detection between frames and runs the
// grace/reset state machine. It is driven from a single goroutine and holds
// no locks.
type Tracker struct {
	cfg      TrackerConfig
	phase    Phase
	prev     Detection
	hasPrior bool
	misses   int
	session  string
}

// NewTracker creates a new tracker with the specified configuration.
func NewTracker(cfg TrackerConfig) *Tracker {
	return &Tracker{cfg: cfg, phase: PhaseNoPrior}
}

// Phase returns the current phase.
func (t *Tracker) Phase() Phase { return t.phase }

// HasPrior reports whether a previous detection is available for
// three-marker recovery.
func (t *Tracker) HasPrior() bool { return t.hasPrior }

// Previous returns the last valid detection, if any.
func (t *Tracker) Previous() (Detection, bool) { return t.prev, t.hasPrior }

// SessionID returns the current tracking session, or "" before the first
// detection.
func (t *Tracker) SessionID() string { return t.session }

// Hints returns the previous image centroids while tracking, for
// restricting the next labeling pass. Outside PhaseTracking it returns nil.
func (t *Tracker) Hints() []l1frames.ImagePoint {
	if t.phase != PhaseTracking || !t.hasPrior {
		return nil
	}
	return t.prev.ImagePoints()
}

// Sentinel returns the detection published while the rig is lost.
func (t *Tracker) Sentinel() Detection {
	return SentinelDetection(t.cfg.SentinelPosition)
}

// Clear forgets the previous detection and returns to PhaseNoPrior.
func (t *Tracker) Clear() {
	t.phase = PhaseNoPrior
	t.prev = Detection{}
	t.hasPrior = false
	t.misses = 0
	t.session = ""
}

// Step advances the state machine by one frame. cands and verdict come from
// the pruner; camPos is the camera position in candidate space.
func (t *Tracker) Step(cands []l3disks.Disk, verdict l3disks.Verdict, camPos r3.Vec) Result {
	var (
		det Detection
		err error
		res = Result{Verdict: verdict}
	)
	switch verdict {
	case l3disks.VerdictFour:
		det, err = AssignFromGeometry(cands, camPos)
	case l3disks.VerdictThree:
		if !t.hasPrior {
			err = fmt.Errorf("%w: no previous detection", ErrUnresolved)
			break
		}
		var slot Slot
		det, slot, err = ResolveFromThree(t.prev, cands, camPos)
		if err == nil {
			res.Recovered = true
			res.RecoveredSlot = slot
		}
	default:
		return t.insufficient(res)
	}
	if err != nil {
		res.Err = err
		res.Recovered = false
		return t.insufficient(res)
	}
	return t.accept(res, det)
}

func (t *Tracker) accept(res Result, det Detection) Result {
	if t.phase == PhaseNoPrior || t.phase == PhaseReset || t.session == "" {
		t.session = fmt.Sprintf("rig_%s", uuid.NewString())
	}
	t.phase = PhaseTracking
	t.prev = det
	t.hasPrior = true
	t.misses = 0

	res.Detection = det
	res.Phase = t.phase
	res.SessionID = t.session
	return res
}

func (t *Tracker) insufficient(res Result) Result {
	switch t.phase {
	case PhaseTracking, PhaseGrace:
		t.misses++
		if t.misses <= t.cfg.GraceFrames {
			t.phase = PhaseGrace
			res.Detection = t.prev
		} else {
			t.phase = PhaseReset
			t.prev = Detection{}
			t.hasPrior = false
			res.Detection = t.Sentinel()
		}
	default:
		res.Detection = t.Sentinel()
	}
	res.Phase = t.phase
	res.SessionID = t.session
	return res
}

// IsGeometryFailure reports whether err came from degenerate marker
// geometry or an unresolved missing marker.
func IsGeometryFailure(err error) bool {
	return errors.Is(err, ErrDegenerateGeometry) || errors.Is(err, ErrUnresolved)
}
