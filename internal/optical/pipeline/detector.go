package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/irtrack/internal/config"
	"github.com/banshee-data/irtrack/internal/optical/l1frames"
	"github.com/banshee-data/irtrack/internal/optical/l2labels"
	"github.com/banshee-data/irtrack/internal/optical/l3disks"
	"github.com/banshee-data/irtrack/internal/optical/l4pose"
	"github.com/banshee-data/irtrack/internal/optical/posemath"
)

// FrameResult is everything the detector publishes for one frame. It holds
// values only, so sinks may keep it after PublishDetection returns.
type FrameResult struct {
	Index     uint64
	Timestamp time.Time
	Pose      l4pose.Result
	Stats     FrameStats
	Disabled  bool // the algorithm was off for this frame
}

// DetectionSink receives every processed frame, in order, on the detector's
// goroutine. Implementations that do slow work must hand off internally.
type DetectionSink interface {
	PublishDetection(ctx context.Context, fr *FrameResult) error
}

// isNilInterface checks if an interface value is nil or contains a nil pointer.
func isNilInterface(i interface{}) bool {
	if i == nil {
		return true
	}
	v := reflect.ValueOf(i)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// DetectorConfig holds the parameters of every stage.
type DetectorConfig struct {
	Thresholds l2labels.Thresholds
	Extractor  l3disks.ExtractorConfig
	Tracker    l4pose.TrackerConfig

	// ROIMargin is the hint-region margin in pixels. Negative disables
	// hint regions so every frame scans the full interior.
	ROIMargin int

	// EnableAlgorithm, when false, clears the tracker and skips detection.
	EnableAlgorithm bool
}

// DefaultDetectorConfig returns detector configuration loaded from the
// canonical tuning defaults file (config/tuning.defaults.json).
// Panics if the file cannot be found.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfigFromTuning(config.MustLoadDefaultConfig())
}

// DetectorConfigFromTuning builds a DetectorConfig from a loaded TuningConfig.
func DetectorConfigFromTuning(cfg *config.TuningConfig) DetectorConfig {
	return DetectorConfig{
		Thresholds: l2labels.Thresholds{
			MinDepth:   uint16(cfg.GetMinDepth()),
			MaxDepth:   uint16(cfg.GetMaxDepth()),
			MinIR:      uint16(cfg.GetMinIR()),
			MaxIR:      uint16(cfg.GetMaxIR()),
			CutoffArea: cfg.GetCutoffArea(),
		},
		Extractor: l3disks.ExtractorConfig{
			DepthRadiusMin:  cfg.GetDepthRadiusMin(),
			DepthRadiusMax:  cfg.GetDepthRadiusMax(),
			UseWorldSpace:   cfg.GetUseWorldSpace(),
			EstimateNormals: cfg.GetEstimateNormals(),
		},
		Tracker:         l4pose.TrackerConfigFromTuning(cfg),
		ROIMargin:       cfg.GetROIMargin(),
		EnableAlgorithm: cfg.GetEnableAlgorithm(),
	}
}

// Detector runs labeling, extraction, pruning and correspondence on one
// frame at a time. All buffers are allocated in NewDetector and reused.
// ProcessFrame and the Set* methods must be called from a single goroutine;
// Counters may be read from anywhere.
type Detector struct {
	cfg       DetectorConfig
	labeler   *l2labels.Labeler
	extractor *l3disks.Extractor
	pruner    *l3disks.Pruner
	tracker   *l4pose.Tracker
	sinks     []DetectionSink
	counters  counters
	lastPhase l4pose.Phase
}

// NewDetector builds a detector for frames unprojected through lut.
// Nil sinks are ignored.
func NewDetector(cfg DetectorConfig, lut posemath.LUT, sinks ...DetectionSink) (*Detector, error) {
	extractor, err := l3disks.NewExtractor(cfg.Extractor, lut)
	if err != nil {
		return nil, fmt.Errorf("create extractor: %w", err)
	}
	d := &Detector{
		cfg:       cfg,
		labeler:   l2labels.NewLabeler(cfg.Thresholds),
		extractor: extractor,
		pruner:    l3disks.NewPruner(),
		tracker:   l4pose.NewTracker(cfg.Tracker),
		lastPhase: l4pose.PhaseNoPrior,
	}
	for _, s := range sinks {
		if !isNilInterface(s) {
			d.sinks = append(d.sinks, s)
		}
	}
	return d, nil
}

// Config returns the detector's current configuration.
func (d *Detector) Config() DetectorConfig { return d.cfg }

// SetWorldSpace switches candidate positions between world and camera space.
// The tracker is cleared because the previous detection is in the old space.
func (d *Detector) SetWorldSpace(on bool) {
	if d.cfg.Extractor.UseWorldSpace == on {
		return
	}
	d.cfg.Extractor.UseWorldSpace = on
	d.extractor.SetConfig(d.cfg.Extractor)
	d.tracker.Clear()
	diagf("world space set to %v, tracker cleared", on)
}

// SetAlgorithmEnabled turns detection on or off from the next frame.
func (d *Detector) SetAlgorithmEnabled(on bool) {
	d.cfg.EnableAlgorithm = on
	diagf("algorithm enabled set to %v", on)
}

// Tracker exposes the correspondence tracker for inspection.
func (d *Detector) Tracker() *l4pose.Tracker { return d.tracker }

// LabelMap returns the label map of the last processed frame.
func (d *Detector) LabelMap() []l2labels.Label { return d.labeler.LabelMap() }

// Counters returns a snapshot of the cumulative totals.
func (d *Detector) Counters() Counters { return d.counters.snapshot() }

// ProcessFrame runs one frame through every stage and hands the result to
// each sink. Only a malformed frame returns an error; corrupt input and
// insufficient candidates are reported through the result.
func (d *Detector) ProcessFrame(ctx context.Context, f *l1frames.Frame) (*FrameResult, error) {
	if f == nil {
		return nil, errors.New("nil frame")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	d.counters.frames.Add(1)

	fr := &FrameResult{Index: f.Index, Timestamp: f.Timestamp}
	if !d.cfg.EnableAlgorithm {
		d.tracker.Clear()
		d.counters.disabled.Add(1)
		fr.Disabled = true
		fr.Pose = l4pose.Result{
			Detection: d.tracker.Sentinel(),
			Phase:     d.tracker.Phase(),
			Verdict:   l3disks.VerdictInsufficient,
		}
	} else {
		fr.Pose, fr.Stats = d.detect(f)
	}
	fr.Stats.Elapsed = time.Since(start)

	d.observe(fr)
	d.publish(ctx, fr)
	return fr, nil
}

func (d *Detector) detect(f *l1frames.Frame) (l4pose.Result, FrameStats) {
	var st FrameStats

	st.Region = l2labels.FullFrame()
	if hints := d.tracker.Hints(); hints != nil && d.cfg.ROIMargin >= 0 {
		st.Region = l2labels.HintRegion(hints, d.cfg.ROIMargin)
		st.Hinted = true
	}

	comps, err := d.labeler.Label(f.Depth, f.IR, st.Region)
	st.LabelsUsed = d.labeler.LabelsUsed()
	if err != nil {
		st.Overflow = errors.Is(err, l2labels.ErrLabelOverflow)
		d.counters.overflows.Add(1)
		opsf("frame %d: labeling aborted: %v", f.Index, err)
		comps = nil
	}
	st.Components = len(comps)

	camToWorld := posemath.Identity()
	if d.cfg.Extractor.UseWorldSpace {
		camToWorld = f.CamToWorld
	}
	disks := d.extractor.Extract(comps, f.Depth, camToWorld)
	st.Candidates = len(disks)
	for _, dk := range disks {
		if dk.IsProper {
			st.Proper++
		}
	}

	selected, verdict := d.pruner.Prune(disks, d.tracker.HasPrior())
	st.Selected = len(selected)

	var camPos r3.Vec
	if d.cfg.Extractor.UseWorldSpace {
		camPos = camToWorld.Position()
	}
	res := d.tracker.Step(selected, verdict, camPos)

	tracef("frame %d: region=%+v hinted=%v labels=%d components=%d candidates=%d proper=%d selected=%d verdict=%s phase=%s",
		f.Index, st.Region, st.Hinted, st.LabelsUsed, st.Components, st.Candidates, st.Proper, st.Selected, verdict, res.Phase)
	return res, st
}

func (d *Detector) observe(fr *FrameResult) {
	res := fr.Pose
	if res.Phase != l4pose.PhaseTracking && !fr.Disabled {
		d.counters.insufficient.Add(1)
	}
	if res.Phase == l4pose.PhaseGrace {
		d.counters.graceFrames.Add(1)
	}
	if res.Recovered {
		d.counters.recoveries.Add(1)
	}
	if l4pose.IsGeometryFailure(res.Err) {
		d.counters.geometryFailures.Add(1)
		opsf("frame %d: %v", fr.Index, res.Err)
	}
	if res.Phase == d.lastPhase {
		return
	}
	if res.Phase == l4pose.PhaseReset {
		d.counters.resets.Add(1)
	}
	diagf("frame %d: phase %s -> %s (session %s)", fr.Index, d.lastPhase, res.Phase, res.SessionID)
	d.lastPhase = res.Phase
}

func (d *Detector) publish(ctx context.Context, fr *FrameResult) {
	for _, s := range d.sinks {
		if err := s.PublishDetection(ctx, fr); err != nil {
			d.counters.sinkErrors.Add(1)
			opsf("frame %d: sink %T: %v", fr.Index, s, err)
		}
	}
}
