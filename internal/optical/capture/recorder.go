package capture

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/irtrack/internal/optical"
	"github.com/banshee-data/irtrack/internal/optical/l1frames"
)

const logs optical.Scope = "capture"

// Recorder writes frames into a recording directory.
type Recorder struct {
	dir     string
	written int
}

// NewRecorder creates dir if needed and returns a recorder writing into it.
func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}
	logs.Diagf("recording frames to %s", dir)
	return &Recorder{dir: dir}, nil
}

// Dir returns the recording directory.
func (r *Recorder) Dir() string { return r.dir }

// Written returns the number of frames written.
func (r *Recorder) Written() int { return r.written }

// Write stores f under its index, replacing any earlier frame with the same
// index.
func (r *Recorder) Write(f *l1frames.Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if err := imaging.Save(f.Depth.ToGray16(), DepthPath(r.dir, f.Index)); err != nil {
		return fmt.Errorf("save depth frame %d: %w", f.Index, err)
	}
	if err := imaging.Save(f.IR.ToGray16(), IRPath(r.dir, f.Index)); err != nil {
		return fmt.Errorf("save ir frame %d: %w", f.Index, err)
	}

	meta := FrameMeta{
		Index:      f.Index,
		Timestamp:  f.Timestamp,
		CamToWorld: f.CamToWorld.Rows(),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode frame %d metadata: %w", f.Index, err)
	}
	if err := os.WriteFile(MetaPath(r.dir, f.Index), data, 0o644); err != nil {
		return fmt.Errorf("write frame %d metadata: %w", f.Index, err)
	}
	r.written++
	logs.Framef(f.Index, "recorded")
	return nil
}
