package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/irtrack/internal/optical/l1frames"
	"github.com/banshee-data/irtrack/internal/optical/posemath"
	"github.com/banshee-data/irtrack/internal/timeutil"
)

// ErrEmptyRecording is returned when a directory holds no depth frames.
var ErrEmptyRecording = errors.New("recording has no frames")

// ReplayOptions controls replay pacing.
type ReplayOptions struct {
	// Interval between delivered frames. Zero replays as fast as the
	// consumer accepts them.
	Interval time.Duration
	// Loop restarts from the first frame after the last one.
	Loop bool
	// Clock paces delivery. Nil uses the wall clock.
	Clock timeutil.Clock
}

// Replayer reads a recording back in index order. Images are decoded into
// scratch planes and then copied into a FrameBuffers, so a frame that fails
// to decode never leaves the buffers half updated. A Replayer is not safe
// for concurrent use.
type Replayer struct {
	dir     string
	opts    ReplayOptions
	indices []uint64

	bufs         *l1frames.FrameBuffers
	depthScratch l1frames.Plane
	irScratch    l1frames.Plane
}

// OpenReplay scans dir for recorded frames.
func OpenReplay(dir string, opts ReplayOptions) (*Replayer, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read recording dir: %w", err)
	}
	var indices []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if idx, ok := parseDepthName(e.Name()); ok {
			indices = append(indices, idx)
		}
	}
	if len(indices) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyRecording, dir)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	logs.Diagf("opened recording %s: %d frames, interval %s, loop %v", dir, len(indices), opts.Interval, opts.Loop)
	return &Replayer{
		dir:          dir,
		opts:         opts,
		indices:      indices,
		bufs:         l1frames.NewFrameBuffers(),
		depthScratch: l1frames.NewPlane(),
		irScratch:    l1frames.NewPlane(),
	}, nil
}

// Len returns the number of frames in the recording.
func (r *Replayer) Len() int { return len(r.indices) }

// Indices returns the recorded frame indices in replay order.
func (r *Replayer) Indices() []uint64 { return r.indices }

// ReadFrame loads the i-th frame of the recording into a newly allocated
// frame. A missing sidecar leaves the identity pose and a zero timestamp.
func (r *Replayer) ReadFrame(i int) (*l1frames.Frame, error) {
	return r.readInto(i, l1frames.NewFrameBuffers())
}

// readInto decodes the i-th frame into bufs and returns bufs' frame.
func (r *Replayer) readInto(i int, bufs *l1frames.FrameBuffers) (*l1frames.Frame, error) {
	if i < 0 || i >= len(r.indices) {
		return nil, fmt.Errorf("frame %d out of range [0, %d)", i, len(r.indices))
	}
	idx := r.indices[i]

	if err := readPlane(DepthPath(r.dir, idx), r.depthScratch); err != nil {
		return nil, fmt.Errorf("frame %d depth: %w", idx, err)
	}
	if err := readPlane(IRPath(r.dir, idx), r.irScratch); err != nil {
		return nil, fmt.Errorf("frame %d ir: %w", idx, err)
	}
	if err := bufs.Update(r.depthScratch, r.irScratch); err != nil {
		return nil, fmt.Errorf("frame %d: %w", idx, err)
	}
	f := bufs.Frame()
	f.Index = idx
	f.Timestamp = time.Time{}
	f.CamToWorld = posemath.Identity()

	data, err := os.ReadFile(MetaPath(r.dir, idx))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("frame %d metadata: %w", idx, err)
	}
	var meta FrameMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("frame %d metadata: %w", idx, err)
	}
	f.Timestamp = meta.Timestamp
	if meta.CamToWorld != nil {
		if f.CamToWorld, err = posemath.Mat4FromRows(meta.CamToWorld); err != nil {
			return nil, fmt.Errorf("frame %d cam2world: %w", idx, err)
		}
	}
	return f, nil
}

func readPlane(path string, dst l1frames.Plane) error {
	img, err := imaging.Open(path)
	if err != nil {
		return err
	}
	return l1frames.DecodeInto(dst, img)
}

// Run delivers every frame to fn in order, paced by the configured
// interval, until the recording ends (without Loop), fn returns an error,
// or ctx is cancelled. It returns nil when the recording ends.
//
// Every call to fn receives the same *Frame backed by the replayer's
// FrameBuffers; fn must copy anything it keeps past its return.
func (r *Replayer) Run(ctx context.Context, fn func(*l1frames.Frame) error) error {
	var tick <-chan time.Time
	if r.opts.Interval > 0 {
		ticker := r.opts.Clock.NewTicker(r.opts.Interval)
		defer ticker.Stop()
		tick = ticker.C()
	}

	for pass := 0; ; pass++ {
		for i := range r.indices {
			if tick != nil {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-tick:
				}
			} else if err := ctx.Err(); err != nil {
				return err
			}

			f, err := r.readInto(i, r.bufs)
			if err != nil {
				return err
			}
			if err := fn(f); err != nil {
				return err
			}
		}
		if !r.opts.Loop {
			return nil
		}
		logs.Diagf("replay of %s wrapped after pass %d", r.dir, pass+1)
	}
}
