package capture

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/irtrack/internal/optical/l1frames"
	"github.com/banshee-data/irtrack/internal/optical/posemath"
	"github.com/banshee-data/irtrack/internal/testutil"
	"github.com/banshee-data/irtrack/internal/timeutil"
)

func recordFrames(t *testing.T, dir string, indices ...uint64) []*l1frames.Frame {
	t.Helper()
	rec, err := NewRecorder(dir)
	require.NoError(t, err)
	var frames []*l1frames.Frame
	for _, idx := range indices {
		f := testutil.NewFrame(idx, testutil.RigBlobs(200+int(idx), 256)...)
		f.CamToWorld = posemath.Translation(r3.Vec{X: float64(idx), Y: 1.5, Z: -2})
		require.NoError(t, rec.Write(f))
		frames = append(frames, f)
	}
	assert.Equal(t, len(indices), rec.Written())
	return frames
}

func TestRecordReplayRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	frames := recordFrames(t, dir, 12, 3, 7)

	r, err := OpenReplay(dir, ReplayOptions{})
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 7, 12}, r.Indices())

	want := map[uint64]*l1frames.Frame{}
	for _, f := range frames {
		want[f.Index] = f
	}
	for i := 0; i < r.Len(); i++ {
		got, err := r.ReadFrame(i)
		require.NoError(t, err)
		exp := want[got.Index]
		require.NotNil(t, exp)
		assert.True(t, slices.Equal(exp.Depth, got.Depth), "depth plane of frame %d", got.Index)
		assert.True(t, slices.Equal(exp.IR, got.IR), "ir plane of frame %d", got.Index)
		assert.True(t, exp.Timestamp.Equal(got.Timestamp))
		assert.Equal(t, exp.CamToWorld, got.CamToWorld)
	}

	_, err = r.ReadFrame(3)
	assert.Error(t, err)
}

func TestReplayMissingSidecar(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	recordFrames(t, dir, 1)
	require.NoError(t, os.Remove(MetaPath(dir, 1)))

	r, err := OpenReplay(dir, ReplayOptions{})
	require.NoError(t, err)
	f, err := r.ReadFrame(0)
	require.NoError(t, err)
	assert.True(t, f.Timestamp.IsZero())
	assert.Equal(t, posemath.Identity(), f.CamToWorld)
}

func TestReplayBadSidecar(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	recordFrames(t, dir, 1)
	require.NoError(t, os.WriteFile(MetaPath(dir, 1), []byte(`{"cam2world": [[1,0,0]]}`), 0o644))

	r, err := OpenReplay(dir, ReplayOptions{})
	require.NoError(t, err)
	_, err = r.ReadFrame(0)
	assert.Error(t, err)
}

func TestOpenReplayEmpty(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc_depth.png"), []byte("x"), 0o644))

	_, err := OpenReplay(dir, ReplayOptions{})
	assert.True(t, errors.Is(err, ErrEmptyRecording))

	_, err = OpenReplay(filepath.Join(dir, "missing"), ReplayOptions{})
	assert.Error(t, err)
}

func TestReplayUnpaced(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	recordFrames(t, dir, 0, 1, 2, 3)

	r, err := OpenReplay(dir, ReplayOptions{})
	require.NoError(t, err)
	var got []uint64
	err = r.Run(context.Background(), func(f *l1frames.Frame) error {
		got = append(got, f.Index)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2, 3}, got)
}

func TestReplayReusesFrameBuffers(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	frames := recordFrames(t, dir, 0, 1, 2)

	r, err := OpenReplay(dir, ReplayOptions{})
	require.NoError(t, err)
	var seen []*l1frames.Frame
	err = r.Run(context.Background(), func(f *l1frames.Frame) error {
		exp := frames[f.Index]
		assert.True(t, slices.Equal(exp.Depth, f.Depth), "depth plane of frame %d", f.Index)
		assert.Equal(t, exp.CamToWorld, f.CamToWorld)
		seen = append(seen, f)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 3)
	assert.Same(t, seen[0], seen[2])
}

func TestReplayCorruptFrameKeepsBuffers(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	frames := recordFrames(t, dir, 0, 1)
	require.NoError(t, os.WriteFile(IRPath(dir, 1), []byte("not a png"), 0o644))

	r, err := OpenReplay(dir, ReplayOptions{})
	require.NoError(t, err)
	var last *l1frames.Frame
	err = r.Run(context.Background(), func(f *l1frames.Frame) error {
		last = f
		return nil
	})
	assert.ErrorContains(t, err, "frame 1 ir")
	require.NotNil(t, last)
	assert.Equal(t, uint64(0), last.Index)
	assert.True(t, slices.Equal(frames[0].Depth, last.Depth), "failed decode must not update the depth plane")
	assert.True(t, slices.Equal(frames[0].IR, last.IR))
}

func TestReplayCallbackError(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	recordFrames(t, dir, 0, 1, 2)

	r, err := OpenReplay(dir, ReplayOptions{})
	require.NoError(t, err)
	stop := errors.New("stop")
	calls := 0
	err = r.Run(context.Background(), func(f *l1frames.Frame) error {
		calls++
		if f.Index == 1 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, calls)
}

func TestReplayPacedByClock(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	recordFrames(t, dir, 5, 6, 7)

	clock := timeutil.NewManualClock(time.Unix(0, 0))
	r, err := OpenReplay(dir, ReplayOptions{Interval: 33 * time.Millisecond, Clock: clock})
	require.NoError(t, err)

	delivered := make(chan uint64, 8)
	done := make(chan error, 1)
	go func() {
		done <- r.Run(context.Background(), func(f *l1frames.Frame) error {
			delivered <- f.Index
			return nil
		})
	}()
	require.Eventually(t, func() bool { return clock.Tickers() == 1 }, time.Second, time.Millisecond)

	select {
	case idx := <-delivered:
		t.Fatalf("frame %d delivered before the first tick", idx)
	case <-time.After(20 * time.Millisecond):
	}

	for _, want := range []uint64{5, 6, 7} {
		assert.Equal(t, 1, clock.Tick())
		assert.Equal(t, want, <-delivered)
	}
	require.NoError(t, <-done)
	assert.Equal(t, time.Unix(0, 0).Add(99*time.Millisecond), clock.Now())
	assert.Equal(t, 0, clock.Tick(), "ticker must be stopped after replay ends")
}

func TestReplayLoopCancel(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	recordFrames(t, dir, 1, 2)

	clock := timeutil.NewManualClock(time.Unix(0, 0))
	r, err := OpenReplay(dir, ReplayOptions{Interval: time.Millisecond, Loop: true, Clock: clock})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	delivered := make(chan uint64, 8)
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, func(f *l1frames.Frame) error {
			delivered <- f.Index
			return nil
		})
	}()
	require.Eventually(t, func() bool { return clock.Tickers() == 1 }, time.Second, time.Millisecond)

	var got []uint64
	for i := 0; i < 5; i++ {
		clock.Tick()
		got = append(got, <-delivered)
	}
	assert.Equal(t, []uint64{1, 2, 1, 2, 1}, got)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSavePreview(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "preview")
	f := testutil.NewFrame(9, testutil.RigBlobs(256, 256)...)

	require.NoError(t, SavePreview(dir, f, PreviewOptions{MinIR: 750, MaxIR: 9000, Width: 128}))

	for _, name := range []string{"000009_depth_preview.png", "000009_ir_preview.png"} {
		img, err := imaging.Open(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Equal(t, 128, img.Bounds().Dx(), name)
		assert.Equal(t, 128, img.Bounds().Dy(), name)
	}

	bad := &l1frames.Frame{Index: 1}
	assert.Error(t, SavePreview(dir, bad, PreviewOptions{}))
}

func TestWriteXYZ(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, WriteXYZ(&buf, []r3.Vec{{X: 1, Y: -2.5, Z: 0.125}, {X: 0, Y: 0, Z: 3}}))
	assert.Equal(t, "1.0000 -2.5000 0.1250\n0.0000 0.0000 3.0000\n", buf.String())

	path := filepath.Join(t.TempDir(), "cloud.xyz")
	require.NoError(t, SaveXYZ(path, nil))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}
