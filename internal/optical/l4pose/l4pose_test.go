package l4pose

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/irtrack/internal/optical/l1frames"
	"github.com/banshee-data/irtrack/internal/optical/l3disks"
	"github.com/banshee-data/irtrack/internal/optical/posemath"
)

var camOrigin = r3.Vec{}

// rig is a kite-shaped marker layout one metre in front of the camera,
// listed south, west, north, east.
var rig = []r3.Vec{
	{X: 0, Y: -0.12, Z: 1},
	{X: -0.07, Y: 0, Z: 1},
	{X: 0, Y: 0.06, Z: 1},
	{X: 0.05, Y: 0.02, Z: 1},
}

func disksAt(pts []r3.Vec) []l3disks.Disk {
	out := make([]l3disks.Disk, len(pts))
	for i, p := range pts {
		out[i] = l3disks.Disk{
			Index:          i,
			Area:           25,
			Radius:         5,
			MeanDepth:      p.Z * 1000,
			ImageCentroid:  l1frames.ImagePoint{Row: 256 + 365*p.Y/p.Z, Col: 256 + 365*p.X/p.Z},
			CameraCentroid: p,
			WorldCentroid:  p,
			Normal:         r3.Vec{Z: -1},
			IsProper:       true,
		}
	}
	return out
}

func translated(pts []r3.Vec, delta r3.Vec) []r3.Vec {
	out := make([]r3.Vec, len(pts))
	for i, p := range pts {
		out[i] = r3.Add(p, delta)
	}
	return out
}

func TestAssignFromGeometry_Slots(t *testing.T) {
	t.Parallel()

	det, err := AssignFromGeometry(disksAt(rig), camOrigin)
	require.NoError(t, err)
	require.True(t, det.Valid)

	assert.Equal(t, rig[0], det.South().WorldCentroid)
	assert.Equal(t, rig[1], det.West().WorldCentroid)
	assert.Equal(t, rig[2], det.North().WorldCentroid)
	assert.Equal(t, rig[3], det.East().WorldCentroid)

	assert.InDelta(t, 1.0, r3.Norm(det.Forward), 1e-12)
	assert.InDelta(t, 1.0, r3.Norm(det.Left), 1e-12)
	assert.InDelta(t, 1.0, r3.Norm(det.Up), 1e-12)
	assert.Greater(t, r3.Dot(det.Up, r3.Sub(camOrigin, det.Center)), 0.0, "up must face the camera")

	// The orientation maps local +Z onto Left.
	z := posemath.Rotate(det.Orientation, r3.Vec{Z: 1})
	assert.InDelta(t, det.Left.X, z.X, 1e-9)
	assert.InDelta(t, det.Left.Y, z.Y, 1e-9)
	assert.InDelta(t, det.Left.Z, z.Z, 1e-9)

	seen := make(map[int]bool)
	for _, s := range Slots {
		seen[det.Disk(s).Index] = true
	}
	assert.Len(t, seen, 4, "each slot must hold a distinct candidate")
}

func TestAssignFromGeometry_Deterministic(t *testing.T) {
	t.Parallel()

	in := disksAt(rig)
	first, err := AssignFromGeometry(in, camOrigin)
	require.NoError(t, err)
	second, err := AssignFromGeometry(in, camOrigin)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("repeated assignment differs (-first +second):\n%s", diff)
	}

	// Input order does not change which position lands in which slot.
	perms := [][]int{{3, 2, 1, 0}, {1, 3, 0, 2}, {2, 0, 3, 1}}
	for _, perm := range perms {
		shuffled := make([]l3disks.Disk, 4)
		for i, j := range perm {
			shuffled[i] = in[j]
		}
		got, err := AssignFromGeometry(shuffled, camOrigin)
		require.NoError(t, err)
		assert.Equal(t, first.Positions(), got.Positions(), "perm %v", perm)
		assert.InDelta(t, first.Orientation.Real, got.Orientation.Real, 1e-12)
	}
}

func TestAssignFromGeometry_Degenerate(t *testing.T) {
	t.Parallel()

	same := []r3.Vec{{Z: 1}, {Z: 1}, {Z: 1}, {Z: 1}}
	_, err := AssignFromGeometry(disksAt(same), camOrigin)
	require.ErrorIs(t, err, ErrDegenerateGeometry)

	_, err = AssignFromGeometry(disksAt(rig[:3]), camOrigin)
	require.ErrorIs(t, err, ErrDegenerateGeometry)

	// Camera sitting at the rig center.
	center := posemath.Mean(rig...)
	_, err = AssignFromGeometry(disksAt(rig), center)
	require.ErrorIs(t, err, ErrDegenerateGeometry)
}

func TestResolveFromThree_RecoversMissingSlot(t *testing.T) {
	t.Parallel()

	prev, err := AssignFromGeometry(disksAt(rig), camOrigin)
	require.NoError(t, err)

	delta := r3.Vec{X: 0.03, Y: -0.02, Z: 0.05}
	moved := translated(rig, delta)

	for _, missing := range Slots {
		t.Run(missing.String(), func(t *testing.T) {
			t.Parallel()
			var three []r3.Vec
			for _, s := range Slots {
				if s != missing {
					three = append(three, moved[s])
				}
			}

			det, slot, err := ResolveFromThree(prev, disksAt(three), camOrigin)
			require.NoError(t, err)
			require.True(t, det.Valid)
			assert.Equal(t, missing, slot)

			got := det.Position(missing)
			assert.InDelta(t, moved[missing].X, got.X, 1e-9)
			assert.InDelta(t, moved[missing].Y, got.Y, 1e-9)
			assert.InDelta(t, moved[missing].Z, got.Z, 1e-9)
			assert.True(t, det.Disk(missing).Extrapolated)
			assert.False(t, det.Disk(missing).IsProper)
			assert.InDelta(t, 0.0, Score(prev, det), 1e-9)

			// The predicted image centroid moves with the observed ones.
			wantRow := prev.Disk(missing).ImageCentroid.Row
			assert.NotEqual(t, wantRow, det.Disk(missing).ImageCentroid.Row)
		})
	}
}

func TestResolveFromThree_Failures(t *testing.T) {
	t.Parallel()

	_, _, err := ResolveFromThree(Detection{}, disksAt(rig[:3]), camOrigin)
	require.ErrorIs(t, err, ErrUnresolved)

	prev, err := AssignFromGeometry(disksAt(rig), camOrigin)
	require.NoError(t, err)
	_, _, err = ResolveFromThree(prev, disksAt(rig), camOrigin)
	require.ErrorIs(t, err, ErrUnresolved)
}

func testTrackerConfig() TrackerConfig {
	return TrackerConfig{GraceFrames: 1, SentinelPosition: r3.Vec{X: -9999, Y: -9999, Z: -9999}}
}

func TestTracker_GraceThenReset(t *testing.T) {
	t.Parallel()

	tr := NewTracker(testTrackerConfig())
	assert.Equal(t, PhaseNoPrior, tr.Phase())

	first := tr.Step(disksAt(rig), l3disks.VerdictFour, camOrigin)
	require.Equal(t, PhaseTracking, first.Phase)
	require.True(t, first.Detection.Valid)
	require.True(t, strings.HasPrefix(first.SessionID, "rig_"))
	assert.Len(t, tr.Hints(), 4)

	grace := tr.Step(nil, l3disks.VerdictInsufficient, camOrigin)
	assert.Equal(t, PhaseGrace, grace.Phase)
	if diff := cmp.Diff(first.Detection, grace.Detection); diff != "" {
		t.Errorf("grace frame must re-publish the previous detection (-want +got):\n%s", diff)
	}
	assert.Nil(t, tr.Hints(), "no scan hint outside tracking")
	assert.True(t, tr.HasPrior())

	reset := tr.Step(nil, l3disks.VerdictInsufficient, camOrigin)
	assert.Equal(t, PhaseReset, reset.Phase)
	assert.False(t, reset.Detection.Valid)
	for _, s := range Slots {
		assert.Equal(t, r3.Vec{X: -9999, Y: -9999, Z: -9999}, reset.Detection.Position(s))
	}
	assert.False(t, tr.HasPrior())

	again := tr.Step(nil, l3disks.VerdictInsufficient, camOrigin)
	assert.Equal(t, PhaseReset, again.Phase)
	assert.Equal(t, reset.Detection, again.Detection)

	// Three candidates cannot be resolved without a prior.
	three := tr.Step(disksAt(rig[:3]), l3disks.VerdictThree, camOrigin)
	assert.Equal(t, PhaseReset, three.Phase)
	assert.ErrorIs(t, three.Err, ErrUnresolved)

	back := tr.Step(disksAt(rig), l3disks.VerdictFour, camOrigin)
	assert.Equal(t, PhaseTracking, back.Phase)
	assert.NotEqual(t, first.SessionID, back.SessionID, "a reacquired rig starts a new session")
}

func TestTracker_RecoversFromThreeDuringGrace(t *testing.T) {
	t.Parallel()

	tr := NewTracker(testTrackerConfig())
	first := tr.Step(disksAt(rig), l3disks.VerdictFour, camOrigin)
	require.Equal(t, PhaseTracking, first.Phase)

	tr.Step(nil, l3disks.VerdictInsufficient, camOrigin)
	require.Equal(t, PhaseGrace, tr.Phase())

	moved := translated(rig, r3.Vec{X: 0.01, Y: 0.01})
	res := tr.Step(disksAt([]r3.Vec{moved[South], moved[West], moved[East]}), l3disks.VerdictThree, camOrigin)
	require.NoError(t, res.Err)
	assert.Equal(t, PhaseTracking, res.Phase)
	assert.True(t, res.Recovered)
	assert.Equal(t, North, res.RecoveredSlot)
	assert.Equal(t, first.SessionID, res.SessionID, "grace keeps the session")
}

func TestTracker_NoPriorPublishesSentinel(t *testing.T) {
	t.Parallel()

	tr := NewTracker(testTrackerConfig())
	res := tr.Step(disksAt(rig[:2]), l3disks.VerdictInsufficient, camOrigin)
	assert.Equal(t, PhaseNoPrior, res.Phase)
	assert.False(t, res.Detection.Valid)
	assert.Equal(t, r3.Vec{X: -9999, Y: -9999, Z: -9999}, res.Detection.Center)
	assert.Empty(t, res.SessionID)
}

func TestTracker_DegenerateFourIsInsufficient(t *testing.T) {
	t.Parallel()

	tr := NewTracker(testTrackerConfig())
	tr.Step(disksAt(rig), l3disks.VerdictFour, camOrigin)

	same := []r3.Vec{{Z: 1}, {Z: 1}, {Z: 1}, {Z: 1}}
	res := tr.Step(disksAt(same), l3disks.VerdictFour, camOrigin)
	assert.Equal(t, PhaseGrace, res.Phase)
	assert.ErrorIs(t, res.Err, ErrDegenerateGeometry)
	assert.True(t, IsGeometryFailure(res.Err))
}

func TestTracker_ZeroGraceResetsImmediately(t *testing.T) {
	t.Parallel()

	cfg := testTrackerConfig()
	cfg.GraceFrames = 0
	tr := NewTracker(cfg)
	tr.Step(disksAt(rig), l3disks.VerdictFour, camOrigin)
	res := tr.Step(nil, l3disks.VerdictInsufficient, camOrigin)
	assert.Equal(t, PhaseReset, res.Phase)
}

func TestTracker_Clear(t *testing.T) {
	t.Parallel()

	tr := NewTracker(testTrackerConfig())
	tr.Step(disksAt(rig), l3disks.VerdictFour, camOrigin)
	tr.Clear()
	assert.Equal(t, PhaseNoPrior, tr.Phase())
	assert.False(t, tr.HasPrior())
	assert.Empty(t, tr.SessionID())
	_, ok := tr.Previous()
	assert.False(t, ok)
}

func TestDefaultTrackerConfig(t *testing.T) {
	cfg := DefaultTrackerConfig()
	assert.Equal(t, 1, cfg.GraceFrames)
	assert.Equal(t, r3.Vec{X: -9999, Y: -9999, Z: -9999}, cfg.SentinelPosition)
}

func TestSlotString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "south", South.String())
	assert.Equal(t, "east", East.String())
	assert.Equal(t, "slot(7)", Slot(7).String())
}
