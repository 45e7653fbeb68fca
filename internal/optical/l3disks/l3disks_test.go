package l3disks

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/irtrack/internal/optical/l1frames"
	"github.com/banshee-data/irtrack/internal/optical/l2labels"
	"github.com/banshee-data/irtrack/internal/optical/posemath"
)

func testLUT() posemath.LUT {
	return posemath.NewPinholeLUT(l1frames.Width, l1frames.Height, 365, 365, 256, 256)
}

// square returns a component covering a size x size block whose top-left
// pixel is (row, col), and writes depthMM into those pixels.
func square(depth []uint16, lbl l2labels.Label, row, col, size int, depthMM uint16) l2labels.Component {
	c := l2labels.Component{Label: lbl}
	for r := row; r < row+size; r++ {
		for cc := col; cc < col+size; cc++ {
			i := r*l1frames.Width + cc
			depth[i] = depthMM
			c.Pixels = append(c.Pixels, i)
		}
	}
	return c
}

func TestExtractor_Statistics(t *testing.T) {
	t.Parallel()

	depth := make([]uint16, l1frames.PixelCount)
	comps := []l2labels.Component{
		square(depth, 1, 254, 254, 5, 500),  // centred on the optical axis
		square(depth, 2, 100, 100, 5, 1000), // too large for its depth
	}

	cfg := DefaultExtractorConfig()
	cfg.UseWorldSpace = false
	e, err := NewExtractor(cfg, testLUT())
	require.NoError(t, err)

	disks := e.Extract(comps, depth, posemath.Identity())
	require.Len(t, disks, 2)

	d := disks[0]
	assert.Equal(t, 0, d.Index)
	assert.Equal(t, 25, d.Area)
	assert.InDelta(t, 5.0, d.Radius, 1e-12)
	assert.InDelta(t, 500.0, d.MeanDepth, 1e-12)
	assert.InDelta(t, 256.0, d.ImageCentroid.Row, 1e-12)
	assert.InDelta(t, 256.0, d.ImageCentroid.Col, 1e-12)
	assert.InDelta(t, 0.0, d.CameraCentroid.X, 1e-12)
	assert.InDelta(t, 0.0, d.CameraCentroid.Y, 1e-12)
	assert.InDelta(t, 0.5, d.CameraCentroid.Z, 1e-12)
	assert.Equal(t, d.CameraCentroid, d.WorldCentroid)
	assert.True(t, d.IsProper, "depth*radius = %v", d.DepthRadius())
	assert.False(t, d.Extrapolated)

	// A flat patch facing the camera has a normal pointing back at it.
	assert.InDelta(t, -1.0, d.Normal.Z, 1e-9)

	assert.Equal(t, 1, disks[1].Index)
	assert.False(t, disks[1].IsProper, "depth*radius = %v", disks[1].DepthRadius())
}

func TestExtractor_WorldSpace(t *testing.T) {
	t.Parallel()

	depth := make([]uint16, l1frames.PixelCount)
	comps := []l2labels.Component{square(depth, 1, 254, 254, 5, 500)}
	e, err := NewExtractor(DefaultExtractorConfig(), testLUT())
	require.NoError(t, err)

	toWorld := posemath.Translation(r3.Vec{X: 1, Y: 2, Z: 3})
	disks := e.Extract(comps, depth, toWorld)
	require.Len(t, disks, 1)
	assert.InDelta(t, 1.0, disks[0].WorldCentroid.X, 1e-12)
	assert.InDelta(t, 2.0, disks[0].WorldCentroid.Y, 1e-12)
	assert.InDelta(t, 3.5, disks[0].WorldCentroid.Z, 1e-12)
	assert.InDelta(t, 0.5, disks[0].CameraCentroid.Z, 1e-12)
	assert.InDelta(t, -1.0, disks[0].Normal.Z, 1e-9)
}

func TestExtractor_NormalsDisabled(t *testing.T) {
	t.Parallel()

	depth := make([]uint16, l1frames.PixelCount)
	comps := []l2labels.Component{square(depth, 1, 254, 254, 5, 500)}
	cfg := DefaultExtractorConfig()
	cfg.EstimateNormals = false
	e, err := NewExtractor(cfg, testLUT())
	require.NoError(t, err)

	disks := e.Extract(comps, depth, posemath.Identity())
	require.Len(t, disks, 1)
	assert.Equal(t, posemath.DefaultNormal, disks[0].Normal)
}

func TestNewExtractor_RejectsShortLUT(t *testing.T) {
	t.Parallel()

	_, err := NewExtractor(DefaultExtractorConfig(), posemath.NewPinholeLUT(4, 4, 1, 1, 2, 2))
	require.Error(t, err)
}

func TestExtractorConfig_Proper(t *testing.T) {
	t.Parallel()

	cfg := DefaultExtractorConfig()
	assert.False(t, cfg.Proper(1500))
	assert.True(t, cfg.Proper(1500.5))
	assert.True(t, cfg.Proper(3299))
	assert.False(t, cfg.Proper(3300))
}

func diskAt(index int, p r3.Vec, proper bool) Disk {
	return Disk{Index: index, Area: 25, Radius: 5, WorldCentroid: p, IsProper: proper}
}

func rigDisks() []Disk {
	return []Disk{
		diskAt(0, r3.Vec{X: 0, Y: 0, Z: 1}, true),
		diskAt(1, r3.Vec{X: 0.1, Y: 0, Z: 1}, true),
		diskAt(2, r3.Vec{X: 0, Y: 0.1, Z: 1}, true),
		diskAt(3, r3.Vec{X: 0.1, Y: 0.1, Z: 1}, true),
	}
}

func indices(ds []Disk) []int {
	out := make([]int, len(ds))
	for i, d := range ds {
		out[i] = d.Index
	}
	return out
}

func TestPrune_Counts(t *testing.T) {
	t.Parallel()

	p := NewPruner()

	tests := []struct {
		name     string
		disks    []Disk
		hasPrior bool
		verdict  Verdict
		want     []int
	}{
		{name: "none", disks: nil, verdict: VerdictInsufficient},
		{name: "two", disks: rigDisks()[:2], hasPrior: true, verdict: VerdictInsufficient},
		{name: "three without prior", disks: rigDisks()[:3], verdict: VerdictInsufficient},
		{name: "three with prior", disks: rigDisks()[:3], hasPrior: true, verdict: VerdictThree, want: []int{0, 1, 2}},
		{name: "four", disks: rigDisks(), verdict: VerdictFour, want: []int{0, 1, 2, 3}},
		{
			name: "four with one improper",
			disks: func() []Disk {
				ds := rigDisks()
				ds[2].IsProper = false
				return ds
			}(),
			verdict: VerdictFour,
			want:    []int{0, 1, 2, 3},
		},
		{
			name: "four with two improper",
			disks: func() []Disk {
				ds := rigDisks()
				ds[0].IsProper = false
				ds[3].IsProper = false
				return ds
			}(),
			hasPrior: true,
			verdict:  VerdictInsufficient,
		},
		{
			name:    "five drops the stray",
			disks:   append(rigDisks(), diskAt(4, r3.Vec{X: 2, Y: 2, Z: 1}, true)),
			verdict: VerdictFour,
			want:    []int{0, 1, 2, 3},
		},
		{
			name: "pruned four still needs three proper",
			disks: func() []Disk {
				ds := append(rigDisks(), diskAt(4, r3.Vec{X: 2, Y: 2, Z: 1}, true))
				ds[0].IsProper = false
				ds[1].IsProper = false
				return ds
			}(),
			verdict: VerdictInsufficient,
		},
	}

	for _, tt := range tests {
		got, verdict := p.Prune(tt.disks, tt.hasPrior)
		assert.Equal(t, tt.verdict, verdict, tt.name)
		if tt.want == nil {
			assert.Empty(t, got, tt.name)
			continue
		}
		assert.Equal(t, tt.want, indices(got), tt.name)
	}
}

func TestPrune_RemovesFarOutlierFirst(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	p := NewPruner()

	for trial := 0; trial < 200; trial++ {
		n := 5 + rng.Intn(6)
		spread := 0.05 + 0.2*rng.Float64()
		centre := r3.Vec{X: rng.Float64() * 2, Y: rng.Float64() * 2, Z: 1 + rng.Float64()}
		disks := make([]Disk, 0, n)
		for i := 0; i < n-1; i++ {
			off := r3.Vec{X: rng.Float64() - 0.5, Y: rng.Float64() - 0.5, Z: rng.Float64() - 0.5}
			disks = append(disks, diskAt(i, r3.Add(centre, r3.Scale(spread, off)), true))
		}
		// Every inlier lies within spread*sqrt(3) of the others; put the
		// outlier well beyond ten times that.
		dir := r3.Unit(r3.Vec{X: rng.Float64() - 0.5, Y: rng.Float64() - 0.5, Z: rng.Float64() - 0.5})
		outlier := r3.Add(centre, r3.Scale(20*spread*math.Sqrt(3), dir))
		at := rng.Intn(n)
		disks = append(disks, Disk{})
		copy(disks[at+1:], disks[at:])
		disks[at] = diskAt(n-1, outlier, true)

		p.work = append(p.work[:0], disks...)
		require.Equal(t, at, p.mostIsolated(), "trial %d", trial)

		got, verdict := p.Prune(disks, false)
		require.Equal(t, VerdictFour, verdict)
		require.Len(t, got, MarkerCount)
		assert.NotContains(t, indices(got), n-1, "trial %d kept the outlier", trial)
	}
}

func TestPrune_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := append(rigDisks(), diskAt(4, r3.Vec{X: 3, Z: 1}, true))
	before := append([]Disk(nil), in...)
	_, _ = NewPruner().Prune(in, false)
	assert.Equal(t, before, in)
}
