// Package testutil provides shared test utilities and fixtures.
//
// This package centralises synthetic frames, the reference pinhole lookup
// table, and a few HTTP helpers so package tests do not each grow their own.
package testutil

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/banshee-data/irtrack/internal/optical/l1frames"
	"github.com/banshee-data/irtrack/internal/optical/posemath"
)

// Pinhole intrinsics of the synthetic 512x512 camera.
const (
	FocalLength    = 365.0
	PrincipalPoint = 256.0
)

// MarkerDepth and MarkerIR are the samples written into synthetic markers.
// A marker of MarkerRadius pixels at MarkerDepth passes the default
// depth*radius plausibility band.
const (
	MarkerDepth  uint16 = 300
	MarkerIR     uint16 = 3000
	MarkerRadius        = 4.0
)

// Blob is a filled disk drawn into a synthetic frame.
type Blob struct {
	Row    int
	Col    int
	Radius float64
	Depth  uint16
	IR     uint16
}

// PinholeLUT returns the lookup table of the synthetic camera.
func PinholeLUT() posemath.LUT {
	return posemath.NewPinholeLUT(l1frames.Width, l1frames.Height, FocalLength, FocalLength, PrincipalPoint, PrincipalPoint)
}

// RigBlobs returns four markers in a kite layout around (row, col), listed
// south, west, north, east.
func RigBlobs(row, col int) []Blob {
	mk := func(dr, dc int) Blob {
		return Blob{Row: row + dr, Col: col + dc, Radius: MarkerRadius, Depth: MarkerDepth, IR: MarkerIR}
	}
	return []Blob{
		mk(-60, 0),
		mk(0, -35),
		mk(30, 0),
		mk(10, 25),
	}
}

// NewFrame returns a frame at index with the given blobs drawn in and an
// identity camera-to-world transform.
func NewFrame(index uint64, blobs ...Blob) *l1frames.Frame {
	f := l1frames.NewFrame(index, time.Unix(1700000000, 0).Add(time.Duration(index)*100*time.Millisecond))
	for _, b := range blobs {
		DrawBlob(f, b)
	}
	return f
}

// DrawBlob writes b into both planes of f. Pixels outside the image are
// skipped.
func DrawBlob(f *l1frames.Frame, b Blob) {
	r := int(math.Ceil(b.Radius))
	for dr := -r; dr <= r; dr++ {
		for dc := -r; dc <= r; dc++ {
			if float64(dr*dr+dc*dc) > b.Radius*b.Radius {
				continue
			}
			row, col := b.Row+dr, b.Col+dc
			if row < 0 || row >= l1frames.Height || col < 0 || col >= l1frames.Width {
				continue
			}
			f.Depth.Set(row, col, b.Depth)
			f.IR.Set(row, col, b.IR)
		}
	}
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}
