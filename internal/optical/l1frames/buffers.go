package l1frames

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/banshee-data/irtrack/internal/optical/posemath"
)

// Sensor resolution. Both planes share it.
const (
	Width      = 512
	Height     = 512
	PixelCount = Width * Height
)

// ErrFrameSize is returned when a plane does not have PixelCount samples.
var ErrFrameSize = errors.New("frame plane has wrong size")

// ImagePoint is a sub-pixel image coordinate.
type ImagePoint struct {
	Row float64
	Col float64
}

// Plane is one row-major 16-bit sample buffer: depth in millimetres or raw
// infrared intensity counts.
type Plane []uint16

// NewPlane allocates a zeroed Width x Height plane.
func NewPlane() Plane {
	return make(Plane, PixelCount)
}

// At returns the sample at row, col.
func (p Plane) At(row, col int) uint16 {
	return p[row*Width+col]
}

// Set stores v at row, col.
func (p Plane) Set(row, col int, v uint16) {
	p[row*Width+col] = v
}

// ToGray16 copies the plane into a 16-bit grayscale image.
func (p Plane) ToGray16() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, Width, Height))
	for i, v := range p {
		img.Pix[2*i] = uint8(v >> 8)
		img.Pix[2*i+1] = uint8(v)
	}
	return img
}

// PlaneFromImage converts a decoded image into a newly allocated plane.
func PlaneFromImage(img image.Image) (Plane, error) {
	p := NewPlane()
	if err := DecodeInto(p, img); err != nil {
		return nil, err
	}
	return p, nil
}

// DecodeInto writes img into dst without allocating. Gray16 images are
// copied sample for sample; other models go through their 16-bit gray
// conversion. dst is untouched when the image has the wrong size.
func DecodeInto(dst Plane, img image.Image) error {
	b := img.Bounds()
	if b.Dx() != Width || b.Dy() != Height {
		return fmt.Errorf("%w: image is %dx%d, want %dx%d", ErrFrameSize, b.Dx(), b.Dy(), Width, Height)
	}
	if len(dst) != PixelCount {
		return fmt.Errorf("%w: plane has %d samples, want %d", ErrFrameSize, len(dst), PixelCount)
	}
	if g, ok := img.(*image.Gray16); ok {
		for row := 0; row < Height; row++ {
			off := g.PixOffset(b.Min.X, b.Min.Y+row)
			for col := 0; col < Width; col++ {
				dst[row*Width+col] = uint16(g.Pix[off+2*col])<<8 | uint16(g.Pix[off+2*col+1])
			}
		}
		return nil
	}
	for row := 0; row < Height; row++ {
		for col := 0; col < Width; col++ {
			dst[row*Width+col] = grayModelValue(img, b.Min.X+col, b.Min.Y+row)
		}
	}
	return nil
}

func grayModelValue(img image.Image, x, y int) uint16 {
	return color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y
}

// FrameBuffers holds the current depth and infrared planes. Update replaces
// both wholesale; the planes are allocated once and reused.
type FrameBuffers struct {
	Depth Plane
	IR    Plane

	frame Frame
}

// NewFrameBuffers allocates both planes.
func NewFrameBuffers() *FrameBuffers {
	fb := &FrameBuffers{Depth: NewPlane(), IR: NewPlane()}
	fb.frame = Frame{Depth: fb.Depth, IR: fb.IR, CamToWorld: posemath.Identity()}
	return fb
}

// Frame returns the frame backed by the buffers. Its planes alias Depth and
// IR, so its contents change on the next Update.
func (fb *FrameBuffers) Frame() *Frame { return &fb.frame }

// Update copies a new depth/IR pair into the buffers. Neither buffer is
// touched unless both have PixelCount samples.
func (fb *FrameBuffers) Update(depth, ir []uint16) error {
	if len(depth) != PixelCount {
		return fmt.Errorf("%w: depth has %d samples, want %d", ErrFrameSize, len(depth), PixelCount)
	}
	if len(ir) != PixelCount {
		return fmt.Errorf("%w: ir has %d samples, want %d", ErrFrameSize, len(ir), PixelCount)
	}
	copy(fb.Depth, depth)
	copy(fb.IR, ir)
	return nil
}

// Frame is one sensor delivery: both planes plus the camera pose at capture.
type Frame struct {
	Index      uint64
	Timestamp  time.Time
	Depth      Plane
	IR         Plane
	CamToWorld posemath.Mat4
}

// NewFrame allocates a frame with zeroed planes and an identity pose.
func NewFrame(index uint64, ts time.Time) *Frame {
	return &Frame{
		Index:      index,
		Timestamp:  ts,
		Depth:      NewPlane(),
		IR:         NewPlane(),
		CamToWorld: posemath.Identity(),
	}
}

// Validate checks the plane sizes.
func (f *Frame) Validate() error {
	if len(f.Depth) != PixelCount || len(f.IR) != PixelCount {
		return fmt.Errorf("%w: frame %d has depth=%d ir=%d samples", ErrFrameSize, f.Index, len(f.Depth), len(f.IR))
	}
	return nil
}
