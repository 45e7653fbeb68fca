package l1frames

import "image"

// Preview thresholds.
const (
	// DepthPreviewSaturation is the depth, in millimetres, rendered as full white.
	DepthPreviewSaturation = 1024
	// DepthPreviewInvalid marks depths the sensor reports as no-return.
	DepthPreviewInvalid = 4090
)

// DepthPreview renders a depth plane as 8-bit gray: near is dark, anything at
// or beyond DepthPreviewSaturation is white, invalid returns are black.
func DepthPreview(p Plane) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, Width, Height))
	for i, d := range p {
		switch {
		case d >= DepthPreviewInvalid:
			img.Pix[i] = 0
		case d >= DepthPreviewSaturation:
			img.Pix[i] = 255
		default:
			img.Pix[i] = uint8(uint32(d) * 255 / DepthPreviewSaturation)
		}
	}
	return img
}

// IRPreview renders an infrared plane against the marker band [minIR, maxIR]:
// below is black, above is mid gray, inside is white.
func IRPreview(p Plane, minIR, maxIR uint16) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, Width, Height))
	for i, v := range p {
		switch {
		case v < minIR:
			img.Pix[i] = 0
		case v > maxIR:
			img.Pix[i] = 128
		default:
			img.Pix[i] = 255
		}
	}
	return img
}
