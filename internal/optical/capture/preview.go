package capture

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/irtrack/internal/optical/l1frames"
)

// PreviewOptions controls SavePreview.
type PreviewOptions struct {
	MinIR uint16
	MaxIR uint16
	// Width scales the previews to this many pixels wide. Zero keeps the
	// sensor resolution.
	Width int
}

// SavePreview writes 8-bit depth and IR previews of f into dir as
// <index>_depth_preview.png and <index>_ir_preview.png.
func SavePreview(dir string, f *l1frames.Frame, opts PreviewOptions) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create preview dir: %w", err)
	}

	depth := imaging.Clone(l1frames.DepthPreview(f.Depth))
	ir := imaging.Clone(l1frames.IRPreview(f.IR, opts.MinIR, opts.MaxIR))
	if opts.Width > 0 && opts.Width != l1frames.Width {
		depth = imaging.Resize(depth, opts.Width, 0, imaging.NearestNeighbor)
		ir = imaging.Resize(ir, opts.Width, 0, imaging.NearestNeighbor)
	}

	base := filepath.Join(dir, fmt.Sprintf("%06d", f.Index))
	if err := imaging.Save(depth, base+"_depth_preview.png"); err != nil {
		return fmt.Errorf("save depth preview: %w", err)
	}
	if err := imaging.Save(ir, base+"_ir_preview.png"); err != nil {
		return fmt.Errorf("save ir preview: %w", err)
	}
	return nil
}
