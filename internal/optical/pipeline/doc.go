// Package pipeline provides orchestration for the optical tracking pipeline.
//
// It wires the layer packages (labels, disks, pose) and the detection sinks
// (persistence, publish) into a per-frame Detector used for both live and
// replayed footage. The pipeline does not own domain logic; it delegates to
// the layer packages and adapters.
package pipeline
