// Package l4pose owns Layer 4 (Pose) of the optical tracking data model.
//
// Responsibilities: assigning the four rig slots (south, west, north, east)
// from marker geometry, recovering a single missing marker from the previous
// detection, and the grace/reset state machine that decides what is
// published each frame.
// Key types: Slot, Detection, Phase, Tracker.
//
// Dependency rule: L4 may depend on L1–L3, never on the pipeline.
package l4pose
