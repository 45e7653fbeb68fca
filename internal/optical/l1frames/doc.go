// Package l1frames owns Layer 1 (Frames) of the optical tracking data model.
//
// Responsibilities: the fixed-size depth and infrared planes delivered by the
// sensor driver each frame, their wholesale refresh, conversion to and from
// image.Gray16 for capture, and 8-bit previews for display.
// Key types: Plane, FrameBuffers, Frame.
//
// Dependency rule: L1 depends only on posemath. It holds no algorithm state.
package l1frames
