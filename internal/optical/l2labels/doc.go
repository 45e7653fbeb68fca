// Package l2labels owns Layer 2 (Labels) of the optical tracking data model.
//
// Responsibilities: segmenting a depth+IR frame into 8-connected foreground
// regions with a single raster scan, resolving label equivalences, and
// discarding regions too small to be a marker.
// Key types: Label, Region, Component, Labeler.
//
// Dependency rule: L2 may depend on L1, never on L3 or above.
package l2labels
