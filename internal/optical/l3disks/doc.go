// Package l3disks owns Layer 3 (Disks) of the optical tracking data model.
//
// Responsibilities: summarising each surviving labeled region as a candidate
// disk (area, radius, centroids, normal, physical plausibility) and pruning
// the candidate list down to the markers of a single rig.
// Key types: Disk, Extractor, Pruner, Verdict.
//
// Dependency rule: L3 may depend on L1/L2, never on L4 or above.
package l3disks
