// Package sqlite persists the detection log: one row per processed frame
// plus a summary row per tracking session.
//
// The schema is embedded and applied with golang-migrate on Open, so a
// fresh database file is usable immediately. Store implements
// pipeline.DetectionSink.
package sqlite
