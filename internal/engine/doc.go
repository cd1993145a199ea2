// Package engine computes bucketed metric series over content snapshots and
// click events, with previous-period comparison and chart post-processing.
//
// The engine is pure: it performs no I/O, keeps no state between calls and
// returns identical output for identical input. A Dataset is built once per
// render pass and may be shared by concurrent Compute calls.
package engine
