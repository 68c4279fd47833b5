// Package patch parses and applies apply_patch style payloads.
//
// A payload is a "*** Begin Patch" ... "*** End Patch" block describing Add,
// Delete and Update operations. Parse turns the text into typed operations and
// ApplyHunks splices Update hunks into file content using a tolerant line
// search. Both are pure functions over strings. The Stage/Changeset layer
// executes whole patches against a Store (the local filesystem or an
// in-memory map) for hosts that want file-level semantics.
package patch
