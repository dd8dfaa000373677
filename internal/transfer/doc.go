// Package transfer exposes the export and import operations.
//
// Export computes the closure of a seed set, applies the license policy
// and writes the archive. Import reads and validates an archive and merges
// it into a target store. Each runs to completion or fails without side
// effects: a failed export leaves no archive and a failed import leaves
// the target unchanged.
package transfer
