// Package graph defines the provenance graph data model shared by every
// export/import component.
//
// The package holds types only, plus the canonical JSON encoder used for
// anything that must be byte-stable (stored attributes, the archive graph
// description). All other internal packages import graph; graph imports
// nothing internal.
//
// Key constraints:
//   - Node UUIDs are globally unique and never reassigned
//   - Link labels are unique per output node
//   - CREATE and CALL links form a DAG; INPUT and RETURN links may be reused
//   - Every list in a Closure has a single deterministic order (see Closure.Sort)
//   - All JSON tags use snake_case
package graph
