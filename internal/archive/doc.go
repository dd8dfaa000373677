// Package archive writes and reads export archives.
//
// An archive is a gzip-compressed tar file with three sections, in order:
//
//	metadata.json            format version, export time, source, entity counts
//	data.json                the graph description, RFC 8785 canonical JSON
//	nodes/<uuid>/<relpath>   per-node content files, sorted by key
//
// For a fixed closure, content and clock the writer produces byte-identical
// archives. The reader checks the format version before it looks at the
// graph description, validates data.json against an embedded CUE schema,
// and then checks that every reference inside the archive resolves.
package archive
