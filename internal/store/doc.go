// Package store provides the SQLite-backed live provenance store.
//
// The store holds nodes, links, computers, users and groups. It is the
// collaborator that the graph walker reads from during export and that the
// import merger writes into.
//
// # Critical Patterns
//
// Idempotent creation
//   - Nodes, users, groups and group memberships are inserted with
//     ON CONFLICT DO NOTHING; the Create* methods report whether a row was
//     actually inserted so callers can count created vs reused entities
//
// Deterministic query results
//   - Every list query carries an ORDER BY ... COLLATE BINARY so walks and
//     merges see rows in the same order on every run
//
// Exclusive transactional scope
//   - InTx runs a function inside BEGIN IMMEDIATE; the write lock is taken
//     up front so concurrent writers cannot interleave with a merge
//   - A single pooled connection serializes callers within one process
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Attributes, extras and computer configuration are stored as RFC 8785
// canonical JSON produced by graph.MarshalCanonical.
package store
