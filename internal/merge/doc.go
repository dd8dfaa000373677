// Package merge applies a validated archive to a target store.
//
// A merge runs inside one store transaction. Users, computers, nodes,
// groups and links are reconciled in that order so that every foreign key
// resolves when a row is written; any failure rolls the whole merge back.
//
// Reconciliation rules:
//
//   - Nodes, groups and users are matched by identity (UUID, or email for
//     users). Existing entities win and are never modified, except that
//     group member lists are unioned.
//   - Computers are matched by UUID. A new computer whose name is taken is
//     imported as "<name> (Imported #N)" with N the lowest unused index.
//   - A link is created when absent. An existing link in the same
//     (output, label) slot with a different input or type is a conflict.
//     A CREATE or CALL link that would close a cycle among CREATE and CALL
//     edges is rejected.
//   - External link stubs are applied when their outside endpoint already
//     exists in the target and skipped otherwise.
package merge
