package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx is a write transaction over the store. It exposes the same read and
// write methods as Store.
type Tx struct {
	ops
	tx *sql.Tx
}

// InTx runs fn inside a single BEGIN IMMEDIATE transaction.
//
// The transaction is committed when fn returns nil and rolled back
// otherwise, leaving the store exactly as it was before InTx was called.
// fn must not use the Store itself: the pool holds one connection and it
// belongs to the transaction until InTx returns.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback() // No-op if committed

	if err := fn(&Tx{ops: ops{q: sqlTx}, tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
