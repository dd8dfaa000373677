package merge

import (
	"context"
	"errors"

	"github.com/roach88/prova/internal/graph"
	"github.com/roach88/prova/internal/store"
)

// Target is the transactional view of a store that a merge writes to.
//
// Lookups report a missing entity with an error matching
// store.ErrNotFound.
type Target interface {
	GetUser(ctx context.Context, email string) (graph.User, error)
	CreateUser(ctx context.Context, u graph.User) (bool, error)

	GetComputer(ctx context.Context, uuid string) (graph.Computer, error)
	GetComputerByName(ctx context.Context, name string) (graph.Computer, error)
	ComputerNamesWithPrefix(ctx context.Context, prefix string) ([]string, error)
	CreateComputer(ctx context.Context, c graph.Computer) error

	NodeExists(ctx context.Context, uuid string) (bool, error)
	CreateNode(ctx context.Context, n graph.Node) (bool, error)

	GetGroup(ctx context.Context, uuid string) (graph.Group, error)
	CreateGroup(ctx context.Context, g graph.Group) (bool, error)
	AddGroupMembers(ctx context.Context, groupUUID string, members []string) (int, error)

	FindLink(ctx context.Context, output, label string) (graph.Link, bool, error)
	OutgoingLinks(ctx context.Context, uuid string) ([]graph.Link, error)
	CreateLink(ctx context.Context, l graph.Link) (bool, error)
}

// Transactor runs fn in a transaction that is committed when fn returns
// nil and rolled back otherwise.
type Transactor interface {
	InTx(ctx context.Context, fn func(Target) error) error
}

// StoreTransactor adapts a live store.
func StoreTransactor(s *store.Store) Transactor {
	return storeTransactor{s: s}
}

type storeTransactor struct {
	s *store.Store
}

func (st storeTransactor) InTx(ctx context.Context, fn func(Target) error) error {
	return st.s.InTx(ctx, func(tx *store.Tx) error {
		return fn(tx)
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
