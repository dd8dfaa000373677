package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/prova/internal/graph"
)

// createTestStore creates a new store under t.TempDir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustCreateNode inserts a minimal node and fails the test on error.
func mustCreateNode(t *testing.T, s *Store, uuid string) {
	t.Helper()
	_, err := s.CreateNode(context.Background(), graph.Node{UUID: uuid, Type: "data.Int"})
	if err != nil {
		t.Fatalf("CreateNode(%s) failed: %v", uuid, err)
	}
}

const (
	uuidA = "00000000-0000-4000-8000-00000000000a"
	uuidB = "00000000-0000-4000-8000-00000000000b"
	uuidC = "00000000-0000-4000-8000-00000000000c"
)
