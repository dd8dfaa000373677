// Package blob stores per-node content files.
//
// Keys have the form "<node uuid>/<relative path>" and always use forward
// slashes. Implementations are simple key/value stores; the export and
// import engines never assume anything beyond this interface.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("blob: not found")

// Store implementations know how to read and write content blobs.
//
// Typically this is something file system-like: a local directory or an
// object storage bucket.
type Store interface {
	String() string
	Has(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader) error
	Delete(ctx context.Context, key string) error
	// Keys returns every key starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// NodeKey returns the key of a node's content file.
func NodeKey(uuid, rel string) string {
	return uuid + "/" + rel
}

// NodePrefix returns the key prefix shared by all of a node's content files.
func NodePrefix(uuid string) string {
	return uuid + "/"
}

// SplitNodeKey splits a key into node UUID and relative path.
func SplitNodeKey(key string) (uuid, rel string, ok bool) {
	uuid, rel, ok = strings.Cut(key, "/")
	if !ok || uuid == "" || rel == "" {
		return "", "", false
	}
	return uuid, rel, true
}

// ValidateRelPath checks that rel is a clean relative path that stays
// inside its node's content area.
func ValidateRelPath(rel string) error {
	switch {
	case rel == "":
		return fmt.Errorf("empty content path")
	case strings.HasPrefix(rel, "/"):
		return fmt.Errorf("content path %q is absolute", rel)
	case strings.Contains(rel, "\\"):
		return fmt.Errorf("content path %q contains a backslash", rel)
	case path.Clean(rel) != rel:
		return fmt.Errorf("content path %q is not clean", rel)
	case rel == ".." || strings.HasPrefix(rel, "../"):
		return fmt.Errorf("content path %q escapes the node directory", rel)
	}
	return nil
}

// ReadAll reads a whole blob, failing when it is larger than limit bytes.
// A limit of zero or less means no limit.
func ReadAll(ctx context.Context, s Store, key string, limit int64) ([]byte, error) {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if limit > 0 {
		r = io.LimitReader(rc, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, &TooLargeError{Key: key, Limit: limit}
	}
	return data, nil
}

// TooLargeError reports a blob exceeding a size limit.
type TooLargeError struct {
	Key   string
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("blob %s exceeds size limit of %d bytes", e.Key, e.Limit)
}
