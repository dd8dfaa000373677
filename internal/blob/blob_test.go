package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemStore() Store {
	return NewLocal(afero.NewBasePathFs(afero.NewMemMapFs(), "/blobs"))
}

func TestLocalPutGet(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()

	key := NodeKey("n1", "raw/input.txt")
	require.NoError(t, s.Put(ctx, key, bytes.NewBufferString("hello")))

	has, err := s.Has(ctx, key)
	require.NoError(t, err)
	assert.True(t, has)

	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	dir, err := s.Has(ctx, "n1/raw")
	require.NoError(t, err)
	assert.False(t, dir, "directories are not keys")
}

func TestLocalPutOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()

	require.NoError(t, s.Put(ctx, "n1/a", bytes.NewBufferString("long content")))
	require.NoError(t, s.Put(ctx, "n1/a", bytes.NewBufferString("short")))

	data, err := ReadAll(ctx, s, "n1/a", 0)
	require.NoError(t, err)
	assert.Equal(t, "short", string(data))
}

func TestLocalGetMissing(t *testing.T) {
	_, err := newMemStore().Get(context.Background(), "n1/missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalKeysSortedAndFiltered(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()

	keys, err := s.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)

	for _, k := range []string{"n2/b", "n1/z/deep", "n1/a", "n10/x"} {
		require.NoError(t, s.Put(ctx, k, bytes.NewBufferString(k)))
	}

	keys, err = s.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"n1/a", "n1/z/deep", "n10/x", "n2/b"}, keys)

	keys, err = s.Keys(ctx, NodePrefix("n1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"n1/a", "n1/z/deep"}, keys)
}

func TestLocalDelete(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()

	require.NoError(t, s.Put(ctx, "n1/a", bytes.NewBufferString("x")))
	require.NoError(t, s.Delete(ctx, "n1/a"))
	require.NoError(t, s.Delete(ctx, "n1/a"), "deleting a missing key is not an error")

	has, err := s.Has(ctx, "n1/a")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestLocalDirOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewLocalDir(dir)

	require.NoError(t, s.Put(ctx, "n1/file.bin", bytes.NewReader([]byte{0, 1, 2})))
	keys, err := s.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"n1/file.bin"}, keys)
	assert.Equal(t, "localfs@"+dir, s.String())
}

func TestReadAllLimit(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	require.NoError(t, s.Put(ctx, "n1/a", bytes.NewBufferString("12345")))

	data, err := ReadAll(ctx, s, "n1/a", 5)
	require.NoError(t, err)
	assert.Equal(t, "12345", string(data))

	_, err = ReadAll(ctx, s, "n1/a", 4)
	var tooLarge *TooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, int64(4), tooLarge.Limit)
}

func TestSplitNodeKey(t *testing.T) {
	uuid, rel, ok := SplitNodeKey("n1/dir/file")
	assert.True(t, ok)
	assert.Equal(t, "n1", uuid)
	assert.Equal(t, "dir/file", rel)

	_, _, ok = SplitNodeKey("n1")
	assert.False(t, ok)
	_, _, ok = SplitNodeKey("/file")
	assert.False(t, ok)
}

func TestValidateRelPath(t *testing.T) {
	tests := []struct {
		rel   string
		valid bool
	}{
		{"file.txt", true},
		{"dir/file.txt", true},
		{"..data", true},
		{"", false},
		{"/etc/passwd", false},
		{"../escape", false},
		{"..", false},
		{"dir/../../escape", false},
		{"dir//file", false},
		{"./file", false},
		{`dir\file`, false},
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			err := ValidateRelPath(tt.rel)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
