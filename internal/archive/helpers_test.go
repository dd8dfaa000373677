package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/roach88/prova/internal/blob"
	"github.com/roach88/prova/internal/graph"
	"github.com/roach88/prova/internal/testutil"
)

type tarEntry struct {
	name     string
	data     []byte
	typeflag byte
}

// writeTar builds a gzip'd tar at name from raw entries.
func writeTar(t *testing.T, fs afero.Fs, name string, entries []tarEntry) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		flag := e.typeflag
		if flag == 0 {
			flag = tar.TypeReg
		}
		hdr := &tar.Header{Typeflag: flag, Name: e.name, Mode: 0o644, Size: int64(len(e.data))}
		if flag != tar.TypeReg {
			hdr.Size = 0
			hdr.Linkname = "/etc/passwd"
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if flag == tar.TypeReg {
			_, err := tw.Write(e.data)
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, afero.WriteFile(fs, name, buf.Bytes(), 0o644))
}

// readTar returns the entries of the archive at name in stream order.
func readTar(t *testing.T, fs afero.Fs, name string) []tarEntry {
	t.Helper()
	f, err := fs.Open(name)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	var out []tarEntry
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		out = append(out, tarEntry{name: hdr.Name, data: data, typeflag: hdr.Typeflag})
	}
	return out
}

func entryNames(entries []tarEntry) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.name)
	}
	return names
}

// validMetadata is a version 1 header.
func validMetadata(t *testing.T) []byte {
	t.Helper()
	data, err := graph.MarshalCanonical(metadataValues(Metadata{
		ExportVersion: FormatVersion,
		ExportedAt:    testutil.Epoch,
		Source:        "test",
	}))
	require.NoError(t, err)
	return data
}

// graphData encodes c as data.json.
func graphData(t *testing.T, c *graph.Closure) []byte {
	t.Helper()
	c.Sort()
	data, encErr := encodeGraph(c)
	require.Nil(t, encErr)
	return data
}

// sampleWriter returns a writer over an in-memory filesystem with the
// sample's content files.
func sampleWriter(t *testing.T, sample *testutil.Sample) (*Writer, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/out", 0o755))
	blobs := testutil.MemBlobs()
	testutil.SeedBlobs(t, blobs, sample.Files)
	return &Writer{
		Fs:        fs,
		Blobs:     blobs,
		Clock:     testutil.NewFixedClock(testutil.Epoch),
		Source:    "test",
		Generator: "prova test",
	}, fs
}

func readBlob(t *testing.T, bs blob.Store, key string) []byte {
	t.Helper()
	data, err := blob.ReadAll(context.Background(), bs, key, 0)
	require.NoError(t, err)
	return data
}
