package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/roach88/prova/internal/blob"
	"github.com/roach88/prova/internal/errs"
	"github.com/roach88/prova/internal/graph"
	"github.com/roach88/prova/internal/logging"
)

// DefaultMaxContentSize bounds a single content file.
const DefaultMaxContentSize int64 = 256 * units.MiB

// Writer serializes closures into archives.
type Writer struct {
	// Fs is where archives are written. Defaults to the OS filesystem.
	Fs afero.Fs

	// Blobs holds node content. Nil means the nodes carry no content.
	Blobs blob.Store

	// Clock stamps the export time. Defaults to graph.SystemClock.
	Clock graph.Clock

	// Source identifies the exporting store in the metadata.
	Source string

	// Generator names the exporting program in the metadata.
	Generator string

	// MaxContentSize bounds each content file. Zero means
	// DefaultMaxContentSize.
	MaxContentSize int64

	// Overwrite allows replacing an existing destination file.
	Overwrite bool

	Logger *slog.Logger
}

// Handle describes a written archive.
type Handle struct {
	Path         string
	Metadata     Metadata
	ContentFiles int
	Size         int64
}

// Write serializes c to dest. c is sorted in place.
//
// The archive is written to a temporary file next to dest and renamed into
// place on success, so a failed write never leaves a partial archive.
// Destination faults are IOError; unusable content is ExportError.
func (w *Writer) Write(ctx context.Context, c *graph.Closure, dest string) (*Handle, error) {
	fs := w.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if dest == "" {
		return nil, errs.New(errs.InvalidArgument, "empty destination path").WithField("destination")
	}
	if !w.Overwrite {
		exists, err := afero.Exists(fs, dest)
		if err != nil {
			return nil, errs.Wrap(errs.IOError, err, "stat destination %s", dest)
		}
		if exists {
			return nil, errs.New(errs.InvalidArgument, "destination %s already exists", dest).WithField("destination")
		}
	}

	c.Sort()
	data, encErr := encodeGraph(c)
	if encErr != nil {
		return nil, errs.Wrap(errs.ExportError, encErr.err, "encode graph description").WithUUID(encErr.uuid)
	}

	meta := Metadata{
		ExportVersion: FormatVersion,
		ExportedAt:    w.now(),
		Source:        w.Source,
		Generator:     w.Generator,
		Counts:        c.Counts(),
	}
	metaJSON, err := graph.MarshalCanonical(metadataValues(meta))
	if err != nil {
		return nil, errs.Wrap(errs.ExportError, err, "encode metadata")
	}

	tmp, err := afero.TempFile(fs, filepath.Dir(dest), ".prova-export-*")
	if err != nil {
		return nil, errs.Wrap(errs.IOError, err, "create temporary archive in %s", filepath.Dir(dest))
	}

	h := &Handle{Path: dest, Metadata: meta}
	if err := w.writeContainer(ctx, tmp, c, meta, metaJSON, data, h); err != nil {
		return nil, multierr.Combine(err, discard(fs, tmp))
	}
	if err := tmp.Close(); err != nil {
		return nil, multierr.Combine(errs.Wrap(errs.IOError, err, "close archive"), remove(fs, tmp.Name()))
	}

	if err := fs.Chmod(tmp.Name(), 0o644); err != nil {
		return nil, multierr.Combine(errs.Wrap(errs.IOError, err, "set archive permissions"), remove(fs, tmp.Name()))
	}
	if fi, err := fs.Stat(tmp.Name()); err == nil {
		h.Size = fi.Size()
	}
	if err := fs.Rename(tmp.Name(), dest); err != nil {
		return nil, multierr.Combine(errs.Wrap(errs.IOError, err, "move archive to %s", dest), remove(fs, tmp.Name()))
	}

	w.logger().Info("archive written",
		"path", dest,
		"nodes", meta.Counts.Nodes,
		"links", meta.Counts.Links,
		"content_files", h.ContentFiles,
		"size", units.HumanSize(float64(h.Size)),
	)
	return h, nil
}

// writeContainer streams the three sections through gzip and tar.
func (w *Writer) writeContainer(ctx context.Context, f afero.File, c *graph.Closure, meta Metadata, metaJSON, data []byte, h *Handle) error {
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	if err := writeEntry(tw, MetadataEntry, metaJSON, meta.ExportedAt); err != nil {
		return err
	}
	if err := writeEntry(tw, DataEntry, data, meta.ExportedAt); err != nil {
		return err
	}
	n, err := w.writeContent(ctx, tw, c, meta.ExportedAt)
	if err != nil {
		return err
	}
	h.ContentFiles = n

	if err := tw.Close(); err != nil {
		return errs.Wrap(errs.IOError, err, "finish tar stream")
	}
	if err := gz.Close(); err != nil {
		return errs.Wrap(errs.IOError, err, "finish gzip stream")
	}
	return nil
}

// writeContent copies every node's content files, sorted by key.
func (w *Writer) writeContent(ctx context.Context, tw *tar.Writer, c *graph.Closure, modTime time.Time) (int, error) {
	if w.Blobs == nil {
		return 0, nil
	}
	limit := w.MaxContentSize
	if limit <= 0 {
		limit = DefaultMaxContentSize
	}

	count := 0
	for _, n := range c.Nodes {
		keys, err := w.Blobs.Keys(ctx, blob.NodePrefix(n.UUID))
		if err != nil {
			return count, errs.Wrap(errs.ExportError, err, "list content").WithUUID(n.UUID)
		}
		for _, key := range keys {
			_, rel, _ := blob.SplitNodeKey(key)
			if err := blob.ValidateRelPath(rel); err != nil {
				return count, errs.Wrap(errs.ExportError, err, "invalid content path").WithUUID(n.UUID).WithField(key)
			}

			content, err := blob.ReadAll(ctx, w.Blobs, key, limit)
			if err != nil {
				var tooLarge *blob.TooLargeError
				if errors.As(err, &tooLarge) {
					return count, errs.New(errs.ExportError, "content file larger than %s", units.BytesSize(float64(limit))).
						WithUUID(n.UUID).WithField(key)
				}
				return count, errs.Wrap(errs.ExportError, err, "unreadable content file").WithUUID(n.UUID).WithField(key)
			}

			if err := writeEntry(tw, ContentDir+key, content, modTime); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

// writeEntry writes one regular file with a fixed header.
func writeEntry(tw *tar.Writer, name string, data []byte, modTime time.Time) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(data)),
		ModTime:  modTime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return errs.Wrap(errs.IOError, err, "write header for %s", name)
	}
	if _, err := tw.Write(data); err != nil {
		return errs.Wrap(errs.IOError, err, "write %s", name)
	}
	return nil
}

func (w *Writer) now() time.Time {
	clock := w.Clock
	if clock == nil {
		clock = graph.SystemClock{}
	}
	return clock.Now().UTC().Truncate(time.Second)
}

func (w *Writer) logger() *slog.Logger {
	if w.Logger == nil {
		return logging.Discard()
	}
	return w.Logger
}

// discard closes and removes a temporary file after a failed write.
func discard(fs afero.Fs, f afero.File) error {
	return multierr.Combine(ignoreClosed(f.Close()), remove(fs, f.Name()))
}

func remove(fs afero.Fs, name string) error {
	if err := fs.Remove(name); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove temporary archive: %w", err)
	}
	return nil
}

func ignoreClosed(err error) error {
	if errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}
