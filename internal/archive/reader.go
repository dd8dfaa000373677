package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/afero"

	"github.com/roach88/prova/internal/blob"
	"github.com/roach88/prova/internal/errs"
	"github.com/roach88/prova/internal/graph"
	"github.com/roach88/prova/internal/logging"
)

// DefaultMaxEntrySize bounds a single archive entry.
const DefaultMaxEntrySize int64 = 1 * units.GiB

// Reader parses and validates archives.
type Reader struct {
	// Fs is where archives are read from. Defaults to the OS filesystem.
	Fs afero.Fs

	// MaxEntrySize bounds each entry. Zero means DefaultMaxEntrySize.
	MaxEntrySize int64

	Logger *slog.Logger
}

// ReadOptions tune validation.
type ReadOptions struct {
	// IgnoreUnknownNodes drops links whose endpoints are not both in the
	// archive instead of failing.
	IgnoreUnknownNodes bool
}

// ParsedGraph is a fully validated archive.
type ParsedGraph struct {
	Metadata Metadata
	Closure  *graph.Closure

	// DroppedLinks are links discarded under IgnoreUnknownNodes.
	DroppedLinks []graph.Link

	// Content holds the extracted content files, keyed like any blob store.
	Content blob.Store
}

// Read parses src and validates it completely, so a nil error means every
// reference in the returned graph resolves.
//
// The format version is checked before the graph description is decoded.
// Open failures are IOError; any structural violation is CorruptArchive.
func (r *Reader) Read(ctx context.Context, src string, opts ReadOptions) (*ParsedGraph, error) {
	fs := r.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	f, err := fs.Open(src)
	if err != nil {
		return nil, errs.Wrap(errs.IOError, err, "open archive %s", src)
	}
	defer f.Close()

	entries, err := r.readContainer(ctx, f)
	if err != nil {
		return nil, err
	}

	meta, err := parseMetadata(entries.metadata)
	if err != nil {
		return nil, err
	}
	if entries.data == nil {
		return nil, errs.New(errs.CorruptArchive, "missing %s", DataEntry).WithField(DataEntry)
	}
	if err := validateGraph(entries.data); err != nil {
		return nil, err
	}
	c, err := decodeGraph(entries.data)
	if err != nil {
		return nil, errs.Wrap(errs.CorruptArchive, err, "decode graph description").WithField(DataEntry)
	}
	// Header counts are advisory: data.json is authoritative.
	if err := checkCounts(meta.Counts, c.Counts()); err != nil {
		r.logger().Warn("archive header counts disagree with graph description", "path", src, "err", err)
	}

	dropped, err := checkReferences(c, opts)
	if err != nil {
		return nil, err
	}

	content, err := extractContent(ctx, c, entries.content)
	if err != nil {
		return nil, err
	}
	c.Sort()

	r.logger().Info("archive read",
		"path", src,
		"version", meta.ExportVersion,
		"nodes", len(c.Nodes),
		"links", len(c.Links),
		"dropped_links", len(dropped),
		"content_files", len(entries.content),
	)
	return &ParsedGraph{
		Metadata:     meta,
		Closure:      c,
		DroppedLinks: dropped,
		Content:      content,
	}, nil
}

type containerEntries struct {
	metadata []byte
	data     []byte
	content  map[string][]byte
}

// readContainer reads every entry into memory, rejecting anything that is
// not a regular file with a clean relative name.
func (r *Reader) readContainer(ctx context.Context, f io.Reader) (*containerEntries, error) {
	limit := r.MaxEntrySize
	if limit <= 0 {
		limit = DefaultMaxEntrySize
	}

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, errs.Wrap(errs.CorruptArchive, err, "not a gzip stream")
	}
	defer gz.Close()

	out := &containerEntries{content: map[string][]byte{}}
	seen := map[string]bool{}
	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errs.Wrap(errs.CorruptArchive, err, "read tar stream")
		}

		name := hdr.Name
		if hdr.Typeflag == tar.TypeDir {
			continue
		}
		if hdr.Typeflag != tar.TypeReg {
			return nil, errs.New(errs.CorruptArchive, "entry is not a regular file").WithField(name)
		}
		if err := checkEntryName(name); err != nil {
			return nil, errs.Wrap(errs.CorruptArchive, err, "unsafe entry name").WithField(name)
		}
		if seen[name] {
			return nil, errs.New(errs.CorruptArchive, "duplicate entry").WithField(name)
		}
		seen[name] = true
		if hdr.Size > limit {
			return nil, errs.New(errs.CorruptArchive, "entry larger than %s", units.BytesSize(float64(limit))).WithField(name)
		}

		data, err := io.ReadAll(io.LimitReader(tr, limit+1))
		if err != nil {
			return nil, errs.Wrap(errs.CorruptArchive, err, "read entry").WithField(name)
		}
		if int64(len(data)) > limit {
			return nil, errs.New(errs.CorruptArchive, "entry larger than %s", units.BytesSize(float64(limit))).WithField(name)
		}

		switch {
		case name == MetadataEntry:
			out.metadata = data
		case name == DataEntry:
			out.data = data
		case strings.HasPrefix(name, ContentDir):
			out.content[strings.TrimPrefix(name, ContentDir)] = data
		default:
			return nil, errs.New(errs.CorruptArchive, "unexpected entry").WithField(name)
		}
	}
	return out, nil
}

func checkEntryName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty name")
	case strings.HasPrefix(name, "/"):
		return fmt.Errorf("absolute name")
	case strings.Contains(name, "\\"):
		return fmt.Errorf("name contains a backslash")
	case path.Clean(name) != name:
		return fmt.Errorf("name is not clean")
	case name == ".." || strings.HasPrefix(name, "../"):
		return fmt.Errorf("name escapes the archive root")
	}
	return nil
}

// parseMetadata checks the format version first, so an archive from a
// newer writer is reported as such even when the rest of its header has
// changed shape.
func parseMetadata(data []byte) (Metadata, error) {
	if data == nil {
		return Metadata{}, errs.New(errs.CorruptArchive, "missing %s", MetadataEntry).WithField(MetadataEntry)
	}

	version, err := probeVersion(data)
	if err != nil {
		return Metadata{}, err
	}

	var raw struct {
		ExportedAt string       `json:"exported_at"`
		Source     string       `json:"source"`
		Generator  string       `json:"generator"`
		Counts     graph.Counts `json:"counts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Metadata{}, errs.Wrap(errs.CorruptArchive, err, "decode %s", MetadataEntry).WithField(MetadataEntry)
	}
	at, err := time.Parse(time.RFC3339, raw.ExportedAt)
	if err != nil {
		return Metadata{}, errs.Wrap(errs.CorruptArchive, err, "invalid exported_at").WithField("exported_at")
	}
	return Metadata{
		ExportVersion: version,
		ExportedAt:    at.UTC(),
		Source:        raw.Source,
		Generator:     raw.Generator,
		Counts:        raw.Counts,
	}, nil
}

// probeVersion reads export_version alone. Any number is accepted here
// so that a header from another writer ("0.0", "2.5") is reported as an
// unsupported version; only a missing or non-numeric version is corrupt.
func probeVersion(data []byte) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var probe map[string]any
	if err := dec.Decode(&probe); err != nil {
		return 0, errs.Wrap(errs.CorruptArchive, err, "decode %s", MetadataEntry).WithField(MetadataEntry)
	}
	raw, ok := probe["export_version"]
	if !ok || raw == nil {
		return 0, errs.New(errs.CorruptArchive, "%s has no export_version", MetadataEntry).WithField("export_version")
	}
	n, ok := raw.(json.Number)
	if !ok {
		return 0, errs.New(errs.CorruptArchive, "export_version is %T, not a number", raw).WithField("export_version")
	}
	f, err := n.Float64()
	if err != nil {
		return 0, errs.Wrap(errs.CorruptArchive, err, "invalid export_version %s", n).WithField("export_version")
	}
	version := int(f)
	if float64(version) != f || !supported(version) {
		return 0, errs.New(errs.UnsupportedFormatVersion,
			"archive format version %s is not supported (supported: %v)", n, SupportedVersions).
			WithField("export_version")
	}
	return version, nil
}

// checkCounts compares the header counts with the decoded graph, before
// any link is dropped. It names the first kind that differs.
func checkCounts(want, got graph.Counts) error {
	kinds := []struct {
		name      string
		want, got int
	}{
		{"nodes", want.Nodes, got.Nodes},
		{"links", want.Links, got.Links},
		{"external_links", want.ExternalLinks, got.ExternalLinks},
		{"computers", want.Computers, got.Computers},
		{"users", want.Users, got.Users},
		{"groups", want.Groups, got.Groups},
	}
	for _, k := range kinds {
		if k.want != k.got {
			return errs.New(errs.CorruptArchive, "%s declares %d %s, %s holds %d",
				MetadataEntry, k.want, k.name, DataEntry, k.got).WithField("counts." + k.name)
		}
	}
	return nil
}

// checkReferences verifies that every reference in c resolves inside the
// archive. Links with unknown endpoints are dropped when the options allow
// it; every other dangling reference is fatal.
func checkReferences(c *graph.Closure, opts ReadOptions) ([]graph.Link, error) {
	nodes := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if nodes[n.UUID] {
			return nil, corrupt(n.UUID, "nodes", "duplicate node")
		}
		nodes[n.UUID] = true
	}
	computers := make(map[string]bool, len(c.Computers))
	for _, comp := range c.Computers {
		if computers[comp.UUID] {
			return nil, corrupt(comp.UUID, "computers", "duplicate computer")
		}
		computers[comp.UUID] = true
	}
	users := make(map[string]bool, len(c.Users))
	for _, u := range c.Users {
		if users[u.Email] {
			return nil, corrupt("", "users", "duplicate user %s", u.Email)
		}
		users[u.Email] = true
	}

	for _, n := range c.Nodes {
		if n.ComputerUUID != "" && !computers[n.ComputerUUID] {
			return nil, corrupt(n.UUID, "computer", "node references unknown computer %s", n.ComputerUUID)
		}
		if n.UserEmail != "" && !users[n.UserEmail] {
			return nil, corrupt(n.UUID, "user", "node references unknown user %s", n.UserEmail)
		}
	}

	var dropped []graph.Link
	kept := make([]graph.Link, 0, len(c.Links))
	type slot struct{ output, label string }
	slots := make(map[slot]bool, len(c.Links))
	for _, l := range c.Links {
		if !nodes[l.Input] || !nodes[l.Output] {
			if opts.IgnoreUnknownNodes {
				dropped = append(dropped, l)
				continue
			}
			missing := l.Input
			if nodes[l.Input] {
				missing = l.Output
			}
			return nil, corrupt(missing, "links", "link %q references a node not in the archive", l.Label)
		}
		s := slot{l.Output, l.Label}
		if slots[s] {
			return nil, corrupt(l.Output, "links", "duplicate incoming link label %q", l.Label)
		}
		slots[s] = true
		kept = append(kept, l)
	}
	c.Links = kept

	keptExternal := make([]graph.Link, 0, len(c.ExternalLinks))
	for _, l := range c.ExternalLinks {
		in, out := nodes[l.Input], nodes[l.Output]
		switch {
		case in && out:
			return nil, corrupt(l.Output, "external_links", "external link %q has both endpoints in the archive", l.Label)
		case !in && !out:
			if opts.IgnoreUnknownNodes {
				dropped = append(dropped, l)
				continue
			}
			return nil, corrupt(l.Output, "external_links", "external link %q has no endpoint in the archive", l.Label)
		}
		keptExternal = append(keptExternal, l)
	}
	c.ExternalLinks = keptExternal

	groups := make(map[string]bool, len(c.Groups))
	for _, g := range c.Groups {
		if groups[g.UUID] {
			return nil, corrupt(g.UUID, "groups", "duplicate group")
		}
		groups[g.UUID] = true
		for _, m := range g.Members {
			if !nodes[m] {
				return nil, corrupt(g.UUID, "members", "group member %s is not in the archive", m)
			}
		}
	}
	return dropped, nil
}

// extractContent moves content entries into an in-memory blob store.
func extractContent(ctx context.Context, c *graph.Closure, content map[string][]byte) (blob.Store, error) {
	nodes := c.NodeSet()
	bs := blob.NewLocal(afero.NewBasePathFs(afero.NewMemMapFs(), "/content"))
	for key, data := range content {
		uuid, rel, ok := blob.SplitNodeKey(key)
		if !ok {
			return nil, corrupt("", ContentDir+key, "content entry outside a node directory")
		}
		if !nodes[uuid] {
			return nil, corrupt(uuid, ContentDir+key, "content for a node not in the archive")
		}
		if err := blob.ValidateRelPath(rel); err != nil {
			return nil, errs.Wrap(errs.CorruptArchive, err, "invalid content path").WithUUID(uuid).WithField(ContentDir + key)
		}
		if err := bs.Put(ctx, key, bytes.NewReader(data)); err != nil {
			return nil, errs.Wrap(errs.IOError, err, "buffer content").WithField(ContentDir + key)
		}
	}
	return bs, nil
}

func corrupt(uuid, field, format string, args ...any) error {
	return errs.New(errs.CorruptArchive, format, args...).WithUUID(uuid).WithField(field)
}

func (r *Reader) logger() *slog.Logger {
	if r.Logger == nil {
		return logging.Discard()
	}
	return r.Logger
}
