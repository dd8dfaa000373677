package merge

import (
	"bytes"
	"context"
	"log/slog"
	"strings"

	"go.uber.org/multierr"

	"github.com/roach88/prova/internal/archive"
	"github.com/roach88/prova/internal/blob"
	"github.com/roach88/prova/internal/errs"
	"github.com/roach88/prova/internal/graph"
	"github.com/roach88/prova/internal/logging"
)

// Merger applies parsed archives to a target.
type Merger struct {
	// Blobs receives the content files of newly created nodes. Nil skips
	// content.
	Blobs blob.Store

	Logger *slog.Logger
}

// Merge applies pg to dst in a single transaction.
//
// On failure dst is left as it was, and any content files already copied
// are removed again. Store faults are IOError; conflicting links and
// would-be cycles are GraphIntegrityError.
func (m *Merger) Merge(ctx context.Context, pg *archive.ParsedGraph, dst Transactor) (*Report, error) {
	if pg == nil || pg.Closure == nil {
		return nil, errs.New(errs.InvalidArgument, "nothing to merge")
	}

	var (
		report  *Report
		written []string
	)
	err := dst.InTx(ctx, func(t Target) error {
		r := &run{
			ctx:     ctx,
			t:       t,
			pg:      pg,
			blobs:   m.Blobs,
			log:     m.logger(),
			report:  &Report{DroppedLinks: len(pg.DroppedLinks), RenamedComputers: []RenamedComputer{}},
			inside:  pg.Closure.NodeSet(),
			created: map[string]bool{},
		}
		err := r.apply()
		written = r.written
		if err != nil {
			return err
		}
		report = r.report
		return nil
	})
	if err != nil {
		if errs.CodeOf(err) == "" {
			err = errs.Wrap(errs.IOError, err, "merge transaction")
		}
		return nil, multierr.Combine(err, m.removeBlobs(ctx, written))
	}

	m.logger().Info("merge complete",
		"nodes_created", report.Nodes.Created,
		"nodes_reused", report.Nodes.Reused,
		"links_created", report.Links.Created,
		"computers_renamed", len(report.RenamedComputers),
		"dropped_links", report.DroppedLinks,
		"files_written", report.FilesWritten,
	)
	return report, nil
}

func (m *Merger) removeBlobs(ctx context.Context, keys []string) error {
	var err error
	for _, key := range keys {
		if derr := m.Blobs.Delete(ctx, key); derr != nil {
			err = multierr.Append(err, errs.Wrap(errs.IOError, derr, "remove imported content %s", key))
		}
	}
	return err
}

func (m *Merger) logger() *slog.Logger {
	if m.Logger == nil {
		return logging.Discard()
	}
	return m.Logger
}

// run is the state of one merge attempt.
type run struct {
	ctx   context.Context
	t     Target
	pg    *archive.ParsedGraph
	blobs blob.Store
	log   *slog.Logger

	report  *Report
	inside  map[string]bool // nodes in the archive
	created map[string]bool // nodes created by this merge
	written []string        // content keys written by this merge
}

func (r *run) apply() error {
	c := r.pg.Closure
	for _, u := range c.Users {
		if err := r.mergeUser(u); err != nil {
			return err
		}
	}
	for _, comp := range c.Computers {
		if err := r.mergeComputer(comp); err != nil {
			return err
		}
	}
	for _, n := range c.Nodes {
		if err := r.mergeNode(n); err != nil {
			return err
		}
	}
	for _, g := range c.Groups {
		if err := r.mergeGroup(g); err != nil {
			return err
		}
	}
	for _, l := range c.Links {
		created, err := r.mergeLink(l)
		if err != nil {
			return err
		}
		count(&r.report.Links, created)
	}
	for _, l := range c.ExternalLinks {
		if err := r.mergeExternalLink(l); err != nil {
			return err
		}
	}
	return r.copyContent()
}

func count(t *Tally, created bool) {
	if created {
		t.Created++
	} else {
		t.Reused++
	}
}

func (r *run) mergeUser(u graph.User) error {
	created, err := r.t.CreateUser(r.ctx, u)
	if err != nil {
		return errs.Wrap(errs.IOError, err, "create user %s", u.Email).WithField("users")
	}
	count(&r.report.Users, created)
	return nil
}

func (r *run) mergeComputer(comp graph.Computer) error {
	_, err := r.t.GetComputer(r.ctx, comp.UUID)
	switch {
	case err == nil:
		count(&r.report.Computers, false)
		return nil
	case !isNotFound(err):
		return errs.Wrap(errs.IOError, err, "look up computer").WithUUID(comp.UUID)
	}

	original := comp.Name
	_, err = r.t.GetComputerByName(r.ctx, comp.Name)
	switch {
	case err == nil:
		n, err := nextSuffix(r.ctx, r.t, original)
		if err != nil {
			return errs.Wrap(errs.IOError, err, "allocate computer name").WithUUID(comp.UUID)
		}
		comp.Name = DisambiguatedName(original, n)
		r.report.RenamedComputers = append(r.report.RenamedComputers, RenamedComputer{
			UUID:     comp.UUID,
			Original: original,
			Assigned: comp.Name,
			Suffix:   n,
		})
		r.log.Info("computer renamed on import", "uuid", comp.UUID, "from", original, "to", comp.Name)
	case !isNotFound(err):
		return errs.Wrap(errs.IOError, err, "look up computer name %q", original).WithUUID(comp.UUID)
	}

	if err := r.t.CreateComputer(r.ctx, comp); err != nil {
		return errs.Wrap(errs.IOError, err, "create computer").WithUUID(comp.UUID)
	}
	count(&r.report.Computers, true)
	return nil
}

func (r *run) mergeNode(n graph.Node) error {
	created, err := r.t.CreateNode(r.ctx, n)
	if err != nil {
		return errs.Wrap(errs.IOError, err, "create node").WithUUID(n.UUID)
	}
	if created {
		r.created[n.UUID] = true
	}
	count(&r.report.Nodes, created)
	return nil
}

func (r *run) mergeGroup(g graph.Group) error {
	created, err := r.t.CreateGroup(r.ctx, g)
	if err != nil {
		return errs.Wrap(errs.IOError, err, "create group").WithUUID(g.UUID)
	}
	count(&r.report.Groups, created)

	added, err := r.t.AddGroupMembers(r.ctx, g.UUID, g.Members)
	if err != nil {
		return errs.Wrap(errs.IOError, err, "add group members").WithUUID(g.UUID)
	}
	r.report.GroupMembersAdded += added
	return nil
}

// mergeLink creates l unless an identical link exists.
func (r *run) mergeLink(l graph.Link) (bool, error) {
	existing, found, err := r.t.FindLink(r.ctx, l.Output, l.Label)
	if err != nil {
		return false, errs.Wrap(errs.IOError, err, "look up link %q", l.Label).WithUUID(l.Output)
	}
	if found {
		if existing.Input != l.Input || existing.Type != l.Type {
			return false, errs.New(errs.GraphIntegrityError,
				"link %q into %s already exists as %s from %s, archive has %s from %s",
				l.Label, l.Output, existing.Type, existing.Input, l.Type, l.Input).
				WithUUID(l.Output).WithField(l.Label)
		}
		return false, nil
	}

	path, err := closesCycle(r.ctx, r.t, l)
	if err != nil {
		return false, errs.Wrap(errs.IOError, err, "check provenance cycle").WithUUID(l.Output)
	}
	if path != nil {
		return false, errs.New(errs.GraphIntegrityError,
			"%s link %q from %s would close a cycle: %s",
			l.Type, l.Label, l.Input, strings.Join(append(path, path[0]), " -> ")).
			WithUUID(l.Output).WithField(l.Label)
	}

	created, err := r.t.CreateLink(r.ctx, l)
	if err != nil {
		return false, errs.Wrap(errs.IOError, err, "create link %q", l.Label).WithUUID(l.Output)
	}
	return created, nil
}

// mergeExternalLink applies a stub when its outside endpoint exists.
func (r *run) mergeExternalLink(l graph.Link) error {
	outside := l.Input
	if !r.inside[l.Output] {
		outside = l.Output
	}
	exists, err := r.t.NodeExists(r.ctx, outside)
	if err != nil {
		return errs.Wrap(errs.IOError, err, "look up node").WithUUID(outside)
	}
	if !exists {
		r.report.ExternalLinksSkipped++
		return nil
	}
	created, err := r.mergeLink(l)
	if err != nil {
		return err
	}
	count(&r.report.ExternalLinks, created)
	return nil
}

// copyContent copies content files of the nodes this merge created. Files
// of reused nodes are left alone: the existing node wins.
func (r *run) copyContent() error {
	if r.blobs == nil || r.pg.Content == nil {
		return nil
	}
	keys, err := r.pg.Content.Keys(r.ctx, "")
	if err != nil {
		return errs.Wrap(errs.IOError, err, "list archive content")
	}
	for _, key := range keys {
		uuid, _, ok := blob.SplitNodeKey(key)
		if !ok || !r.created[uuid] {
			continue
		}
		data, err := blob.ReadAll(r.ctx, r.pg.Content, key, 0)
		if err != nil {
			return errs.Wrap(errs.IOError, err, "read archive content").WithUUID(uuid).WithField(key)
		}
		if err := r.blobs.Put(r.ctx, key, bytes.NewReader(data)); err != nil {
			return errs.Wrap(errs.IOError, err, "write content").WithUUID(uuid).WithField(key)
		}
		r.written = append(r.written, key)
		r.report.FilesWritten++
	}
	return nil
}
