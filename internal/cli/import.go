package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/prova/internal/archive"
	"github.com/roach88/prova/internal/graph"
	"github.com/roach88/prova/internal/merge"
	"github.com/roach88/prova/internal/transfer"
)

// ImportOptions holds flags for the import and inspect commands.
type ImportOptions struct {
	*RootOptions
	IgnoreUnknownNodes bool
}

// ImportResult is the printed summary of a merge.
type ImportResult struct {
	Path   string        `json:"path" yaml:"path"`
	Report *merge.Report `json:"report" yaml:"report"`
}

// WriteText renders the merge report for humans.
func (r ImportResult) WriteText(w io.Writer) error {
	rep := r.Report
	lines := []struct {
		name string
		t    merge.Tally
	}{
		{"nodes", rep.Nodes},
		{"links", rep.Links},
		{"computers", rep.Computers},
		{"users", rep.Users},
		{"groups", rep.Groups},
		{"external links", rep.ExternalLinks},
	}
	if _, err := fmt.Fprintf(w, "Imported %s\n", r.Path); err != nil {
		return err
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "  %-15s %d created, %d reused\n", l.name, l.t.Created, l.t.Reused); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "  group members   %d added\n  content files   %d written\n",
		rep.GroupMembersAdded, rep.FilesWritten); err != nil {
		return err
	}
	if rep.ExternalLinksSkipped > 0 {
		if _, err := fmt.Fprintf(w, "  skipped %d external links with no local endpoint\n", rep.ExternalLinksSkipped); err != nil {
			return err
		}
	}
	if rep.DroppedLinks > 0 {
		if _, err := fmt.Fprintf(w, "  dropped %d links to unknown nodes\n", rep.DroppedLinks); err != nil {
			return err
		}
	}
	for _, rc := range rep.RenamedComputers {
		if _, err := fmt.Fprintf(w, "  computer %q imported as %q\n", rc.Original, rc.Assigned); err != nil {
			return err
		}
	}
	return nil
}

// InspectResult describes an archive without importing it.
type InspectResult struct {
	Path          string       `json:"path" yaml:"path"`
	ExportVersion int          `json:"export_version" yaml:"export_version"`
	ExportedAt    time.Time    `json:"exported_at" yaml:"exported_at"`
	Source        string       `json:"source,omitempty" yaml:"source,omitempty"`
	Generator     string       `json:"generator,omitempty" yaml:"generator,omitempty"`
	Counts        graph.Counts `json:"counts" yaml:"counts"`
	ContentFiles  int          `json:"content_files" yaml:"content_files"`
	DroppedLinks  int          `json:"dropped_links" yaml:"dropped_links"`
}

// WriteText renders the archive summary for humans.
func (r InspectResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s\n  format version  %d\n  exported at     %s\n  source          %s\n"+
		"  nodes           %d\n  links           %d (%d external)\n  computers       %d\n  users           %d\n"+
		"  groups          %d\n  content files   %d\n",
		r.Path, r.ExportVersion, r.ExportedAt.Format(time.RFC3339), r.Source,
		r.Counts.Nodes, r.Counts.Links, r.Counts.ExternalLinks, r.Counts.Computers, r.Counts.Users,
		r.Counts.Groups, r.ContentFiles)
	if err == nil && r.DroppedLinks > 0 {
		_, err = fmt.Fprintf(w, "  dropped %d links to unknown nodes\n", r.DroppedLinks)
	}
	return err
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <archive>",
		Short: "Merge an archive into the store",
		Long: `Import validates an archive and merges it into the store in a single
transaction. Existing entities are reused; nothing is overwritten.

Exit codes:
  0 - Archive merged
  1 - Archive rejected (unsupported version, corrupt, integrity violation)
  2 - Command error (bad flags, I/O failure)

Examples:
  prova import relax.tar.gz
  prova import --ignore-unknown-nodes partial.tar.gz --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.IgnoreUnknownNodes, "ignore-unknown-nodes", false,
		"drop links to nodes missing from the archive instead of failing")

	return cmd
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <archive>",
		Short: "Validate an archive and print its summary",
		Long: `Inspect runs every import check that does not need the store and
prints the archive header and entity counts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.IgnoreUnknownNodes, "ignore-unknown-nodes", false,
		"drop links to nodes missing from the archive instead of failing")

	return cmd
}

func newImporter(a *app) (*transfer.Importer, error) {
	limit, err := a.cfg.Import.EntryLimit()
	if err != nil {
		return nil, err
	}
	return &transfer.Importer{
		Reader: &archive.Reader{MaxEntrySize: limit, Logger: a.log},
		Logger: a.log,
	}, nil
}

func importOptions(cmd *cobra.Command, opts *ImportOptions, a *app) transfer.ImportOptions {
	ignore := a.cfg.Import.IgnoreUnknownNodes
	if cmd.Flags().Changed("ignore-unknown-nodes") {
		ignore = opts.IgnoreUnknownNodes
	}
	return transfer.ImportOptions{IgnoreUnknownNodes: ignore}
}

func runImport(cmd *cobra.Command, opts *ImportOptions, src string) error {
	ctx := context.Background()

	a, err := newApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	imp, err := newImporter(a)
	if err != nil {
		return err
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}
	blobs, err := a.openBlobs(ctx)
	if err != nil {
		return err
	}
	imp.Merger = &merge.Merger{Blobs: blobs, Logger: a.log}
	imp.Target = merge.StoreTransactor(st)

	report, err := imp.Import(ctx, src, importOptions(cmd, opts, a))
	if err != nil {
		return err
	}
	return opts.formatter().Success(ImportResult{Path: src, Report: report})
}

func runInspect(cmd *cobra.Command, opts *ImportOptions, src string) error {
	ctx := context.Background()

	a, err := newApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	imp, err := newImporter(a)
	if err != nil {
		return err
	}
	pg, err := imp.Inspect(ctx, src, importOptions(cmd, opts, a))
	if err != nil {
		return err
	}
	keys, err := pg.Content.Keys(ctx, "")
	if err != nil {
		return err
	}

	return opts.formatter().Success(InspectResult{
		Path:          src,
		ExportVersion: pg.Metadata.ExportVersion,
		ExportedAt:    pg.Metadata.ExportedAt,
		Source:        pg.Metadata.Source,
		Generator:     pg.Metadata.Generator,
		Counts:        pg.Closure.Counts(),
		ContentFiles:  len(keys),
		DroppedLinks:  len(pg.DroppedLinks),
	})
}
