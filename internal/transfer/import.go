package transfer

import (
	"context"
	"log/slog"

	"github.com/roach88/prova/internal/archive"
	"github.com/roach88/prova/internal/logging"
	"github.com/roach88/prova/internal/merge"
)

// ImportOptions tune a single import.
type ImportOptions struct {
	// IgnoreUnknownNodes drops links to nodes that are neither in the
	// archive nor resolvable, instead of rejecting the archive.
	IgnoreUnknownNodes bool
}

// Importer merges archives into a target store.
type Importer struct {
	Reader *archive.Reader
	Merger *merge.Merger
	Target merge.Transactor
	Logger *slog.Logger
}

// Import reads src and merges it into the target.
//
// Errors are UnsupportedFormatVersion, CorruptArchive, GraphIntegrityError
// or IOError. The target is not modified on failure.
func (i *Importer) Import(ctx context.Context, src string, opts ImportOptions) (*merge.Report, error) {
	pg, err := i.Inspect(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	if len(pg.DroppedLinks) > 0 {
		i.logger().Warn("dropped links to unknown nodes", "count", len(pg.DroppedLinks))
	}

	report, err := i.Merger.Merge(ctx, pg, i.Target)
	if err != nil {
		return nil, err
	}
	i.logger().Info("import complete",
		"path", src,
		"nodes_created", report.Nodes.Created,
		"nodes_reused", report.Nodes.Reused,
		"links_created", report.Links.Created,
	)
	return report, nil
}

// Inspect reads and validates src without touching the target.
func (i *Importer) Inspect(ctx context.Context, src string, opts ImportOptions) (*archive.ParsedGraph, error) {
	pg, err := i.Reader.Read(ctx, src, archive.ReadOptions{IgnoreUnknownNodes: opts.IgnoreUnknownNodes})
	if err != nil {
		return nil, err
	}
	i.logger().Debug("archive validated",
		"path", src,
		"version", pg.Metadata.ExportVersion,
		"exported_at", pg.Metadata.ExportedAt,
	)
	return pg, nil
}

func (i *Importer) logger() *slog.Logger {
	if i.Logger == nil {
		return logging.Discard()
	}
	return i.Logger
}
