package transfer

import (
	"context"
	"log/slog"

	"github.com/roach88/prova/internal/archive"
	"github.com/roach88/prova/internal/license"
	"github.com/roach88/prova/internal/logging"
	"github.com/roach88/prova/internal/walker"
)

// ExportOptions tune a single export.
type ExportOptions struct {
	// License is checked against every node of the closure.
	License license.Policy

	// Traversal chooses the links followed from the seeds. Nil means
	// walker.DefaultPolicy.
	Traversal *walker.Policy
}

// Exporter writes archives from a live store.
type Exporter struct {
	Source walker.Source
	Writer *archive.Writer
	Logger *slog.Logger
}

// Export writes the closure of seeds to dest.
//
// Errors are InvalidArgument, NotFound, LicensingError, IOError or
// ExportError. No archive is left at dest on failure.
func (e *Exporter) Export(ctx context.Context, seeds []walker.EntityRef, dest string, opts ExportOptions) (*archive.Handle, error) {
	policy := walker.DefaultPolicy()
	if opts.Traversal != nil {
		policy = *opts.Traversal
	}

	closure, err := walker.ComputeClosure(ctx, e.Source, seeds, policy)
	if err != nil {
		return nil, err
	}
	e.logger().Debug("closure computed",
		"seeds", len(seeds),
		"nodes", len(closure.Nodes),
		"links", len(closure.Links),
		"external_links", len(closure.ExternalLinks),
	)

	closure, err = license.Apply(closure, opts.License)
	if err != nil {
		e.logger().Warn("export rejected by license policy", "policy", opts.License.String(), "err", err)
		return nil, err
	}

	h, err := e.Writer.Write(ctx, closure, dest)
	if err != nil {
		return nil, err
	}
	e.logger().Info("export complete",
		"path", h.Path,
		"nodes", h.Metadata.Counts.Nodes,
		"license_policy", opts.License.Mode().String(),
	)
	return h, nil
}

func (e *Exporter) logger() *slog.Logger {
	if e.Logger == nil {
		return logging.Discard()
	}
	return e.Logger
}
