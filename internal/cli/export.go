package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/roach88/prova/internal/archive"
	"github.com/roach88/prova/internal/errs"
	"github.com/roach88/prova/internal/graph"
	"github.com/roach88/prova/internal/license"
	"github.com/roach88/prova/internal/transfer"
	"github.com/roach88/prova/internal/walker"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Nodes          []string
	Groups         []string
	Output         string
	AllowLicenses  []string
	ForbidLicenses []string
	AllowPatterns  []string
	ForbidPatterns []string
	Follow         []string
	Descendants    []string
	Depth          int
	IncludeGroups  bool
	Exclude        []string
	Overwrite      bool
}

// ExportResult is the printed summary of a written archive.
type ExportResult struct {
	Path         string       `json:"path" yaml:"path"`
	ExportedAt   time.Time    `json:"exported_at" yaml:"exported_at"`
	Counts       graph.Counts `json:"counts" yaml:"counts"`
	ContentFiles int          `json:"content_files" yaml:"content_files"`
	Size         int64        `json:"size" yaml:"size"`
}

// WriteText renders the summary for humans.
func (r ExportResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Exported %d nodes, %d links (%d external), %d computers, %d users, %d groups\n"+
		"  %d content files, %s\n  -> %s\n",
		r.Counts.Nodes, r.Counts.Links, r.Counts.ExternalLinks, r.Counts.Computers, r.Counts.Users, r.Counts.Groups,
		r.ContentFiles, units.HumanSize(float64(r.Size)), r.Path)
	return err
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the closure of nodes and groups to an archive",
		Long: `Export computes the provenance closure of the given nodes and groups,
checks every node against the license policy, and writes a self-contained
archive.

Exit codes:
  0 - Archive written
  1 - Export refused (license policy, unusable content)
  2 - Command error (bad flags, unknown entity, I/O failure)

Examples:
  prova export --node 6f1c... -o relax.tar.gz
  prova export --group 0b2e... --include-groups --forbid-license GPL -o out.tar.gz
  prova export --node 6f1c... --follow create,input --depth 1 -o inputs.tar.gz`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Nodes, "node", nil, "node UUID to export (repeatable)")
	cmd.Flags().StringSliceVar(&opts.Groups, "group", nil, "group UUID to export (repeatable)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "archive path to write (required)")
	_ = cmd.MarkFlagRequired("output")
	cmd.Flags().StringSliceVar(&opts.AllowLicenses, "allow-license", nil, "only allow nodes with these licenses")
	cmd.Flags().StringSliceVar(&opts.ForbidLicenses, "forbid-license", nil, "refuse nodes with these licenses")
	cmd.Flags().StringSliceVar(&opts.AllowPatterns, "allow-license-pattern", nil, "only allow licenses matching these globs")
	cmd.Flags().StringSliceVar(&opts.ForbidPatterns, "forbid-license-pattern", nil, "refuse licenses matching these globs")
	cmd.Flags().StringSliceVar(&opts.Follow, "follow", nil, "incoming link types to follow (default from config)")
	cmd.Flags().StringSliceVar(&opts.Descendants, "descendants", nil, "outgoing link types to follow")
	cmd.Flags().IntVar(&opts.Depth, "depth", 0, "maximum hops from a seed, 0 for unlimited (default from config)")
	cmd.Flags().BoolVar(&opts.IncludeGroups, "include-groups", false, "also export groups containing exported nodes")
	cmd.Flags().StringSliceVar(&opts.Exclude, "exclude", nil, "node UUID never to include (repeatable)")
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "replace an existing archive")

	return cmd
}

func runExport(cmd *cobra.Command, opts *ExportOptions) error {
	ctx := context.Background()

	a, err := newApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	seeds := make([]walker.EntityRef, 0, len(opts.Nodes)+len(opts.Groups))
	for _, uuid := range opts.Nodes {
		seeds = append(seeds, walker.NodeRef(uuid))
	}
	for _, uuid := range opts.Groups {
		seeds = append(seeds, walker.GroupRef(uuid))
	}
	if len(seeds) == 0 {
		return errs.New(errs.InvalidArgument, "nothing to export: pass --node or --group").WithField("seeds")
	}

	policy, err := licensePolicy(opts, a.cfg.Export.AllowedLicenses, a.cfg.Export.ForbiddenLicenses)
	if err != nil {
		return err
	}
	traversal, err := traversalPolicy(cmd, opts, a)
	if err != nil {
		return err
	}
	limit, err := a.cfg.Export.ContentLimit()
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

	exp := &transfer.Exporter{
		Source: st,
		Writer: &archive.Writer{
			Blobs:          blobs,
			Clock:          graph.SystemClock{},
			Source:         st.Path(),
			Generator:      "prova " + Version,
			MaxContentSize: limit,
			Overwrite:      opts.Overwrite,
			Logger:         a.log,
		},
		Logger: a.log,
	}
	h, err := exp.Export(ctx, seeds, opts.Output, transfer.ExportOptions{
		License:   policy,
		Traversal: &traversal,
	})
	if err != nil {
		return err
	}

	return opts.formatter().Success(ExportResult{
		Path:         h.Path,
		ExportedAt:   h.Metadata.ExportedAt,
		Counts:       h.Metadata.Counts,
		ContentFiles: h.ContentFiles,
		Size:         h.Size,
	})
}

// licensePolicy builds the policy from flags, falling back to config.
// At most one kind of policy may be given.
func licensePolicy(opts *ExportOptions, cfgAllowed, cfgForbidden []string) (license.Policy, error) {
	var policies []license.Policy
	if len(opts.AllowLicenses) > 0 {
		policies = append(policies, license.Allow(opts.AllowLicenses...))
	}
	if len(opts.ForbidLicenses) > 0 {
		policies = append(policies, license.Deny(opts.ForbidLicenses...))
	}
	if len(opts.AllowPatterns) > 0 {
		policies = append(policies, license.AllowFunc(license.GlobPredicate(opts.AllowPatterns...)))
	}
	if len(opts.ForbidPatterns) > 0 {
		policies = append(policies, license.DenyFunc(license.GlobPredicate(opts.ForbidPatterns...)))
	}

	switch len(policies) {
	case 0:
	case 1:
		return policies[0], nil
	default:
		return license.Policy{}, errs.New(errs.InvalidArgument,
			"license flags are mutually exclusive: pass one of --allow-license, --forbid-license, --allow-license-pattern, --forbid-license-pattern").
			WithField("license")
	}

	switch {
	case len(cfgAllowed) > 0:
		return license.Allow(cfgAllowed...), nil
	case len(cfgForbidden) > 0:
		return license.Deny(cfgForbidden...), nil
	}
	return license.None(), nil
}

// traversalPolicy merges traversal flags over the configured defaults.
func traversalPolicy(cmd *cobra.Command, opts *ExportOptions, a *app) (walker.Policy, error) {
	policy := walker.DefaultPolicy()

	ancestors, err := a.cfg.Export.LinkTypes()
	if err != nil {
		return walker.Policy{}, err
	}
	if cmd.Flags().Changed("follow") {
		if ancestors, err = graph.ParseLinkTypes(opts.Follow); err != nil {
			return walker.Policy{}, errs.Wrap(errs.InvalidArgument, err, "invalid --follow").WithField("follow")
		}
	}
	policy.Ancestors = ancestors

	if len(opts.Descendants) > 0 {
		if policy.Descendants, err = graph.ParseLinkTypes(opts.Descendants); err != nil {
			return walker.Policy{}, errs.Wrap(errs.InvalidArgument, err, "invalid --descendants").WithField("descendants")
		}
	}

	policy.MaxDepth = a.cfg.Export.Depth
	if cmd.Flags().Changed("depth") {
		policy.MaxDepth = opts.Depth
	}
	policy.IncludeGroups = opts.IncludeGroups || a.cfg.Export.IncludeGroups

	if len(opts.Exclude) > 0 {
		policy.Exclude = make(map[string]bool, len(opts.Exclude))
		for _, raw := range opts.Exclude {
			uuid, err := graph.NormalizeUUID(raw)
			if err != nil {
				return walker.Policy{}, errs.Wrap(errs.InvalidArgument, err, "invalid --exclude %q", raw).WithField("exclude")
			}
			policy.Exclude[uuid] = true
		}
	}
	return policy, policy.Validate()
}
