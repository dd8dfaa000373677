package cli

import (
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/prova/internal/config"
)

const redacted = "<redacted>"

// configView is the effective configuration as printed.
type configView struct {
	config.Config `yaml:",inline"`
}

// WriteText renders the configuration as YAML.
func (v configView) WriteText(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v.Config); err != nil {
		return err
	}
	return enc.Close()
}

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(newConfigShowCommand(rootOpts))
	return cmd
}

func newConfigShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Show prints the configuration after merging defaults, the config file,
PROVA_* environment variables and global flags. Secrets are redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := a.cfg
			if cfg.Blob.S3.SecretKey != "" {
				cfg.Blob.S3.SecretKey = redacted
			}
			return opts.formatter().Success(configView{Config: cfg})
		},
	}
}
