package cli

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"
)

// Version is stamped into archive metadata as part of the generator name.
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	Database   string
	LogLevel   string
	Verbose    bool
	Format     string // "text" | "json" | "yaml"

	stdout, stderr io.Writer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for the prova CLI.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCommand()
	return cmd
}

func newRootCommand() (*cobra.Command, *RootOptions) {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "prova",
		Short: "prova - provenance graph export and import",
		Long: `Export sub-graphs of a provenance store into self-contained archives
and merge archives back into a store without losing provenance.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			opts.stdout = cmd.OutOrStdout()
			opts.stderr = cmd.ErrOrStderr()
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default ./prova.yaml or $HOME/.prova/prova.yaml)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to the SQLite store (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	// Add subcommands
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd, opts
}

// Run executes the CLI with args and returns the process exit code.
// Failures are reported on stderr, or on stdout in machine formats.
func Run(args []string, stdout, stderr io.Writer) int {
	cmd, opts := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}

	format := opts.Format
	if !slices.Contains(ValidFormats, format) {
		format = "text"
	}
	out := &OutputFormatter{Format: format, Writer: stdout, ErrWriter: stderr, Verbose: opts.Verbose}
	_ = out.Error(errorCode(err), err.Error(), errorDetails(err))
	return GetExitCode(err)
}

// Execute runs the CLI against the process arguments.
func Execute() int {
	return Run(os.Args[1:], os.Stdout, os.Stderr)
}

func (o *RootOptions) formatter() *OutputFormatter {
	f := &OutputFormatter{
		Format:    o.Format,
		Writer:    o.stdout,
		ErrWriter: o.stderr,
		Verbose:   o.Verbose,
	}
	if f.Writer == nil {
		f.Writer = os.Stdout
	}
	if f.ErrWriter == nil {
		f.ErrWriter = os.Stderr
	}
	return f
}
