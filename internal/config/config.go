// Package config loads prova settings from a YAML file and PROVA_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/docker/go-units"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/roach88/prova/internal/errs"
	"github.com/roach88/prova/internal/graph"
)

// EnvPrefix prefixes every environment override, e.g. PROVA_BLOB_S3_BUCKET.
const EnvPrefix = "PROVA"

// Config is the effective configuration.
type Config struct {
	Database string       `mapstructure:"database" json:"database" yaml:"database"`
	LogLevel string       `mapstructure:"log_level" json:"log_level" yaml:"log_level"`
	Blob     BlobConfig   `mapstructure:"blob" json:"blob" yaml:"blob"`
	Export   ExportConfig `mapstructure:"export" json:"export" yaml:"export"`
	Import   ImportConfig `mapstructure:"import" json:"import" yaml:"import"`
}

// BlobConfig selects the content store.
type BlobConfig struct {
	Backend string   `mapstructure:"backend" json:"backend" yaml:"backend"` // fs | s3
	Dir     string   `mapstructure:"dir" json:"dir" yaml:"dir"`
	S3      S3Config `mapstructure:"s3" json:"s3" yaml:"s3"`
}

// S3Config addresses an S3 or S3-compatible bucket.
type S3Config struct {
	Bucket    string `mapstructure:"bucket" json:"bucket" yaml:"bucket"`
	Prefix    string `mapstructure:"prefix" json:"prefix" yaml:"prefix"`
	Region    string `mapstructure:"region" json:"region" yaml:"region"`
	Endpoint  string `mapstructure:"endpoint" json:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" json:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" json:"secret_key,omitempty" yaml:"secret_key,omitempty"`
}

// ExportConfig holds export defaults. Command line flags override them.
type ExportConfig struct {
	AllowedLicenses   []string `mapstructure:"allowed_licenses" json:"allowed_licenses" yaml:"allowed_licenses"`
	ForbiddenLicenses []string `mapstructure:"forbidden_licenses" json:"forbidden_licenses" yaml:"forbidden_licenses"`
	MaxContentSize    string   `mapstructure:"max_content_size" json:"max_content_size" yaml:"max_content_size"`
	IncludeGroups     bool     `mapstructure:"include_groups" json:"include_groups" yaml:"include_groups"`
	Follow            []string `mapstructure:"follow" json:"follow" yaml:"follow"`
	Depth             int      `mapstructure:"depth" json:"depth" yaml:"depth"`
}

// ImportConfig holds import defaults.
type ImportConfig struct {
	MaxEntrySize       string `mapstructure:"max_entry_size" json:"max_entry_size" yaml:"max_entry_size"`
	IgnoreUnknownNodes bool   `mapstructure:"ignore_unknown_nodes" json:"ignore_unknown_nodes" yaml:"ignore_unknown_nodes"`
}

var logLevels = []string{"debug", "info", "warn", "error"}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Database: "prova.db",
		LogLevel: "info",
		Blob: BlobConfig{
			Backend: "fs",
			Dir:     "prova-blobs",
		},
		Export: ExportConfig{
			AllowedLicenses:   []string{},
			ForbiddenLicenses: []string{},
			MaxContentSize:    "256MiB",
			Follow:            []string{"create", "return", "input", "call"},
		},
		Import: ImportConfig{
			MaxEntrySize: "1GiB",
		},
	}
}

// setDefaults registers every key so environment overrides apply even when
// the file does not mention them.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("database", d.Database)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("blob.backend", d.Blob.Backend)
	v.SetDefault("blob.dir", d.Blob.Dir)
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.prefix", "")
	v.SetDefault("blob.s3.region", "")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.access_key", "")
	v.SetDefault("blob.s3.secret_key", "")
	v.SetDefault("export.allowed_licenses", d.Export.AllowedLicenses)
	v.SetDefault("export.forbidden_licenses", d.Export.ForbiddenLicenses)
	v.SetDefault("export.max_content_size", d.Export.MaxContentSize)
	v.SetDefault("export.include_groups", d.Export.IncludeGroups)
	v.SetDefault("export.follow", d.Export.Follow)
	v.SetDefault("export.depth", d.Export.Depth)
	v.SetDefault("import.max_entry_size", d.Import.MaxEntrySize)
	v.SetDefault("import.ignore_unknown_nodes", d.Import.IgnoreUnknownNodes)
}

// Options control where configuration is loaded from.
type Options struct {
	// Fs is searched for the config file. Defaults to the OS filesystem.
	Fs afero.Fs

	// File is an explicit config file. When empty, prova.yaml is looked up
	// in the working directory and in $HOME/.prova.
	File string
}

// Load reads the configuration and validates it. A missing default config
// file is not an error; a missing explicit one is.
func Load(opts Options) (Config, error) {
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	v := viper.New()
	v.SetFs(fs)
	setDefaults(v)

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.prova")
		v.SetConfigName("prova")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return Config{}, errs.Wrap(errs.InvalidArgument, err, "read config").WithField("config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(errs.InvalidArgument, err, "decode config").WithField("config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that cannot be checked by decoding alone.
func (c Config) Validate() error {
	if c.Database == "" {
		return invalid("database", "database path must not be empty")
	}
	if !slices.Contains(logLevels, strings.ToLower(c.LogLevel)) {
		return invalid("log_level", "log level %q must be one of %v", c.LogLevel, logLevels)
	}

	switch c.Blob.Backend {
	case "fs":
		if c.Blob.Dir == "" {
			return invalid("blob.dir", "blob directory must not be empty")
		}
	case "s3":
		if c.Blob.S3.Bucket == "" {
			return invalid("blob.s3.bucket", "s3 backend needs a bucket")
		}
	default:
		return invalid("blob.backend", "blob backend %q must be fs or s3", c.Blob.Backend)
	}

	if len(c.Export.AllowedLicenses) > 0 && len(c.Export.ForbiddenLicenses) > 0 {
		return invalid("export", "allowed_licenses and forbidden_licenses are mutually exclusive")
	}
	if _, err := c.Export.ContentLimit(); err != nil {
		return err
	}
	if _, err := c.Export.LinkTypes(); err != nil {
		return err
	}
	if c.Export.Depth < 0 {
		return invalid("export.depth", "depth must not be negative, got %d", c.Export.Depth)
	}
	if _, err := c.Import.EntryLimit(); err != nil {
		return err
	}
	return nil
}

// ContentLimit parses max_content_size. Sizes use binary units, so both
// "256m" and "256MiB" mean 256 * 1024 * 1024 bytes.
func (e ExportConfig) ContentLimit() (int64, error) {
	return parseSize("export.max_content_size", e.MaxContentSize)
}

// LinkTypes parses the link types the walk follows.
func (e ExportConfig) LinkTypes() ([]graph.LinkType, error) {
	types, err := graph.ParseLinkTypes(e.Follow)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, err, "invalid link type list").WithField("export.follow")
	}
	return types, nil
}

// EntryLimit parses max_entry_size.
func (i ImportConfig) EntryLimit() (int64, error) {
	return parseSize("import.max_entry_size", i.MaxEntrySize)
}

func parseSize(field, s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, errs.Wrap(errs.InvalidArgument, err, "invalid size %q", s).WithField(field)
	}
	if n <= 0 {
		return 0, invalid(field, "size must be positive, got %q", s)
	}
	return n, nil
}

func invalid(field, format string, args ...any) error {
	return errs.New(errs.InvalidArgument, format, args...).WithField(field)
}

// String summarises the config for logs without leaking secrets.
func (c Config) String() string {
	return fmt.Sprintf("database=%s blob=%s log_level=%s", c.Database, c.Blob.Backend, c.LogLevel)
}
