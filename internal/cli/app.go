package cli

import (
	"context"
	"log/slog"

	"github.com/roach88/prova/internal/blob"
	"github.com/roach88/prova/internal/blob/s3store"
	"github.com/roach88/prova/internal/config"
	"github.com/roach88/prova/internal/errs"
	"github.com/roach88/prova/internal/logging"
	"github.com/roach88/prova/internal/store"
)

// app is the environment a command runs in: effective configuration,
// logger, and lazily opened store and content backends.
type app struct {
	cfg   config.Config
	log   *slog.Logger
	store *store.Store
	blobs blob.Store
}

// newApp loads configuration and applies global flag overrides.
func newApp(opts *RootOptions) (*app, error) {
	cfg, err := config.Load(config.Options{File: opts.ConfigFile})
	if err != nil {
		return nil, err
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	f := opts.formatter()
	logger, err := logging.New(f.GetErrWriter(), logging.Options{
		Level: cfg.LogLevel,
		JSON:  opts.Format != "text",
	})
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: logger}, nil
}

// openStore opens the configured SQLite store.
func (a *app) openStore() (*store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := store.Open(a.cfg.Database)
	if err != nil {
		return nil, errs.Wrap(errs.IOError, err, "open store %s", a.cfg.Database).WithField("database")
	}
	a.store = s
	a.log.Debug("store opened", "path", s.Path())
	return s, nil
}

// openBlobs opens the configured content backend.
func (a *app) openBlobs(ctx context.Context) (blob.Store, error) {
	if a.blobs != nil {
		return a.blobs, nil
	}
	switch a.cfg.Blob.Backend {
	case "s3":
		s3cfg := a.cfg.Blob.S3
		client, err := s3store.NewClient(ctx, s3store.ClientConfig{
			Region:    s3cfg.Region,
			Endpoint:  s3cfg.Endpoint,
			AccessKey: s3cfg.AccessKey,
			SecretKey: s3cfg.SecretKey,
		})
		if err != nil {
			return nil, errs.Wrap(errs.IOError, err, "connect to s3").WithField("blob.s3")
		}
		a.blobs = s3store.New(client, s3cfg.Bucket, s3cfg.Prefix)
	default:
		a.blobs = blob.NewLocalDir(a.cfg.Blob.Dir)
	}
	a.log.Debug("content store opened", "backend", a.blobs.String())
	return a.blobs, nil
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
