// Package app wires the store, catalog, importer and query engine into one
// vector layer instance.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"

	"github.com/arkilian/vectorlayer/internal/config"
	lerrors "github.com/arkilian/vectorlayer/internal/errors"
	"github.com/arkilian/vectorlayer/internal/ingest"
	"github.com/arkilian/vectorlayer/internal/logger"
	"github.com/arkilian/vectorlayer/internal/manifest"
	"github.com/arkilian/vectorlayer/internal/metrics"
	"github.com/arkilian/vectorlayer/internal/query"
	"github.com/arkilian/vectorlayer/internal/reproject"
	"github.com/arkilian/vectorlayer/internal/schema"
	"github.com/arkilian/vectorlayer/internal/server"
	"github.com/arkilian/vectorlayer/internal/source"
	"github.com/arkilian/vectorlayer/internal/storage"
	"github.com/arkilian/vectorlayer/internal/store"
	"github.com/arkilian/vectorlayer/pkg/types"
	"github.com/rs/zerolog"
)

// App is an opened vector layer instance.
type App struct {
	cfg    *config.Config
	logger zerolog.Logger

	store    *store.Store
	catalog  *manifest.Catalog
	importer *ingest.Importer
	objects  storage.ObjectStorage
	metrics  *metrics.Metrics
	shutdown *server.ShutdownManager
}

type options struct {
	logger      *zerolog.Logger
	transformer reproject.Transformer
	opener      source.Opener
}

// Option configures New.
type Option func(*options)

// WithLogger replaces the logger built from the log configuration.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// WithTransformer replaces the configured coordinate transformer.
func WithTransformer(tr reproject.Transformer) Option {
	return func(o *options) { o.transformer = tr }
}

// WithOpener replaces the dataset opener.
func WithOpener(op source.Opener) Option {
	return func(o *options) { o.opener = op }
}

// New validates cfg and opens every resource it names.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	log := logger.Build(logger.Config{Level: cfg.Log.Level, Console: cfg.Log.Console}, os.Stderr)
	if o.logger != nil {
		log = *o.logger
	}

	a := &App{
		cfg:      cfg,
		logger:   log,
		shutdown: server.NewShutdownManager(server.DefaultShutdownConfig(), log),
	}
	if err := a.init(ctx, o); err != nil {
		a.shutdown.Shutdown(context.Background(), "init failed")
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, o options) error {
	var err error

	a.store, err = store.Open(store.Config{
		Path:         a.cfg.Store.Path,
		LayerPath:    a.cfg.Store.LayerPath,
		BusyTimeout:  a.cfg.Store.BusyTimeout,
		MaxOpenConns: a.cfg.Store.MaxOpenConns,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	a.shutdown.RegisterCloser(a.store)

	a.catalog, err = manifest.NewCatalog(ctx, a.store.DB(), a.logger)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}

	tr := o.transformer
	if tr == nil {
		switch a.cfg.Import.Transformer {
		case config.TransformerMercator:
			tr = reproject.MercatorTransformer{}
		default:
			pt, err := reproject.NewProjTransformer(a.cfg.Import.TransformerCacheSize)
			if err != nil {
				return fmt.Errorf("failed to create transformer: %w", err)
			}
			a.shutdown.RegisterCloser(server.CloserFunc(func() error { pt.Close(); return nil }))
			tr = pt
		}
	}

	switch a.cfg.Storage.Type {
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if a.cfg.Storage.S3.Region != "" {
			s3Cfg.Region = a.cfg.Storage.S3.Region
		}
		s3Cfg.Endpoint = a.cfg.Storage.S3.Endpoint
		s3Cfg.UsePathStyle = a.cfg.Storage.S3.UsePathStyle
		a.objects, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, s3Cfg)
	default:
		a.objects, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	if a.cfg.Metrics.Enabled {
		a.metrics = metrics.New()
	}

	imOpts := []ingest.Option{ingest.WithObjectStorage(a.objects), ingest.WithMetrics(a.metrics)}
	if o.opener != nil {
		imOpts = append(imOpts, ingest.WithOpener(o.opener))
	}
	a.importer = ingest.New(ingest.Config{
		ScratchDir: a.cfg.Import.ScratchDir,
		TargetSRID: a.cfg.Import.TargetSRID,
		Encoding:   a.cfg.Import.Encoding,
	}, a.store, a.catalog, tr, a.logger, imOpts...)

	a.logger.Debug().
		Str("data_dir", a.cfg.DataDir).
		Str("storage", a.cfg.Storage.Type).
		Str("transformer", a.cfg.Import.Transformer).
		Bool("metrics", a.metrics != nil).
		Msg("vector layer opened")
	return nil
}

// Close releases every resource opened by New.
func (a *App) Close() error {
	return a.shutdown.Shutdown(context.Background(), "close")
}

// Logger returns the instance logger.
func (a *App) Logger() zerolog.Logger { return a.logger }

// Objects returns the staged-upload storage.
func (a *App) Objects() storage.ObjectStorage { return a.objects }

// MetricsHandler serves the instance metrics, or nil when metrics are disabled.
func (a *App) MetricsHandler() http.Handler {
	if a.metrics == nil {
		return nil
	}
	return a.metrics.Handler()
}

// Import imports a local archive.
func (a *App) Import(ctx context.Context, req ingest.Request) (*ingest.Result, error) {
	return a.importer.Import(ctx, req)
}

// ImportObject imports an archive staged in object storage.
func (a *App) ImportObject(ctx context.Context, objectPath string, req ingest.Request) (*ingest.Result, error) {
	return a.importer.ImportObject(ctx, objectPath, req)
}

// Query starts a query against a layer.
func (a *App) Query(layerID string) *query.Builder {
	return query.New(query.CatalogLoader{Catalog: a.catalog}, a.store.DB(), layerID).WithMetrics(a.metrics)
}

// Schema returns the current schema of a layer.
func (a *App) Schema(ctx context.Context, layerID string) (*schema.Layer, error) {
	return query.CatalogLoader{Catalog: a.catalog}.LoadSchema(ctx, layerID)
}

// Layers lists persisted layers ordered by id.
func (a *App) Layers(ctx context.Context) ([]*manifest.LayerRecord, error) {
	return a.catalog.List(ctx, nil)
}

// WriteFeature upserts one feature of a layer and refreshes its feature count.
func (a *App) WriteFeature(ctx context.Context, layerID string, f types.Feature) error {
	err := a.store.InTx(ctx, func(tx *sql.Tx) error {
		l, err := a.load(ctx, tx, layerID)
		if err != nil {
			return err
		}
		if err := l.WriteFeature(ctx, tx, f); err != nil {
			return err
		}
		n, err := l.CountRows(ctx, tx)
		if err != nil {
			return err
		}
		return a.catalog.UpdateFeatureCount(ctx, tx, layerID, n)
	})
	a.metrics.ObserveWrite(err)
	if err != nil {
		a.logger.Debug().Err(err).Str("layer_id", layerID).Int64("feature", f.ID).Msg("feature write failed")
	}
	return err
}

// RenameField changes the keyname of a field. Data and physical columns
// are untouched.
func (a *App) RenameField(ctx context.Context, layerID, keyname, newKeyname string) error {
	if newKeyname == "" || newKeyname == query.IDField {
		return lerrors.NewValidationError(lerrors.CodeInvalidArgument,
			fmt.Sprintf("%q is not a valid field name", newKeyname))
	}
	err := a.store.InTx(ctx, func(tx *sql.Tx) error {
		l, err := a.load(ctx, tx, layerID)
		if err != nil {
			return err
		}
		if _, err := l.FieldByKeyname(keyname); err != nil {
			return err
		}
		if keyname == newKeyname {
			return nil
		}
		if _, taken := l.Field(newKeyname); taken {
			return lerrors.NewValidationError(lerrors.CodeInvalidArgument,
				fmt.Sprintf("layer %s already has a field %q", layerID, newKeyname))
		}
		return a.catalog.RenameField(ctx, tx, layerID, keyname, newKeyname)
	})
	if err != nil {
		return err
	}
	a.logger.Info().Str("layer_id", layerID).Str("from", keyname).Str("to", newKeyname).Msg("field renamed")
	return nil
}

// DeleteLayer drops a layer table and its record together.
func (a *App) DeleteLayer(ctx context.Context, layerID string) error {
	err := a.store.InTx(ctx, func(tx *sql.Tx) error {
		l, err := a.load(ctx, tx, layerID)
		if err != nil {
			return err
		}
		if err := l.Drop(ctx, tx); err != nil {
			return err
		}
		return a.catalog.Delete(ctx, tx, layerID)
	})
	if err != nil {
		return err
	}
	a.logger.Info().Str("layer_id", layerID).Msg("layer deleted")
	return nil
}

func (a *App) load(ctx context.Context, q store.Querier, layerID string) (*schema.Layer, error) {
	rec, err := a.catalog.Get(ctx, q, layerID)
	if err != nil {
		return nil, err
	}
	return schema.FromRecord(rec)
}
