// Package ingest imports zipped vector datasets into layer tables.
//
// An import extracts the archive into a private scratch directory, opens
// the single layer it holds, validates it, derives a fresh layer schema and
// then creates, fills and registers the table in one store transaction.
// Any failure rolls that transaction back, so a failed import leaves
// neither a table nor a metadata record behind.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	lerrors "github.com/arkilian/vectorlayer/internal/errors"
	"github.com/arkilian/vectorlayer/internal/logger"
	"github.com/arkilian/vectorlayer/internal/manifest"
	"github.com/arkilian/vectorlayer/internal/metrics"
	"github.com/arkilian/vectorlayer/internal/reproject"
	"github.com/arkilian/vectorlayer/internal/schema"
	"github.com/arkilian/vectorlayer/internal/source"
	"github.com/arkilian/vectorlayer/internal/storage"
	"github.com/arkilian/vectorlayer/internal/store"
	"github.com/arkilian/vectorlayer/internal/textenc"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds importer defaults.
type Config struct {
	// ScratchDir receives one extraction directory per import
	ScratchDir string

	// TargetSRID is used when a request does not name one
	TargetSRID int

	// Encoding is the hint used when a request does not name one
	Encoding string
}

// Request describes one import.
type Request struct {
	// LayerID names the layer; empty creates a new id. An existing id is
	// re-imported: the previous table is replaced.
	LayerID string

	ArchivePath string

	// Encoding is the legacy text encoding hint; empty falls back to the
	// importer default, which may be empty (bytes pass through)
	Encoding string

	// SRID is the target CRS; 0 uses the importer default
	SRID int
}

// Result describes a committed import.
type Result struct {
	LayerID      string
	Schema       *schema.Layer
	SourceCRS    string
	FeatureCount int64
	Revision     int
	Duration     time.Duration
}

// Importer runs imports against one store.
type Importer struct {
	cfg         Config
	store       *store.Store
	catalog     *manifest.Catalog
	transformer reproject.Transformer
	opener      source.Opener
	objects     storage.ObjectStorage
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithOpener replaces the dataset opener.
func WithOpener(o source.Opener) Option {
	return func(im *Importer) { im.opener = o }
}

// WithObjectStorage enables ImportObject.
func WithObjectStorage(s storage.ObjectStorage) Option {
	return func(im *Importer) { im.objects = s }
}

// WithMetrics records import outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(im *Importer) { im.metrics = m }
}

// New creates an importer. tr converts source geometries to the target CRS.
func New(cfg Config, st *store.Store, cat *manifest.Catalog, tr reproject.Transformer,
	log zerolog.Logger, opts ...Option) *Importer {

	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	if cfg.TargetSRID <= 0 {
		cfg.TargetSRID = 3857
	}
	im := &Importer{
		cfg:         cfg,
		store:       st,
		catalog:     cat,
		transformer: reproject.Identity{Next: tr},
		opener:      source.DefaultOpener,
		logger:      log.With().Str("component", "ingest").Logger(),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// ImportObject stages an archive from object storage and imports it.
func (im *Importer) ImportObject(ctx context.Context, objectPath string, req Request) (*Result, error) {
	if im.objects == nil {
		return nil, lerrors.NewInternalError("object storage is not configured", nil)
	}

	dir, err := im.scratch("stage_")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	local := filepath.Join(dir, filepath.Base(objectPath))
	if err := im.objects.Download(ctx, objectPath, local); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, lerrors.NewNotFoundError(lerrors.CodeObjectNotFound,
				fmt.Sprintf("staged archive %s not found", objectPath))
		}
		return nil, lerrors.NewInternalError("stage "+objectPath, err)
	}

	req.ArchivePath = local
	return im.Import(ctx, req)
}

// Import runs the pipeline for req.
func (im *Importer) Import(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	if req.LayerID == "" {
		req.LayerID = uuid.NewString()
	}
	if req.SRID <= 0 {
		req.SRID = im.cfg.TargetSRID
	}
	if req.Encoding == "" {
		req.Encoding = im.cfg.Encoding
	}

	ctx = logger.WithImport(logger.WithLayer(ctx, req.LayerID), uuid.NewString())
	log := logger.FromContext(ctx, im.logger)
	log.Info().
		Str("archive", filepath.Base(req.ArchivePath)).
		Int("target_srid", req.SRID).
		Str("encoding", req.Encoding).
		Msg("import started")

	res, err := im.run(ctx, log, req)
	if err != nil {
		im.metrics.ObserveImport(lerrors.GetCode(err), 0, time.Since(start))
		ev := log.Error().Err(err).Str("code", lerrors.GetCode(err))
		if n, ok := lerrors.FeatureOf(err); ok {
			ev = ev.Int64("feature", n)
		}
		ev.Msg("import failed")
		return nil, err
	}

	res.Duration = time.Since(start)
	im.metrics.ObserveImport("", res.FeatureCount, res.Duration)
	log.Info().
		Int64("features", res.FeatureCount).
		Int("revision", res.Revision).
		Dur("duration", res.Duration).
		Msg("import finished")
	return res, nil
}

func (im *Importer) run(ctx context.Context, log zerolog.Logger, req Request) (*Result, error) {
	dir, err := im.scratch("import_")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	if err := Extract(req.ArchivePath, dir); err != nil {
		return nil, err
	}

	ds, err := im.opener.Open(dir)
	if err != nil {
		return nil, lerrors.Wrap(lerrors.ErrCategoryFormat, lerrors.CodeOpenFailed, "open dataset", err)
	}
	defer ds.Close()

	switch n := ds.LayerCount(); {
	case n == 0:
		return nil, lerrors.NewFormatError(lerrors.CodeNoLayers, "dataset has no layers")
	case n > 1:
		return nil, lerrors.NewFormatError(lerrors.CodeMultipleLayers,
			fmt.Sprintf("dataset has %d layers, only single-layer datasets are supported", n))
	}
	src, err := ds.Layer(0)
	if err != nil {
		return nil, lerrors.Wrap(lerrors.ErrCategoryFormat, lerrors.CodeOpenFailed, "open layer", err)
	}

	sourceCRS := src.SpatialRef()
	if sourceCRS == "" {
		return nil, lerrors.NewFormatError(lerrors.CodeMissingCRS,
			fmt.Sprintf("layer %q does not declare a coordinate system", src.Name()))
	}
	if srid, ok := reproject.SRID(sourceCRS); ok {
		sourceCRS = reproject.CRSName(srid)
	}

	scope, err := textenc.Acquire(req.Encoding)
	if err != nil {
		return nil, err
	}
	defer scope.Release()

	count, err := prescan(ctx, src)
	if err != nil {
		return nil, err
	}

	l, err := schema.FromSource(src, req.SRID, scope)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("layer", src.Name()).
		Str("geometry", string(l.GeometryKind)).
		Int("fields", len(l.Fields)).
		Int64("features", count).
		Str("source_crs", abbreviate(sourceCRS)).
		Bool("legacy_encoding", src.LegacyEncoding()).
		Msg("layer accepted")

	prev, err := im.catalog.Get(ctx, nil, req.LayerID)
	if err != nil && !lerrors.IsNotFound(err) {
		return nil, err
	}

	var loaded int64
	var rec *manifest.LayerRecord
	err = im.store.InTx(ctx, func(tx *sql.Tx) error {
		if prev != nil {
			old, err := schema.FromRecord(prev)
			if err != nil {
				return err
			}
			if err := old.Drop(ctx, tx); err != nil {
				return err
			}
		}
		if err := l.Materialize(ctx, tx); err != nil {
			return err
		}
		var err error
		loaded, err = l.Load(ctx, tx, src, scope, im.transformer, sourceCRS)
		if err != nil {
			return err
		}
		rec = l.Record(req.LayerID, sourceCRS, loaded)
		return im.catalog.Register(ctx, tx, rec)
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		LayerID:      req.LayerID,
		Schema:       l,
		SourceCRS:    sourceCRS,
		FeatureCount: loaded,
		Revision:     rec.Revision,
	}, nil
}

// prescan rejects the layer at its first feature without geometry and
// rewinds it. It returns the feature count.
func prescan(ctx context.Context, src source.Layer) (int64, error) {
	var n int64
	for {
		if n%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}
		f, err := src.NextFeature()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, lerrors.Wrap(lerrors.ErrCategoryFormat, lerrors.CodeOpenFailed, "read feature", err)
		}
		n++
		if f.Geometry() == nil {
			seq := f.Sequence()
			return n, lerrors.NewFeatureError(lerrors.CodeMissingGeometry, seq,
				fmt.Sprintf("feature %d has no geometry", seq))
		}
	}
	if err := src.ResetReading(); err != nil {
		return n, lerrors.Wrap(lerrors.ErrCategoryFormat, lerrors.CodeOpenFailed, "rewind layer", err)
	}
	return n, nil
}

func (im *Importer) scratch(prefix string) (string, error) {
	if err := os.MkdirAll(im.cfg.ScratchDir, 0755); err != nil {
		return "", lerrors.NewInternalError("create scratch directory", err)
	}
	dir, err := os.MkdirTemp(im.cfg.ScratchDir, prefix)
	if err != nil {
		return "", lerrors.NewInternalError("create scratch directory", err)
	}
	return dir, nil
}

func abbreviate(s string) string {
	if len(s) > 64 {
		return s[:64] + "..."
	}
	return s
}
