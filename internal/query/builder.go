// Package query selects features from a layer table.
//
// A Builder collects directives and compiles them into one SQL statement at
// Execute time, against the schema current at that moment. Rows always come
// back in ascending id order. Equality, substring and intersects filters
// combine conjunctively; the substring filter matches when any string field
// of the layer contains the text.
package query

import (
	"context"
	"fmt"

	lerrors "github.com/arkilian/vectorlayer/internal/errors"
	"github.com/arkilian/vectorlayer/internal/manifest"
	"github.com/arkilian/vectorlayer/internal/metrics"
	"github.com/arkilian/vectorlayer/internal/schema"
	"github.com/arkilian/vectorlayer/internal/store"
	"github.com/paulmach/orb"
)

// IDField is the pseudo-field naming the row identity in FilterBy.
const IDField = "id"

// SchemaLoader returns the current schema of a layer.
type SchemaLoader interface {
	LoadSchema(ctx context.Context, layerID string) (*schema.Layer, error)
}

// LoaderFunc adapts a function to SchemaLoader.
type LoaderFunc func(ctx context.Context, layerID string) (*schema.Layer, error)

// LoadSchema implements SchemaLoader.
func (f LoaderFunc) LoadSchema(ctx context.Context, layerID string) (*schema.Layer, error) {
	return f(ctx, layerID)
}

// CatalogLoader loads schemas from persisted layer records.
type CatalogLoader struct {
	Catalog *manifest.Catalog
}

// LoadSchema implements SchemaLoader.
func (c CatalogLoader) LoadSchema(ctx context.Context, layerID string) (*schema.Layer, error) {
	rec, err := c.Catalog.Get(ctx, nil, layerID)
	if err != nil {
		return nil, err
	}
	return schema.FromRecord(rec)
}

// Builder accumulates query directives. Directive methods return the
// builder for chaining; argument errors surface from Execute.
type Builder struct {
	loader  SchemaLoader
	db      store.Querier
	layerID string
	metrics *metrics.Metrics

	geom bool
	box  bool

	fields []string

	limited bool
	limit   int
	offset  int

	filterKeys []string
	filters    map[string]interface{}

	like string

	intersects orb.Geometry

	err error
}

// New creates a builder for one layer. db must stay open while results are read.
func New(loader SchemaLoader, db store.Querier, layerID string) *Builder {
	return &Builder{
		loader:  loader,
		db:      db,
		layerID: layerID,
		filters: make(map[string]interface{}),
	}
}

// WithMetrics records executions on m.
func (b *Builder) WithMetrics(m *metrics.Metrics) *Builder {
	b.metrics = m
	return b
}

// Geom requests the geometry of each feature.
func (b *Builder) Geom() *Builder {
	b.geom = true
	return b
}

// Box requests the bounding box of each feature.
func (b *Builder) Box() *Builder {
	b.box = true
	return b
}

// Fields restricts the returned attributes to the named fields. Without a
// call every field is returned; Fields() with no names returns none.
func (b *Builder) Fields(names ...string) *Builder {
	if b.fields == nil {
		b.fields = make([]string, 0, len(names))
	}
	b.fields = append(b.fields[:0], names...)
	return b
}

// Limit bounds the result window.
func (b *Builder) Limit(limit, offset int) *Builder {
	if limit < 0 || offset < 0 {
		b.fail(lerrors.NewValidationError(lerrors.CodeInvalidArgument,
			fmt.Sprintf("invalid window: limit %d, offset %d", limit, offset)))
		return b
	}
	b.limited = true
	b.limit = limit
	b.offset = offset
	return b
}

// FilterBy adds equality constraints. Calls accumulate; a later value for
// the same key replaces the earlier one. A nil value matches NULL. The key
// "id" filters on the row identity.
func (b *Builder) FilterBy(values map[string]interface{}) *Builder {
	for k, v := range values {
		if _, seen := b.filters[k]; !seen {
			b.filterKeys = append(b.filterKeys, k)
		}
		b.filters[k] = v
	}
	return b
}

// Like keeps features where any string field contains text, ignoring case.
// The text is matched literally. An empty text removes the filter.
func (b *Builder) Like(text string) *Builder {
	b.like = text
	return b
}

// Intersects keeps features whose geometry intersects g, given in the layer
// CRS. A later call replaces the geometry.
func (b *Builder) Intersects(g orb.Geometry) *Builder {
	if g == nil {
		b.fail(lerrors.NewValidationError(lerrors.CodeInvalidArgument, "intersects geometry is nil"))
		return b
	}
	b.intersects = g
	return b
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}
