package query

import (
	"context"
	"database/sql"
	"time"

	lerrors "github.com/arkilian/vectorlayer/internal/errors"
	"github.com/arkilian/vectorlayer/internal/geometry"
	"github.com/arkilian/vectorlayer/internal/schema"
	"github.com/arkilian/vectorlayer/internal/store"
	"github.com/arkilian/vectorlayer/pkg/types"
	"github.com/paulmach/orb"
)

// Execute loads the layer schema, compiles the directives and runs the query.
func (b *Builder) Execute(ctx context.Context) (*FeatureSet, error) {
	if b.err != nil {
		return nil, b.err
	}
	start := time.Now()
	defer func() { b.metrics.ObserveQuery(time.Since(start)) }()

	l, err := b.loader.LoadSchema(ctx, b.layerID)
	if err != nil {
		return nil, err
	}
	st, err := b.compile(l)
	if err != nil {
		return nil, err
	}

	rows, err := b.db.QueryContext(ctx, st.selectSQL, st.selectArgs...)
	if err != nil {
		return nil, lerrors.NewStoreError(lerrors.CodeStatementFailed, "query layer "+b.layerID, err)
	}
	return &FeatureSet{
		rows:  rows,
		db:    b.db,
		stmt:  st,
		geom:  b.geom,
		box:   b.box,
		layer: l,
	}, nil
}

// FeatureSet iterates over query results in id order.
//
//	fs, err := b.Execute(ctx)
//	...
//	defer fs.Close()
//	for fs.Next() {
//		f := fs.Feature()
//	}
//	if err := fs.Err(); err != nil { ... }
type FeatureSet struct {
	rows  *sql.Rows
	db    store.Querier
	stmt  *statement
	layer *schema.Layer

	geom bool
	box  bool

	cur    types.Feature
	err    error
	closed bool
}

// Next advances to the next feature. It returns false at the end of the
// results or on error; Err tells them apart.
func (fs *FeatureSet) Next() bool {
	if fs.closed || fs.err != nil {
		return false
	}
	if !fs.rows.Next() {
		if err := fs.rows.Err(); err != nil {
			fs.err = lerrors.NewStoreError(lerrors.CodeStatementFailed, "read layer rows", err)
		}
		fs.Close()
		return false
	}

	f, err := fs.scan()
	if err != nil {
		fs.err = err
		fs.Close()
		return false
	}
	fs.cur = f
	return true
}

func (fs *FeatureSet) scan() (types.Feature, error) {
	var (
		id     int64
		blob   []byte
		bounds [4]sql.NullFloat64
	)
	values := make([]interface{}, len(fs.stmt.fields))

	dest := []interface{}{&id}
	if fs.geom {
		dest = append(dest, &blob)
	}
	if fs.box {
		for i := range bounds {
			dest = append(dest, &bounds[i])
		}
	}
	for i := range values {
		dest = append(dest, &values[i])
	}
	if err := fs.rows.Scan(dest...); err != nil {
		return types.Feature{}, lerrors.NewStoreError(lerrors.CodeStatementFailed, "scan layer row", err)
	}

	f := types.Feature{ID: id, Fields: make(map[string]interface{}, len(values))}
	if fs.geom && len(blob) > 0 {
		g, err := geometry.Decode(blob)
		if err != nil {
			return types.Feature{}, lerrors.NewInternalError("decode stored geometry", err)
		}
		f.Geometry = g
	}
	if fs.box && bounds[0].Valid {
		f.Box = &orb.Bound{
			Min: orb.Point{bounds[0].Float64, bounds[1].Float64},
			Max: orb.Point{bounds[2].Float64, bounds[3].Float64},
		}
	}
	for i, fd := range fs.stmt.fields {
		v, err := schema.DecodeValue(fd.Kind, values[i])
		if err != nil {
			return types.Feature{}, err
		}
		f.Fields[fd.Keyname] = v
	}
	return f, nil
}

// Feature returns the current feature.
func (fs *FeatureSet) Feature() types.Feature { return fs.cur }

// Err returns the error that stopped iteration, if any.
func (fs *FeatureSet) Err() error { return fs.err }

// Fields returns the fields present in each feature, in display order.
func (fs *FeatureSet) Fields() []schema.FieldDef {
	out := make([]schema.FieldDef, len(fs.stmt.fields))
	copy(out, fs.stmt.fields)
	return out
}

// Schema returns the layer schema the query was compiled against.
func (fs *FeatureSet) Schema() *schema.Layer { return fs.layer }

// TotalCount returns the number of features matching the filters, ignoring
// the result window and the selected columns.
func (fs *FeatureSet) TotalCount(ctx context.Context) (int64, error) {
	var n int64
	if err := fs.db.QueryRowContext(ctx, fs.stmt.countSQL, fs.stmt.countArgs...).Scan(&n); err != nil {
		return 0, lerrors.NewStoreError(lerrors.CodeStatementFailed, "count layer rows", err)
	}
	return n, nil
}

// Close releases the result rows. It is safe to call more than once.
func (fs *FeatureSet) Close() error {
	if fs.closed {
		return nil
	}
	fs.closed = true
	return fs.rows.Close()
}
