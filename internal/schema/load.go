package schema

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	lerrors "github.com/arkilian/vectorlayer/internal/errors"
	"github.com/arkilian/vectorlayer/internal/geometry"
	"github.com/arkilian/vectorlayer/internal/reproject"
	"github.com/arkilian/vectorlayer/internal/source"
	"github.com/arkilian/vectorlayer/internal/store"
	"github.com/arkilian/vectorlayer/internal/textenc"
	"github.com/arkilian/vectorlayer/internal/typemap"
	"github.com/arkilian/vectorlayer/pkg/types"
)

// insertSQL renders the row insert of a full load.
func (l *Layer) insertSQL() string {
	cols := []string{store.QuoteIdent(IDColumn), store.QuoteIdent(GeometryColumn)}
	for _, f := range l.Fields {
		cols = append(cols, store.QuoteIdent(f.Key()))
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		store.Qualified(l.TableName()), strings.Join(cols, ", "), marks)
}

func (l *Layer) indexSQL() string {
	return fmt.Sprintf("INSERT OR REPLACE INTO %s (id, minx, maxx, miny, maxy) VALUES (?, ?, ?, ?, ?)",
		store.Qualified(l.SpatialIndexName()))
}

// Load streams every feature of src into the materialized table and
// returns the number of rows written. Rows get ids 1..n in source order.
// Geometries are promoted to the layer kind and transformed from
// sourceCRS to the layer CRS. src fields must be in schema field order,
// which holds for a schema derived from src.
func (l *Layer) Load(ctx context.Context, q store.Querier, src source.Layer, scope *textenc.Scope,
	tr reproject.Transformer, sourceCRS string) (int64, error) {

	defs := src.Fields()
	if len(defs) != len(l.Fields) {
		return 0, lerrors.NewInternalError(
			fmt.Sprintf("source has %d fields, schema has %d", len(defs), len(l.Fields)), nil)
	}

	insert, err := q.PrepareContext(ctx, l.insertSQL())
	if err != nil {
		return 0, lerrors.NewStoreError(lerrors.CodeStatementFailed, "prepare insert", err)
	}
	defer insert.Close()
	index, err := q.PrepareContext(ctx, l.indexSQL())
	if err != nil {
		return 0, lerrors.NewStoreError(lerrors.CodeStatementFailed, "prepare index insert", err)
	}
	defer index.Close()

	targetCRS := reproject.CRSName(l.SRID)
	decode := src.LegacyEncoding() && scope != nil

	var id int64
	for {
		if id%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return id, err
			}
		}

		feat, err := src.NextFeature()
		if err == io.EOF {
			break
		}
		if err != nil {
			return id, lerrors.Wrap(lerrors.ErrCategoryFormat, lerrors.CodeOpenFailed, "read feature", err)
		}
		id++
		seq := feat.Sequence()

		g := feat.Geometry()
		if g == nil {
			return id, lerrors.NewFeatureError(lerrors.CodeMissingGeometry, seq,
				fmt.Sprintf("feature %d has no geometry", seq))
		}
		multi, err := geometry.ToMulti(g, l.GeometryKind)
		if err != nil {
			return id, lerrors.NewFeatureError(lerrors.CodeGeometryMismatch, seq,
				fmt.Sprintf("feature %d: %v", seq, err))
		}
		projected, err := tr.Transform(multi, sourceCRS, targetCRS)
		if err != nil {
			le := lerrors.NewFeatureError(lerrors.CodeInvalidValue, seq, fmt.Sprintf("feature %d: transform failed", seq))
			le.Cause = err
			return id, le
		}
		blob, err := geometry.Encode(projected)
		if err != nil {
			return id, lerrors.NewInternalError("encode geometry", err)
		}

		args := make([]interface{}, 0, len(l.Fields)+2)
		args = append(args, id, blob)
		for i, f := range l.Fields {
			v, err := sourceValue(feat, i, f.Kind, decode, scope)
			if err != nil {
				le := lerrors.NewFeatureError(lerrors.CodeInvalidValue, seq,
					fmt.Sprintf("feature %d field %s", seq, f.Keyname))
				le.Cause = err
				return id, le
			}
			args = append(args, v)
		}

		if _, err := insert.ExecContext(ctx, args...); err != nil {
			return id, lerrors.NewStoreError(lerrors.CodeStatementFailed, "insert feature", err)
		}
		b := projected.Bound()
		if _, err := index.ExecContext(ctx, id, b.Min[0], b.Max[0], b.Min[1], b.Max[1]); err != nil {
			return id, lerrors.NewStoreError(lerrors.CodeStatementFailed, "index feature", err)
		}
	}
	return id, nil
}

// sourceValue reads field i of feat coerced to kind.
func sourceValue(feat source.Feature, i int, kind types.FieldKind, decode bool, scope *textenc.Scope) (interface{}, error) {
	if feat.IsNull(i) {
		return nil, nil
	}
	switch kind {
	case types.FieldInteger:
		return feat.Integer(i)
	case types.FieldReal:
		return feat.Real(i)
	case types.FieldString:
		s := feat.String(i)
		if decode {
			return scope.Decode(s)
		}
		return s, nil
	case types.FieldDate, types.FieldTime, types.FieldDateTime:
		t, err := feat.Time(i)
		if err != nil {
			return nil, err
		}
		layout, _ := typemap.Layout(kind)
		return t.Format(layout), nil
	}
	return nil, errors.New("unhandled kind " + string(kind))
}
