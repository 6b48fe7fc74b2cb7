package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	lerrors "github.com/arkilian/vectorlayer/internal/errors"
	"github.com/arkilian/vectorlayer/internal/geometry"
	"github.com/arkilian/vectorlayer/internal/store"
	"github.com/arkilian/vectorlayer/pkg/types"
)

// WriteFeature upserts one row by id. Only the named fields are written;
// a non-nil geometry, given in the layer CRS, replaces the stored one and
// its index entry.
func (l *Layer) WriteFeature(ctx context.Context, q store.Querier, f types.Feature) error {
	if f.ID <= 0 {
		return lerrors.NewValidationError(lerrors.CodeInvalidArgument,
			fmt.Sprintf("feature id must be positive, got %d", f.ID))
	}

	names := make([]string, 0, len(f.Fields))
	for name := range f.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := []string{store.QuoteIdent(IDColumn)}
	args := []interface{}{f.ID}
	for _, name := range names {
		fd, err := l.FieldByKeyname(name)
		if err != nil {
			return err
		}
		v, err := EncodeValue(fd.Kind, f.Fields[name])
		if err != nil {
			return err
		}
		cols = append(cols, store.QuoteIdent(fd.Key()))
		args = append(args, v)
	}

	var blob []byte
	var bound []float64
	if f.Geometry != nil {
		multi, err := geometry.ToMulti(f.Geometry, l.GeometryKind)
		if err != nil {
			return lerrors.NewFeatureError(lerrors.CodeGeometryMismatch, f.ID, err.Error())
		}
		if blob, err = geometry.Encode(multi); err != nil {
			return lerrors.NewInternalError("encode geometry", err)
		}
		b := multi.Bound()
		bound = []float64{b.Min[0], b.Max[0], b.Min[1], b.Max[1]}
		cols = append(cols, store.QuoteIdent(GeometryColumn))
		args = append(args, blob)
	}

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		store.Qualified(l.TableName()), strings.Join(cols, ", "), marks)
	if len(cols) == 1 {
		stmt += " ON CONFLICT(" + store.QuoteIdent(IDColumn) + ") DO NOTHING"
	} else {
		sets := make([]string, 0, len(cols)-1)
		for _, c := range cols[1:] {
			sets = append(sets, c+" = excluded."+c)
		}
		stmt += " ON CONFLICT(" + store.QuoteIdent(IDColumn) + ") DO UPDATE SET " + strings.Join(sets, ", ")
	}

	if _, err := q.ExecContext(ctx, stmt, args...); err != nil {
		return lerrors.NewStoreError(lerrors.CodeStatementFailed, fmt.Sprintf("write feature %d", f.ID), err)
	}

	if bound != nil {
		_, err := q.ExecContext(ctx, l.indexSQL(), f.ID, bound[0], bound[1], bound[2], bound[3])
		if err != nil {
			return lerrors.NewStoreError(lerrors.CodeStatementFailed, fmt.Sprintf("index feature %d", f.ID), err)
		}
	}
	return nil
}

// CountRows returns the number of rows in the layer table.
func (l *Layer) CountRows(ctx context.Context, q store.Querier) (int64, error) {
	var n int64
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+store.Qualified(l.TableName())).Scan(&n)
	if err != nil {
		return 0, lerrors.NewStoreError(lerrors.CodeStatementFailed, "count rows", err)
	}
	return n, nil
}
