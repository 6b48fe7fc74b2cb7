package query

import (
	"fmt"
	"sort"
	"strings"

	lerrors "github.com/arkilian/vectorlayer/internal/errors"
	"github.com/arkilian/vectorlayer/internal/geometry"
	"github.com/arkilian/vectorlayer/internal/schema"
	"github.com/arkilian/vectorlayer/internal/store"
	"github.com/arkilian/vectorlayer/pkg/types"
)

// statement is a compiled query: the row select and the matching count.
type statement struct {
	fields []schema.FieldDef

	selectSQL  string
	selectArgs []interface{}

	countSQL  string
	countArgs []interface{}
}

func col(name string) string { return "t." + store.QuoteIdent(name) }

// compile renders the builder against l.
func (b *Builder) compile(l *schema.Layer) (*statement, error) {
	fields, err := b.selected(l)
	if err != nil {
		return nil, err
	}
	where, args, err := b.predicates(l)
	if err != nil {
		return nil, err
	}

	from := store.Qualified(l.TableName()) + " AS t"
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	cols := []string{col(schema.IDColumn)}
	if b.geom {
		cols = append(cols, col(schema.GeometryColumn))
	}
	selectFrom := from
	if b.box {
		cols = append(cols, "r.minx", "r.miny", "r.maxx", "r.maxy")
		selectFrom += " LEFT JOIN " + store.Qualified(l.SpatialIndexName()) + " AS r ON r.id = t." + store.QuoteIdent(schema.IDColumn)
	}
	for _, f := range fields {
		cols = append(cols, col(f.Key()))
	}

	sel := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s",
		strings.Join(cols, ", "), selectFrom, whereSQL, col(schema.IDColumn))
	selArgs := append([]interface{}(nil), args...)
	if b.limited {
		sel += " LIMIT ? OFFSET ?"
		selArgs = append(selArgs, b.limit, b.offset)
	}

	return &statement{
		fields:     fields,
		selectSQL:  sel,
		selectArgs: selArgs,
		countSQL:   "SELECT COUNT(*) FROM " + from + whereSQL,
		countArgs:  args,
	}, nil
}

// selected resolves the requested field names.
func (b *Builder) selected(l *schema.Layer) ([]schema.FieldDef, error) {
	if b.fields == nil {
		return l.Fields, nil
	}
	out := make([]schema.FieldDef, 0, len(b.fields))
	seen := make(map[string]bool, len(b.fields))
	for _, name := range b.fields {
		if seen[name] {
			continue
		}
		seen[name] = true
		f, err := l.FieldByKeyname(name)
		if err != nil {
			if name == IDField {
				continue
			}
			return nil, err
		}
		out = append(out, *f)
	}
	return out, nil
}

// predicates renders the WHERE terms shared by the select and the count.
func (b *Builder) predicates(l *schema.Layer) ([]string, []interface{}, error) {
	var where []string
	var args []interface{}

	keys := append([]string(nil), b.filterKeys...)
	sort.Strings(keys)
	for _, k := range keys {
		v := b.filters[k]
		if k == IDField {
			id, err := schema.EncodeValue(types.FieldInteger, v)
			if err != nil {
				return nil, nil, err
			}
			if id == nil {
				where = append(where, "0")
				continue
			}
			where = append(where, col(schema.IDColumn)+" = ?")
			args = append(args, id)
			continue
		}

		f, err := l.FieldByKeyname(k)
		if err != nil {
			return nil, nil, err
		}
		stored, err := schema.EncodeValue(f.Kind, v)
		if err != nil {
			return nil, nil, err
		}
		if stored == nil {
			where = append(where, col(f.Key())+" IS NULL")
			continue
		}
		where = append(where, col(f.Key())+" = ?")
		args = append(args, stored)
	}

	if b.like != "" {
		var terms []string
		for _, f := range l.StringFields() {
			terms = append(terms, "icontains("+col(f.Key())+", ?)")
			args = append(args, b.like)
		}
		if len(terms) > 0 {
			where = append(where, "("+strings.Join(terms, " OR ")+")")
		}
	}

	if b.intersects != nil {
		blob, err := geometry.Encode(b.intersects)
		if err != nil {
			return nil, nil, lerrors.NewValidationError(lerrors.CodeInvalidArgument,
				"intersects geometry cannot be encoded: "+err.Error())
		}
		bound := b.intersects.Bound()
		where = append(where,
			fmt.Sprintf("%s IN (SELECT id FROM %s WHERE minx <= ? AND maxx >= ? AND miny <= ? AND maxy >= ?)",
				col(schema.IDColumn), store.Qualified(l.SpatialIndexName())),
			"st_intersects("+col(schema.GeometryColumn)+", ?)")
		args = append(args, bound.Max[0], bound.Min[0], bound.Max[1], bound.Min[1], blob)
	}

	return where, args, nil
}
