package store

import (
	"context"
	"fmt"
	"strings"

	lerrors "github.com/arkilian/vectorlayer/internal/errors"
	"github.com/arkilian/vectorlayer/pkg/types"
)

// CreateTableSQL renders the statements that create def: the table, its
// secondary indexes and the R*Tree spatial index.
func CreateTableSQL(def types.TableDef) []string {
	cols := make([]string, 0, len(def.Columns)+1)
	for _, c := range def.Columns {
		col := QuoteIdent(c.Name) + " " + c.Type
		if c.PrimaryKey {
			col += " PRIMARY KEY"
		}
		cols = append(cols, col)
	}
	if def.Geometry.Column != "" {
		// declared type carries the geometry kind, affinity stays BLOB
		cols = append(cols, QuoteIdent(def.Geometry.Column)+" "+string(def.Geometry.Kind))
	}

	stmts := []string{
		fmt.Sprintf("CREATE TABLE %s.%s (%s)", def.Namespace, QuoteIdent(def.Name), strings.Join(cols, ", ")),
	}
	for _, idx := range def.Indexes {
		unique := ""
		if idx.Unique {
			unique = "UNIQUE "
		}
		quoted := make([]string, len(idx.Columns))
		for i, c := range idx.Columns {
			quoted[i] = QuoteIdent(c)
		}
		stmts = append(stmts, fmt.Sprintf("CREATE %sINDEX %s.%s ON %s (%s)",
			unique, def.Namespace, QuoteIdent(idx.Name), QuoteIdent(def.Name), strings.Join(quoted, ", ")))
	}
	if def.Geometry.SpatialIndex != "" {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE VIRTUAL TABLE %s.%s USING rtree(id, minx, maxx, miny, maxy)",
			def.Namespace, QuoteIdent(def.Geometry.SpatialIndex)))
	}
	return stmts
}

// CreateTable creates def and registers its geometry column.
func CreateTable(ctx context.Context, q Querier, def types.TableDef) error {
	for _, stmt := range CreateTableSQL(def) {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return lerrors.NewStoreError(lerrors.CodeDDLFailed, "create "+def.QualifiedName(), err)
		}
	}
	if def.Geometry.Column == "" {
		return nil
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO `+def.Namespace+`.geometry_columns (table_name, column_name, geometry_type, srid) VALUES (?, ?, ?, ?)`,
		def.Name, def.Geometry.Column, string(def.Geometry.Kind), def.Geometry.SRID)
	if err != nil {
		return lerrors.NewStoreError(lerrors.CodeDDLFailed, "register geometry column of "+def.Name, err)
	}
	return nil
}

// DropTable drops def, its spatial index and its geometry registration.
// Missing objects are ignored.
func DropTable(ctx context.Context, q Querier, def types.TableDef) error {
	stmts := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", def.Namespace, QuoteIdent(def.Name)),
	}
	if def.Geometry.SpatialIndex != "" {
		stmts = append(stmts, fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", def.Namespace, QuoteIdent(def.Geometry.SpatialIndex)))
	}
	for _, stmt := range stmts {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return lerrors.NewStoreError(lerrors.CodeDDLFailed, "drop "+def.QualifiedName(), err)
		}
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM `+def.Namespace+`.geometry_columns WHERE table_name = ?`, def.Name); err != nil {
		return lerrors.NewStoreError(lerrors.CodeDDLFailed, "unregister geometry column of "+def.Name, err)
	}
	return nil
}

// GeometryColumn is one row of the geometry column registry.
type GeometryColumn struct {
	Table  string
	Column string
	Kind   types.GeometryKind
	SRID   int
}

// LookupGeometryColumn reads the registry entry of a layer table.
func LookupGeometryColumn(ctx context.Context, q Querier, table string) (*GeometryColumn, error) {
	gc := &GeometryColumn{Table: table}
	var kind string
	err := q.QueryRowContext(ctx,
		`SELECT column_name, geometry_type, srid FROM `+Namespace+`.geometry_columns WHERE table_name = ?`, table).
		Scan(&gc.Column, &kind, &gc.SRID)
	if err != nil {
		return nil, err
	}
	gc.Kind = types.GeometryKind(kind)
	return gc, nil
}

// TableExists reports whether a table exists in the layer namespace.
func TableExists(ctx context.Context, q Querier, name string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+Namespace+`.sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, lerrors.NewStoreError(lerrors.CodeStatementFailed, "inspect "+name, err)
	}
	return n > 0, nil
}
