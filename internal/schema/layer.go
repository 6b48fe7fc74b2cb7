// Package schema derives, materializes and loads layer table schemas.
//
// A Layer is derived either from an opened source layer at import time or
// from the persisted manifest record on every later access. Field columns
// are named by a generated key, never by the user-facing keyname, so a
// rename touches only metadata.
package schema

import (
	"context"
	"encoding/hex"
	"fmt"

	lerrors "github.com/arkilian/vectorlayer/internal/errors"
	"github.com/arkilian/vectorlayer/internal/manifest"
	"github.com/arkilian/vectorlayer/internal/source"
	"github.com/arkilian/vectorlayer/internal/store"
	"github.com/arkilian/vectorlayer/internal/textenc"
	"github.com/arkilian/vectorlayer/internal/typemap"
	"github.com/arkilian/vectorlayer/pkg/types"
	"github.com/google/uuid"
)

// Physical column names shared by every layer table.
const (
	IDColumn       = "id"
	GeometryColumn = "geom"
)

// FieldDef describes one layer attribute.
type FieldDef struct {
	// UUID is assigned once at creation and names the physical column
	UUID string

	Keyname     string
	DisplayName string
	Kind        types.FieldKind
}

// Key returns the physical column name.
func (f FieldDef) Key() string { return "fld_" + f.UUID }

// NewField creates a field with a fresh identity.
func NewField(keyname string, kind types.FieldKind) FieldDef {
	return FieldDef{
		UUID:        newID(),
		Keyname:     keyname,
		DisplayName: keyname,
		Kind:        kind,
	}
}

func newID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// NewTableID generates a fresh physical table identity.
func NewTableID() string { return newID() }

// Layer is the schema of one layer table.
type Layer struct {
	TableID      string
	GeometryKind types.GeometryKind
	SRID         int
	Fields       []FieldDef
}

// FromSource derives a schema from a source layer. Every field gets a new
// identity. Field names of legacy-encoded layers are decoded through scope.
func FromSource(src source.Layer, srid int, scope *textenc.Scope) (*Layer, error) {
	kind, err := typemap.NormalizeGeometry(src.GeometryType())
	if err != nil {
		return nil, err
	}

	l := &Layer{
		TableID:      NewTableID(),
		GeometryKind: kind,
		SRID:         srid,
	}
	for _, def := range src.Fields() {
		fk, err := typemap.FieldKindFor(def.Type)
		if err != nil {
			return nil, lerrors.NewFormatError(lerrors.CodeUnsupportedField,
				fmt.Sprintf("field %q has unsupported type %s", def.Name, def.Type))
		}
		name := def.Name
		if src.LegacyEncoding() && scope != nil {
			if name, err = scope.Decode(def.Name); err != nil {
				return nil, lerrors.Wrap(lerrors.ErrCategoryFormat, lerrors.CodeUnknownEncoding,
					fmt.Sprintf("decode field name %q", def.Name), err)
			}
		}
		l.Fields = append(l.Fields, NewField(name, fk))
	}
	return l, nil
}

// FromRecord reconstructs a schema from persisted metadata.
func FromRecord(rec *manifest.LayerRecord) (*Layer, error) {
	kind, err := types.ParseGeometryKind(string(rec.GeometryKind))
	if err != nil {
		return nil, lerrors.NewInternalError("layer "+rec.LayerID, err)
	}
	l := &Layer{
		TableID:      rec.TableID,
		GeometryKind: kind,
		SRID:         rec.SRID,
		Fields:       make([]FieldDef, 0, len(rec.Fields)),
	}
	for _, f := range rec.Fields {
		fk, err := types.ParseFieldKind(string(f.Kind))
		if err != nil {
			return nil, lerrors.NewInternalError("layer "+rec.LayerID+" field "+f.Keyname, err)
		}
		l.Fields = append(l.Fields, FieldDef{
			UUID:        f.UUID,
			Keyname:     f.Keyname,
			DisplayName: f.DisplayName,
			Kind:        fk,
		})
	}
	return l, nil
}

// Record returns the persisted form of the schema for layerID.
func (l *Layer) Record(layerID, sourceCRS string, featureCount int64) *manifest.LayerRecord {
	rec := &manifest.LayerRecord{
		LayerID:      layerID,
		TableID:      l.TableID,
		GeometryKind: l.GeometryKind,
		SRID:         l.SRID,
		SourceCRS:    sourceCRS,
		FeatureCount: featureCount,
		Fields:       make([]manifest.FieldRecord, len(l.Fields)),
	}
	for i, f := range l.Fields {
		rec.Fields[i] = manifest.FieldRecord{
			UUID:        f.UUID,
			Keyname:     f.Keyname,
			DisplayName: f.DisplayName,
			Kind:        f.Kind,
		}
	}
	return rec
}

// TableName returns the physical table name.
func (l *Layer) TableName() string { return "layer_" + l.TableID }

// SpatialIndexName returns the name of the companion R*Tree table.
func (l *Layer) SpatialIndexName() string { return "rtree_" + l.TableName() + "_" + GeometryColumn }

// TableDef returns the physical definition of the layer table.
func (l *Layer) TableDef() types.TableDef {
	cols := make([]types.ColumnDef, 0, len(l.Fields)+1)
	cols = append(cols, types.ColumnDef{Name: IDColumn, Type: "INTEGER", PrimaryKey: true})
	for _, f := range l.Fields {
		cols = append(cols, types.ColumnDef{Name: f.Key(), Type: typemap.ColumnType(f.Kind)})
	}
	return types.TableDef{
		Namespace: store.Namespace,
		Name:      l.TableName(),
		Columns:   cols,
		Geometry: types.GeometryColumnDef{
			Column:       GeometryColumn,
			Kind:         l.GeometryKind,
			SRID:         l.SRID,
			SpatialIndex: l.SpatialIndexName(),
		},
	}
}

// Materialize creates the layer table and its spatial index. It must run in
// the same transaction as Load.
func (l *Layer) Materialize(ctx context.Context, q store.Querier) error {
	return store.CreateTable(ctx, q, l.TableDef())
}

// Drop removes the layer table and its spatial index.
func (l *Layer) Drop(ctx context.Context, q store.Querier) error {
	return store.DropTable(ctx, q, l.TableDef())
}

// Field returns the first field with the given keyname.
func (l *Layer) Field(keyname string) (*FieldDef, bool) {
	for i := range l.Fields {
		if l.Fields[i].Keyname == keyname {
			return &l.Fields[i], true
		}
	}
	return nil, false
}

// FieldByKeyname is Field returning NOT_FOUND/FIELD_NOT_FOUND on a miss.
func (l *Layer) FieldByKeyname(keyname string) (*FieldDef, error) {
	if f, ok := l.Field(keyname); ok {
		return f, nil
	}
	return nil, lerrors.NewNotFoundError(lerrors.CodeFieldNotFound, fmt.Sprintf("field %q not found", keyname))
}

// StringFields returns the fields of kind STRING in display order.
func (l *Layer) StringFields() []FieldDef {
	var out []FieldDef
	for _, f := range l.Fields {
		if f.Kind == types.FieldString {
			out = append(out, f)
		}
	}
	return out
}
