// Package typemap holds the static mappings between source dataset types,
// normalized layer kinds and storage column declarations.
package typemap

import (
	"fmt"

	lerrors "github.com/arkilian/vectorlayer/internal/errors"
	"github.com/arkilian/vectorlayer/internal/source"
	"github.com/arkilian/vectorlayer/pkg/types"
)

var geometryKinds = map[source.GeometryType]types.GeometryKind{
	source.GeometryPoint:           types.GeometryMultiPoint,
	source.GeometryMultiPoint:      types.GeometryMultiPoint,
	source.GeometryLineString:      types.GeometryMultiLineString,
	source.GeometryMultiLineString: types.GeometryMultiLineString,
	source.GeometryPolygon:         types.GeometryMultiPolygon,
	source.GeometryMultiPolygon:    types.GeometryMultiPolygon,
}

var fieldKinds = map[source.FieldType]types.FieldKind{
	source.FieldInteger:   types.FieldInteger,
	source.FieldInteger64: types.FieldInteger,
	source.FieldReal:      types.FieldReal,
	source.FieldString:    types.FieldString,
	source.FieldDate:      types.FieldDate,
	source.FieldTime:      types.FieldTime,
	source.FieldDateTime:  types.FieldDateTime,
}

// Date and time values are stored as ISO-8601 text in these layouts.
const (
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04:05"
	DateTimeLayout = "2006-01-02T15:04:05"
)

var columnTypes = map[types.FieldKind]string{
	types.FieldInteger:  "INTEGER",
	types.FieldReal:     "REAL",
	types.FieldString:   "TEXT",
	types.FieldDate:     "TEXT",
	types.FieldTime:     "TEXT",
	types.FieldDateTime: "TEXT",
}

// NormalizeGeometry maps a source geometry type onto its multi-part kind.
func NormalizeGeometry(t source.GeometryType) (types.GeometryKind, error) {
	k, ok := geometryKinds[t]
	if !ok {
		return "", lerrors.NewFormatError(lerrors.CodeUnsupportedGeometry,
			fmt.Sprintf("unsupported geometry type %s", t))
	}
	return k, nil
}

// FieldKindFor maps a source attribute type onto a storage field kind.
func FieldKindFor(t source.FieldType) (types.FieldKind, error) {
	k, ok := fieldKinds[t]
	if !ok {
		return "", lerrors.NewFormatError(lerrors.CodeUnsupportedField,
			fmt.Sprintf("unsupported field type %s", t))
	}
	return k, nil
}

// ColumnType returns the SQLite column declaration for a field kind.
func ColumnType(k types.FieldKind) string {
	if t, ok := columnTypes[k]; ok {
		return t
	}
	return "BLOB"
}

// Layout returns the text layout used to store a date-like kind.
func Layout(k types.FieldKind) (string, bool) {
	switch k {
	case types.FieldDate:
		return DateLayout, true
	case types.FieldTime:
		return TimeLayout, true
	case types.FieldDateTime:
		return DateTimeLayout, true
	}
	return "", false
}
