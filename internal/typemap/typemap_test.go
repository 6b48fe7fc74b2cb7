package typemap

import (
	"testing"

	lerrors "github.com/arkilian/vectorlayer/internal/errors"
	"github.com/arkilian/vectorlayer/internal/source"
	"github.com/arkilian/vectorlayer/pkg/types"
)

func TestNormalizeGeometry(t *testing.T) {
	tests := []struct {
		in   source.GeometryType
		want types.GeometryKind
	}{
		{source.GeometryPoint, types.GeometryMultiPoint},
		{source.GeometryMultiPoint, types.GeometryMultiPoint},
		{source.GeometryLineString, types.GeometryMultiLineString},
		{source.GeometryMultiLineString, types.GeometryMultiLineString},
		{source.GeometryPolygon, types.GeometryMultiPolygon},
		{source.GeometryMultiPolygon, types.GeometryMultiPolygon},
	}
	for _, tt := range tests {
		got, err := NormalizeGeometry(tt.in)
		if err != nil {
			t.Errorf("%v: unexpected error %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%v: got %s, want %s", tt.in, got, tt.want)
		}
	}

	for _, bad := range []source.GeometryType{source.GeometryUnknown, source.GeometryCollection} {
		_, err := NormalizeGeometry(bad)
		if lerrors.GetCode(err) != lerrors.CodeUnsupportedGeometry {
			t.Errorf("%v: got %v, want UNSUPPORTED_GEOMETRY", bad, err)
		}
	}
}

func TestNormalizeGeometry_AlwaysMulti(t *testing.T) {
	for in := range geometryKinds {
		k, _ := NormalizeGeometry(in)
		if !k.Valid() {
			t.Errorf("%v normalized to non-multi kind %q", in, k)
		}
	}
}

func TestFieldKindFor(t *testing.T) {
	tests := []struct {
		in   source.FieldType
		want types.FieldKind
	}{
		{source.FieldInteger, types.FieldInteger},
		{source.FieldInteger64, types.FieldInteger},
		{source.FieldReal, types.FieldReal},
		{source.FieldString, types.FieldString},
		{source.FieldDate, types.FieldDate},
		{source.FieldTime, types.FieldTime},
		{source.FieldDateTime, types.FieldDateTime},
	}
	for _, tt := range tests {
		got, err := FieldKindFor(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("%v: got %s, %v; want %s", tt.in, got, err, tt.want)
		}
	}

	for _, bad := range []source.FieldType{source.FieldBinary, source.FieldIntegerList, source.FieldRealList, source.FieldStringList} {
		_, err := FieldKindFor(bad)
		if !lerrors.IsFormat(err) || lerrors.GetCode(err) != lerrors.CodeUnsupportedField {
			t.Errorf("%v: got %v, want FORMAT/UNSUPPORTED_FIELD", bad, err)
		}
	}
}

func TestColumnType(t *testing.T) {
	for _, k := range types.FieldKinds {
		if ColumnType(k) == "BLOB" {
			t.Errorf("%s has no column type", k)
		}
	}
	if ColumnType(types.FieldInteger) != "INTEGER" || ColumnType(types.FieldReal) != "REAL" {
		t.Error("numeric kinds should map to numeric affinities")
	}
	if ColumnType(types.FieldDateTime) != "TEXT" {
		t.Errorf("datetime column = %s, want TEXT", ColumnType(types.FieldDateTime))
	}
}
