package schema

import (
	"reflect"
	"strings"
	"testing"

	lerrors "github.com/arkilian/vectorlayer/internal/errors"
	"github.com/arkilian/vectorlayer/internal/source"
	"github.com/arkilian/vectorlayer/internal/source/sourcetest"
	"github.com/arkilian/vectorlayer/internal/textenc"
	"github.com/arkilian/vectorlayer/pkg/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"golang.org/x/text/encoding/charmap"
)

func placesLayer() *sourcetest.Layer {
	return &sourcetest.Layer{
		LayerName: "places",
		Geom:      source.GeometryPoint,
		SRS:       "EPSG:4326",
		Defs: []source.FieldDefn{
			{Name: "name", Type: source.FieldString},
			{Name: "pop", Type: source.FieldInteger64},
			{Name: "area", Type: source.FieldReal},
			{Name: "founded", Type: source.FieldDate},
		},
	}
}

func TestFromSource(t *testing.T) {
	l, err := FromSource(placesLayer(), 3857, nil)
	if err != nil {
		t.Fatalf("FromSource: %v", err)
	}
	if l.GeometryKind != types.GeometryMultiPoint {
		t.Errorf("GeometryKind = %s, want MULTIPOINT", l.GeometryKind)
	}
	if l.SRID != 3857 {
		t.Errorf("SRID = %d", l.SRID)
	}
	want := []types.FieldKind{types.FieldString, types.FieldInteger, types.FieldReal, types.FieldDate}
	if len(l.Fields) != len(want) {
		t.Fatalf("got %d fields", len(l.Fields))
	}
	for i, f := range l.Fields {
		if f.Kind != want[i] {
			t.Errorf("field %s kind %s, want %s", f.Keyname, f.Kind, want[i])
		}
		if f.DisplayName != f.Keyname {
			t.Errorf("display name %q should default to keyname %q", f.DisplayName, f.Keyname)
		}
		if !strings.HasPrefix(f.Key(), "fld_") || strings.Contains(f.Key(), f.Keyname) {
			t.Errorf("physical key %q should be generated, not derived from the name", f.Key())
		}
	}
	if !strings.HasPrefix(l.TableName(), "layer_") || len(l.TableID) != 32 {
		t.Errorf("TableName = %q", l.TableName())
	}
}

func TestFromSource_Unsupported(t *testing.T) {
	src := placesLayer()
	src.Geom = source.GeometryCollection
	if _, err := FromSource(src, 3857, nil); lerrors.GetCode(err) != lerrors.CodeUnsupportedGeometry {
		t.Errorf("got %v, want UNSUPPORTED_GEOMETRY", err)
	}

	src = placesLayer()
	src.Defs = append(src.Defs, source.FieldDefn{Name: "blob", Type: source.FieldBinary})
	_, err := FromSource(src, 3857, nil)
	if !lerrors.IsFormat(err) || lerrors.GetCode(err) != lerrors.CodeUnsupportedField {
		t.Errorf("got %v, want FORMAT/UNSUPPORTED_FIELD", err)
	}
}

func TestFromSource_DecodesLegacyFieldNames(t *testing.T) {
	raw, _ := charmap.Windows1251.NewEncoder().String("город")
	src := placesLayer()
	src.Legacy = true
	src.Defs = []source.FieldDefn{{Name: raw, Type: source.FieldString}}

	scope, err := textenc.Acquire("cp1251")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer scope.Release()

	l, err := FromSource(src, 3857, scope)
	if err != nil {
		t.Fatalf("FromSource: %v", err)
	}
	if l.Fields[0].Keyname != "город" {
		t.Errorf("keyname = %q, want город", l.Fields[0].Keyname)
	}

	// UTF-8 layers are never decoded
	src.Legacy = false
	src.Defs = []source.FieldDefn{{Name: "город", Type: source.FieldString}}
	l, err = FromSource(src, 3857, scope)
	if err != nil {
		t.Fatalf("FromSource: %v", err)
	}
	if l.Fields[0].Keyname != "город" {
		t.Errorf("UTF-8 keyname was altered: %q", l.Fields[0].Keyname)
	}
}

func TestFromRecord_EquivalentToFromSource(t *testing.T) {
	fresh, err := FromSource(placesLayer(), 3857, nil)
	if err != nil {
		t.Fatalf("FromSource: %v", err)
	}
	rec := fresh.Record("places", "EPSG:4326", 0)
	back, err := FromRecord(rec)
	if err != nil {
		t.Fatalf("FromRecord: %v", err)
	}
	if !reflect.DeepEqual(fresh, back) {
		t.Errorf("derivations differ:\n source: %+v\n record: %+v", fresh, back)
	}
	if !reflect.DeepEqual(fresh.TableDef(), back.TableDef()) {
		t.Error("table definitions differ")
	}
}

func TestFromRecord_InvalidKinds(t *testing.T) {
	fresh, _ := FromSource(placesLayer(), 3857, nil)
	rec := fresh.Record("places", "EPSG:4326", 0)
	rec.GeometryKind = "POINT"
	if _, err := FromRecord(rec); err == nil {
		t.Error("expected error for non-multi geometry kind")
	}

	rec = fresh.Record("places", "EPSG:4326", 0)
	rec.Fields[0].Kind = "BLOB"
	if _, err := FromRecord(rec); err == nil {
		t.Error("expected error for unknown field kind")
	}
}

func TestTableDef(t *testing.T) {
	l, _ := FromSource(placesLayer(), 3857, nil)
	def := l.TableDef()
	if def.Namespace != "vector_layer" || def.Name != l.TableName() {
		t.Errorf("def = %s", def.QualifiedName())
	}
	if def.Columns[0].Name != "id" || !def.Columns[0].PrimaryKey {
		t.Errorf("first column should be the id primary key: %+v", def.Columns[0])
	}
	if len(def.Columns) != len(l.Fields)+1 {
		t.Fatalf("got %d columns", len(def.Columns))
	}
	for i, f := range l.Fields {
		if def.Columns[i+1].Name != f.Key() {
			t.Errorf("column %d = %s, want %s", i+1, def.Columns[i+1].Name, f.Key())
		}
	}
	if def.Geometry.Kind != types.GeometryMultiPoint || def.Geometry.SRID != 3857 {
		t.Errorf("geometry = %+v", def.Geometry)
	}
	if def.Geometry.SpatialIndex != "rtree_"+l.TableName()+"_geom" {
		t.Errorf("spatial index = %s", def.Geometry.SpatialIndex)
	}
}

func TestFieldLookup(t *testing.T) {
	l, _ := FromSource(placesLayer(), 3857, nil)
	f, ok := l.Field("pop")
	if !ok || f.Kind != types.FieldInteger {
		t.Errorf("Field(pop) = %+v, %v", f, ok)
	}
	if _, ok := l.Field("missing"); ok {
		t.Error("Field(missing) should report false")
	}
	_, err := l.FieldByKeyname("missing")
	if !lerrors.IsNotFound(err) || lerrors.GetCode(err) != lerrors.CodeFieldNotFound {
		t.Errorf("got %v, want NOT_FOUND/FIELD_NOT_FOUND", err)
	}
	if got := l.StringFields(); len(got) != 1 || got[0].Keyname != "name" {
		t.Errorf("StringFields = %+v", got)
	}
}

// TestProperty_FieldKeyFreshness checks that two derivations from sources
// with identical field names never share a physical key or table identity.
func TestProperty_FieldKeyFreshness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("re-derived schemas get fresh keys", prop.ForAll(
		func(names []string) bool {
			src := placesLayer()
			src.Defs = nil
			for _, n := range names {
				src.Defs = append(src.Defs, source.FieldDefn{Name: n, Type: source.FieldString})
			}

			a, err := FromSource(src, 3857, nil)
			if err != nil {
				return false
			}
			b, err := FromSource(src, 3857, nil)
			if err != nil {
				return false
			}
			if a.TableID == b.TableID {
				return false
			}

			seen := map[string]bool{}
			for _, f := range append(a.Fields, b.Fields...) {
				if seen[f.Key()] {
					return false
				}
				seen[f.Key()] = true
			}
			return len(seen) == 2*len(names)
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
