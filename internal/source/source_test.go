package source_test

import (
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/arkilian/vectorlayer/internal/source"
	"github.com/arkilian/vectorlayer/internal/source/sourcetest"
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
)

func openSingle(t *testing.T, path string) source.Layer {
	t.Helper()
	ds, err := source.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { ds.Close() })
	if ds.LayerCount() != 1 {
		t.Fatalf("LayerCount = %d, want 1", ds.LayerCount())
	}
	l, err := ds.Layer(0)
	if err != nil {
		t.Fatalf("Layer(0): %v", err)
	}
	return l
}

func TestShapefile_PointsAndAttributes(t *testing.T) {
	dir := t.TempDir()
	sourcetest.WriteShapefile(t, dir, sourcetest.Shapefile{
		Name: "towns",
		Type: shp.POINT,
		Fields: []shp.Field{
			shp.StringField("name", 20),
			shp.NumberField("pop", 9),
			shp.NumberField("big", 12),
			shp.FloatField("area", 12, 3),
			shp.DateField("founded"),
		},
		Shapes: []shp.Shape{
			&shp.Point{X: 10, Y: 20},
			&shp.Point{X: -5, Y: 1.5},
		},
		Rows: [][]interface{}{
			{"Alpha", 100, 12345678901, 1.25, "19990102"},
			{"Beta", nil, nil, nil, nil},
		},
		PRJ: sourcetest.WGS84PRJ,
	})

	l := openSingle(t, dir)
	if l.Name() != "towns" {
		t.Errorf("Name = %q", l.Name())
	}
	if l.GeometryType() != source.GeometryPoint {
		t.Errorf("GeometryType = %v, want Point", l.GeometryType())
	}
	if l.SpatialRef() != sourcetest.WGS84PRJ {
		t.Errorf("SpatialRef = %q", l.SpatialRef())
	}
	if !l.LegacyEncoding() {
		t.Error("shapefile layers should report legacy encoding")
	}

	wantTypes := []source.FieldType{
		source.FieldString, source.FieldInteger, source.FieldInteger64, source.FieldReal, source.FieldDate,
	}
	fields := l.Fields()
	if len(fields) != len(wantTypes) {
		t.Fatalf("got %d fields, want %d", len(fields), len(wantTypes))
	}
	for i, want := range wantTypes {
		if fields[i].Type != want {
			t.Errorf("field %s: type %v, want %v", fields[i].Name, fields[i].Type, want)
		}
	}

	features, err := source.ReadAll(l)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(features) != 2 {
		t.Fatalf("got %d features, want 2", len(features))
	}

	f := features[0]
	if f.Sequence() != 1 {
		t.Errorf("Sequence = %d, want 1", f.Sequence())
	}
	if p, ok := f.Geometry().(orb.Point); !ok || !p.Equal(orb.Point{10, 20}) {
		t.Errorf("Geometry = %v", f.Geometry())
	}
	if f.String(0) != "Alpha" {
		t.Errorf("name = %q", f.String(0))
	}
	if n, err := f.Integer(1); err != nil || n != 100 {
		t.Errorf("pop = %d, %v", n, err)
	}
	if n, err := f.Integer(2); err != nil || n != 12345678901 {
		t.Errorf("big = %d, %v", n, err)
	}
	if v, err := f.Real(3); err != nil || v != 1.25 {
		t.Errorf("area = %v, %v", v, err)
	}
	if d, err := f.Time(4); err != nil || d.Year() != 1999 || d.Month() != 1 || d.Day() != 2 {
		t.Errorf("founded = %v, %v", d, err)
	}

	for i := 1; i < 5; i++ {
		if !features[1].IsNull(i) {
			t.Errorf("feature 2 field %d should be null", i)
		}
	}
	if features[1].Sequence() != 2 {
		t.Errorf("Sequence = %d, want 2", features[1].Sequence())
	}
}

func TestShapefile_NullShapeAndReset(t *testing.T) {
	dir := t.TempDir()
	sourcetest.WriteShapefile(t, dir, sourcetest.Shapefile{
		Name:   "gaps",
		Type:   shp.POINT,
		Fields: []shp.Field{shp.StringField("name", 8)},
		Shapes: []shp.Shape{&shp.Point{X: 1, Y: 1}, nil, &shp.Point{X: 3, Y: 3}},
		Rows:   [][]interface{}{{"a"}, {"b"}, {"c"}},
		PRJ:    sourcetest.WGS84PRJ,
	})

	l := openSingle(t, dir)
	features, err := source.ReadAll(l)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(features) != 3 {
		t.Fatalf("got %d features, want 3", len(features))
	}
	if features[1].Geometry() != nil {
		t.Errorf("feature 2 geometry = %v, want nil", features[1].Geometry())
	}
	if features[2].String(0) != "c" {
		t.Errorf("feature 3 name = %q", features[2].String(0))
	}

	if err := l.ResetReading(); err != nil {
		t.Fatalf("ResetReading: %v", err)
	}
	f, err := l.NextFeature()
	if err != nil {
		t.Fatalf("NextFeature after reset: %v", err)
	}
	if f.Sequence() != 1 || f.String(0) != "a" {
		t.Errorf("after reset got feature %d %q", f.Sequence(), f.String(0))
	}
}

func TestShapefile_MissingPrj(t *testing.T) {
	dir := t.TempDir()
	sourcetest.WriteShapefile(t, dir, sourcetest.Shapefile{
		Name:   "nocrs",
		Type:   shp.POINT,
		Shapes: []shp.Shape{&shp.Point{X: 1, Y: 1}},
	})
	l := openSingle(t, dir)
	if l.SpatialRef() != "" {
		t.Errorf("SpatialRef = %q, want empty", l.SpatialRef())
	}
}

func TestShapefile_PolygonHoles(t *testing.T) {
	dir := t.TempDir()
	// shell clockwise, hole counter-clockwise
	shell := []shp.Point{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}}
	hole := []shp.Point{{X: 2, Y: 2}, {X: 4, Y: 2}, {X: 4, Y: 4}, {X: 2, Y: 4}, {X: 2, Y: 2}}
	other := []shp.Point{{X: 20, Y: 20}, {X: 20, Y: 30}, {X: 30, Y: 30}, {X: 30, Y: 20}, {X: 20, Y: 20}}

	poly := shp.NewPolyLine([][]shp.Point{shell, hole})
	multi := shp.NewPolyLine([][]shp.Point{shell, other})
	sourcetest.WriteShapefile(t, dir, sourcetest.Shapefile{
		Name:   "parcels",
		Type:   shp.POLYGON,
		Shapes: []shp.Shape{(*shp.Polygon)(poly), (*shp.Polygon)(multi)},
		PRJ:    sourcetest.WGS84PRJ,
	})

	l := openSingle(t, dir)
	if l.GeometryType() != source.GeometryPolygon {
		t.Fatalf("GeometryType = %v", l.GeometryType())
	}
	features, err := source.ReadAll(l)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	p, ok := features[0].Geometry().(orb.Polygon)
	if !ok {
		t.Fatalf("feature 1: got %T, want orb.Polygon", features[0].Geometry())
	}
	if len(p) != 2 {
		t.Errorf("feature 1: %d rings, want shell and hole", len(p))
	}

	mp, ok := features[1].Geometry().(orb.MultiPolygon)
	if !ok {
		t.Fatalf("feature 2: got %T, want orb.MultiPolygon", features[1].Geometry())
	}
	if len(mp) != 2 {
		t.Errorf("feature 2: %d polygons, want 2", len(mp))
	}
}

func TestGeoJSON_InferredFields(t *testing.T) {
	dir := t.TempDir()
	sourcetest.WriteFile(t, dir, "roads.geojson", `{
		"type": "FeatureCollection",
		"crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::3857"}},
		"features": [
			{"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[0,0],[1,1]]},
			 "properties": {"lanes": 2, "width": 3, "name": "Main", "ok": true, "tags": ["a"], "code": 5}},
			{"type": "Feature", "geometry": {"type": "MultiLineString", "coordinates": [[[0,0],[2,2]]]},
			 "properties": {"lanes": 4, "width": 3.5, "name": null, "ok": false, "code": "X"}}
		]
	}`)

	l := openSingle(t, dir)
	if l.SpatialRef() != "EPSG:3857" {
		t.Errorf("SpatialRef = %q, want EPSG:3857", l.SpatialRef())
	}
	if l.GeometryType() != source.GeometryMultiLineString {
		t.Errorf("GeometryType = %v, want MultiLineString", l.GeometryType())
	}
	if l.LegacyEncoding() {
		t.Error("GeoJSON layers are UTF-8")
	}

	want := map[string]source.FieldType{
		"code":  source.FieldString,
		"lanes": source.FieldInteger,
		"name":  source.FieldString,
		"ok":    source.FieldInteger,
		"tags":  source.FieldString,
		"width": source.FieldReal,
	}
	fields := l.Fields()
	if len(fields) != len(want) {
		t.Fatalf("got %d fields, want %d", len(fields), len(want))
	}
	for i := 1; i < len(fields); i++ {
		if fields[i-1].Name >= fields[i].Name {
			t.Errorf("fields not sorted: %s before %s", fields[i-1].Name, fields[i].Name)
		}
	}
	idx := map[string]int{}
	for i, f := range fields {
		idx[f.Name] = i
		if f.Type != want[f.Name] {
			t.Errorf("field %s: %v, want %v", f.Name, f.Type, want[f.Name])
		}
	}

	first, err := l.NextFeature()
	if err != nil {
		t.Fatalf("NextFeature: %v", err)
	}
	if first.String(idx["tags"]) != `["a"]` {
		t.Errorf("tags = %q", first.String(idx["tags"]))
	}
	if n, _ := first.Integer(idx["ok"]); n != 1 {
		t.Errorf("ok = %d, want 1", n)
	}

	second, err := l.NextFeature()
	if err != nil {
		t.Fatalf("NextFeature: %v", err)
	}
	if !second.IsNull(idx["name"]) {
		t.Error("null property should be null")
	}
	if !second.IsNull(idx["tags"]) {
		t.Error("absent property should be null")
	}
	if _, err := l.NextFeature(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestGeoJSON_DefaultCRSAndMixedFamilies(t *testing.T) {
	dir := t.TempDir()
	sourcetest.WriteFile(t, dir, "mixed.geojson", `{
		"type": "FeatureCollection",
		"features": [
			{"type": "Feature", "geometry": {"type": "Point", "coordinates": [0,0]}, "properties": {}},
			{"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[0,0],[1,1]]}, "properties": {}}
		]
	}`)
	l := openSingle(t, dir)
	if l.SpatialRef() != source.DefaultGeoJSONCRS {
		t.Errorf("SpatialRef = %q", l.SpatialRef())
	}
	if l.GeometryType() != source.GeometryCollection {
		t.Errorf("GeometryType = %v, want GeometryCollection", l.GeometryType())
	}
}

func TestOpen_LayerDiscovery(t *testing.T) {
	dir := t.TempDir()
	sourcetest.WriteFile(t, dir, "readme.txt", "not a layer")
	sourcetest.WriteFile(t, dir, "__MACOSX/b.geojson", `{"type":"FeatureCollection","features":[]}`)
	sourcetest.WriteFile(t, dir, "nested/b.geojson", `{"type":"FeatureCollection","features":[]}`)
	sourcetest.WriteFile(t, dir, "a.geojson", `{"type":"FeatureCollection","features":[]}`)
	sourcetest.WriteFile(t, dir, "x/y/deep.geojson", `{"type":"FeatureCollection","features":[]}`)

	ds, err := source.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ds.Close()
	if ds.LayerCount() != 2 {
		t.Fatalf("LayerCount = %d, want 2", ds.LayerCount())
	}
	l, err := ds.Layer(0)
	if err != nil {
		t.Fatalf("Layer(0): %v", err)
	}
	if l.Name() != "a" {
		t.Errorf("first layer = %q, want a", l.Name())
	}

	empty := t.TempDir()
	ds2, err := source.Open(empty)
	if err != nil {
		t.Fatalf("Open empty: %v", err)
	}
	if ds2.LayerCount() != 0 {
		t.Errorf("empty dir LayerCount = %d", ds2.LayerCount())
	}
}

func TestOpen_NotADataset(t *testing.T) {
	if _, err := source.Open(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, source.ErrNotDataset) {
		t.Errorf("missing path: got %v, want ErrNotDataset", err)
	}
	txt := sourcetest.WriteFile(t, t.TempDir(), "notes.txt", "x")
	if _, err := source.Open(txt); !errors.Is(err, source.ErrNotDataset) {
		t.Errorf("unrecognized file: got %v, want ErrNotDataset", err)
	}
}
