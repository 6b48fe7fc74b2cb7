package schema

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"testing"
	"time"

	lerrors "github.com/arkilian/vectorlayer/internal/errors"
	"github.com/arkilian/vectorlayer/internal/geometry"
	"github.com/arkilian/vectorlayer/internal/reproject"
	"github.com/arkilian/vectorlayer/internal/source"
	"github.com/arkilian/vectorlayer/internal/source/sourcetest"
	"github.com/arkilian/vectorlayer/internal/store"
	"github.com/arkilian/vectorlayer/internal/textenc"
	"github.com/arkilian/vectorlayer/pkg/types"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/charmap"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "main.db")}, zerolog.Nop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func loadedPlaces(t *testing.T, s *store.Store) *Layer {
	t.Helper()
	src := placesLayer()
	src.Geoms = []orb.Geometry{orb.Point{0, 0}, orb.MultiPoint{{10, 10}, {11, 11}}, orb.Point{-10, 5}}
	src.Values = [][]interface{}{
		{"Alpha", int64(10), 1.5, time.Date(1999, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"Beta", nil, nil, nil},
		{nil, int64(30), 2.5, nil},
	}

	l, err := FromSource(src, 3857, nil)
	if err != nil {
		t.Fatalf("FromSource: %v", err)
	}
	ctx := context.Background()
	var n int64
	err = s.InTx(ctx, func(tx *sql.Tx) error {
		if err := l.Materialize(ctx, tx); err != nil {
			return err
		}
		var err error
		n, err = l.Load(ctx, tx, src, nil, reproject.MercatorTransformer{}, src.SRS)
		return err
	})
	if err != nil {
		t.Fatalf("materialize and load: %v", err)
	}
	if n != 3 {
		t.Fatalf("loaded %d rows, want 3", n)
	}
	return l
}

func TestLoad_RowsIdsAndValues(t *testing.T) {
	s := openStore(t)
	l := loadedPlaces(t, s)
	ctx := context.Background()

	name, _ := l.Field("name")
	pop, _ := l.Field("pop")
	founded, _ := l.Field("founded")

	rows, err := s.DB().QueryContext(ctx, "SELECT id, geom, "+
		store.QuoteIdent(name.Key())+", "+store.QuoteIdent(pop.Key())+", "+store.QuoteIdent(founded.Key())+
		" FROM "+store.Qualified(l.TableName())+" ORDER BY id")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		var blob []byte
		var nameV, popV, foundedV interface{}
		if err := rows.Scan(&id, &blob, &nameV, &popV, &foundedV); err != nil {
			t.Fatalf("scan: %v", err)
		}
		ids = append(ids, id)

		g, err := geometry.Decode(blob)
		if err != nil {
			t.Fatalf("decode geometry of %d: %v", id, err)
		}
		if _, ok := g.(orb.MultiPoint); !ok {
			t.Errorf("row %d stored %T, want orb.MultiPoint", id, g)
		}

		switch id {
		case 1:
			if v, _ := DecodeValue(types.FieldString, nameV); v != "Alpha" {
				t.Errorf("row 1 name = %v", v)
			}
			if v, _ := DecodeValue(types.FieldInteger, popV); v != int64(10) {
				t.Errorf("row 1 pop = %v", v)
			}
			d, err := DecodeValue(types.FieldDate, foundedV)
			if err != nil || !d.(time.Time).Equal(time.Date(1999, 1, 2, 0, 0, 0, 0, time.UTC)) {
				t.Errorf("row 1 founded = %v, %v", d, err)
			}
		case 2:
			if popV != nil || foundedV != nil {
				t.Errorf("row 2 nulls not preserved: %v %v", popV, foundedV)
			}
		case 3:
			if nameV != nil {
				t.Errorf("row 3 name = %v, want NULL", nameV)
			}
		}
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Errorf("ids = %v, want [1 2 3]", ids)
	}
}

func TestLoad_ReprojectsAndIndexes(t *testing.T) {
	s := openStore(t)
	l := loadedPlaces(t, s)
	ctx := context.Background()

	var minx, maxx float64
	err := s.DB().QueryRowContext(ctx, "SELECT minx, maxx FROM "+store.Qualified(l.SpatialIndexName())+" WHERE id = 2").
		Scan(&minx, &maxx)
	if err != nil {
		t.Fatalf("rtree lookup: %v", err)
	}
	// 10 degrees east in Web Mercator, float32 index precision
	if math.Abs(minx-1113194.9) > 1 || maxx <= minx {
		t.Errorf("indexed bounds = [%v, %v]", minx, maxx)
	}
}

func TestLoad_GeometryMismatch(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	src := placesLayer()
	src.Geoms = []orb.Geometry{orb.Point{0, 0}, orb.LineString{{0, 0}, {1, 1}}}
	l, _ := FromSource(src, 3857, nil)

	err := s.InTx(ctx, func(tx *sql.Tx) error {
		if err := l.Materialize(ctx, tx); err != nil {
			return err
		}
		_, err := l.Load(ctx, tx, src, nil, reproject.MercatorTransformer{}, src.SRS)
		return err
	})
	if !lerrors.IsValidation(err) || lerrors.GetCode(err) != lerrors.CodeGeometryMismatch {
		t.Fatalf("got %v, want VALIDATION/GEOMETRY_MISMATCH", err)
	}
	if n, ok := lerrors.FeatureOf(err); !ok || n != 2 {
		t.Errorf("FeatureOf = %d, %v; want 2", n, ok)
	}
	if ok, _ := store.TableExists(ctx, s.DB(), l.TableName()); ok {
		t.Error("table should have been rolled back")
	}
}

func TestLoad_DecodesLegacyStrings(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	raw, _ := charmap.Windows1251.NewEncoder().String("Москва")
	src := &sourcetest.Layer{
		Geom:   source.GeometryPoint,
		SRS:    "EPSG:3857",
		Legacy: true,
		Defs:   []source.FieldDefn{{Name: "name", Type: source.FieldString}},
		Geoms:  []orb.Geometry{orb.Point{1, 1}},
		Values: [][]interface{}{{raw}},
	}
	scope, _ := textenc.Acquire("cp1251")
	defer scope.Release()

	l, _ := FromSource(src, 3857, scope)
	err := s.InTx(ctx, func(tx *sql.Tx) error {
		if err := l.Materialize(ctx, tx); err != nil {
			return err
		}
		_, err := l.Load(ctx, tx, src, scope, reproject.Identity{}, src.SRS)
		return err
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	var got string
	key := l.Fields[0].Key()
	if err := s.DB().QueryRow("SELECT " + store.QuoteIdent(key) + " FROM " + store.Qualified(l.TableName())).Scan(&got); err != nil {
		t.Fatalf("select: %v", err)
	}
	if got != "Москва" {
		t.Errorf("stored %q, want Москва", got)
	}
}

func TestWriteFeature(t *testing.T) {
	s := openStore(t)
	l := loadedPlaces(t, s)
	ctx := context.Background()

	err := l.WriteFeature(ctx, s.DB(), types.Feature{ID: 2, Fields: map[string]interface{}{"pop": 99, "name": "Gamma"}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	err = l.WriteFeature(ctx, s.DB(), types.Feature{ID: 10, Geometry: orb.Point{5, 5}, Fields: map[string]interface{}{"area": "3.25"}})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	n, err := l.CountRows(ctx, s.DB())
	if err != nil || n != 4 {
		t.Errorf("CountRows = %d, %v; want 4", n, err)
	}

	pop, _ := l.Field("pop")
	var v int64
	if err := s.DB().QueryRow("SELECT "+store.QuoteIdent(pop.Key())+" FROM "+store.Qualified(l.TableName())+" WHERE id = 2").Scan(&v); err != nil || v != 99 {
		t.Errorf("pop of 2 = %d, %v", v, err)
	}
	var maxx float64
	if err := s.DB().QueryRow("SELECT maxx FROM "+store.Qualified(l.SpatialIndexName())+" WHERE id = 10").Scan(&maxx); err != nil || math.Abs(maxx-5) > 1e-3 {
		t.Errorf("index of 10 = %v, %v", maxx, err)
	}

	err = l.WriteFeature(ctx, s.DB(), types.Feature{ID: 1, Fields: map[string]interface{}{"nope": 1}})
	if lerrors.GetCode(err) != lerrors.CodeFieldNotFound {
		t.Errorf("unknown field: got %v", err)
	}
	err = l.WriteFeature(ctx, s.DB(), types.Feature{ID: 1, Geometry: orb.LineString{{0, 0}, {1, 1}}})
	if lerrors.GetCode(err) != lerrors.CodeGeometryMismatch {
		t.Errorf("wrong family: got %v", err)
	}
	err = l.WriteFeature(ctx, s.DB(), types.Feature{ID: 1, Fields: map[string]interface{}{"pop": "many"}})
	if lerrors.GetCode(err) != lerrors.CodeInvalidValue {
		t.Errorf("bad value: got %v", err)
	}
	err = l.WriteFeature(ctx, s.DB(), types.Feature{ID: 0})
	if lerrors.GetCode(err) != lerrors.CodeInvalidArgument {
		t.Errorf("zero id: got %v", err)
	}
}

func TestDrop(t *testing.T) {
	s := openStore(t)
	l := loadedPlaces(t, s)
	ctx := context.Background()

	if err := l.Drop(ctx, s.DB()); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	for _, name := range []string{l.TableName(), l.SpatialIndexName()} {
		if ok, _ := store.TableExists(ctx, s.DB(), name); ok {
			t.Errorf("%s should be gone", name)
		}
	}
}

func TestEncodeDecodeValue(t *testing.T) {
	tests := []struct {
		kind types.FieldKind
		in   interface{}
		want interface{}
	}{
		{types.FieldInteger, 5, int64(5)},
		{types.FieldInteger, float64(7), int64(7)},
		{types.FieldInteger, "12", int64(12)},
		{types.FieldReal, 2, float64(2)},
		{types.FieldString, "x", "x"},
		{types.FieldDate, "2024-02-29", "2024-02-29"},
		{types.FieldTime, time.Date(1, 1, 1, 13, 4, 5, 0, time.UTC), "13:04:05"},
		{types.FieldDateTime, "2024-02-29T10:00:00Z", "2024-02-29T10:00:00"},
		{types.FieldReal, nil, nil},
	}
	for _, tt := range tests {
		got, err := EncodeValue(tt.kind, tt.in)
		if err != nil || got != tt.want {
			t.Errorf("EncodeValue(%s, %v) = %v, %v; want %v", tt.kind, tt.in, got, err, tt.want)
		}
	}

	for _, bad := range []struct {
		kind types.FieldKind
		in   interface{}
	}{
		{types.FieldInteger, 1.5},
		{types.FieldDate, "02/29/2024"},
		{types.FieldReal, []int{1}},
	} {
		if _, err := EncodeValue(bad.kind, bad.in); lerrors.GetCode(err) != lerrors.CodeInvalidValue {
			t.Errorf("EncodeValue(%s, %v): got %v, want INVALID_VALUE", bad.kind, bad.in, err)
		}
	}

	d, err := DecodeValue(types.FieldTime, "13:04:05")
	if err != nil || d.(time.Time).Hour() != 13 {
		t.Errorf("DecodeValue time = %v, %v", d, err)
	}
	if v, _ := DecodeValue(types.FieldReal, int64(3)); v != float64(3) {
		t.Errorf("DecodeValue real from int = %v", v)
	}
}
