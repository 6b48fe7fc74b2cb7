package reproject

import (
	"math"
	"testing"

	"github.com/arkilian/vectorlayer/internal/source/sourcetest"
	"github.com/paulmach/orb"
)

const webMercatorPRJ = `PROJCS["WGS_1984_Web_Mercator_Auxiliary_Sphere",GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Mercator_Auxiliary_Sphere"],UNIT["Meter",1.0]]`

func TestSRID(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"EPSG:4326", 4326, true},
		{"epsg:3857", 3857, true},
		{"urn:ogc:def:crs:EPSG::3857", 3857, true},
		{sourcetest.WGS84PRJ, 4326, true},
		{webMercatorPRJ, 3857, true},
		{`PROJCS["x",GEOGCS["y",UNIT["degree",0.01,AUTHORITY["EPSG","9122"]]],AUTHORITY["EPSG","32633"]]`, 32633, true},
		{`PROJCS["x",GEOGCS["y",UNIT["degree",0.01,AUTHORITY["EPSG","9122"]]]]`, 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := SRID(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("SRID(%.30q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSameCRS(t *testing.T) {
	if !SameCRS(sourcetest.WGS84PRJ, "EPSG:4326") {
		t.Error("ESRI WGS84 WKT should match EPSG:4326")
	}
	if SameCRS("EPSG:4326", "EPSG:3857") {
		t.Error("different codes should not match")
	}
}

func TestMercatorTransformer(t *testing.T) {
	var tr MercatorTransformer
	in := orb.MultiPoint{{0, 0}, {180, 0}}
	out, err := tr.Transform(in, "EPSG:4326", "EPSG:3857")
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	mp := out.(orb.MultiPoint)
	if math.Abs(mp[0][0]) > 1e-9 || math.Abs(mp[0][1]) > 1e-9 {
		t.Errorf("origin moved: %v", mp[0])
	}
	if math.Abs(mp[1][0]-20037508.342789244) > 1e-3 {
		t.Errorf("antimeridian x = %v", mp[1][0])
	}
	if in[1][0] != 180 {
		t.Error("Transform modified its input")
	}

	back, err := tr.Transform(out, "EPSG:3857", sourcetest.WGS84PRJ)
	if err != nil {
		t.Fatalf("Transform back: %v", err)
	}
	if p := back.(orb.MultiPoint)[1]; math.Abs(p[0]-180) > 1e-9 {
		t.Errorf("round trip x = %v", p[0])
	}
}

func TestMercatorTransformer_Errors(t *testing.T) {
	var tr MercatorTransformer
	if _, err := tr.Transform(orb.Point{0, 0}, "EPSG:4326", "EPSG:32633"); err == nil {
		t.Error("expected error for unsupported target")
	}
	if _, err := tr.Transform(orb.Point{0, 0}, "LOCAL_CS[\"x\"]", "EPSG:3857"); err == nil {
		t.Error("expected error for unrecognized source")
	}
	if _, err := tr.Transform(orb.Point{500000, 0}, "EPSG:4326", "EPSG:3857"); err == nil {
		t.Error("expected error for projected coordinates declared as degrees")
	}
}

func TestIdentity(t *testing.T) {
	in := orb.Point{1, 2}
	out, err := Identity{}.Transform(in, "EPSG:3857", "EPSG:3857")
	if err != nil || out.(orb.Point) != in {
		t.Errorf("identity transform = %v, %v", out, err)
	}
	if _, err := (Identity{}).Transform(in, "EPSG:4326", "EPSG:3857"); err == nil {
		t.Error("Identity without Next should fail across systems")
	}
	out, err = Identity{Next: MercatorTransformer{}}.Transform(in, "EPSG:4326", "EPSG:3857")
	if err != nil || out.(orb.Point) == in {
		t.Errorf("delegated transform = %v, %v", out, err)
	}
}
