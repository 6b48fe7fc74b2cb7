// Package sourcetest writes small source datasets and upload archives for tests.
package sourcetest

import (
	"archive/zip"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
)

// WGS84PRJ is the .prj text ESRI tools write for EPSG:4326.
const WGS84PRJ = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// Shapefile describes a shapefile to write. A nil entry in Shapes is
// written as a null-shape record.
type Shapefile struct {
	Name   string
	Type   shp.ShapeType
	Fields []shp.Field
	Shapes []shp.Shape
	Rows   [][]interface{}

	// PRJ is written to <name>.prj unless empty
	PRJ string
}

// WriteShapefile writes s into dir and returns the .shp path.
func WriteShapefile(t testing.TB, dir string, s Shapefile) string {
	t.Helper()

	path := filepath.Join(dir, s.Name+".shp")
	w, err := shp.Create(path, s.Type)
	if err != nil {
		t.Fatalf("create shapefile: %v", err)
	}
	if len(s.Fields) > 0 {
		if err := w.SetFields(s.Fields); err != nil {
			t.Fatalf("set fields: %v", err)
		}
	}

	var nulls []int
	for i, shape := range s.Shapes {
		if shape == nil {
			nulls = append(nulls, i)
			shape = placeholder(s.Type)
		}
		n := int(w.Write(shape))
		if i < len(s.Rows) {
			for j, v := range s.Rows[i] {
				if v == nil {
					continue
				}
				if err := w.WriteAttribute(n, j, v); err != nil {
					t.Fatalf("write attribute %d/%d: %v", n, j, err)
				}
			}
		}
	}
	w.Close()

	for _, i := range nulls {
		markNull(t, path, i)
	}

	if s.PRJ != "" {
		prj := strings.TrimSuffix(path, ".shp") + ".prj"
		if err := os.WriteFile(prj, []byte(s.PRJ), 0644); err != nil {
			t.Fatalf("write prj: %v", err)
		}
	}
	return path
}

func placeholder(t shp.ShapeType) shp.Shape {
	switch t {
	case shp.POLYLINE:
		return shp.NewPolyLine([][]shp.Point{{{X: 0, Y: 0}, {X: 0, Y: 0}}})
	case shp.POLYGON:
		return &shp.Polygon{
			Box:       shp.Box{},
			NumParts:  1,
			NumPoints: 4,
			Parts:     []int32{0},
			Points:    make([]shp.Point, 4),
		}
	default:
		return &shp.Point{}
	}
}

// markNull rewrites the shape type of record i to the null shape. The
// writer always stamps the layer type on records, so null records are
// patched in place afterwards; the reader skips by record length.
func markNull(t testing.TB, shpPath string, i int) {
	t.Helper()

	shxPath := strings.TrimSuffix(shpPath, ".shp") + ".shx"
	shx, err := os.ReadFile(shxPath)
	if err != nil {
		t.Fatalf("read shx: %v", err)
	}
	pos := 100 + 8*i
	if pos+4 > len(shx) {
		t.Fatalf("record %d not in index", i)
	}
	offset := int64(binary.BigEndian.Uint32(shx[pos:pos+4])) * 2

	f, err := os.OpenFile(shpPath, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open shp: %v", err)
	}
	defer f.Close()

	var typ [4]byte
	binary.LittleEndian.PutUint32(typ[:], uint32(shp.NULL))
	if _, err := f.WriteAt(typ[:], offset+8); err != nil {
		t.Fatalf("patch record %d: %v", i, err)
	}
}

// WriteFile writes an arbitrary file into dir and returns its path.
func WriteFile(t testing.TB, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// ZipDir archives the contents of dir into dest and returns dest.
func ZipDir(t testing.TB, dir, dest string) string {
	t.Helper()

	out, err := os.Create(dest)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(w, in)
		return err
	})
	if err != nil {
		t.Fatalf("zip %s: %v", dir, err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return dest
}

// PointArchive writes a one-layer point shapefile in WGS84 with the given
// rows and zips it. Fields default to name (C,32) and pop (N,9).
func PointArchive(t testing.TB, points [][2]float64, rows [][]interface{}) string {
	t.Helper()

	dir := t.TempDir()
	shapes := make([]shp.Shape, len(points))
	for i, p := range points {
		shapes[i] = &shp.Point{X: p[0], Y: p[1]}
	}
	WriteShapefile(t, dir, Shapefile{
		Name: "places",
		Type: shp.POINT,
		Fields: []shp.Field{
			shp.StringField("name", 32),
			shp.NumberField("pop", 9),
		},
		Shapes: shapes,
		Rows:   rows,
		PRJ:    WGS84PRJ,
	})
	return ZipDir(t, dir, filepath.Join(t.TempDir(), "places.zip"))
}
