package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

type shapefileLayer struct {
	path     string
	reader   *shp.Reader
	fields   []FieldDefn
	geomType GeometryType
	srs      string
	seq      int64
}

func openShapefile(path string) (Layer, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, err
	}

	l := &shapefileLayer{
		path:     path,
		reader:   r,
		geomType: shapeGeometryType(r.GeometryType),
	}

	for _, f := range r.Fields() {
		l.fields = append(l.fields, FieldDefn{
			Name:      f.String(),
			Type:      dbfFieldType(f),
			Width:     int(f.Size),
			Precision: int(f.Precision),
		})
	}

	srs, err := readPrj(path)
	if err != nil {
		r.Close()
		return nil, err
	}
	l.srs = srs

	return l, nil
}

// readPrj returns the WKT of the sibling .prj file, or "" when there is none.
func readPrj(shpPath string) (string, error) {
	base := strings.TrimSuffix(shpPath, filepath.Ext(shpPath))
	for _, ext := range []string{".prj", ".PRJ"} {
		data, err := os.ReadFile(base + ext)
		if err == nil {
			return strings.TrimSpace(string(data)), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
	}
	return "", nil
}

func shapeGeometryType(t shp.ShapeType) GeometryType {
	switch t {
	case shp.POINT, shp.POINTZ, shp.POINTM:
		return GeometryPoint
	case shp.POLYLINE, shp.POLYLINEZ, shp.POLYLINEM:
		return GeometryLineString
	case shp.POLYGON, shp.POLYGONZ, shp.POLYGONM:
		return GeometryPolygon
	case shp.MULTIPOINT, shp.MULTIPOINTZ, shp.MULTIPOINTM:
		return GeometryMultiPoint
	default:
		return GeometryUnknown
	}
}

func dbfFieldType(f shp.Field) FieldType {
	switch f.Fieldtype {
	case 'C', 'L', 'M':
		return FieldString
	case 'N':
		if f.Precision > 0 {
			return FieldReal
		}
		if f.Size < 10 {
			return FieldInteger
		}
		return FieldInteger64
	case 'F':
		return FieldReal
	case 'D':
		return FieldDate
	default:
		return FieldBinary
	}
}

func (l *shapefileLayer) Name() string {
	return strings.TrimSuffix(filepath.Base(l.path), filepath.Ext(l.path))
}

func (l *shapefileLayer) GeometryType() GeometryType { return l.geomType }
func (l *shapefileLayer) SpatialRef() string         { return l.srs }
func (l *shapefileLayer) Fields() []FieldDefn        { return l.fields }
func (l *shapefileLayer) LegacyEncoding() bool       { return true }

func (l *shapefileLayer) NextFeature() (Feature, error) {
	if l.reader == nil {
		return nil, fmt.Errorf("shapefile %s: layer closed", l.Name())
	}
	if !l.reader.Next() {
		return nil, io.EOF
	}
	n, shape := l.reader.Shape()
	l.seq++

	geom, err := shapeGeometry(shape)
	if err != nil {
		return nil, fmt.Errorf("shapefile %s: feature %d: %w", l.Name(), l.seq, err)
	}

	values := make([]string, len(l.fields))
	for i := range l.fields {
		values[i] = strings.Trim(l.reader.ReadAttribute(n, i), " \x00")
	}

	return &dbfFeature{seq: l.seq, geom: geom, fields: l.fields, values: values}, nil
}

// ResetReading reopens the file; the reader has no rewind.
func (l *shapefileLayer) ResetReading() error {
	if l.reader != nil {
		l.reader.Close()
	}
	r, err := shp.Open(l.path)
	if err != nil {
		l.reader = nil
		return err
	}
	l.reader = r
	l.seq = 0
	return nil
}

func (l *shapefileLayer) Close() error {
	if l.reader == nil {
		return nil
	}
	err := l.reader.Close()
	l.reader = nil
	return err
}

func shapeGeometry(s shp.Shape) (orb.Geometry, error) {
	switch g := s.(type) {
	case nil, *shp.Null:
		return nil, nil
	case *shp.Point:
		return orb.Point{g.X, g.Y}, nil
	case *shp.PointZ:
		return orb.Point{g.X, g.Y}, nil
	case *shp.PointM:
		return orb.Point{g.X, g.Y}, nil
	case *shp.MultiPoint:
		return multiPoint(g.Points), nil
	case *shp.MultiPointZ:
		return multiPoint(g.Points), nil
	case *shp.MultiPointM:
		return multiPoint(g.Points), nil
	case *shp.PolyLine:
		return lines(splitParts(g.Parts, g.Points)), nil
	case *shp.PolyLineZ:
		return lines(splitParts(g.Parts, g.Points)), nil
	case *shp.PolyLineM:
		return lines(splitParts(g.Parts, g.Points)), nil
	case *shp.Polygon:
		return polygons(splitParts(g.Parts, g.Points)), nil
	case *shp.PolygonZ:
		return polygons(splitParts(g.Parts, g.Points)), nil
	case *shp.PolygonM:
		return polygons(splitParts(g.Parts, g.Points)), nil
	default:
		return nil, fmt.Errorf("unsupported shape %T", s)
	}
}

func multiPoint(pts []shp.Point) orb.MultiPoint {
	mp := make(orb.MultiPoint, len(pts))
	for i, p := range pts {
		mp[i] = orb.Point{p.X, p.Y}
	}
	return mp
}

func splitParts(parts []int32, pts []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(pts))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || int(end) > len(pts) {
			continue
		}
		part := make([]orb.Point, 0, end-start)
		for _, p := range pts[start:end] {
			part = append(part, orb.Point{p.X, p.Y})
		}
		out = append(out, part)
	}
	return out
}

func lines(parts [][]orb.Point) orb.Geometry {
	if len(parts) == 1 {
		return orb.LineString(parts[0])
	}
	mls := make(orb.MultiLineString, len(parts))
	for i, p := range parts {
		mls[i] = orb.LineString(p)
	}
	return mls
}

// polygons assembles shapefile rings: clockwise rings are shells,
// counter-clockwise rings are holes of the shell that contains them.
func polygons(parts [][]orb.Point) orb.Geometry {
	var mp orb.MultiPolygon
	var holes []orb.Ring
	for _, p := range parts {
		ring := orb.Ring(p)
		if ring.Orientation() == orb.CCW {
			holes = append(holes, ring)
			continue
		}
		mp = append(mp, orb.Polygon{ring})
	}

	for _, h := range holes {
		placed := false
		for i := range mp {
			if len(h) > 0 && planar.RingContains(mp[i][0], h[0]) {
				mp[i] = append(mp[i], h)
				placed = true
				break
			}
		}
		if !placed {
			// orphan hole: keep it as a shell so no coordinates are lost
			mp = append(mp, orb.Polygon{h})
		}
	}

	if len(mp) == 1 {
		return mp[0]
	}
	return mp
}

type dbfFeature struct {
	seq    int64
	geom   orb.Geometry
	fields []FieldDefn
	values []string
}

func (f *dbfFeature) Sequence() int64        { return f.seq }
func (f *dbfFeature) Geometry() orb.Geometry { return f.geom }

func (f *dbfFeature) IsNull(i int) bool {
	v := f.values[i]
	if v == "" {
		return true
	}
	switch f.fields[i].Type {
	case FieldInteger, FieldInteger64, FieldReal:
		// numeric overflow marker
		return strings.Trim(v, "*") == ""
	case FieldDate:
		return v == "00000000"
	}
	return false
}

func (f *dbfFeature) Integer(i int) (int64, error) {
	v := f.values[i]
	n, err := strconv.ParseInt(v, 10, 64)
	if err == nil {
		return n, nil
	}
	fv, ferr := strconv.ParseFloat(v, 64)
	if ferr != nil {
		return 0, fmt.Errorf("field %s: %q is not a number", f.fields[i].Name, v)
	}
	return int64(fv), nil
}

func (f *dbfFeature) Real(i int) (float64, error) {
	v := f.values[i]
	fv, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: %q is not a number", f.fields[i].Name, v)
	}
	return fv, nil
}

func (f *dbfFeature) String(i int) string { return f.values[i] }

func (f *dbfFeature) Time(i int) (time.Time, error) {
	v := f.values[i]
	t, err := time.Parse("20060102", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %s: %q is not a date", f.fields[i].Name, v)
	}
	return t, nil
}
