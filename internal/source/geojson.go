package source

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// DefaultGeoJSONCRS applies to collections without a legacy crs member (RFC 7946).
const DefaultGeoJSONCRS = "EPSG:4326"

type geojsonLayer struct {
	path     string
	features []*geojson.Feature
	fields   []FieldDefn
	geomType GeometryType
	srs      string
	cursor   int
}

type crsMember struct {
	CRS *struct {
		Type       string `json:"type"`
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	} `json:"crs"`
}

func openGeoJSON(path string) (Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, err
	}

	var legacy crsMember
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, err
	}

	l := &geojsonLayer{
		path:     path,
		features: fc.Features,
		srs:      DefaultGeoJSONCRS,
	}
	if legacy.CRS != nil && legacy.CRS.Properties.Name != "" {
		l.srs = normalizeCRSName(legacy.CRS.Properties.Name)
	}

	l.geomType = collectionGeometryType(fc.Features)
	l.fields = inferFields(fc.Features)
	return l, nil
}

// normalizeCRSName turns urn:ogc:def:crs:EPSG::3857 and friends into EPSG:3857.
func normalizeCRSName(name string) string {
	if strings.HasPrefix(name, "urn:ogc:def:crs:") {
		parts := strings.Split(strings.TrimPrefix(name, "urn:ogc:def:crs:"), ":")
		if len(parts) >= 2 {
			auth, code := parts[0], parts[len(parts)-1]
			if auth == "OGC" && code == "CRS84" {
				return DefaultGeoJSONCRS
			}
			return auth + ":" + code
		}
	}
	return name
}

func geometryFamily(g orb.Geometry) GeometryType {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return GeometryMultiPoint
	case orb.LineString, orb.MultiLineString:
		return GeometryMultiLineString
	case orb.Polygon, orb.MultiPolygon:
		return GeometryMultiPolygon
	default:
		return GeometryCollection
	}
}

func singleOf(family GeometryType) GeometryType {
	switch family {
	case GeometryMultiPoint:
		return GeometryPoint
	case GeometryMultiLineString:
		return GeometryLineString
	case GeometryMultiPolygon:
		return GeometryPolygon
	}
	return family
}

// collectionGeometryType reports the single geometry family of all features.
// Single-part only collections report the single-part type.
func collectionGeometryType(features []*geojson.Feature) GeometryType {
	family := GeometryUnknown
	multi := false
	for _, f := range features {
		if f.Geometry == nil {
			continue
		}
		fam := geometryFamily(f.Geometry)
		if fam == GeometryCollection {
			return GeometryCollection
		}
		if family != GeometryUnknown && fam != family {
			return GeometryCollection
		}
		family = fam
		switch f.Geometry.(type) {
		case orb.MultiPoint, orb.MultiLineString, orb.MultiPolygon:
			multi = true
		}
	}
	if family == GeometryUnknown || multi {
		return family
	}
	return singleOf(family)
}

// inferFields derives attribute types from property values across all
// features. Property names are ordered alphabetically.
func inferFields(features []*geojson.Feature) []FieldDefn {
	types := map[string]FieldType{}
	seen := map[string]bool{}
	for _, f := range features {
		for k, v := range f.Properties {
			t, ok := valueFieldType(v)
			if !ok {
				// null carries no type information
				if !seen[k] {
					seen[k] = true
				}
				continue
			}
			prev, had := types[k]
			switch {
			case !had:
				types[k] = t
			case prev == t:
			case (prev == FieldInteger && t == FieldReal) || (prev == FieldReal && t == FieldInteger):
				types[k] = FieldReal
			default:
				types[k] = FieldString
			}
			seen[k] = true
		}
	}

	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)

	fields := make([]FieldDefn, 0, len(names))
	for _, k := range names {
		t, ok := types[k]
		if !ok {
			t = FieldString
		}
		fields = append(fields, FieldDefn{Name: k, Type: t})
	}
	return fields
}

func valueFieldType(v interface{}) (FieldType, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case bool:
		return FieldInteger, true
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return FieldInteger, true
		}
		return FieldReal, true
	case string:
		return FieldString, true
	default:
		return FieldString, true
	}
}

func (l *geojsonLayer) Name() string {
	return strings.TrimSuffix(filepath.Base(l.path), filepath.Ext(l.path))
}

func (l *geojsonLayer) GeometryType() GeometryType { return l.geomType }
func (l *geojsonLayer) SpatialRef() string         { return l.srs }
func (l *geojsonLayer) Fields() []FieldDefn        { return l.fields }
func (l *geojsonLayer) LegacyEncoding() bool       { return false }

func (l *geojsonLayer) NextFeature() (Feature, error) {
	if l.cursor >= len(l.features) {
		return nil, io.EOF
	}
	f := l.features[l.cursor]
	l.cursor++
	return &jsonFeature{seq: int64(l.cursor), f: f, fields: l.fields}, nil
}

func (l *geojsonLayer) ResetReading() error {
	l.cursor = 0
	return nil
}

func (l *geojsonLayer) Close() error {
	l.features = nil
	return nil
}

type jsonFeature struct {
	seq    int64
	f      *geojson.Feature
	fields []FieldDefn
}

func (f *jsonFeature) value(i int) interface{} {
	return f.f.Properties[f.fields[i].Name]
}

func (f *jsonFeature) Sequence() int64        { return f.seq }
func (f *jsonFeature) Geometry() orb.Geometry { return f.f.Geometry }
func (f *jsonFeature) IsNull(i int) bool      { return f.value(i) == nil }

func (f *jsonFeature) Integer(i int) (int64, error) {
	switch v := f.value(i).(type) {
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return 0, fmt.Errorf("field %s is not a number", f.fields[i].Name)
}

func (f *jsonFeature) Real(i int) (float64, error) {
	switch v := f.value(i).(type) {
	case float64:
		return v, nil
	case string:
		return strconv.ParseFloat(v, 64)
	}
	return 0, fmt.Errorf("field %s is not a number", f.fields[i].Name)
}

func (f *jsonFeature) String(i int) string {
	switch v := f.value(i).(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

func (f *jsonFeature) Time(i int) (time.Time, error) {
	s, ok := f.value(i).(string)
	if !ok {
		return time.Time{}, fmt.Errorf("field %s is not a date", f.fields[i].Name)
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("field %s: %q is not a date", f.fields[i].Name, s)
}
