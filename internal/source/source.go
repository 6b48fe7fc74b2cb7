// Package source reads externally authored vector datasets.
//
// A dataset is a directory (usually an extracted upload archive) whose
// recognized files are its layers. Drivers report geometry and attribute
// types in a driver-neutral vocabulary that the type catalog maps onto
// storage kinds.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// GeometryType is the geometry type a source layer declares.
type GeometryType int

const (
	GeometryUnknown GeometryType = iota
	GeometryPoint
	GeometryLineString
	GeometryPolygon
	GeometryMultiPoint
	GeometryMultiLineString
	GeometryMultiPolygon
	GeometryCollection
)

var geometryTypeNames = map[GeometryType]string{
	GeometryUnknown:         "Unknown",
	GeometryPoint:           "Point",
	GeometryLineString:      "LineString",
	GeometryPolygon:         "Polygon",
	GeometryMultiPoint:      "MultiPoint",
	GeometryMultiLineString: "MultiLineString",
	GeometryMultiPolygon:    "MultiPolygon",
	GeometryCollection:      "GeometryCollection",
}

func (t GeometryType) String() string {
	if s, ok := geometryTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("GeometryType(%d)", int(t))
}

// FieldType is the attribute type a source layer declares.
type FieldType int

const (
	FieldInteger FieldType = iota
	FieldInteger64
	FieldReal
	FieldString
	FieldDate
	FieldTime
	FieldDateTime
	FieldBinary
	FieldIntegerList
	FieldRealList
	FieldStringList
)

var fieldTypeNames = map[FieldType]string{
	FieldInteger:     "Integer",
	FieldInteger64:   "Integer64",
	FieldReal:        "Real",
	FieldString:      "String",
	FieldDate:        "Date",
	FieldTime:        "Time",
	FieldDateTime:    "DateTime",
	FieldBinary:      "Binary",
	FieldIntegerList: "IntegerList",
	FieldRealList:    "RealList",
	FieldStringList:  "StringList",
}

func (t FieldType) String() string {
	if s, ok := fieldTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// FieldDefn describes one source attribute.
type FieldDefn struct {
	// Name is the attribute name as stored; for legacy-encoded layers it
	// holds the undecoded bytes
	Name      string
	Type      FieldType
	Width     int
	Precision int
}

// Feature is one source record.
type Feature interface {
	// Sequence is the 1-based position of the feature in the layer
	Sequence() int64

	// Geometry returns nil when the feature has no geometry
	Geometry() orb.Geometry

	IsNull(i int) bool
	Integer(i int) (int64, error)
	Real(i int) (float64, error)

	// String returns the raw text value; legacy-encoded layers return undecoded bytes
	String(i int) string

	Time(i int) (time.Time, error)
}

// Layer is a single source layer with a forward-only read cursor.
type Layer interface {
	Name() string
	GeometryType() GeometryType

	// SpatialRef returns the declared CRS (WKT or an authority code), or "" when missing
	SpatialRef() string

	Fields() []FieldDefn

	// LegacyEncoding reports whether string values and field names are
	// stored in a fixed, format-specific encoding rather than UTF-8
	LegacyEncoding() bool

	// NextFeature returns io.EOF after the last feature
	NextFeature() (Feature, error)

	ResetReading() error
	Close() error
}

// Dataset is an opened source dataset.
type Dataset interface {
	LayerCount() int
	Layer(i int) (Layer, error)
	Close() error
}

// Opener opens datasets. The import pipeline consumes this interface.
type Opener interface {
	Open(path string) (Dataset, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(path string) (Dataset, error)

// Open implements Opener.
func (f OpenerFunc) Open(path string) (Dataset, error) { return f(path) }

// ErrNotDataset is returned when a path cannot be opened as a dataset at all.
var ErrNotDataset = errors.New("source: not a dataset")

type driver struct {
	name string
	exts []string
	open func(path string) (Layer, error)
}

var drivers = []driver{
	{name: "ESRI Shapefile", exts: []string{".shp"}, open: openShapefile},
	{name: "GeoJSON", exts: []string{".geojson", ".json"}, open: openGeoJSON},
}

func driverFor(path string) (driver, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, d := range drivers {
		for _, e := range d.exts {
			if e == ext {
				return d, true
			}
		}
	}
	return driver{}, false
}

// Open opens a directory or a single recognized file as a dataset.
// Layers are discovered in the directory itself and one level below it.
func Open(path string) (Dataset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotDataset, err)
	}

	if !info.IsDir() {
		if _, ok := driverFor(path); !ok {
			return nil, fmt.Errorf("%w: unrecognized file %s", ErrNotDataset, filepath.Base(path))
		}
		return &dirDataset{paths: []string{path}}, nil
	}

	paths, err := scanLayers(path, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotDataset, err)
	}
	sort.Strings(paths)
	return &dirDataset{paths: paths}, nil
}

// DefaultOpener opens datasets with Open.
var DefaultOpener Opener = OpenerFunc(Open)

func scanLayers(dir string, depth int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		name := e.Name()
		// archive tooling litter: __MACOSX/, ._name.shp
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "__") {
			continue
		}
		full := filepath.Join(dir, name)
		if e.IsDir() {
			if depth > 0 {
				sub, err := scanLayers(full, depth-1)
				if err != nil {
					return nil, err
				}
				paths = append(paths, sub...)
			}
			continue
		}
		if _, ok := driverFor(name); ok {
			paths = append(paths, full)
		}
	}
	return paths, nil
}

type dirDataset struct {
	paths  []string
	opened []Layer
}

func (d *dirDataset) LayerCount() int { return len(d.paths) }

func (d *dirDataset) Layer(i int) (Layer, error) {
	if i < 0 || i >= len(d.paths) {
		return nil, fmt.Errorf("source: layer index %d out of range", i)
	}
	drv, _ := driverFor(d.paths[i])
	l, err := drv.open(d.paths[i])
	if err != nil {
		return nil, fmt.Errorf("source: %s: %w", drv.name, err)
	}
	d.opened = append(d.opened, l)
	return l, nil
}

func (d *dirDataset) Close() error {
	var first error
	for _, l := range d.opened {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	d.opened = nil
	return first
}

// ReadAll drains a layer from its current cursor position. Intended for tests and tooling.
func ReadAll(l Layer) ([]Feature, error) {
	var out []Feature
	for {
		f, err := l.NextFeature()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
}
