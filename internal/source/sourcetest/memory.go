package sourcetest

import (
	"fmt"
	"io"
	"time"

	"github.com/arkilian/vectorlayer/internal/source"
	"github.com/paulmach/orb"
)

// Layer is an in-memory source layer. Values holds one row per feature:
// int64, float64, string, time.Time or nil.
type Layer struct {
	LayerName string
	Geom      source.GeometryType
	SRS       string
	Defs      []source.FieldDefn
	Legacy    bool
	Geoms     []orb.Geometry
	Values    [][]interface{}

	cursor int
	Resets int
}

var _ source.Layer = (*Layer)(nil)

func (l *Layer) Name() string                      { return l.LayerName }
func (l *Layer) GeometryType() source.GeometryType { return l.Geom }
func (l *Layer) SpatialRef() string                { return l.SRS }
func (l *Layer) Fields() []source.FieldDefn        { return l.Defs }
func (l *Layer) LegacyEncoding() bool              { return l.Legacy }
func (l *Layer) Close() error                      { return nil }

func (l *Layer) ResetReading() error {
	l.cursor = 0
	l.Resets++
	return nil
}

func (l *Layer) NextFeature() (source.Feature, error) {
	if l.cursor >= len(l.Geoms) {
		return nil, io.EOF
	}
	i := l.cursor
	l.cursor++
	var row []interface{}
	if i < len(l.Values) {
		row = l.Values[i]
	}
	return &feature{seq: int64(i + 1), geom: l.Geoms[i], row: row}, nil
}

type feature struct {
	seq  int64
	geom orb.Geometry
	row  []interface{}
}

func (f *feature) value(i int) interface{} {
	if i < len(f.row) {
		return f.row[i]
	}
	return nil
}

func (f *feature) Sequence() int64        { return f.seq }
func (f *feature) Geometry() orb.Geometry { return f.geom }
func (f *feature) IsNull(i int) bool      { return f.value(i) == nil }

func (f *feature) Integer(i int) (int64, error) {
	switch v := f.value(i).(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	}
	return 0, fmt.Errorf("field %d is %T", i, f.value(i))
}

func (f *feature) Real(i int) (float64, error) {
	switch v := f.value(i).(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	}
	return 0, fmt.Errorf("field %d is %T", i, f.value(i))
}

func (f *feature) String(i int) string {
	if s, ok := f.value(i).(string); ok {
		return s
	}
	return fmt.Sprint(f.value(i))
}

func (f *feature) Time(i int) (time.Time, error) {
	if t, ok := f.value(i).(time.Time); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("field %d is %T", i, f.value(i))
}

// Dataset is an in-memory dataset of layers.
type Dataset struct {
	Layers []source.Layer
	Closed bool
}

func (d *Dataset) LayerCount() int { return len(d.Layers) }

func (d *Dataset) Layer(i int) (source.Layer, error) {
	if i < 0 || i >= len(d.Layers) {
		return nil, fmt.Errorf("layer %d out of range", i)
	}
	return d.Layers[i], nil
}

func (d *Dataset) Close() error {
	d.Closed = true
	return nil
}

// Opener returns an opener that serves ds for every path.
func Opener(ds *Dataset) source.Opener {
	return source.OpenerFunc(func(string) (source.Dataset, error) { return ds, nil })
}
