// Package geometry normalizes layer geometries and encodes them for storage.
package geometry

import (
	"errors"
	"fmt"

	"github.com/arkilian/vectorlayer/pkg/types"
	"github.com/golang/snappy"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// Family returns the multi-part kind a geometry belongs to, or "" for
// collections and unknown types.
func Family(g orb.Geometry) types.GeometryKind {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return types.GeometryMultiPoint
	case orb.LineString, orb.MultiLineString:
		return types.GeometryMultiLineString
	case orb.Polygon, orb.MultiPolygon, orb.Ring, orb.Bound:
		return types.GeometryMultiPolygon
	}
	return ""
}

// ErrFamilyMismatch is wrapped by ToMulti when a geometry cannot be stored
// under the requested kind.
var ErrFamilyMismatch = errors.New("geometry family mismatch")

// ToMulti promotes g to the multi-part form of kind. Geometries that are
// already multi-part are returned unchanged.
func ToMulti(g orb.Geometry, kind types.GeometryKind) (orb.Geometry, error) {
	if fam := Family(g); fam != kind {
		return nil, fmt.Errorf("%w: %s geometry in %s layer", ErrFamilyMismatch, typeName(g), kind)
	}

	switch v := g.(type) {
	case orb.Point:
		return orb.MultiPoint{v}, nil
	case orb.LineString:
		return orb.MultiLineString{v}, nil
	case orb.Polygon:
		return orb.MultiPolygon{v}, nil
	case orb.Ring:
		return orb.MultiPolygon{orb.Polygon{v}}, nil
	case orb.Bound:
		return orb.MultiPolygon{v.ToPolygon()}, nil
	}
	return g, nil
}

func typeName(g orb.Geometry) string {
	if g == nil {
		return "empty"
	}
	return g.GeoJSONType()
}

// Encode returns the stored form of a geometry: snappy-compressed WKB.
func Encode(g orb.Geometry) ([]byte, error) {
	raw, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("geometry: marshal wkb: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

// Decode reverses Encode.
func Decode(blob []byte) (orb.Geometry, error) {
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return nil, fmt.Errorf("geometry: decompress: %w", err)
	}
	g, err := wkb.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("geometry: unmarshal wkb: %w", err)
	}
	return g, nil
}
