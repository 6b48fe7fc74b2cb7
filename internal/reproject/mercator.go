package reproject

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// MercatorTransformer converts between WGS 84 (EPSG:4326) and Web Mercator
// (EPSG:3857) without PROJ.
type MercatorTransformer struct{}

func (MercatorTransformer) Transform(g orb.Geometry, from, to string) (orb.Geometry, error) {
	src, ok := SRID(from)
	if !ok {
		return nil, fmt.Errorf("reproject: unrecognized source CRS %q", abbreviate(from))
	}
	dst, ok := SRID(to)
	if !ok {
		return nil, fmt.Errorf("reproject: unrecognized target CRS %q", abbreviate(to))
	}

	switch {
	case src == dst:
		return orb.Clone(g), nil
	case src == 4326 && dst == 3857:
		return mapPoints(g, func(p orb.Point) (orb.Point, error) {
			if math.Abs(p[1]) > 90 || math.Abs(p[0]) > 180 {
				return p, fmt.Errorf("reproject: %v is outside EPSG:4326 bounds", p)
			}
			return project.WGS84.ToMercator(p), nil
		})
	case src == 3857 && dst == 4326:
		return mapPoints(g, func(p orb.Point) (orb.Point, error) {
			return project.Mercator.ToWGS84(p), nil
		})
	}
	return nil, fmt.Errorf("reproject: EPSG:%d to EPSG:%d needs PROJ", src, dst)
}

func abbreviate(s string) string {
	if len(s) > 48 {
		return s[:48] + "..."
	}
	return s
}
