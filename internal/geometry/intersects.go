package geometry

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

type parts struct {
	points   []orb.Point
	segments [][2]orb.Point
	polygons []orb.Polygon
}

func decompose(g orb.Geometry, p *parts) {
	switch v := g.(type) {
	case orb.Point:
		p.points = append(p.points, v)
	case orb.MultiPoint:
		p.points = append(p.points, v...)
	case orb.LineString:
		addLine(p, v)
	case orb.MultiLineString:
		for _, ls := range v {
			addLine(p, ls)
		}
	case orb.Ring:
		decompose(orb.Polygon{v}, p)
	case orb.Bound:
		decompose(v.ToPolygon(), p)
	case orb.Polygon:
		p.polygons = append(p.polygons, v)
		for _, r := range v {
			addLine(p, orb.LineString(r))
		}
	case orb.MultiPolygon:
		for _, poly := range v {
			decompose(poly, p)
		}
	case orb.Collection:
		for _, c := range v {
			decompose(c, p)
		}
	}
}

func addLine(p *parts, ls orb.LineString) {
	if len(ls) == 1 {
		p.points = append(p.points, ls[0])
	}
	for i := 1; i < len(ls); i++ {
		p.segments = append(p.segments, [2]orb.Point{ls[i-1], ls[i]})
	}
	if len(ls) > 0 {
		p.points = append(p.points, ls[0])
	}
}

// Intersects reports whether two planar geometries share at least one point.
func Intersects(a, b orb.Geometry) bool {
	if a == nil || b == nil {
		return false
	}
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}

	var pa, pb parts
	decompose(a, &pa)
	decompose(b, &pb)

	for _, s := range pa.segments {
		for _, t := range pb.segments {
			if segmentsIntersect(s[0], s[1], t[0], t[1]) {
				return true
			}
		}
	}
	return touches(pa, pb) || touches(pb, pa)
}

// touches checks the points of a against the segments, points and
// polygon interiors of b.
func touches(a, b parts) bool {
	for _, pt := range a.points {
		for _, q := range b.points {
			if pt.Equal(q) {
				return true
			}
		}
		for _, s := range b.segments {
			if onSegment(s[0], s[1], pt) {
				return true
			}
		}
		for _, poly := range b.polygons {
			if planar.PolygonContains(poly, pt) {
				return true
			}
		}
	}
	return false
}

func orientation(a, b, c orb.Point) int {
	v := (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func within(a, b, c orb.Point) bool {
	return c[0] >= min(a[0], b[0]) && c[0] <= max(a[0], b[0]) &&
		c[1] >= min(a[1], b[1]) && c[1] <= max(a[1], b[1])
}

func onSegment(a, b, c orb.Point) bool {
	return orientation(a, b, c) == 0 && within(a, b, c)
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	o1 := orientation(p1, p2, q1)
	o2 := orientation(p1, p2, q2)
	o3 := orientation(q1, q2, p1)
	o4 := orientation(q1, q2, p2)

	if o1 != o2 && o3 != o4 {
		return true
	}
	return (o1 == 0 && within(p1, p2, q1)) ||
		(o2 == 0 && within(p1, p2, q2)) ||
		(o3 == 0 && within(q1, q2, p1)) ||
		(o4 == 0 && within(q1, q2, p2))
}
