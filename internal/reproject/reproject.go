// Package reproject transforms layer geometries between coordinate systems.
package reproject

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Transformer converts a geometry from one CRS to another. CRS strings are
// authority codes ("EPSG:3857") or WKT. Implementations must not modify g.
type Transformer interface {
	Transform(g orb.Geometry, from, to string) (orb.Geometry, error)
}

// CRSName returns the authority code for an EPSG srid.
func CRSName(srid int) string {
	return fmt.Sprintf("EPSG:%d", srid)
}

var (
	codeRe      = regexp.MustCompile(`(?i)^EPSG:{1,2}(\d+)$`)
	authorityRe = regexp.MustCompile(`(?i)AUTHORITY\["EPSG",\s*"?(\d+)"?\]\s*\]\s*$`)
)

// SRID resolves a CRS string to an EPSG code. Besides authority codes it
// recognizes WKT carrying a top-level EPSG authority and the ESRI
// spellings of WGS 84 and Web Mercator that .prj files commonly hold.
func SRID(crs string) (int, bool) {
	s := strings.TrimSpace(crs)
	s = strings.TrimPrefix(s, "urn:ogc:def:crs:")
	if m := codeRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		return n, err == nil
	}
	if m := authorityRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		return n, err == nil
	}

	upper := strings.ToUpper(s)
	switch {
	case strings.HasPrefix(upper, "PROJCS[") &&
		(strings.Contains(upper, "WEB_MERCATOR") || strings.Contains(upper, "PSEUDO-MERCATOR") ||
			strings.Contains(upper, "MERCATOR_AUXILIARY_SPHERE")):
		return 3857, true
	case strings.HasPrefix(upper, "GEOGCS[") &&
		(strings.Contains(upper, "WGS_1984") || strings.Contains(upper, "WGS 84")):
		return 4326, true
	}
	return 0, false
}

// SameCRS reports whether two CRS strings name the same system.
func SameCRS(a, b string) bool {
	if a == b {
		return true
	}
	sa, oka := SRID(a)
	sb, okb := SRID(b)
	return oka && okb && sa == sb
}

// mapPoints applies fn to every coordinate of a copy of g.
func mapPoints(g orb.Geometry, fn func(orb.Point) (orb.Point, error)) (orb.Geometry, error) {
	var first error
	out := project.Geometry(orb.Clone(g), func(p orb.Point) orb.Point {
		if first != nil {
			return p
		}
		q, err := fn(p)
		if err != nil {
			first = err
			return p
		}
		return q
	})
	if first != nil {
		return nil, first
	}
	return out, nil
}

// Identity returns geometries unchanged when source and target agree and
// delegates to next otherwise.
type Identity struct {
	Next Transformer
}

func (t Identity) Transform(g orb.Geometry, from, to string) (orb.Geometry, error) {
	if SameCRS(from, to) {
		return orb.Clone(g), nil
	}
	if t.Next == nil {
		return nil, fmt.Errorf("reproject: no transform from %q to %q", from, to)
	}
	return t.Next.Transform(g, from, to)
}
