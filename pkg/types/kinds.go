package types

import "fmt"

// GeometryKind is the normalized geometry type of a stored layer.
// Stored geometry is always multi-part.
type GeometryKind string

const (
	GeometryMultiPoint      GeometryKind = "MULTIPOINT"
	GeometryMultiLineString GeometryKind = "MULTILINESTRING"
	GeometryMultiPolygon    GeometryKind = "MULTIPOLYGON"
)

// GeometryKinds lists every normalized geometry kind in declaration order.
var GeometryKinds = []GeometryKind{GeometryMultiPoint, GeometryMultiLineString, GeometryMultiPolygon}

// Valid reports whether k is one of the normalized geometry kinds.
func (k GeometryKind) Valid() bool {
	switch k {
	case GeometryMultiPoint, GeometryMultiLineString, GeometryMultiPolygon:
		return true
	}
	return false
}

// ParseGeometryKind parses a persisted geometry kind.
func ParseGeometryKind(s string) (GeometryKind, error) {
	k := GeometryKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: geometry kind %q", ErrUnknownKind, s)
	}
	return k, nil
}

// FieldKind is the data kind of a layer attribute.
type FieldKind string

const (
	FieldInteger  FieldKind = "INTEGER"
	FieldReal     FieldKind = "REAL"
	FieldString   FieldKind = "STRING"
	FieldDate     FieldKind = "DATE"
	FieldTime     FieldKind = "TIME"
	FieldDateTime FieldKind = "DATETIME"
)

// FieldKinds lists every field kind in declaration order.
var FieldKinds = []FieldKind{FieldInteger, FieldReal, FieldString, FieldDate, FieldTime, FieldDateTime}

// Valid reports whether k is a supported field kind.
func (k FieldKind) Valid() bool {
	switch k {
	case FieldInteger, FieldReal, FieldString, FieldDate, FieldTime, FieldDateTime:
		return true
	}
	return false
}

// ParseFieldKind parses a persisted field kind.
func ParseFieldKind(s string) (FieldKind, error) {
	k := FieldKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: field kind %q", ErrUnknownKind, s)
	}
	return k, nil
}
