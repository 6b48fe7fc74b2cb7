// Package types provides the value types shared by the vector layer packages.
package types

import "github.com/paulmach/orb"

// Feature is one layer row as returned by a query or accepted by a write.
type Feature struct {
	// ID is the row identity assigned at import
	ID int64 `json:"id"`

	// Geometry is set only when requested; normalized multi-part geometry in the layer CRS
	Geometry orb.Geometry `json:"-"`

	// Box is set only when requested
	Box *orb.Bound `json:"box,omitempty"`

	// Fields maps field keynames to values typed by the field kind:
	// int64, float64, string or time.Time. Missing values are nil.
	Fields map[string]interface{} `json:"fields"`
}
