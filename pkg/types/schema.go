package types

// TableDef is the physical definition of one layer table.
type TableDef struct {
	// Namespace is the schema the table lives in
	Namespace string `json:"namespace"`

	// Name is the generated physical table name
	Name string `json:"name"`

	// Columns lists the table columns; the first one is the row identity
	Columns []ColumnDef `json:"columns"`

	// Geometry describes the geometry column
	Geometry GeometryColumnDef `json:"geometry"`

	// Indexes defines the indexes to create on the table
	Indexes []IndexDef `json:"indexes"`
}

// ColumnDef defines a single column in the table.
type ColumnDef struct {
	// Name is the physical column name
	Name string `json:"name"`

	// Type is the declared SQLite type: INTEGER, REAL, TEXT, BLOB or a geometry kind
	Type string `json:"type"`

	// PrimaryKey indicates whether this column is the primary key
	PrimaryKey bool `json:"primary_key"`
}

// GeometryColumnDef records the declared kind and CRS of the geometry column.
type GeometryColumnDef struct {
	Column string       `json:"column"`
	Kind   GeometryKind `json:"kind"`
	SRID   int          `json:"srid"`

	// SpatialIndex is the name of the companion R*Tree table
	SpatialIndex string `json:"spatial_index"`
}

// IndexDef defines an index on the table.
type IndexDef struct {
	// Name is the index name
	Name string `json:"name"`

	// Columns lists the columns included in the index
	Columns []string `json:"columns"`

	// Unique indicates whether the index enforces uniqueness
	Unique bool `json:"unique"`
}

// QualifiedName returns namespace.name, or name when the namespace is empty.
func (d TableDef) QualifiedName() string {
	if d.Namespace == "" {
		return d.Name
	}
	return d.Namespace + "." + d.Name
}
