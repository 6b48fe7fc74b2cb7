// Package manifest provides the layer catalog: the persisted field
// descriptors and table identity of every imported layer.
package manifest

// The catalog lives in the main database of the store, next to the
// attached layer namespace, so registrations commit with the table DDL.

// CreateLayersTableSQL creates the layers table, one row per layer.
const CreateLayersTableSQL = `
CREATE TABLE IF NOT EXISTS layers (
    layer_id TEXT PRIMARY KEY,
    table_id TEXT NOT NULL UNIQUE,
    geometry_type TEXT NOT NULL,
    srid INTEGER NOT NULL,
    source_crs TEXT NOT NULL DEFAULT '',
    feature_count INTEGER NOT NULL DEFAULT 0,
    revision INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
)`

// CreateLayerFieldsTableSQL creates the field descriptor table. Ordinal is
// the display order; field_uuid never changes after creation.
const CreateLayerFieldsTableSQL = `
CREATE TABLE IF NOT EXISTS layer_fields (
    layer_id TEXT NOT NULL,
    ordinal INTEGER NOT NULL,
    field_uuid TEXT NOT NULL UNIQUE,
    keyname TEXT NOT NULL,
    display_name TEXT NOT NULL,
    datatype TEXT NOT NULL,
    PRIMARY KEY (layer_id, ordinal),
    FOREIGN KEY (layer_id) REFERENCES layers(layer_id) ON DELETE CASCADE
)`

// CreateLayerFieldsIndexSQL indexes keyname lookups.
const CreateLayerFieldsIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_layer_fields_keyname ON layer_fields(layer_id, keyname)`

// AllSchemaSQL returns all SQL statements needed to initialize the catalog.
func AllSchemaSQL() []string {
	return []string{
		CreateLayersTableSQL,
		CreateLayerFieldsTableSQL,
		CreateLayerFieldsIndexSQL,
	}
}
