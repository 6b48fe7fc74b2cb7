package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	lerrors "github.com/arkilian/vectorlayer/internal/errors"
	"github.com/arkilian/vectorlayer/internal/store"
	"github.com/arkilian/vectorlayer/pkg/types"
	"github.com/rs/zerolog"
)

// LayerRecord is the persisted metadata of one layer.
type LayerRecord struct {
	LayerID      string
	TableID      string
	GeometryKind types.GeometryKind
	SRID         int

	// SourceCRS is the CRS the data was declared in at import
	SourceCRS string

	FeatureCount int64

	// Revision increments on every re-import and field rename
	Revision int

	Fields    []FieldRecord
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FieldRecord is one persisted field descriptor.
type FieldRecord struct {
	UUID        string
	Keyname     string
	DisplayName string
	Kind        types.FieldKind
}

// Catalog reads and writes layer records. Writes take a Querier so they
// can join the caller's transaction.
type Catalog struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewCatalog creates the catalog tables if needed.
func NewCatalog(ctx context.Context, db *sql.DB, logger zerolog.Logger) (*Catalog, error) {
	c := &Catalog{db: db, logger: logger.With().Str("component", "manifest").Logger()}
	for _, stmt := range AllSchemaSQL() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, lerrors.NewStoreError(lerrors.CodeDDLFailed, "manifest: initialize schema", err)
		}
	}
	return c, nil
}

func (c *Catalog) querier(q store.Querier) store.Querier {
	if q == nil {
		return c.db
	}
	return q
}

// Register stores rec, replacing any previous record of the same layer.
// A replaced record keeps its creation time and bumps its revision.
func (c *Catalog) Register(ctx context.Context, q store.Querier, rec *LayerRecord) error {
	q = c.querier(q)
	now := time.Now()

	prev, err := c.Get(ctx, q, rec.LayerID)
	switch {
	case err == nil:
		rec.CreatedAt = prev.CreatedAt
		rec.Revision = prev.Revision + 1
	case lerrors.IsNotFound(err):
		rec.CreatedAt = now
		rec.Revision = 1
	default:
		return err
	}
	rec.UpdatedAt = now

	if _, err := q.ExecContext(ctx, `DELETE FROM layer_fields WHERE layer_id = ?`, rec.LayerID); err != nil {
		return lerrors.NewStoreError(lerrors.CodeStatementFailed, "manifest: clear fields", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO layers (layer_id, table_id, geometry_type, srid, source_crs, feature_count, revision, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(layer_id) DO UPDATE SET
			table_id = excluded.table_id,
			geometry_type = excluded.geometry_type,
			srid = excluded.srid,
			source_crs = excluded.source_crs,
			feature_count = excluded.feature_count,
			revision = excluded.revision,
			updated_at = excluded.updated_at`,
		rec.LayerID, rec.TableID, string(rec.GeometryKind), rec.SRID, rec.SourceCRS,
		rec.FeatureCount, rec.Revision, rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano())
	if err != nil {
		return lerrors.NewStoreError(lerrors.CodeStatementFailed, "manifest: register layer "+rec.LayerID, err)
	}

	for i, f := range rec.Fields {
		_, err := q.ExecContext(ctx, `
			INSERT INTO layer_fields (layer_id, ordinal, field_uuid, keyname, display_name, datatype)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rec.LayerID, i, f.UUID, f.Keyname, f.DisplayName, string(f.Kind))
		if err != nil {
			return lerrors.NewStoreError(lerrors.CodeStatementFailed, "manifest: register field "+f.Keyname, err)
		}
	}

	c.logger.Debug().Str("layer_id", rec.LayerID).Int("revision", rec.Revision).Msg("layer registered")
	return nil
}

// Get returns the record of a layer, or NOT_FOUND/LAYER_NOT_FOUND.
func (c *Catalog) Get(ctx context.Context, q store.Querier, layerID string) (*LayerRecord, error) {
	q = c.querier(q)

	rec := &LayerRecord{LayerID: layerID}
	var kind string
	var created, updated int64
	err := q.QueryRowContext(ctx, `
		SELECT table_id, geometry_type, srid, source_crs, feature_count, revision, created_at, updated_at
		FROM layers WHERE layer_id = ?`, layerID).
		Scan(&rec.TableID, &kind, &rec.SRID, &rec.SourceCRS, &rec.FeatureCount, &rec.Revision, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lerrors.NewNotFoundError(lerrors.CodeLayerNotFound, fmt.Sprintf("layer %s not found", layerID))
	}
	if err != nil {
		return nil, lerrors.NewStoreError(lerrors.CodeStatementFailed, "manifest: get layer "+layerID, err)
	}
	rec.GeometryKind = types.GeometryKind(kind)
	rec.CreatedAt = time.Unix(0, created)
	rec.UpdatedAt = time.Unix(0, updated)

	fields, err := c.fields(ctx, q, layerID)
	if err != nil {
		return nil, err
	}
	rec.Fields = fields
	return rec, nil
}

func (c *Catalog) fields(ctx context.Context, q store.Querier, layerID string) ([]FieldRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT field_uuid, keyname, display_name, datatype
		FROM layer_fields WHERE layer_id = ? ORDER BY ordinal`, layerID)
	if err != nil {
		return nil, lerrors.NewStoreError(lerrors.CodeStatementFailed, "manifest: read fields", err)
	}
	defer rows.Close()

	var fields []FieldRecord
	for rows.Next() {
		var f FieldRecord
		var kind string
		if err := rows.Scan(&f.UUID, &f.Keyname, &f.DisplayName, &kind); err != nil {
			return nil, lerrors.NewStoreError(lerrors.CodeStatementFailed, "manifest: scan field", err)
		}
		f.Kind = types.FieldKind(kind)
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, lerrors.NewStoreError(lerrors.CodeStatementFailed, "manifest: read fields", err)
	}
	return fields, nil
}

// List returns every layer record ordered by layer id.
func (c *Catalog) List(ctx context.Context, q store.Querier) ([]*LayerRecord, error) {
	q = c.querier(q)

	rows, err := q.QueryContext(ctx, `SELECT layer_id FROM layers ORDER BY layer_id`)
	if err != nil {
		return nil, lerrors.NewStoreError(lerrors.CodeStatementFailed, "manifest: list layers", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, lerrors.NewStoreError(lerrors.CodeStatementFailed, "manifest: scan layer id", err)
		}
		ids = append(ids, id)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, lerrors.NewStoreError(lerrors.CodeStatementFailed, "manifest: list layers", err)
	}

	out := make([]*LayerRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := c.Get(ctx, q, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// RenameField changes the keyname of a field. The display name follows
// the keyname when it had not been customized. The field uuid, and with
// it the physical column, is unchanged.
func (c *Catalog) RenameField(ctx context.Context, q store.Querier, layerID, keyname, newKeyname string) error {
	q = c.querier(q)

	res, err := q.ExecContext(ctx, `
		UPDATE layer_fields SET
			display_name = CASE WHEN display_name = keyname THEN ? ELSE display_name END,
			keyname = ?
		WHERE layer_id = ? AND keyname = ?`,
		newKeyname, newKeyname, layerID, keyname)
	if err != nil {
		return lerrors.NewStoreError(lerrors.CodeStatementFailed, "manifest: rename field", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return lerrors.NewStoreError(lerrors.CodeStatementFailed, "manifest: rename field", err)
	}
	if n == 0 {
		if _, err := c.Get(ctx, q, layerID); err != nil {
			return err
		}
		return lerrors.NewNotFoundError(lerrors.CodeFieldNotFound,
			fmt.Sprintf("field %s not found in layer %s", keyname, layerID))
	}
	return c.bumpRevision(ctx, q, layerID)
}

// UpdateFeatureCount records the current row count of a layer.
func (c *Catalog) UpdateFeatureCount(ctx context.Context, q store.Querier, layerID string, n int64) error {
	q = c.querier(q)
	_, err := q.ExecContext(ctx, `UPDATE layers SET feature_count = ?, updated_at = ? WHERE layer_id = ?`,
		n, time.Now().UnixNano(), layerID)
	if err != nil {
		return lerrors.NewStoreError(lerrors.CodeStatementFailed, "manifest: update feature count", err)
	}
	return nil
}

func (c *Catalog) bumpRevision(ctx context.Context, q store.Querier, layerID string) error {
	_, err := q.ExecContext(ctx, `UPDATE layers SET updated_at = ?, revision = revision + 1 WHERE layer_id = ?`,
		time.Now().UnixNano(), layerID)
	if err != nil {
		return lerrors.NewStoreError(lerrors.CodeStatementFailed, "manifest: bump revision", err)
	}
	return nil
}

// Delete removes a layer record and its fields.
func (c *Catalog) Delete(ctx context.Context, q store.Querier, layerID string) error {
	q = c.querier(q)
	if _, err := q.ExecContext(ctx, `DELETE FROM layer_fields WHERE layer_id = ?`, layerID); err != nil {
		return lerrors.NewStoreError(lerrors.CodeStatementFailed, "manifest: delete fields", err)
	}
	res, err := q.ExecContext(ctx, `DELETE FROM layers WHERE layer_id = ?`, layerID)
	if err != nil {
		return lerrors.NewStoreError(lerrors.CodeStatementFailed, "manifest: delete layer", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return lerrors.NewNotFoundError(lerrors.CodeLayerNotFound, fmt.Sprintf("layer %s not found", layerID))
	}
	return nil
}
