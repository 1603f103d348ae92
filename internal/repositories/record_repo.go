package repositories

import (
	"context"
	"fmt"

	"github.com/dmarchuk/rentd/internal/database"
	"github.com/dmarchuk/rentd/internal/models"
)

// Tables the coordinator may hard delete from. Identifiers cannot be bound
// as query parameters, so the table name is checked against this set before
// it is interpolated.
var deletableTables = map[string]bool{
	"buildings": true,
	"tenants":   true,
}

// RecordRepository is the deletion port for property-domain records. The
// full CRUD for these tables lives in the property service; this repository
// only covers the two operations the privileged-delete coordinator needs.
type RecordRepository struct {
	db    *database.DB
	table string
}

// NewRecordRepository creates a deletion port over one whitelisted table.
func NewRecordRepository(db *database.DB, table string) (*RecordRepository, error) {
	if !deletableTables[table] {
		return nil, fmt.Errorf("table %q is not deletable", table)
	}
	return &RecordRepository{db: db, table: table}, nil
}

func (r *RecordRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, r.table), id,
	).Scan(&exists)
	return exists, err
}

func (r *RecordRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.table), id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
