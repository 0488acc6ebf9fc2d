package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/faceverify/internal/database"
)

const referenceColumns = "id, employee_id, photo_key, created_at, updated_at, deleted_at"

// ReferenceRepository stores reference photo records in MariaDB/MySQL.
type ReferenceRepository struct {
	pool *Pool
}

func NewReferenceRepository(pool *Pool) *ReferenceRepository {
	return &ReferenceRepository{pool: pool}
}

func scanReference(scan func(dest ...any) error) (*database.Reference, error) {
	var (
		ref       database.Reference
		deletedAt sql.NullTime
	)
	if err := scan(&ref.ID, &ref.EmployeeID, &ref.PhotoKey, &ref.CreatedAt, &ref.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		ref.DeletedAt = &t
	}
	return &ref, nil
}

func (r *ReferenceRepository) find(ctx context.Context, employeeID int64, withDeleted bool) (*database.Reference, error) {
	query := "SELECT " + referenceColumns + " FROM biometric_references WHERE employee_id = ?"
	if !withDeleted {
		query += " AND deleted_at IS NULL"
	}
	ref, err := scanReference(r.pool.db.QueryRowContext(ctx, query, employeeID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find reference: %w", err)
	}
	return ref, nil
}

func (r *ReferenceRepository) FindByEmployee(ctx context.Context, employeeID int64) (*database.Reference, error) {
	return r.find(ctx, employeeID, false)
}

func (r *ReferenceRepository) FindByEmployeeWithDeleted(ctx context.Context, employeeID int64) (*database.Reference, error) {
	return r.find(ctx, employeeID, true)
}

func (r *ReferenceRepository) ListActive(ctx context.Context) ([]database.Reference, error) {
	rows, err := r.pool.db.QueryContext(ctx,
		"SELECT "+referenceColumns+" FROM biometric_references WHERE deleted_at IS NULL ORDER BY employee_id")
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	defer rows.Close()

	var refs []database.Reference
	for rows.Next() {
		ref, err := scanReference(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		refs = append(refs, *ref)
	}
	return refs, rows.Err()
}

func (r *ReferenceRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.pool.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM biometric_references WHERE deleted_at IS NULL").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count references: %w", err)
	}
	return count, nil
}

// Save upserts the record. MySQL has no RETURNING on upserts so the row is
// read back afterwards.
func (r *ReferenceRepository) Save(ctx context.Context, employeeID int64, photoKey string) (*database.Reference, error) {
	_, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO biometric_references (employee_id, photo_key)
		VALUES (?, ?)
		ON DUPLICATE KEY UPDATE
			photo_key = VALUES(photo_key),
			updated_at = CURRENT_TIMESTAMP(6),
			deleted_at = NULL`,
		employeeID, photoKey)
	if err != nil {
		return nil, fmt.Errorf("save reference: %w", err)
	}

	ref, err := r.find(ctx, employeeID, false)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, fmt.Errorf("save reference: employee %d not found after upsert", employeeID)
	}
	return ref, nil
}

func (r *ReferenceRepository) SoftDelete(ctx context.Context, employeeID int64) (bool, error) {
	result, err := r.pool.db.ExecContext(ctx,
		"UPDATE biometric_references SET deleted_at = CURRENT_TIMESTAMP(6), updated_at = CURRENT_TIMESTAMP(6) WHERE employee_id = ? AND deleted_at IS NULL",
		employeeID)
	if err != nil {
		return false, fmt.Errorf("soft delete reference: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return n > 0, nil
}
