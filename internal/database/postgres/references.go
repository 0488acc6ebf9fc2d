package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/faceverify/internal/database"
)

const referenceColumns = "id, employee_id, photo_key, created_at, updated_at, deleted_at"

// ReferenceRepository provides PostgreSQL-backed reference photo records
type ReferenceRepository struct {
	pool *Pool
}

// NewReferenceRepository creates a new PostgreSQL reference repository
func NewReferenceRepository(pool *Pool) *ReferenceRepository {
	return &ReferenceRepository{pool: pool}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReference(row scanner) (*database.Reference, error) {
	var (
		ref       database.Reference
		deletedAt sql.NullTime
	)
	if err := row.Scan(&ref.ID, &ref.EmployeeID, &ref.PhotoKey, &ref.CreatedAt, &ref.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		ref.DeletedAt = &t
	}
	return &ref, nil
}

func (r *ReferenceRepository) findOne(ctx context.Context, query string, args ...any) (*database.Reference, error) {
	ref, err := scanReference(r.pool.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// FindByEmployee returns the active record for employeeID, or nil
func (r *ReferenceRepository) FindByEmployee(ctx context.Context, employeeID int64) (*database.Reference, error) {
	ref, err := r.findOne(ctx,
		"SELECT "+referenceColumns+" FROM biometric_references WHERE employee_id = $1 AND deleted_at IS NULL",
		employeeID)
	if err != nil {
		return nil, fmt.Errorf("find reference: %w", err)
	}
	return ref, nil
}

// FindByEmployeeWithDeleted returns the record for employeeID even if soft-deleted, or nil
func (r *ReferenceRepository) FindByEmployeeWithDeleted(ctx context.Context, employeeID int64) (*database.Reference, error) {
	ref, err := r.findOne(ctx,
		"SELECT "+referenceColumns+" FROM biometric_references WHERE employee_id = $1",
		employeeID)
	if err != nil {
		return nil, fmt.Errorf("find reference: %w", err)
	}
	return ref, nil
}

// ListActive returns every active record ordered by employee
func (r *ReferenceRepository) ListActive(ctx context.Context) ([]database.Reference, error) {
	rows, err := r.pool.db.QueryContext(ctx,
		"SELECT "+referenceColumns+" FROM biometric_references WHERE deleted_at IS NULL ORDER BY employee_id")
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	defer rows.Close()

	var refs []database.Reference
	for rows.Next() {
		ref, err := scanReference(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		refs = append(refs, *ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate references: %w", err)
	}
	return refs, nil
}

// CountActive returns the number of active records
func (r *ReferenceRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.pool.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM biometric_references WHERE deleted_at IS NULL").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count references: %w", err)
	}
	return count, nil
}

// Save upserts the record for employeeID and clears any soft delete
func (r *ReferenceRepository) Save(ctx context.Context, employeeID int64, photoKey string) (*database.Reference, error) {
	query := `
		INSERT INTO biometric_references (employee_id, photo_key)
		VALUES ($1, $2)
		ON CONFLICT (employee_id) DO UPDATE SET
			photo_key = EXCLUDED.photo_key,
			updated_at = NOW(),
			deleted_at = NULL
		RETURNING ` + referenceColumns

	ref, err := scanReference(r.pool.db.QueryRowContext(ctx, query, employeeID, photoKey))
	if err != nil {
		return nil, fmt.Errorf("save reference: %w", err)
	}
	return ref, nil
}

// SoftDelete marks the active record deleted
func (r *ReferenceRepository) SoftDelete(ctx context.Context, employeeID int64) (bool, error) {
	result, err := r.pool.db.ExecContext(ctx,
		"UPDATE biometric_references SET deleted_at = NOW(), updated_at = NOW() WHERE employee_id = $1 AND deleted_at IS NULL",
		employeeID)
	if err != nil {
		return false, fmt.Errorf("soft delete reference: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return count > 0, nil
}
