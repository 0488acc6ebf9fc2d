package database

import (
	"context"
)

// ReferenceReader provides read-only access to reference photo records
type ReferenceReader interface {
	// FindByEmployee returns the active record, or nil if there is none
	FindByEmployee(ctx context.Context, employeeID int64) (*Reference, error)
	// FindByEmployeeWithDeleted also returns soft-deleted records
	FindByEmployeeWithDeleted(ctx context.Context, employeeID int64) (*Reference, error)
	// ListActive returns every active record ordered by employee ID
	ListActive(ctx context.Context) ([]Reference, error)
	// CountActive returns the number of active records
	CountActive(ctx context.Context) (int, error)
}

// ReferenceWriter provides write access to reference photo records
type ReferenceWriter interface {
	ReferenceReader

	// Save creates the record, reactivates a soft-deleted one, or replaces its photo key
	Save(ctx context.Context, employeeID int64, photoKey string) (*Reference, error)
	// SoftDelete marks the active record deleted. Returns false if there was none.
	SoftDelete(ctx context.Context, employeeID int64) (bool, error)
}
