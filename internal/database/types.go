package database

import (
	"time"
)

// Reference is the stored reference photo of one employee. A soft-deleted
// record keeps its row so that uploading a new photo reactivates it.
type Reference struct {
	ID         int64
	EmployeeID int64
	PhotoKey   string // object storage key, also the descriptor cache fingerprint
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

// Active reports whether the record has not been soft-deleted.
func (r *Reference) Active() bool {
	return r != nil && r.DeletedAt == nil
}
