// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/faceverify/internal/database"
)

// ReferenceStore is an in-memory implementation of database.ReferenceWriter
type ReferenceStore struct {
	mu     sync.RWMutex
	refs   map[int64]*database.Reference
	nextID int64
	now    func() time.Time

	// Error injection
	FindError       error
	ListError       error
	CountError      error
	SaveError       error
	SoftDeleteError error
}

// NewReferenceStore creates a new mock reference store
func NewReferenceStore() *ReferenceStore {
	return &ReferenceStore{
		refs: make(map[int64]*database.Reference),
		now:  time.Now,
	}
}

var _ database.ReferenceWriter = (*ReferenceStore)(nil)

// Add inserts a record directly, bypassing Save
func (m *ReferenceStore) Add(ref database.Reference) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ref.ID == 0 {
		m.nextID++
		ref.ID = m.nextID
	} else if ref.ID > m.nextID {
		m.nextID = ref.ID
	}
	m.refs[ref.EmployeeID] = &ref
}

func (m *ReferenceStore) find(employeeID int64, withDeleted bool) (*database.Reference, error) {
	if m.FindError != nil {
		return nil, m.FindError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ref, ok := m.refs[employeeID]
	if !ok || (!withDeleted && !ref.Active()) {
		return nil, nil
	}
	cp := *ref
	return &cp, nil
}

func (m *ReferenceStore) FindByEmployee(_ context.Context, employeeID int64) (*database.Reference, error) {
	return m.find(employeeID, false)
}

func (m *ReferenceStore) FindByEmployeeWithDeleted(_ context.Context, employeeID int64) (*database.Reference, error) {
	return m.find(employeeID, true)
}

func (m *ReferenceStore) ListActive(_ context.Context) ([]database.Reference, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var refs []database.Reference
	for _, ref := range m.refs {
		if ref.Active() {
			refs = append(refs, *ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].EmployeeID < refs[j].EmployeeID })
	return refs, nil
}

func (m *ReferenceStore) CountActive(_ context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, ref := range m.refs {
		if ref.Active() {
			count++
		}
	}
	return count, nil
}

func (m *ReferenceStore) Save(_ context.Context, employeeID int64, photoKey string) (*database.Reference, error) {
	if m.SaveError != nil {
		return nil, m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	ref, ok := m.refs[employeeID]
	if !ok {
		m.nextID++
		ref = &database.Reference{ID: m.nextID, EmployeeID: employeeID, CreatedAt: now}
		m.refs[employeeID] = ref
	}
	ref.PhotoKey = photoKey
	ref.UpdatedAt = now
	ref.DeletedAt = nil

	cp := *ref
	return &cp, nil
}

func (m *ReferenceStore) SoftDelete(_ context.Context, employeeID int64) (bool, error) {
	if m.SoftDeleteError != nil {
		return false, m.SoftDeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.refs[employeeID]
	if !ok || !ref.Active() {
		return false, nil
	}
	now := m.now()
	ref.DeletedAt = &now
	ref.UpdatedAt = now
	return true, nil
}
