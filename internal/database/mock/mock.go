// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

type recordKey struct {
	name string
	date string
}

// MockStore is an in-memory implementation of database.Store. The mutex is
// held for the whole read-modify-write of UpdateRecord.
type MockStore struct {
	mu          sync.Mutex
	records     map[recordKey]database.PunchRecord
	registrants map[string]database.Registrant
	faces       []database.FaceEmbedding
	nextFaceID  int64
	now         func() time.Time

	// Error injection
	GetError      error
	ListError     error
	CountError    error
	UpdateError   error
	SeedError     error
	HasError      error
	RegistrantErr error
	AddError      error
	FaceError     error

	// ConflictsBeforeUpdate makes the next N UpdateRecord calls fail with
	// database.ErrConflict without touching the record.
	ConflictsBeforeUpdate int

	// UpdateCalls counts UpdateRecord invocations.
	UpdateCalls int

	closed bool
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		records:     make(map[recordKey]database.PunchRecord),
		registrants: make(map[string]database.Registrant),
		now:         time.Now,
	}
}

var _ database.Store = (*MockStore)(nil)

func keyOf(name string, date time.Time) recordKey {
	return recordKey{name: name, date: date.Format(database.DateLayout)}
}

// AddRegistrantNames registers names directly, bypassing the equivalence guard.
func (m *MockStore) AddRegistrantNames(names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range names {
		m.registrants[n] = database.Registrant{Name: n, CreatedAt: m.now()}
	}
}

// PutRecord stores rec as is.
func (m *MockStore) PutRecord(rec database.PunchRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[keyOf(rec.Name, rec.Date)] = rec
}

// RecordCount returns the number of stored records across all days.
func (m *MockStore) RecordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// IsClosed reports whether Close was called.
func (m *MockStore) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// GetRecord returns the record for name on date, or nil
func (m *MockStore) GetRecord(ctx context.Context, name string, date time.Time) (*database.PunchRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[keyOf(name, date)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// ListRecords returns records matching filter ordered by date desc, name asc
func (m *MockStore) ListRecords(ctx context.Context, filter database.RecordFilter) ([]database.PunchRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	from, to := "", ""
	if !filter.From.IsZero() {
		from = filter.From.Format(database.DateLayout)
	}
	if !filter.To.IsZero() {
		to = filter.To.Format(database.DateLayout)
	}

	var out []database.PunchRecord
	for k, rec := range m.records {
		if from != "" && k.date < from {
			continue
		}
		if to != "" && k.date > to {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.Name != "" && rec.Name != filter.Name {
			continue
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].DateKey(), out[j].DateKey()
		if di != dj {
			return di > dj
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// CountRecords returns the number of records on date
func (m *MockStore) CountRecords(ctx context.Context, date time.Time) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	day := date.Format(database.DateLayout)
	count := 0
	for k := range m.records {
		if k.date == day {
			count++
		}
	}
	return count, nil
}

// UpdateRecord runs fn on a copy of the record and stores it only on success
func (m *MockStore) UpdateRecord(ctx context.Context, name string, date time.Time, fn database.MutateFunc) (*database.PunchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++

	if m.UpdateError != nil {
		return nil, m.UpdateError
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.ConflictsBeforeUpdate > 0 {
		m.ConflictsBeforeUpdate--
		return nil, database.ErrConflict
	}
	if _, ok := m.registrants[name]; !ok {
		return nil, fmt.Errorf("update record of %q: %w", name, database.ErrRegistrantNotFound)
	}

	key := keyOf(name, date)
	rec, ok := m.records[key]
	if !ok {
		rec = database.NewAbsentRecord(name, date)
	}

	working := rec
	if err := fn(&working); err != nil {
		return nil, err
	}
	working.Name = name
	working.Date = rec.Date
	working.Revision = rec.Revision + 1
	working.UpdatedAt = m.now()

	m.records[key] = working
	out := working
	return &out, nil
}

// SeedAbsent creates Absent records for registrants lacking one on date
func (m *MockStore) SeedAbsent(ctx context.Context, date time.Time) (int64, error) {
	if m.SeedError != nil {
		return 0, m.SeedError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var created int64
	for name := range m.registrants {
		key := keyOf(name, date)
		if _, ok := m.records[key]; ok {
			continue
		}
		rec := database.NewAbsentRecord(name, date)
		rec.UpdatedAt = m.now()
		m.records[key] = rec
		created++
	}
	return created, nil
}

// HasRegistrant reports whether name is registered
func (m *MockStore) HasRegistrant(ctx context.Context, name string) (bool, error) {
	if m.HasError != nil {
		return false, m.HasError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.registrants[name]
	return ok, nil
}

// ListRegistrants returns registrants ordered by name
func (m *MockStore) ListRegistrants(ctx context.Context) ([]database.Registrant, error) {
	if m.RegistrantErr != nil {
		return nil, m.RegistrantErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]database.Registrant, 0, len(m.registrants))
	for _, r := range m.registrants {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListFaceEmbeddings returns all stored face embeddings
func (m *MockStore) ListFaceEmbeddings(ctx context.Context) ([]database.FaceEmbedding, error) {
	if m.FaceError != nil {
		return nil, m.FaceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]database.FaceEmbedding, len(m.faces))
	copy(out, m.faces)
	return out, nil
}

// AddRegistrant registers name unless an equivalent name exists
func (m *MockStore) AddRegistrant(ctx context.Context, name string) (bool, error) {
	if m.AddError != nil {
		return false, m.AddError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.registrants[name]; ok {
		return false, nil
	}
	existing := make([]string, 0, len(m.registrants))
	for n := range m.registrants {
		existing = append(existing, n)
	}
	sort.Strings(existing)
	if other, found := facematch.FindEquivalentName(existing, name); found {
		return false, fmt.Errorf("%w: %q matches %q", database.ErrRegistrantExists, name, other)
	}

	m.registrants[name] = database.Registrant{Name: name, CreatedAt: m.now()}
	return true, nil
}

// SaveFaceEmbedding stores a reference embedding for a registrant
func (m *MockStore) SaveFaceEmbedding(ctx context.Context, name string, embedding []float32) (int64, error) {
	if m.FaceError != nil {
		return 0, m.FaceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.registrants[name]; !ok {
		return 0, fmt.Errorf("save face of %q: %w", name, database.ErrRegistrantNotFound)
	}
	m.nextFaceID++
	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	m.faces = append(m.faces, database.FaceEmbedding{
		ID:        m.nextFaceID,
		Name:      name,
		Embedding: vec,
		CreatedAt: m.now(),
	})
	return m.nextFaceID, nil
}

// Close marks the store closed
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
