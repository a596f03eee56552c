package database

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrConflict is returned when a record changed between read and write.
	ErrConflict = errors.New("attendance record was modified concurrently")

	// ErrRegistrantExists is returned when a new name collides with an existing registrant.
	ErrRegistrantExists = errors.New("registrant with an equivalent name already exists")

	// ErrRegistrantNotFound is returned when a ledger write references an unknown name.
	ErrRegistrantNotFound = errors.New("registrant not found")
)

// MutateFunc edits a locked record in place. Returning an error aborts the
// whole mutation and nothing is persisted.
type MutateFunc func(rec *PunchRecord) error

// LedgerReader provides read-only access to punch records
type LedgerReader interface {
	// GetRecord returns the record for name on the given day, or nil if none exists
	GetRecord(ctx context.Context, name string, date time.Time) (*PunchRecord, error)
	// ListRecords returns records matching the filter ordered by date desc, name asc
	ListRecords(ctx context.Context, filter RecordFilter) ([]PunchRecord, error)
	// CountRecords returns the number of records stored for a day
	CountRecords(ctx context.Context, date time.Time) (int, error)
}

// LedgerWriter provides atomic write access to punch records
type LedgerWriter interface {
	LedgerReader

	// UpdateRecord performs one atomic read-modify-write of the (name, date) row.
	// A missing row is created with status Absent before fn runs. The row stays
	// locked (or is compare-and-swapped on its revision) until fn returns; if fn
	// fails, the transaction is rolled back, including the lazily created row.
	// The returned record is the committed state.
	UpdateRecord(ctx context.Context, name string, date time.Time, fn MutateFunc) (*PunchRecord, error)

	// SeedAbsent inserts an Absent record for date for every registrant lacking one
	// and returns the number of rows created.
	SeedAbsent(ctx context.Context, date time.Time) (int64, error)
}

// RegistrantReader provides read-only access to registrants
type RegistrantReader interface {
	// HasRegistrant reports whether name is registered (exact match)
	HasRegistrant(ctx context.Context, name string) (bool, error)
	// ListRegistrants returns all registrants ordered by name
	ListRegistrants(ctx context.Context) ([]Registrant, error)
	// ListFaceEmbeddings returns all reference face embeddings
	ListFaceEmbeddings(ctx context.Context) ([]FaceEmbedding, error)
}

// RegistrantWriter provides write access to registrants
type RegistrantWriter interface {
	RegistrantReader

	// AddRegistrant registers name. Registering an existing exact name is a no-op
	// and returns created=false. A name whose normalized form matches another
	// registrant fails with ErrRegistrantExists.
	AddRegistrant(ctx context.Context, name string) (created bool, err error)

	// SaveFaceEmbedding stores a reference face embedding for a registrant
	SaveFaceEmbedding(ctx context.Context, name string, embedding []float32) (int64, error)
}

// Store is the full persistence surface used by the application.
type Store interface {
	LedgerWriter
	RegistrantWriter
	Close() error
}
