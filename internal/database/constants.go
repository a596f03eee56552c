package database

// SlotsPerDay is the fixed number of in/out slots a record holds.
const SlotsPerDay = 5

// Ledger concurrency constants
const (
	// DefaultConflictRetries is how many times a lost compare-and-swap is retried
	// before the punch is reported as failed.
	DefaultConflictRetries = 3

	// MaxStatementSeconds bounds a single ledger statement on backends that support it.
	MaxStatementSeconds = 10
)
