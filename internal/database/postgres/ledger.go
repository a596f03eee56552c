package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// Durations are INTERVAL columns read back as whole seconds.
const selectRecord = `
SELECT name, date,
	entry1_in, entry1_out, EXTRACT(EPOCH FROM entry1_hours)::BIGINT,
	entry2_in, entry2_out, EXTRACT(EPOCH FROM entry2_hours)::BIGINT,
	entry3_in, entry3_out, EXTRACT(EPOCH FROM entry3_hours)::BIGINT,
	entry4_in, entry4_out, EXTRACT(EPOCH FROM entry4_hours)::BIGINT,
	entry5_in, entry5_out, EXTRACT(EPOCH FROM entry5_hours)::BIGINT,
	EXTRACT(EPOCH FROM total_hours)::BIGINT, status, revision, updated_at
FROM attendance`

const updateRecord = `
UPDATE attendance SET
	entry1_in = $1, entry1_out = $2, entry1_hours = $3::BIGINT * INTERVAL '1 second',
	entry2_in = $4, entry2_out = $5, entry2_hours = $6::BIGINT * INTERVAL '1 second',
	entry3_in = $7, entry3_out = $8, entry3_hours = $9::BIGINT * INTERVAL '1 second',
	entry4_in = $10, entry4_out = $11, entry4_hours = $12::BIGINT * INTERVAL '1 second',
	entry5_in = $13, entry5_out = $14, entry5_hours = $15::BIGINT * INTERVAL '1 second',
	total_hours = $16::BIGINT * INTERVAL '1 second',
	status = $17, revision = $18, updated_at = $19
WHERE name = $20 AND date = $21::DATE`

// LedgerRepository provides PostgreSQL-backed punch record storage
type LedgerRepository struct {
	pool *Pool
	loc  *time.Location
	now  func() time.Time
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(pool *Pool, loc *time.Location) *LedgerRepository {
	return &LedgerRepository{pool: pool, loc: loc, now: time.Now}
}

func (r *LedgerRepository) dayKey(t time.Time) string {
	return database.DayOf(t, r.loc).Format(database.DateLayout)
}

func (r *LedgerRepository) scan(row interface{ Scan(...any) error }) (database.PunchRecord, error) {
	var cols database.RecordColumns
	if err := row.Scan(cols.Dest()...); err != nil {
		return database.PunchRecord{}, err
	}
	return cols.Record(r.loc), nil
}

// GetRecord returns the record for name on date, or nil if none exists
func (r *LedgerRepository) GetRecord(ctx context.Context, name string, date time.Time) (*database.PunchRecord, error) {
	rec, err := r.scan(r.pool.QueryRow(ctx, selectRecord+` WHERE name = $1 AND date = $2::DATE`, name, r.dayKey(date)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return &rec, nil
}

// ListRecords returns records matching filter ordered by date desc, name asc
func (r *LedgerRepository) ListRecords(ctx context.Context, filter database.RecordFilter) ([]database.PunchRecord, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if !filter.From.IsZero() {
		add("date >= $%d::DATE", r.dayKey(filter.From))
	}
	if !filter.To.IsZero() {
		add("date <= $%d::DATE", r.dayKey(filter.To))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Name != "" {
		add("name = $%d", filter.Name)
	}

	query := selectRecord
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, name ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []database.PunchRecord
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// CountRecords returns the number of records stored for date
func (r *LedgerRepository) CountRecords(ctx context.Context, date time.Time) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM attendance WHERE date = $1::DATE`, r.dayKey(date)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// UpdateRecord locks the (name, date) row, creating it as Absent if missing,
// applies fn and commits. Any failure rolls back the lazy insert as well.
func (r *LedgerRepository) UpdateRecord(ctx context.Context, name string, date time.Time, fn database.MutateFunc) (*database.PunchRecord, error) {
	day := r.dayKey(date)

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance (name, date, status)
		VALUES ($1, $2::DATE, 'Absent')
		ON CONFLICT (name, date) DO NOTHING`, name, day)
	if isForeignKeyViolation(err) {
		return nil, fmt.Errorf("update record of %q: %w", name, database.ErrRegistrantNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ensure record: %w", err)
	}

	current, err := r.scan(tx.QueryRowContext(ctx,
		selectRecord+` WHERE name = $1 AND date = $2::DATE FOR UPDATE`, name, day))
	if err != nil {
		return nil, fmt.Errorf("lock record: %w", err)
	}

	working := current
	if err := fn(&working); err != nil {
		return nil, err
	}
	working.Name = current.Name
	working.Date = current.Date
	working.Revision = current.Revision + 1
	working.UpdatedAt = r.now().In(r.loc).Truncate(time.Second)

	args := database.SlotArgs(&working, nil)
	args = append(args,
		int64(working.TotalDuration/time.Second),
		string(working.Status),
		working.Revision,
		working.UpdatedAt,
		name,
		day,
	)
	if _, err := tx.ExecContext(ctx, updateRecord, args...); err != nil {
		return nil, fmt.Errorf("write record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit record: %w", err)
	}
	return &working, nil
}

// SeedAbsent inserts an Absent row for date for every registrant lacking one
func (r *LedgerRepository) SeedAbsent(ctx context.Context, date time.Time) (int64, error) {
	res, err := r.pool.Exec(ctx, `
		INSERT INTO attendance (name, date, status)
		SELECT name, $1::DATE, 'Absent' FROM registrants
		ON CONFLICT (name, date) DO NOTHING`, r.dayKey(date))
	if err != nil {
		return 0, fmt.Errorf("seed absent records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("seed absent records: %w", err)
	}
	return n, nil
}
