package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

const selectRecord = `
SELECT name, date,
	entry1_in, entry1_out, TIME_TO_SEC(entry1_hours),
	entry2_in, entry2_out, TIME_TO_SEC(entry2_hours),
	entry3_in, entry3_out, TIME_TO_SEC(entry3_hours),
	entry4_in, entry4_out, TIME_TO_SEC(entry4_hours),
	entry5_in, entry5_out, TIME_TO_SEC(entry5_hours),
	TIME_TO_SEC(total_hours), status, revision, updated_at
FROM attendance`

const updateRecord = `
UPDATE attendance SET
	entry1_in = ?, entry1_out = ?, entry1_hours = SEC_TO_TIME(?),
	entry2_in = ?, entry2_out = ?, entry2_hours = SEC_TO_TIME(?),
	entry3_in = ?, entry3_out = ?, entry3_hours = SEC_TO_TIME(?),
	entry4_in = ?, entry4_out = ?, entry4_hours = SEC_TO_TIME(?),
	entry5_in = ?, entry5_out = ?, entry5_hours = SEC_TO_TIME(?),
	total_hours = SEC_TO_TIME(?), status = ?, revision = ?, updated_at = ?
WHERE name = ? AND date = ?`

func (s *Store) scan(row interface{ Scan(...any) error }) (database.PunchRecord, error) {
	var cols database.RecordColumns
	if err := row.Scan(cols.Dest()...); err != nil {
		return database.PunchRecord{}, err
	}
	return cols.Record(s.loc), nil
}

// GetRecord returns the record for name on date, or nil if none exists.
func (s *Store) GetRecord(ctx context.Context, name string, date time.Time) (*database.PunchRecord, error) {
	rec, err := s.scan(s.pool.db.QueryRowContext(ctx, selectRecord+` WHERE name = ? AND date = ?`, name, s.dayKey(date)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return &rec, nil
}

// ListRecords returns records matching filter ordered by date desc, name asc.
func (s *Store) ListRecords(ctx context.Context, filter database.RecordFilter) ([]database.PunchRecord, error) {
	var (
		where []string
		args  []any
	)
	if !filter.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, s.dayKey(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, s.dayKey(filter.To))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Name != "" {
		where = append(where, "name = ?")
		args = append(args, filter.Name)
	}

	query := selectRecord
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, name ASC"

	rows, err := s.pool.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []database.PunchRecord
	for rows.Next() {
		rec, err := s.scan(rows)
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

// CountRecords returns the number of records stored for date.
func (s *Store) CountRecords(ctx context.Context, date time.Time) (int, error) {
	var n int
	if err := s.pool.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance WHERE date = ?`, s.dayKey(date)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// UpdateRecord locks the (name, date) row for the whole read-modify-write.
// INSERT IGNORE downgrades foreign key errors to warnings, so the registrant
// is checked explicitly under a shared lock first.
func (s *Store) UpdateRecord(ctx context.Context, name string, date time.Time, fn database.MutateFunc) (*database.PunchRecord, error) {
	day := s.dayKey(date)

	tx, err := s.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM registrants WHERE name = ? LOCK IN SHARE MODE`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update record of %q: %w", name, database.ErrRegistrantNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("check registrant: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT IGNORE INTO attendance (name, date, status) VALUES (?, ?, 'Absent')`, name, day); err != nil {
		return nil, fmt.Errorf("ensure record: %w", err)
	}

	current, err := s.scan(tx.QueryRowContext(ctx, selectRecord+` WHERE name = ? AND date = ? FOR UPDATE`, name, day))
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
	working.UpdatedAt = s.now().In(s.loc).Truncate(time.Second)

	args := database.SlotArgs(&working, timeArg)
	args = append(args,
		int64(working.TotalDuration/time.Second),
		string(working.Status),
		working.Revision,
		timeArg(working.UpdatedAt),
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

// SeedAbsent inserts an Absent row for date for every registrant lacking one.
func (s *Store) SeedAbsent(ctx context.Context, date time.Time) (int64, error) {
	res, err := s.pool.db.ExecContext(ctx, `
		INSERT IGNORE INTO attendance (name, date, status)
		SELECT name, ?, 'Absent' FROM registrants`, s.dayKey(date))
	if err != nil {
		return 0, fmt.Errorf("seed absent records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("seed absent records: %w", err)
	}
	return n, nil
}
