package sqlite

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
	entry1_in, entry1_out, entry1_hours,
	entry2_in, entry2_out, entry2_hours,
	entry3_in, entry3_out, entry3_hours,
	entry4_in, entry4_out, entry4_hours,
	entry5_in, entry5_out, entry5_hours,
	total_hours, status, revision, updated_at
FROM attendance`

const insertRecord = `
INSERT INTO attendance (name, date,
	entry1_in, entry1_out, entry1_hours,
	entry2_in, entry2_out, entry2_hours,
	entry3_in, entry3_out, entry3_hours,
	entry4_in, entry4_out, entry4_hours,
	entry5_in, entry5_out, entry5_hours,
	total_hours, status, revision, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (name, date) DO NOTHING`

const updateRecord = `
UPDATE attendance SET
	entry1_in = ?, entry1_out = ?, entry1_hours = ?,
	entry2_in = ?, entry2_out = ?, entry2_hours = ?,
	entry3_in = ?, entry3_out = ?, entry3_hours = ?,
	entry4_in = ?, entry4_out = ?, entry4_hours = ?,
	entry5_in = ?, entry5_out = ?, entry5_hours = ?,
	total_hours = ?, status = ?, revision = ?, updated_at = ?
WHERE name = ? AND date = ? AND revision = ?`

func (s *Store) scanRecord(row interface{ Scan(...any) error }) (database.PunchRecord, error) {
	var cols database.RecordColumns
	if err := row.Scan(cols.Dest()...); err != nil {
		return database.PunchRecord{}, err
	}
	return cols.Record(s.loc), nil
}

// GetRecord returns the record for name on date, or nil if none exists.
func (s *Store) GetRecord(ctx context.Context, name string, date time.Time) (*database.PunchRecord, error) {
	rec, err := s.scanRecord(s.db.QueryRowContext(ctx,
		selectRecord+` WHERE name = ? AND date = ?`, name, s.dayKey(date)))
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

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []database.PunchRecord
	for rows.Next() {
		rec, err := s.scanRecord(rows)
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
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance WHERE date = ?`, s.dayKey(date)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// UpdateRecord reads the row, applies fn and writes it back only if the
// revision is still the one read. A lost race returns database.ErrConflict.
func (s *Store) UpdateRecord(ctx context.Context, name string, date time.Time, fn database.MutateFunc) (*database.PunchRecord, error) {
	day := database.DayOf(date, s.loc)

	current, err := s.GetRecord(ctx, name, day)
	if err != nil {
		return nil, err
	}
	exists := current != nil
	if !exists {
		registered, err := s.HasRegistrant(ctx, name)
		if err != nil {
			return nil, err
		}
		if !registered {
			return nil, fmt.Errorf("update record of %q: %w", name, database.ErrRegistrantNotFound)
		}
		rec := database.NewAbsentRecord(name, day)
		current = &rec
	}

	working := *current
	if err := fn(&working); err != nil {
		return nil, err
	}
	working.Name = name
	working.Date = day
	working.Revision = current.Revision + 1
	working.UpdatedAt = s.now().In(s.loc).Truncate(time.Second)

	args := database.SlotArgs(&working, timeArg)
	args = append(args,
		int64(working.TotalDuration/time.Second),
		string(working.Status),
		working.Revision,
		timeArg(working.UpdatedAt),
	)

	var res sql.Result
	if exists {
		args = append(args, name, s.dayKey(day), current.Revision)
		res, err = s.db.ExecContext(ctx, updateRecord, args...)
	} else {
		args = append([]any{name, s.dayKey(day)}, args...)
		res, err = s.db.ExecContext(ctx, insertRecord, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("write record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("write record: %w", err)
	}
	if n == 0 {
		return nil, database.ErrConflict
	}
	return &working, nil
}

// SeedAbsent inserts an Absent row for date for every registrant lacking one.
func (s *Store) SeedAbsent(ctx context.Context, date time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO attendance (name, date, status, total_hours, revision, updated_at)
		SELECT name, ?, 'Absent', 0, 0, ? FROM registrants`,
		s.dayKey(date), timeArg(s.now()))
	if err != nil {
		return 0, fmt.Errorf("seed absent records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("seed absent records: %w", err)
	}
	return n, nil
}

func (s *Store) dayKey(t time.Time) string {
	return database.DayOf(t, s.loc).Format(database.DateLayout)
}
