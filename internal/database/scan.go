package database

import (
	"database/sql"
	"fmt"
	"time"
)

// timeLayouts are the textual forms drivers may return for time columns.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	DateLayout,
}

// NullTime scans a nullable time column from any of the supported drivers.
// PostgreSQL and MySQL (parseTime=true) return time.Time, SQLite returns text.
type NullTime struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner.
func (n *NullTime) Scan(src any) error {
	n.Time, n.Valid = time.Time{}, false
	switch v := src.(type) {
	case nil:
		return nil
	case time.Time:
		n.Time, n.Valid = v, true
		return nil
	case []byte:
		return n.parse(string(v))
	case string:
		return n.parse(v)
	default:
		return fmt.Errorf("NullTime.Scan: unsupported type %T", src)
	}
}

func (n *NullTime) parse(s string) error {
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			n.Time, n.Valid = t, true
			return nil
		}
	}
	return fmt.Errorf("NullTime.Scan: unrecognized time %q", s)
}

// SlotColumns holds the scan targets of one slot's three columns.
type SlotColumns struct {
	In      NullTime
	Out     NullTime
	Seconds sql.NullInt64
}

// RecordColumns holds the scan targets of one attendance row. Column order is
// name, date, entry1_in, entry1_out, entry1_hours, ..., entry5_hours,
// total_hours, status, revision, updated_at.
type RecordColumns struct {
	Name         string
	Date         NullTime
	Slots        [SlotsPerDay]SlotColumns
	TotalSeconds sql.NullInt64
	Status       string
	Revision     int64
	UpdatedAt    NullTime
}

// Dest returns scan destinations in column order.
func (c *RecordColumns) Dest() []any {
	dest := make([]any, 0, 2+3*SlotsPerDay+4)
	dest = append(dest, &c.Name, &c.Date)
	for i := range c.Slots {
		dest = append(dest, &c.Slots[i].In, &c.Slots[i].Out, &c.Slots[i].Seconds)
	}
	return append(dest, &c.TotalSeconds, &c.Status, &c.Revision, &c.UpdatedAt)
}

// Record converts scanned columns into a PunchRecord. Dates are re-anchored to
// loc by calendar day so that driver time zones do not shift them.
func (c *RecordColumns) Record(loc *time.Location) PunchRecord {
	if loc == nil {
		loc = time.Local
	}
	rec := PunchRecord{
		Name:     c.Name,
		Status:   AttendanceStatus(c.Status),
		Revision: c.Revision,
	}
	if c.Date.Valid {
		d := c.Date.Time
		rec.Date = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	}
	for i, s := range c.Slots {
		if s.In.Valid {
			rec.Slots[i].In = s.In.Time.In(loc)
		}
		if s.Out.Valid {
			rec.Slots[i].Out = s.Out.Time.In(loc)
		}
		if s.Seconds.Valid {
			rec.Slots[i].Duration = time.Duration(s.Seconds.Int64) * time.Second
		}
	}
	if c.TotalSeconds.Valid {
		rec.TotalDuration = time.Duration(c.TotalSeconds.Int64) * time.Second
	}
	if c.UpdatedAt.Valid {
		rec.UpdatedAt = c.UpdatedAt.Time.In(loc)
	}
	return rec
}

// SlotArgs returns the fifteen slot column values of rec in column order.
// Unset times and durations become NULL; timeArg converts set times to the
// driver's representation.
func SlotArgs(rec *PunchRecord, timeArg func(time.Time) any) []any {
	args := make([]any, 0, 3*SlotsPerDay)
	for _, s := range rec.Slots {
		args = append(args, nullableTime(s.In, timeArg), nullableTime(s.Out, timeArg))
		if s.Duration > 0 {
			args = append(args, int64(s.Duration/time.Second))
		} else {
			args = append(args, nil)
		}
	}
	return args
}

func nullableTime(t time.Time, timeArg func(time.Time) any) any {
	if t.IsZero() {
		return nil
	}
	if timeArg == nil {
		return t
	}
	return timeArg(t)
}
