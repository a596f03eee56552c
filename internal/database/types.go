package database

import (
	"time"
)

// AttendanceStatus is the day-level status of a punch record.
type AttendanceStatus string

const (
	StatusAbsent  AttendanceStatus = "Absent"
	StatusPresent AttendanceStatus = "Present"
)

// Valid reports whether s is one of the known statuses.
func (s AttendanceStatus) Valid() bool {
	return s == StatusAbsent || s == StatusPresent
}

// Slot is one in/out pair of a day. Zero values mean "not set".
type Slot struct {
	In       time.Time
	Out      time.Time
	Duration time.Duration
}

// HasIn reports whether the slot has been opened.
func (s Slot) HasIn() bool { return !s.In.IsZero() }

// HasOut reports whether the slot has been closed.
func (s Slot) HasOut() bool { return !s.Out.IsZero() }

// Closed reports whether both punches of the slot are recorded.
func (s Slot) Closed() bool { return s.HasIn() && s.HasOut() }

// PunchRecord is the attendance row of one registrant for one calendar day.
type PunchRecord struct {
	Name          string
	Date          time.Time // midnight of the day in the ledger's location
	Slots         [SlotsPerDay]Slot
	TotalDuration time.Duration
	Status        AttendanceStatus
	Revision      int64 // incremented on every committed mutation
	UpdatedAt     time.Time
}

// NewAbsentRecord returns an empty record as seeded by the daily initializer.
func NewAbsentRecord(name string, date time.Time) PunchRecord {
	return PunchRecord{
		Name:   name,
		Date:   DayOf(date, date.Location()),
		Status: StatusAbsent,
	}
}

// SumDurations returns the sum of all closed slot durations.
func (r *PunchRecord) SumDurations() time.Duration {
	var total time.Duration
	for _, s := range r.Slots {
		total += s.Duration
	}
	return total
}

// DateKey returns the record's date formatted as YYYY-MM-DD.
func (r *PunchRecord) DateKey() string {
	return r.Date.Format(DateLayout)
}

// Registrant represents a registered person. Names are unique.
type Registrant struct {
	Name      string
	CreatedAt time.Time
}

// FaceEmbedding is a reference face vector of a registrant used by the recognition gallery.
type FaceEmbedding struct {
	ID        int64
	Name      string
	Embedding []float32
	CreatedAt time.Time
}

// RecordFilter narrows ListRecords results.
type RecordFilter struct {
	From   time.Time // inclusive day
	To     time.Time // inclusive day
	Status AttendanceStatus
	Name   string
}

// DateLayout is the canonical layout of the date column.
const DateLayout = "2006-01-02"

// DayOf returns midnight of t's calendar day in loc.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
