package database

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"
	"time"

	_ "modernc.org/sqlite"
)

func TestSlotState(t *testing.T) {
	in := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name             string
		slot             Slot
		hasIn, hasOut, c bool
	}{
		{"empty", Slot{}, false, false, false},
		{"open", Slot{In: in}, true, false, false},
		{"closed", Slot{In: in, Out: in.Add(time.Hour), Duration: time.Hour}, true, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.slot.HasIn() != tt.hasIn || tt.slot.HasOut() != tt.hasOut || tt.slot.Closed() != tt.c {
				t.Errorf("state = (%v, %v, %v), want (%v, %v, %v)",
					tt.slot.HasIn(), tt.slot.HasOut(), tt.slot.Closed(), tt.hasIn, tt.hasOut, tt.c)
			}
		})
	}
}

func TestNewAbsentRecord(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	rec := NewAbsentRecord("Asha", time.Date(2026, 1, 5, 17, 45, 0, 0, loc))

	if rec.Status != StatusAbsent || rec.TotalDuration != 0 || rec.Revision != 0 {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.DateKey() != "2026-01-05" || rec.Date.Hour() != 0 || rec.Date.Location() != loc {
		t.Errorf("Date = %s, want midnight 2026-01-05 in %s", rec.Date, loc)
	}
}

func TestDayOf(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	ts := time.Date(2026, 1, 6, 2, 30, 0, 0, time.UTC) // 21:30 on Jan 5 in UTC-5

	if got := DayOf(ts, loc).Format(DateLayout); got != "2026-01-05" {
		t.Errorf("DayOf() = %s, want 2026-01-05", got)
	}
	if got := DayOf(ts, time.UTC).Format(DateLayout); got != "2026-01-06" {
		t.Errorf("DayOf(UTC) = %s, want 2026-01-06", got)
	}
}

func TestSumDurations(t *testing.T) {
	var rec PunchRecord
	rec.Slots[0].Duration = 4*time.Hour + 5*time.Minute
	rec.Slots[3].Duration = 3*time.Hour + 40*time.Minute
	if got := rec.SumDurations(); got != 7*time.Hour+45*time.Minute {
		t.Errorf("SumDurations() = %s", got)
	}
}

func TestNullTime_Scan(t *testing.T) {
	want := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		src   any
		valid bool
	}{
		{"nil", nil, false},
		{"time", want, true},
		{"rfc3339 string", "2026-01-05T09:00:00Z", true},
		{"mysql bytes", []byte("2026-01-05 09:00:00"), true},
		{"empty string", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n NullTime
			if err := n.Scan(tt.src); err != nil {
				t.Fatalf("Scan() error: %v", err)
			}
			if n.Valid != tt.valid {
				t.Fatalf("Valid = %v, want %v", n.Valid, tt.valid)
			}
			if n.Valid && !n.Time.Equal(want) {
				t.Errorf("Time = %s, want %s", n.Time, want)
			}
		})
	}

	var n NullTime
	if err := n.Scan("not a time"); err == nil {
		t.Error("expected error for garbage input")
	}
	if err := n.Scan(42); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestSlotArgsAndRecordColumns(t *testing.T) {
	in := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	var rec PunchRecord
	rec.Slots[0] = Slot{In: in, Out: in.Add(90 * time.Minute), Duration: 90 * time.Minute}
	rec.Slots[1] = Slot{In: in.Add(2 * time.Hour)}

	args := SlotArgs(&rec, func(t time.Time) any { return t.Format(time.RFC3339) })
	if len(args) != 3*SlotsPerDay {
		t.Fatalf("len(args) = %d", len(args))
	}
	if args[0] != "2026-01-05T09:00:00Z" || args[2] != int64(5400) {
		t.Errorf("slot 1 args = %v", args[:3])
	}
	if args[3] == nil || args[4] != nil || args[5] != nil {
		t.Errorf("slot 2 args = %v", args[3:6])
	}

	// Feed the args back through the scanners.
	var cols RecordColumns
	dest := cols.Dest()
	if len(dest) != 2+3*SlotsPerDay+4 {
		t.Fatalf("len(Dest()) = %d", len(dest))
	}
	values := append([]any{"Asha", "2026-01-05"}, args...)
	values = append(values, int64(5400), "Present", int64(2), "2026-01-05T11:00:00Z")
	for i, d := range dest {
		switch p := d.(type) {
		case sql.Scanner:
			if err := p.Scan(values[i]); err != nil {
				t.Fatalf("scan column %d: %v", i, err)
			}
		case *string:
			*p = values[i].(string)
		case *int64:
			*p = values[i].(int64)
		default:
			t.Fatalf("unexpected destination %T", d)
		}
	}

	got := cols.Record(time.UTC)
	if got.Name != "Asha" || got.DateKey() != "2026-01-05" || got.Status != StatusPresent || got.Revision != 2 {
		t.Errorf("unexpected record header %+v", got)
	}
	if got.Slots[0] != rec.Slots[0] || got.Slots[1] != rec.Slots[1] || got.Slots[2] != (Slot{}) {
		t.Errorf("slots did not round trip: %+v", got.Slots)
	}
	if got.TotalDuration != 90*time.Minute {
		t.Errorf("TotalDuration = %s", got.TotalDuration)
	}
}

func TestMigrator(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	m := &Migrator{
		DB: db,
		FS: fstest.MapFS{
			"migrations/002_second.sql": {Data: []byte(`ALTER TABLE things ADD COLUMN label TEXT;`)},
			"migrations/001_first.sql":  {Data: []byte(`CREATE TABLE things (id INTEGER PRIMARY KEY);`)},
			"migrations/README.md":      {Data: []byte(`ignored`)},
		},
		Dir:         "migrations",
		CreateTable: `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)`,
		Record:      `INSERT INTO schema_migrations (version) VALUES (?)`,
	}

	ctx := context.Background()
	if err := m.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	if err := m.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error: %v", err)
	}

	applied, err := m.Applied(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(applied) != 2 || applied[0] != "001_first.sql" || applied[1] != "002_second.sql" {
		t.Errorf("Applied() = %v", applied)
	}
	if _, err := db.Exec(`INSERT INTO things (id, label) VALUES (1, 'x')`); err != nil {
		t.Errorf("schema not migrated: %v", err)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "oracle", "", OpenOptions{}); err == nil {
		t.Error("expected error for unknown driver")
	}
}
