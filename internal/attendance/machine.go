package attendance

import (
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// DefaultMinBreak is the minimum gap between boundary punches.
const DefaultMinBreak = 10 * time.Minute

// Phase tells what the next punch of a record will do.
type Phase int

const (
	// PhaseOpen means the next punch sets the in time of Position.Index.
	PhaseOpen Phase = iota
	// PhaseClose means the slot at Position.Index is open and the next punch closes it.
	PhaseClose
	// PhaseComplete means all slots are closed.
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseOpen:
		return "open"
	case PhaseClose:
		return "close"
	case PhaseComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Position is the authoritative state-machine position of a record.
type Position struct {
	Index int // 0-based slot index; SlotsPerDay when complete
	Phase Phase
}

// Locate derives the position of rec by scanning its slots once in order.
func Locate(rec *database.PunchRecord) Position {
	for i, s := range rec.Slots {
		if !s.HasIn() {
			return Position{Index: i, Phase: PhaseOpen}
		}
		if !s.HasOut() {
			return Position{Index: i, Phase: PhaseClose}
		}
	}
	return Position{Index: database.SlotsPerDay, Phase: PhaseComplete}
}

// Direction of an applied punch.
type Direction string

const (
	PunchIn  Direction = "punch_in"
	PunchOut Direction = "punch_out"
)

// Transition describes one accepted punch.
type Transition struct {
	Direction Direction
	Identity  string
	Date      time.Time
	Slot      int // 1-based
	At        time.Time
	Duration  time.Duration // slot duration, PunchOut only
	Total     time.Duration
}

// Machine applies punches to records. It holds no state of its own.
type Machine struct {
	MinBreak time.Duration
}

// Apply returns the record that results from punching at the given time.
// rec is never modified; on rejection the returned record is the zero value.
// Timestamps are truncated to the second.
func (m Machine) Apply(rec database.PunchRecord, at time.Time) (database.PunchRecord, Transition, error) {
	at = at.Truncate(time.Second)
	pos := Locate(&rec)

	reject := func(kind Kind, slot int, elapsed time.Duration) error {
		return &PunchError{
			Kind:     kind,
			Identity: rec.Name,
			Date:     rec.Date,
			Slot:     slot,
			Elapsed:  elapsed,
			Required: m.MinBreak,
		}
	}

	next := rec
	tr := Transition{Identity: rec.Name, Date: rec.Date, Slot: pos.Index + 1, At: at}

	switch pos.Phase {
	case PhaseComplete:
		return database.PunchRecord{}, Transition{}, &PunchError{
			Kind: KindSessionLimitReached, Identity: rec.Name, Date: rec.Date,
		}

	case PhaseOpen:
		if pos.Index > 0 {
			gap := at.Sub(rec.Slots[pos.Index-1].Out)
			if gap < m.MinBreak || gap <= 0 {
				return database.PunchRecord{}, Transition{}, reject(KindBreakTooShort, pos.Index+1, gap)
			}
		}
		next.Slots[pos.Index].In = at
		next.Status = database.StatusPresent
		tr.Direction = PunchIn

	case PhaseClose:
		slot := &next.Slots[pos.Index]
		elapsed := at.Sub(slot.In)
		if elapsed < m.MinBreak || elapsed <= 0 {
			return database.PunchRecord{}, Transition{}, reject(KindBreakTooShort, pos.Index+1, elapsed)
		}
		slot.Out = at
		slot.Duration = elapsed
		next.TotalDuration = next.SumDurations()
		tr.Direction = PunchOut
		tr.Duration = elapsed
	}

	tr.Total = next.TotalDuration
	return next, tr, nil
}
