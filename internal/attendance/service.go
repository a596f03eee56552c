package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/notify"
)

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	MinBreak time.Duration
	Location *time.Location

	// ConflictRetries is how often a lost compare-and-swap is retried. Nil
	// uses database.DefaultConflictRetries; zero disables retrying.
	ConflictRetries *uint

	Notifier notify.Notifier
	Logger   *zap.Logger
	Now      func() time.Time
}

// Service applies punches and seeds daily records against a ledger.
type Service struct {
	ledger      database.LedgerWriter
	registrants database.RegistrantReader
	machine     Machine
	loc         *time.Location
	retries     uint
	notifier    notify.Notifier
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates an attendance service.
func NewService(ledger database.LedgerWriter, registrants database.RegistrantReader, opts Options) *Service {
	s := &Service{
		ledger:      ledger,
		registrants: registrants,
		machine:     Machine{MinBreak: opts.MinBreak},
		loc:         opts.Location,
		retries:     database.DefaultConflictRetries,
		notifier:    opts.Notifier,
		logger:      opts.Logger,
		now:         opts.Now,
	}
	if s.machine.MinBreak <= 0 {
		s.machine.MinBreak = DefaultMinBreak
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if opts.ConflictRetries != nil {
		s.retries = *opts.ConflictRetries
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Location returns the time zone calendar days are computed in.
func (s *Service) Location() *time.Location { return s.loc }

// MinBreak returns the enforced minimum gap between boundary punches.
func (s *Service) MinBreak() time.Duration { return s.machine.MinBreak }

// Now returns the service clock in its location.
func (s *Service) Now() time.Time { return s.now().In(s.loc) }

// Result is the outcome of an accepted punch.
type Result struct {
	Record     database.PunchRecord
	Transition Transition
}

// ApplyPunch applies one confirmed punch for name at the given time to that
// day's record. Rejections are returned as *PunchError; the ledger is left
// untouched by every rejected or failed punch.
func (s *Service) ApplyPunch(ctx context.Context, name string, at time.Time) (*Result, error) {
	at = at.In(s.loc).Truncate(time.Second)
	date := database.DayOf(at, s.loc)
	log := s.logger.With(zap.String("identity", name), zap.String("date", date.Format(database.DateLayout)))

	registered, err := s.registrants.HasRegistrant(ctx, name)
	if err != nil {
		log.Error("lookup registrant", zap.Error(err))
		return nil, persistenceError(name, date, fmt.Errorf("lookup registrant: %w", err))
	}
	if !registered {
		log.Info("punch rejected", zap.Stringer("kind", KindUnregisteredIdentity))
		return nil, &PunchError{Kind: KindUnregisteredIdentity, Identity: name, Date: date}
	}

	var (
		committed  *database.PunchRecord
		transition Transition
	)
	err = retry.Do(
		func() error {
			rec, err := s.ledger.UpdateRecord(ctx, name, date, func(rec *database.PunchRecord) error {
				next, tr, err := s.machine.Apply(*rec, at)
				if err != nil {
					return err
				}
				*rec = next
				transition = tr
				return nil
			})
			if err != nil {
				return err
			}
			committed = rec
			return nil
		},
		retry.Attempts(s.retries+1),
		retry.RetryIf(func(err error) bool { return errors.Is(err, database.ErrConflict) }),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(constants.ConflictRetryDelay),
		retry.OnRetry(func(n uint, err error) {
			log.Debug("retrying punch after conflict", zap.Uint("attempt", n+1), zap.Error(err))
		}),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		var pe *PunchError
		switch {
		case errors.As(err, &pe):
			log.Info("punch rejected",
				zap.Stringer("kind", pe.Kind),
				zap.Int("slot", pe.Slot),
				zap.Duration("elapsed", pe.Elapsed),
			)
			return nil, pe
		case errors.Is(err, database.ErrRegistrantNotFound):
			log.Info("punch rejected", zap.Stringer("kind", KindUnregisteredIdentity))
			return nil, &PunchError{Kind: KindUnregisteredIdentity, Identity: name, Date: date, Err: err}
		default:
			log.Error("apply punch", zap.Error(err))
			return nil, persistenceError(name, date, fmt.Errorf("apply punch: %w", err))
		}
	}

	log.Info("punch accepted",
		zap.String("direction", string(transition.Direction)),
		zap.Int("slot", transition.Slot),
		zap.Time("at", transition.At),
		zap.Duration("total", transition.Total),
	)
	s.notifier.Notify(ctx, EventFor(transition))

	return &Result{Record: *committed, Transition: transition}, nil
}

// EventFor converts an accepted transition into a notification event.
func EventFor(tr Transition) notify.Event {
	e := notify.Event{
		ID:       notify.NewEventID(),
		Kind:     notify.KindPunchIn,
		Identity: tr.Identity,
		Date:     tr.Date.Format(database.DateLayout),
		Slot:     tr.Slot,
		At:       tr.At,
		Total:    FormatDuration(tr.Total),
	}
	if tr.Direction == PunchOut {
		e.Kind = notify.KindPunchOut
		e.Duration = FormatDuration(tr.Duration)
	}
	return e
}

// Record returns the stored record of name for the calendar day of date.
func (s *Service) Record(ctx context.Context, name string, date time.Time) (*database.PunchRecord, error) {
	day := database.DayOf(date, s.loc)
	rec, err := s.ledger.GetRecord(ctx, name, day)
	if err != nil {
		return nil, persistenceError(name, day, fmt.Errorf("get record: %w", err))
	}
	return rec, nil
}

// Records lists records matching filter.
func (s *Service) Records(ctx context.Context, filter database.RecordFilter) ([]database.PunchRecord, error) {
	records, err := s.ledger.ListRecords(ctx, filter)
	if err != nil {
		return nil, persistenceError("", time.Time{}, fmt.Errorf("list records: %w", err))
	}
	return records, nil
}
