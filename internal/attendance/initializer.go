package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// EnsureToday creates an Absent record for today for every registrant that
// has none. Running it again on the same day creates nothing.
func (s *Service) EnsureToday(ctx context.Context) (int64, error) {
	day := database.DayOf(s.now(), s.loc)

	created, err := s.ledger.SeedAbsent(ctx, day)
	if err != nil {
		s.logger.Warn("seed daily records", zap.String("date", day.Format(database.DateLayout)), zap.Error(err))
		return 0, persistenceError("", day, fmt.Errorf("seed absent records: %w", err))
	}

	if created > 0 {
		s.logger.Info("seeded daily records",
			zap.String("date", day.Format(database.DateLayout)),
			zap.Int64("created", created),
		)
	}
	return created, nil
}

// EnsureTodayWithRetry runs EnsureToday with exponential backoff. attempts of
// zero uses the default.
func (s *Service) EnsureTodayWithRetry(ctx context.Context, attempts uint) (int64, error) {
	if attempts == 0 {
		attempts = constants.InitRetryAttempts
	}

	var created int64
	err := retry.Do(
		func() error {
			n, err := s.EnsureToday(ctx)
			if err != nil {
				return err
			}
			created = n
			return nil
		},
		retry.Attempts(attempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(constants.InitRetryDelay),
		retry.MaxDelay(constants.InitRetryMaxDelay),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("retrying daily initialization", zap.Uint("attempt", n+1), zap.Error(err))
		}),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	return created, err
}

// RunDailyInitializer seeds every new calendar day for as long as ctx lives.
// The service clock is checked every interval; the first check seeds the
// current day. A failed seeding is attempted again on the next check.
func (s *Service) RunDailyInitializer(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = constants.DayRolloverCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var seeded time.Time
	check := func() {
		day := database.DayOf(s.now(), s.loc)
		if day.Equal(seeded) {
			return
		}
		if _, err := s.EnsureTodayWithRetry(ctx, 0); err != nil {
			if ctx.Err() == nil {
				s.logger.Error("daily initialization failed",
					zap.String("date", day.Format(database.DateLayout)),
					zap.Error(err),
				)
			}
			return
		}
		seeded = day
	}

	check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
