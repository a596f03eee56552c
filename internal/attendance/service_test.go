package attendance

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/notify"
)

type recordingNotifier struct {
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, e notify.Event) {
	r.events = append(r.events, e)
}

func newTestService(t *testing.T) (*Service, *mock.MockStore, *recordingNotifier) {
	t.Helper()
	store := mock.NewMockStore()
	store.AddRegistrantNames("Asha", "Ravi")
	n := &recordingNotifier{}
	svc := NewService(store, store, Options{
		Location: time.UTC,
		Notifier: n,
		Now:      func() time.Time { return at("08:00:00") },
	})
	return svc, store, n
}

func TestService_ApplyPunch_AshaScenario(t *testing.T) {
	svc, store, n := newTestService(t)
	ctx := context.Background()

	for _, ts := range []string{"09:00:00", "13:05:00", "13:20:00", "17:00:00"} {
		if _, err := svc.ApplyPunch(ctx, "Asha", at(ts)); err != nil {
			t.Fatalf("ApplyPunch(%s) error: %v", ts, err)
		}
	}

	rec, err := store.GetRecord(ctx, "Asha", at("00:00:00"))
	if err != nil || rec == nil {
		t.Fatalf("GetRecord() = %v, %v", rec, err)
	}
	if rec.TotalDuration != 7*time.Hour+45*time.Minute || rec.Status != database.StatusPresent {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.Revision != 4 {
		t.Errorf("Revision = %d, want 4", rec.Revision)
	}

	if len(n.events) != 4 {
		t.Fatalf("expected 4 notifications, got %d", len(n.events))
	}
	last := n.events[3]
	if last.Kind != notify.KindPunchOut || last.Slot != 2 || last.Duration != "03:40:00" || last.Total != "07:45:00" {
		t.Errorf("unexpected last event %+v", last)
	}
	if last.ID == "" || last.ID == n.events[2].ID {
		t.Error("events need distinct IDs")
	}
}

func TestService_ApplyPunch_Unregistered(t *testing.T) {
	svc, store, n := newTestService(t)

	_, err := svc.ApplyPunch(context.Background(), "Mallory", at("09:00:00"))
	if !errors.Is(err, ErrUnregisteredIdentity) {
		t.Fatalf("expected ErrUnregisteredIdentity, got %v", err)
	}
	if store.UpdateCalls != 0 || store.RecordCount() != 0 {
		t.Error("unregistered punch touched the ledger")
	}
	if len(n.events) != 0 {
		t.Error("rejected punch must not notify")
	}
}

func TestService_ApplyPunch_RejectionLeavesLedgerUnchanged(t *testing.T) {
	svc, store, n := newTestService(t)
	ctx := context.Background()

	if _, err := svc.ApplyPunch(ctx, "Asha", at("09:00:00")); err != nil {
		t.Fatal(err)
	}
	before, _ := store.GetRecord(ctx, "Asha", at("00:00:00"))

	_, err := svc.ApplyPunch(ctx, "Asha", at("09:05:00"))
	var pe *PunchError
	if !errors.As(err, &pe) || pe.Kind != KindBreakTooShort {
		t.Fatalf("expected BreakTooShort, got %v", err)
	}
	if pe.RetryAfter() != 5*time.Minute {
		t.Errorf("RetryAfter() = %s, want 5m", pe.RetryAfter())
	}

	after, _ := store.GetRecord(ctx, "Asha", at("00:00:00"))
	if !reflect.DeepEqual(before, after) {
		t.Errorf("record changed after rejection:\nbefore %+v\nafter  %+v", before, after)
	}
	if len(n.events) != 1 {
		t.Errorf("expected 1 notification, got %d", len(n.events))
	}
}

func TestService_ApplyPunch_RetriesConflicts(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.ConflictsBeforeUpdate = 2

	res, err := svc.ApplyPunch(context.Background(), "Ravi", at("09:00:00"))
	if err != nil {
		t.Fatalf("ApplyPunch() error: %v", err)
	}
	if store.UpdateCalls != 3 {
		t.Errorf("UpdateCalls = %d, want 3", store.UpdateCalls)
	}
	if res.Transition.Direction != PunchIn || res.Record.Slots[0].In != at("09:00:00") {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestService_ApplyPunch_ConflictsExhausted(t *testing.T) {
	svc, store, n := newTestService(t)
	store.ConflictsBeforeUpdate = 100

	_, err := svc.ApplyPunch(context.Background(), "Ravi", at("09:00:00"))
	if !errors.Is(err, ErrPersistenceUnavailable) {
		t.Fatalf("expected ErrPersistenceUnavailable, got %v", err)
	}
	if !errors.Is(err, database.ErrConflict) {
		t.Error("cause should be ErrConflict")
	}
	if store.UpdateCalls != int(database.DefaultConflictRetries)+1 {
		t.Errorf("UpdateCalls = %d", store.UpdateCalls)
	}
	if store.RecordCount() != 0 || len(n.events) != 0 {
		t.Error("failed punch must leave no trace")
	}
}

func TestService_ApplyPunch_RetriesDisabled(t *testing.T) {
	store := mock.NewMockStore()
	store.AddRegistrantNames("Ravi")
	store.ConflictsBeforeUpdate = 1

	none := uint(0)
	svc := NewService(store, store, Options{Location: time.UTC, ConflictRetries: &none})

	_, err := svc.ApplyPunch(context.Background(), "Ravi", at("09:00:00"))
	if !errors.Is(err, database.ErrConflict) {
		t.Fatalf("expected ErrConflict cause, got %v", err)
	}
	if store.UpdateCalls != 1 {
		t.Errorf("UpdateCalls = %d, want 1", store.UpdateCalls)
	}
}

func TestService_ApplyPunch_PersistenceErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*mock.MockStore)
	}{
		{"registry lookup fails", func(m *mock.MockStore) { m.HasError = errors.New("connection refused") }},
		{"update fails", func(m *mock.MockStore) { m.UpdateError = context.DeadlineExceeded }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestService(t)
			tt.setup(store)

			_, err := svc.ApplyPunch(context.Background(), "Asha", at("09:00:00"))
			var pe *PunchError
			if !errors.As(err, &pe) || pe.Kind != KindPersistenceUnavailable {
				t.Fatalf("expected PersistenceUnavailable, got %v", err)
			}
			if !pe.Retryable() {
				t.Error("PersistenceUnavailable must be retryable")
			}
		})
	}
}

func TestService_ApplyPunch_SeparateDays(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.ApplyPunch(ctx, "Asha", at("23:55:00")); err != nil {
		t.Fatal(err)
	}
	res, err := svc.ApplyPunch(ctx, "Asha", at("23:58:00").Add(10*time.Minute))
	if err != nil {
		t.Fatalf("punch on next day rejected: %v", err)
	}
	if res.Transition.Direction != PunchIn || res.Record.DateKey() != "2026-01-06" {
		t.Errorf("unexpected result %+v", res.Transition)
	}
	if store.RecordCount() != 2 {
		t.Errorf("RecordCount() = %d, want 2", store.RecordCount())
	}
}

func TestService_EnsureToday_Idempotent(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.EnsureToday(ctx)
	if err != nil || created != 2 {
		t.Fatalf("first EnsureToday() = %d, %v", created, err)
	}
	first, _ := store.ListRecords(ctx, database.RecordFilter{})

	created, err = svc.EnsureToday(ctx)
	if err != nil || created != 0 {
		t.Fatalf("second EnsureToday() = %d, %v", created, err)
	}
	second, _ := store.ListRecords(ctx, database.RecordFilter{})

	if !reflect.DeepEqual(first, second) {
		t.Error("second run changed records")
	}
	for _, r := range second {
		if r.Status != database.StatusAbsent || Locate(&r).Phase != PhaseOpen || Locate(&r).Index != 0 {
			t.Errorf("seeded record not empty: %+v", r)
		}
	}
}

func TestService_EnsureToday_KeepsPunchedRecords(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.ApplyPunch(ctx, "Asha", at("07:30:00")); err != nil {
		t.Fatal(err)
	}
	created, err := svc.EnsureToday(ctx)
	if err != nil || created != 1 {
		t.Fatalf("EnsureToday() = %d, %v", created, err)
	}
	rec, _ := store.GetRecord(ctx, "Asha", at("00:00:00"))
	if rec.Status != database.StatusPresent {
		t.Error("initializer overwrote a punched record")
	}
}

func TestService_EnsureToday_Failure(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.SeedError = errors.New("database is locked")

	_, err := svc.EnsureToday(context.Background())
	if KindOf(err) != KindPersistenceUnavailable {
		t.Fatalf("expected PersistenceUnavailable, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.EnsureTodayWithRetry(ctx, 3); err == nil {
		t.Error("expected error from cancelled retry")
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestService_RunDailyInitializer_SeedsAfterMidnight(t *testing.T) {
	store := mock.NewMockStore()
	store.AddRegistrantNames("Asha", "Ravi")
	clock := &fakeClock{now: at("23:59:30")}
	svc := NewService(store, store, Options{Location: time.UTC, Now: clock.Now})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunDailyInitializer(ctx, time.Millisecond)
		close(done)
	}()

	waitFor(t, "first day", func() bool { return store.RecordCount() == 2 })

	// Ravi punches in on the first day; Asha never shows up on the second.
	if _, err := svc.ApplyPunch(ctx, "Ravi", at("23:59:40")); err != nil {
		t.Fatalf("ApplyPunch() error: %v", err)
	}

	nextDay := at("00:00:05").AddDate(0, 0, 1)
	clock.Set(nextDay)
	waitFor(t, "second day", func() bool { return store.RecordCount() == 4 })

	cancel()
	<-done

	day := database.DayOf(nextDay, time.UTC)
	for _, name := range []string{"Asha", "Ravi"} {
		rec, err := store.GetRecord(context.Background(), name, day)
		if err != nil || rec == nil {
			t.Fatalf("GetRecord(%s) = %v, %v", name, rec, err)
		}
		if rec.Status != database.StatusAbsent {
			t.Errorf("%s: status = %s, want Absent", name, rec.Status)
		}
	}

	first, _ := store.GetRecord(context.Background(), "Ravi", at("00:00:00"))
	if first == nil || first.Status != database.StatusPresent {
		t.Errorf("first day record changed: %+v", first)
	}
}
