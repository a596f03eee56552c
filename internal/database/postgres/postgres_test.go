//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
)

var testDay = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func setupTestContainer(t *testing.T) (*Store, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	store, err := Open(ctx, dbURL, database.OpenOptions{MaxOpenConns: 10, MaxIdleConns: 2, Location: time.UTC})
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to open store: %v", err)
	}

	cleanup := func() {
		store.Close()
		container.Terminate(ctx)
	}

	return store, cleanup
}

func TestPostgresStore(t *testing.T) {
	store, cleanup := setupTestContainer(t)
	if store == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	for _, n := range []string{"Asha", "Ravi"} {
		if _, err := store.AddRegistrant(ctx, n); err != nil {
			t.Fatalf("AddRegistrant(%q) error: %v", n, err)
		}
	}

	t.Run("MigrationsRecorded", func(t *testing.T) {
		versions, err := store.pool.MigrationsApplied(ctx)
		if err != nil {
			t.Fatalf("MigrationsApplied() error: %v", err)
		}
		if len(versions) != 2 || versions[0] != "001_attendance.sql" {
			t.Errorf("unexpected migrations %v", versions)
		}
		if err := store.pool.Migrate(ctx); err != nil {
			t.Errorf("re-running migrations: %v", err)
		}
	})

	t.Run("EquivalentNameRejected", func(t *testing.T) {
		if _, err := store.AddRegistrant(ctx, "asha"); !errors.Is(err, database.ErrRegistrantExists) {
			t.Errorf("expected ErrRegistrantExists, got %v", err)
		}
		created, err := store.AddRegistrant(ctx, "Asha")
		if err != nil || created {
			t.Errorf("exact re-registration = %v, %v", created, err)
		}
	})

	t.Run("SeedAbsentIdempotent", func(t *testing.T) {
		n, err := store.SeedAbsent(ctx, testDay)
		if err != nil || n != 2 {
			t.Fatalf("SeedAbsent() = %d, %v", n, err)
		}
		n, err = store.SeedAbsent(ctx, testDay)
		if err != nil || n != 0 {
			t.Fatalf("second SeedAbsent() = %d, %v", n, err)
		}
	})

	t.Run("AshaScenario", func(t *testing.T) {
		svc := attendance.NewService(store, store, attendance.Options{Location: time.UTC})
		for _, clock := range []string{"09:00:00", "13:05:00", "13:20:00", "17:00:00"} {
			ts, _ := time.ParseInLocation("2006-01-02 15:04:05", "2026-01-05 "+clock, time.UTC)
			if _, err := svc.ApplyPunch(ctx, "Asha", ts); err != nil {
				t.Fatalf("ApplyPunch(%s) error: %v", clock, err)
			}
		}

		rec, err := store.GetRecord(ctx, "Asha", testDay)
		if err != nil || rec == nil {
			t.Fatalf("GetRecord() = %v, %v", rec, err)
		}
		if rec.Slots[0].Duration != 4*time.Hour+5*time.Minute || rec.Slots[1].Duration != 3*time.Hour+40*time.Minute {
			t.Errorf("unexpected slot durations %+v", rec.Slots)
		}
		if rec.TotalDuration != 7*time.Hour+45*time.Minute || rec.Status != database.StatusPresent {
			t.Errorf("unexpected record %+v", rec)
		}
	})

	t.Run("FailedMutationRollsBackLazyRow", func(t *testing.T) {
		day := testDay.AddDate(0, 0, 10)
		_, err := store.UpdateRecord(ctx, "Ravi", day, func(*database.PunchRecord) error {
			return errors.New("rejected")
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if n, _ := store.CountRecords(ctx, day); n != 0 {
			t.Errorf("lazy row survived rollback: %d rows", n)
		}
	})

	t.Run("UnknownRegistrant", func(t *testing.T) {
		_, err := store.UpdateRecord(ctx, "Nobody", testDay, func(*database.PunchRecord) error { return nil })
		if !errors.Is(err, database.ErrRegistrantNotFound) {
			t.Errorf("expected ErrRegistrantNotFound, got %v", err)
		}
	})

	t.Run("ConcurrentPunchesSerialize", func(t *testing.T) {
		day := testDay.AddDate(0, 0, 1)
		at := day.Add(9 * time.Hour)

		var wg sync.WaitGroup
		errs := make([]error, 8)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = store.UpdateRecord(ctx, "Ravi", day, func(r *database.PunchRecord) error {
					if r.Slots[0].HasIn() {
						return errors.New("slot taken")
					}
					r.Slots[0].In = at
					r.Status = database.StatusPresent
					return nil
				})
			}(i)
		}
		wg.Wait()

		ok := 0
		for _, err := range errs {
			if err == nil {
				ok++
			}
		}
		if ok != 1 {
			t.Errorf("%d writers opened the same slot, want 1", ok)
		}
	})

	t.Run("FaceEmbeddings", func(t *testing.T) {
		vec := []float32{0.1, 0.2, 0.3}
		if _, err := store.SaveFaceEmbedding(ctx, "Asha", vec); err != nil {
			t.Fatalf("SaveFaceEmbedding() error: %v", err)
		}
		if _, err := store.SaveFaceEmbedding(ctx, "Nobody", vec); !errors.Is(err, database.ErrRegistrantNotFound) {
			t.Errorf("expected ErrRegistrantNotFound, got %v", err)
		}
		faces, err := store.ListFaceEmbeddings(ctx)
		if err != nil || len(faces) != 1 || !reflect.DeepEqual(faces[0].Embedding, vec) {
			t.Errorf("ListFaceEmbeddings() = %+v, %v", faces, err)
		}
	})
}
