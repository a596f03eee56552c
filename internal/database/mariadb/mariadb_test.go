//go:build integration

package mariadb

import (
	"context"
	"errors"
	"fmt"
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
		Image:        "mariadb:11",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MARIADB_ROOT_PASSWORD": "test",
			"MARIADB_DATABASE":      "attendance",
			"MARIADB_USER":          "test",
			"MARIADB_PASSWORD":      "test",
		},
		WaitingFor: wait.ForLog("ready for connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "3306")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("test:test@tcp(%s:%s)/attendance", host, port.Port())
	store, err := Open(ctx, dsn, database.OpenOptions{Location: time.UTC})
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to open store: %v", err)
	}

	return store, func() {
		store.Close()
		container.Terminate(ctx)
	}
}

func TestMariaDBStore(t *testing.T) {
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

	t.Run("EquivalentNameRejected", func(t *testing.T) {
		if _, err := store.AddRegistrant(ctx, "ASHA"); !errors.Is(err, database.ErrRegistrantExists) {
			t.Errorf("expected ErrRegistrantExists, got %v", err)
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
		if !rec.Slots[1].In.Equal(time.Date(2026, 1, 5, 13, 20, 0, 0, time.UTC)) {
			t.Errorf("slot 2 in = %s", rec.Slots[1].In)
		}
		if rec.TotalDuration != 7*time.Hour+45*time.Minute || rec.Status != database.StatusPresent {
			t.Errorf("unexpected record %+v", rec)
		}
	})

	t.Run("UnknownRegistrant", func(t *testing.T) {
		_, err := store.UpdateRecord(ctx, "Nobody", testDay, func(*database.PunchRecord) error { return nil })
		if !errors.Is(err, database.ErrRegistrantNotFound) {
			t.Errorf("expected ErrRegistrantNotFound, got %v", err)
		}
	})

	t.Run("FaceEmbeddings", func(t *testing.T) {
		if _, err := store.SaveFaceEmbedding(ctx, "Ravi", []float32{1, 0, 0}); err != nil {
			t.Fatalf("SaveFaceEmbedding() error: %v", err)
		}
		faces, err := store.ListFaceEmbeddings(ctx)
		if err != nil || len(faces) != 1 || faces[0].Name != "Ravi" {
			t.Errorf("ListFaceEmbeddings() = %+v, %v", faces, err)
		}
	})
}
