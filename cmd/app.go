package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/logger"
	"github.com/kozaktomas/face-attendance/internal/notify"
)

// app bundles what every command needs: configuration, logger, store and
// the attendance service.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   database.Store
	service *attendance.Service
	redis   *redis.Client
	events  *notify.RedisPublisher
}

// openApp loads configuration, opens the configured ledger and builds the
// attendance service. notifiers receive every accepted punch; a Redis
// publisher is appended when REDIS_URL is set.
func openApp(ctx context.Context, notifiers ...notify.Notifier) (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Attendance.Location()
	if err != nil {
		return nil, err
	}

	store, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.DSN(), database.OpenOptions{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		Location:     loc,
		Logger:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open attendance store: %w", err)
	}

	a := &app{cfg: cfg, logger: log, store: store}

	if cfg.Notify.RedisURL != "" {
		client, err := notify.DialRedis(ctx, cfg.Notify.RedisURL)
		if err != nil {
			// Punches still work without notifications.
			log.Warn("redis notifications disabled", zap.Error(err))
		} else {
			a.redis = client
			a.events = notify.NewRedisPublisher(client, cfg.Notify.RedisChannel, log)
			notifiers = append(notifiers, a.events)
		}
	}

	retries := uint(cfg.Attendance.ConflictRetries)
	a.service = attendance.NewService(store, store, attendance.Options{
		MinBreak:        cfg.Attendance.MinBreak,
		Location:        loc,
		ConflictRetries: &retries,
		Notifier:        notify.Multi(notifiers),
		Logger:          log,
	})
	return a, nil
}

// loadGallery builds the face gallery from stored reference embeddings. A
// graph exported to GalleryPath is reused when it still matches the store.
func (a *app) loadGallery(ctx context.Context) (*facematch.Gallery, error) {
	faces, err := a.store.ListFaceEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load face embeddings: %w", err)
	}

	gallery := facematch.NewGallery(nil, a.cfg.Recognition.Tolerance)
	if path := a.cfg.Recognition.GalleryPath; path != "" {
		ok, err := gallery.Import(path, faces)
		switch {
		case err != nil:
			a.logger.Warn("gallery index unreadable, rebuilding", zap.String("path", path), zap.Error(err))
		case ok:
			a.logger.Info("gallery loaded from index", zap.String("path", path), zap.Int("faces", gallery.Count()))
			return gallery, nil
		default:
			a.logger.Info("gallery index missing or stale, rebuilding", zap.String("path", path))
		}
	}
	gallery.Rebuild(faces)
	return gallery, nil
}

// Close flushes pending notifications and releases the store and the Redis
// connection.
func (a *app) Close() {
	if a.events != nil {
		a.events.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// outputJSON writes data as indented JSON to stdout.
func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
