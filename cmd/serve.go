package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/notify"
	"github.com/kozaktomas/face-attendance/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance API server",
	Long: `Start the HTTP API.
Seeds today's Absent records on startup and again after every midnight,
accepts punches and recognition windows and streams punch events over SSE.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default WEB_PORT or 8080)")
	serveCmd.Flags().String("host", "", "Host to bind to (default WEB_HOST or 0.0.0.0)")
}

// saveGallery exports the face graph during shutdown when a path is configured.
func saveGallery(g *facematch.Gallery, path string) {
	if g == nil || path == "" {
		return
	}
	if err := g.Export(path); err != nil {
		fmt.Printf("Warning: failed to save face gallery: %v\n", err)
	} else {
		fmt.Printf("Face gallery saved to %s\n", path)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broadcaster := notify.NewBroadcaster()
	a, err := openApp(ctx, broadcaster)
	if err != nil {
		return err
	}
	defer a.Close()

	// Flags win over the environment.
	if port := mustGetInt(cmd, "port"); port > 0 {
		a.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Web.Host = host
	}

	fmt.Printf("Using %s ledger\n", a.cfg.Database.Driver)

	created, err := a.service.EnsureTodayWithRetry(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to initialize today's records: %w", err)
	}
	fmt.Printf("Seeded %d absent records for today\n", created)

	// Later days are seeded as the clock passes midnight.
	go a.service.RunDailyInitializer(ctx, 0)

	gallery, err := a.loadGallery(ctx)
	if err != nil {
		a.logger.Warn("face gallery unavailable, embeddings will not be resolved", zap.Error(err))
		gallery = nil
	} else {
		fmt.Printf("Face gallery built with %d embeddings\n", gallery.Count())
	}

	server := web.NewServer(a.cfg, web.Deps{
		Service:     a.service,
		Store:       a.store,
		Gallery:     gallery,
		Broadcaster: broadcaster,
		Logger:      a.logger,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		saveGallery(gallery, a.cfg.Recognition.GalleryPath)

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Attendance API on http://%s:%d\n", a.cfg.Web.Host, a.cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
