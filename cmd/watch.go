package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/consensus"
	"github.com/kozaktomas/face-attendance/internal/notify"
	"github.com/kozaktomas/face-attendance/internal/oracle"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run one observation window over a frame stream and punch the result",
	Long: `Read face recognition output (one JSON frame per line) for one
observation window, settle on the identity seen consistently enough, and
record a punch for it.

Each line looks like:
  {"detections":[{"label":"Asha","distance":0.21}]}
or carries raw embeddings resolved against the registered faces:
  {"detections":[{"embedding":[0.12, -0.03, ...]}]}

With --snapshots, the image files of a directory are sent to the face
embedding server at ORACLE_URL instead, one frame per file.

Press Ctrl+C to end the window early; frames seen so far still count.

Examples:
  face-recognizer --jsonl | face-attendance watch
  face-attendance watch --frames session.jsonl --interval 0 --min-frames 5
  ORACLE_URL=http://localhost:8000 face-attendance watch --snapshots ./captures`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().String("frames", "-", "JSONL frame file (- for stdin)")
	watchCmd.Flags().String("snapshots", "", "Directory of snapshot images to send to the face embedding server")
	watchCmd.Flags().Duration("window", 0, "Observation window (default RECOGNITION_WINDOW)")
	watchCmd.Flags().Int("min-frames", 0, "Frames an identity needs (default RECOGNITION_MIN_FRAMES)")
	watchCmd.Flags().Duration("interval", -1, "Delay between frames read from a file (default RECOGNITION_FRAME_INTERVAL)")
	watchCmd.Flags().Bool("silent", false, "Do not ring the terminal bell")
	watchCmd.Flags().Bool("skip-init", false, "Do not seed today's Absent records first")
}

// openFrames opens the frame stream. Stdin is returned with a no-op closer.
func openFrames(path string) (io.ReadCloser, error) {
	if path == "-" || path == "" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path) //nolint:gosec // path is given by the operator
	if err != nil {
		return nil, fmt.Errorf("open frames: %w", err)
	}
	return f, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, notify.NewBell(os.Stdout, mustGetBool(cmd, "silent")))
	if err != nil {
		return err
	}
	defer a.Close()

	window := a.cfg.Recognition.Window
	if d := mustGetDuration(cmd, "window"); d > 0 {
		window = d
	}
	minFrames := a.cfg.Recognition.MinFrames
	if n := mustGetInt(cmd, "min-frames"); n > 0 {
		minFrames = n
	}
	interval := a.cfg.Recognition.FrameInterval
	if d := mustGetDuration(cmd, "interval"); d >= 0 {
		interval = d
	}
	framesPath := mustGetString(cmd, "frames")
	snapshotDir := mustGetString(cmd, "snapshots")
	if snapshotDir == "" && (framesPath == "-" || framesPath == "") {
		// A live stream is paced by its producer.
		interval = 0
	}

	if !mustGetBool(cmd, "skip-init") {
		if _, err := a.service.EnsureTodayWithRetry(ctx, 0); err != nil {
			return fmt.Errorf("failed to initialize today's records: %w", err)
		}
	}

	gallery, err := a.loadGallery(ctx)
	if err != nil {
		return err
	}

	var source consensus.FrameSource
	if snapshotDir != "" {
		if a.cfg.Recognition.OracleURL == "" {
			return errors.New("--snapshots requires ORACLE_URL")
		}
		client := oracle.NewClient(a.cfg.Recognition.OracleURL, a.cfg.Recognition.OracleMaxSide)
		snapshots, err := oracle.NewSnapshotSource(client, snapshotDir, interval)
		if err != nil {
			return err
		}
		if snapshots.Len() == 0 {
			return fmt.Errorf("no snapshot images in %s", snapshotDir)
		}
		source = snapshots
	} else {
		frames, err := openFrames(framesPath)
		if err != nil {
			return err
		}
		defer frames.Close()
		source = consensus.NewJSONLSource(frames, interval)
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(fmt.Sprintf("Observing (%s window)", window)),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWriter(os.Stderr),
	)

	w := &consensus.Window{
		Duration:  window,
		MinFrames: minFrames,
		Tolerance: a.cfg.Recognition.Tolerance,
		OnFrame:   func(consensus.Progress) { _ = bar.Add(1) },
	}
	if gallery.Count() > 0 {
		w.Labeler = gallery
	}

	started := time.Now()
	decision, err := w.Run(ctx, source)
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("observation window failed: %w", err)
	}

	if decision.Interrupted {
		fmt.Printf("Window interrupted after %s\n", time.Since(started).Round(time.Second))
	}
	if !decision.Found {
		fmt.Printf("No identity confirmed in %d frames (need %d)\n", decision.Frames, minFrames)
		return nil
	}
	fmt.Printf("Recognized %s in %d of %d frames\n", decision.Identity, decision.Count, decision.Frames)

	// The window may have been cancelled; the punch itself must still land.
	res, err := a.service.ApplyPunch(context.WithoutCancel(ctx), decision.Identity, a.service.Now())
	if err != nil {
		return errors.New(describePunchError(err))
	}
	if res.Transition.Direction == attendance.PunchOut {
		fmt.Printf("Slot %d lasted %s\n", res.Transition.Slot, attendance.FormatDuration(res.Transition.Duration))
	}
	return nil
}
