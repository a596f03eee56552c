package oracle

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/consensus"
)

var snapshotExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".webp": true,
}

// SnapshotSource feeds captured snapshot files through the oracle, one
// frame per file in name order.
type SnapshotSource struct {
	client   *Client
	paths    []string
	next     int
	interval time.Duration
}

// NewSnapshotSource lists the image files in dir.
func NewSnapshotSource(client *Client, dir string, interval time.Duration) (*SnapshotSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read snapshot directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !snapshotExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	slices.Sort(paths)
	return &SnapshotSource{client: client, paths: paths, interval: interval}, nil
}

// Len returns the number of snapshots found.
func (s *SnapshotSource) Len() int { return len(s.paths) }

// NextFrame implements consensus.FrameSource.
func (s *SnapshotSource) NextFrame(ctx context.Context) (consensus.Frame, error) {
	if s.next >= len(s.paths) {
		return consensus.Frame{}, io.EOF
	}
	if s.interval > 0 && s.next > 0 {
		t := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return consensus.Frame{}, ctx.Err()
		case <-t.C:
		}
	}

	path := s.paths[s.next]
	s.next++
	data, err := os.ReadFile(path) //nolint:gosec // listed from the operator's directory
	if err != nil {
		return consensus.Frame{}, fmt.Errorf("read snapshot: %w", err)
	}
	f, err := s.client.Frame(ctx, data)
	if err != nil {
		return consensus.Frame{}, fmt.Errorf("snapshot %s: %w", filepath.Base(path), err)
	}
	return f, nil
}
