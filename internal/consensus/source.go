package consensus

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// maxFrameLineSize bounds one JSONL frame (embeddings make lines long).
const maxFrameLineSize = 4 * 1024 * 1024

// JSONLSource reads one Frame per line from an oracle's JSON Lines output.
// Blank lines are skipped.
type JSONLSource struct {
	scanner  *bufio.Scanner
	line     int
	interval time.Duration
}

// NewJSONLSource creates a source over r. A positive interval paces frames
// like a camera would.
func NewJSONLSource(r io.Reader, interval time.Duration) *JSONLSource {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), maxFrameLineSize)
	return &JSONLSource{scanner: s, interval: interval}
}

// NextFrame implements FrameSource.
func (s *JSONLSource) NextFrame(ctx context.Context) (Frame, error) {
	if s.interval > 0 {
		t := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return Frame{}, ctx.Err()
		case <-t.C:
		}
	}

	for s.scanner.Scan() {
		s.line++
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var f Frame
		if err := json.Unmarshal(line, &f); err != nil {
			return Frame{}, fmt.Errorf("parse frame on line %d: %w", s.line, err)
		}
		return f, nil
	}
	if err := s.scanner.Err(); err != nil {
		return Frame{}, fmt.Errorf("read frames: %w", err)
	}
	return Frame{}, io.EOF
}

// SliceSource replays label sets, one per frame. Useful for request bodies
// that already carry per-frame labels.
type SliceSource struct {
	frames [][]string
	next   int
}

// NewSliceSource creates a source over pre-labelled frames.
func NewSliceSource(frames [][]string) *SliceSource {
	return &SliceSource{frames: frames}
}

// NextFrame implements FrameSource.
func (s *SliceSource) NextFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.next >= len(s.frames) {
		return Frame{}, io.EOF
	}
	labels := s.frames[s.next]
	s.next++

	f := Frame{Detections: make([]Detection, 0, len(labels))}
	for _, l := range labels {
		f.Detections = append(f.Detections, Detection{Label: l})
	}
	return f, nil
}
