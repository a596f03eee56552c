// Package oracle talks to an external face embedding server. The server
// detects faces in a snapshot and returns one embedding per face; matching
// embeddings to registrants happens locally in the face gallery.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/consensus"
)

const (
	defaultBaseURL = "http://localhost:8000"
	faceEndpoint   = "/embed/face"
	requestTimeout = 30 * time.Second
)

// ErrNoFace is returned when a registration snapshot contains no face.
var ErrNoFace = errors.New("no face detected")

// ErrMultipleFaces is returned when a registration snapshot is ambiguous.
var ErrMultipleFaces = errors.New("more than one face detected")

// FaceDetection is a single face reported by the server.
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse is the body of the face embedding endpoint.
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Client computes face embeddings using the embedding server.
type Client struct {
	baseURL string
	maxSide int
	client  *http.Client
}

// NewClient creates a new client. Snapshots larger than maxSide pixels on
// either axis are downscaled before upload; maxSide <= 0 disables that.
func NewClient(baseURL string, maxSide int) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		maxSide: maxSide,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// postImage posts imageData as a multipart file to endpoint.
func (c *Client) postImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="snapshot.jpg"`)
	h.Set("Content-Type", DetectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// DetectFaces returns every face found in a snapshot.
func (c *Client) DetectFaces(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	data, err := Downscale(imageData, c.maxSide)
	if err != nil {
		return nil, err
	}

	body, err := c.postImage(ctx, faceEndpoint, data)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &faceResp, nil
}

// Frame runs DetectFaces and converts the result into a recognition frame.
// Labels are left empty so the gallery resolves each embedding.
func (c *Client) Frame(ctx context.Context, imageData []byte) (consensus.Frame, error) {
	resp, err := c.DetectFaces(ctx, imageData)
	if err != nil {
		return consensus.Frame{}, err
	}
	f := consensus.Frame{Detections: make([]consensus.Detection, 0, len(resp.Faces))}
	for _, face := range resp.Faces {
		f.Detections = append(f.Detections, consensus.Detection{BBox: face.BBox, Embedding: face.Embedding})
	}
	return f, nil
}

// SingleFace returns the embedding of the only face in a registration
// snapshot.
func (c *Client) SingleFace(ctx context.Context, imageData []byte) ([]float32, error) {
	resp, err := c.DetectFaces(ctx, imageData)
	if err != nil {
		return nil, err
	}
	switch len(resp.Faces) {
	case 0:
		return nil, ErrNoFace
	case 1:
	default:
		return nil, fmt.Errorf("%w: %d faces", ErrMultipleFaces, len(resp.Faces))
	}
	if len(resp.Faces[0].Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	return resp.Faces[0].Embedding, nil
}
