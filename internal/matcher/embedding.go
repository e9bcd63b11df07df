package matcher

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
	"os"
	"strings"
	"sync"
	"time"
)

const defaultEmbeddingURL = "http://localhost:8000"

// EmbeddingClient talks to the face embedding server.
type EmbeddingClient struct {
	baseURL string
	client  *http.Client
}

// NewEmbeddingClient creates a new embedding client
func NewEmbeddingClient(baseURL string, httpClient *http.Client) *EmbeddingClient {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &EmbeddingClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  httpClient,
	}
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

type imageEmbeddingResponse struct {
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

// postImage posts the image as a multipart form to the given endpoint.
func (c *EmbeddingClient) postImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="face.jpg"`)
	h.Set("Content-Type", http.DetectContentType(imageData))
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
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// ComputeFaceEmbeddings detects faces and computes their embeddings
func (c *EmbeddingClient) ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	body, err := c.postImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &faceResp, nil
}

// ComputeImageEmbedding embeds the whole image without face detection.
func (c *EmbeddingClient) ComputeImageEmbedding(ctx context.Context, imageData []byte) ([]float32, error) {
	body, err := c.postImage(ctx, "/embed/image", imageData)
	if err != nil {
		return nil, err
	}

	var embResp imageEmbeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(embResp.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}

	return embResp.Embedding, nil
}

// FaceEmbedding returns the embedding of the most confident face in the
// image. The inputs are already face crops, so when the server finds no face
// the whole image is embedded instead.
func (c *EmbeddingClient) FaceEmbedding(ctx context.Context, imageData []byte) ([]float32, error) {
	resp, err := c.ComputeFaceEmbeddings(ctx, imageData)
	if err != nil {
		return nil, err
	}

	var best *FaceDetection
	for i := range resp.Faces {
		face := &resp.Faces[i]
		if len(face.Embedding) == 0 {
			continue
		}
		if best == nil || face.DetScore > best.DetScore {
			best = face
		}
	}
	if best != nil {
		return best.Embedding, nil
	}

	return c.ComputeImageEmbedding(ctx, imageData)
}

// EmbeddingMatcher verifies faces by cosine distance between embeddings.
// Reference embeddings are cached per path and invalidated when the file's
// modification time or size changes.
type EmbeddingMatcher struct {
	client    *EmbeddingClient
	threshold float64

	mu    sync.Mutex
	cache map[string]cachedEmbedding
}

type cachedEmbedding struct {
	modTime   time.Time
	size      int64
	embedding []float32
}

// NewEmbeddingMatcher creates a matcher that accepts pairs whose cosine
// distance is at most threshold.
func NewEmbeddingMatcher(client *EmbeddingClient, threshold float64) *EmbeddingMatcher {
	return &EmbeddingMatcher{
		client:    client,
		threshold: threshold,
		cache:     make(map[string]cachedEmbedding),
	}
}

// Verify compares the probe image (imageA, never cached) with the reference
// image (imageB).
func (m *EmbeddingMatcher) Verify(ctx context.Context, imageA, imageB string) (Result, error) {
	probe, err := m.embed(ctx, imageA, false)
	if err != nil {
		return Result{}, err
	}
	reference, err := m.embed(ctx, imageB, true)
	if err != nil {
		return Result{}, err
	}
	if len(probe) != len(reference) {
		return Result{}, fmt.Errorf("%w: embedding dimensions differ (%d vs %d)", ErrMatch, len(probe), len(reference))
	}

	distance := CosineDistance(probe, reference)
	return Result{Verified: distance <= m.threshold, Distance: distance}, nil
}

func (m *EmbeddingMatcher) embed(ctx context.Context, path string, cacheable bool) ([]float32, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMatch, err)
	}

	if cacheable {
		m.mu.Lock()
		cached, ok := m.cache[path]
		m.mu.Unlock()
		if ok && cached.modTime.Equal(info.ModTime()) && cached.size == info.Size() {
			return cached.embedding, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMatch, err)
	}
	embedding, err := m.client.FaceEmbedding(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: embed %s: %w", ErrMatch, path, err)
	}

	if cacheable {
		m.mu.Lock()
		m.cache[path] = cachedEmbedding{modTime: info.ModTime(), size: info.Size(), embedding: embedding}
		m.mu.Unlock()
	}
	return embedding, nil
}
