package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"length mismatch", []float32{1, 0}, []float32{1}, 1},
		{"empty", nil, nil, 1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CosineDistance(tc.a, tc.b); math.Abs(got-tc.expected) > 1e-9 {
				t.Errorf("CosineDistance(%v, %v) = %v; want %v", tc.a, tc.b, got, tc.expected)
			}
		})
	}
}

func TestHammingDistance(t *testing.T) {
	tests := []struct {
		name     string
		hash1    uint64
		hash2    uint64
		expected int
	}{
		{"identical", 0x0, 0x0, 0},
		{"completely different", 0xFFFFFFFFFFFFFFFF, 0x0, 64},
		{"one bit different", 0x1, 0x0, 1},
		{"alternating", 0xAAAAAAAAAAAAAAAA, 0x5555555555555555, 64},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := HammingDistance(tc.hash1, tc.hash2); got != tc.expected {
				t.Errorf("HammingDistance(%x, %x) = %d; want %d", tc.hash1, tc.hash2, got, tc.expected)
			}
		})
	}
}

// createGradientImage creates a horizontal gradient, rising left to right
// unless reversed.
func createGradientImage(w, h int, reversed bool) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		v := uint8(x * 255 / (w - 1))
		if reversed {
			v = 255 - v
		}
		for y := range h {
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

func savePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHashMatcher_IdenticalImagesVerify(t *testing.T) {
	dir := t.TempDir()
	a := savePNG(t, dir, "a.png", createGradientImage(90, 80, false))
	b := savePNG(t, dir, "b.png", createGradientImage(90, 80, false))

	result, err := NewHashMatcher(12).Verify(context.Background(), a, b)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Verified {
		t.Errorf("expected identical images to verify, distance %v", result.Distance)
	}
	if result.Distance != 0 {
		t.Errorf("expected zero distance, got %v", result.Distance)
	}
}

func TestHashMatcher_DifferentImagesRejected(t *testing.T) {
	dir := t.TempDir()
	a := savePNG(t, dir, "a.png", createGradientImage(90, 80, false))
	b := savePNG(t, dir, "b.png", createGradientImage(90, 80, true))

	result, err := NewHashMatcher(12).Verify(context.Background(), a, b)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Verified {
		t.Errorf("expected mirrored gradients not to verify, distance %v", result.Distance)
	}
}

func TestHashMatcher_Errors(t *testing.T) {
	dir := t.TempDir()
	a := savePNG(t, dir, "a.png", createGradientImage(20, 20, false))
	garbage := filepath.Join(dir, "garbage.jpg")
	if err := os.WriteFile(garbage, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewHashMatcher(12)
	if _, err := m.Verify(context.Background(), a, filepath.Join(dir, "missing.jpg")); !errors.Is(err, ErrMatch) {
		t.Errorf("expected ErrMatch for missing file, got %v", err)
	}
	if _, err := m.Verify(context.Background(), a, garbage); !errors.Is(err, ErrMatch) {
		t.Errorf("expected ErrMatch for undecodable file, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Verify(ctx, a, a); !errors.Is(err, ErrMatch) {
		t.Errorf("expected ErrMatch for cancelled context, got %v", err)
	}
}

// embeddingServer serves fixed embeddings keyed by the uploaded file content.
func embeddingServer(t *testing.T, faceCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	vectors := map[string][]float32{
		"alice":   {1, 0, 0},
		"alice-2": {0.95, 0.05, 0},
		"bob":     {0, 1, 0},
	}

	readUpload := func(r *http.Request) string {
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			return ""
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		return string(data)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/embed/face", func(w http.ResponseWriter, r *http.Request) {
		faceCalls.Add(1)
		content := readUpload(r)
		if content == "broken" {
			http.Error(w, "model crashed", http.StatusInternalServerError)
			return
		}
		resp := FaceResponse{Model: "test"}
		if vec, ok := vectors[content]; ok {
			resp.FacesCount = 2
			resp.Faces = []FaceDetection{
				{FaceIndex: 0, Embedding: []float32{0, 0, 1}, DetScore: 0.2},
				{FaceIndex: 1, Embedding: vec, DetScore: 0.9},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/embed/image", func(w http.ResponseWriter, r *http.Request) {
		readUpload(r)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"dim": 3, "embedding": []float32{1, 0, 0}, "model": "test"})
	})
	return httptest.NewServer(mux)
}

func writeContent(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEmbeddingMatcher_Verify(t *testing.T) {
	var calls atomic.Int32
	server := embeddingServer(t, &calls)
	defer server.Close()

	dir := t.TempDir()
	probe := writeContent(t, dir, "probe.jpg", "alice-2")
	alice := writeContent(t, dir, "alice.jpg", "alice")
	bob := writeContent(t, dir, "bob.jpg", "bob")
	noFace := writeContent(t, dir, "noface.jpg", "landscape")

	m := NewEmbeddingMatcher(NewEmbeddingClient(server.URL+"/", nil), 0.4)
	ctx := context.Background()

	result, err := m.Verify(ctx, probe, alice)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Verified {
		t.Errorf("expected probe to match alice, distance %v", result.Distance)
	}

	result, err = m.Verify(ctx, probe, bob)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Verified {
		t.Errorf("expected probe not to match bob, distance %v", result.Distance)
	}

	// No face found falls back to the whole-image embedding ({1,0,0}).
	result, err = m.Verify(ctx, noFace, alice)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Verified || result.Distance > 1e-6 {
		t.Errorf("expected whole-image fallback to match alice exactly, got %+v", result)
	}
}

func TestEmbeddingMatcher_CachesReferences(t *testing.T) {
	var calls atomic.Int32
	server := embeddingServer(t, &calls)
	defer server.Close()

	dir := t.TempDir()
	probe := writeContent(t, dir, "probe.jpg", "alice")
	alice := writeContent(t, dir, "alice.jpg", "alice")

	m := NewEmbeddingMatcher(NewEmbeddingClient(server.URL, nil), 0.4)
	for range 3 {
		if _, err := m.Verify(context.Background(), probe, alice); err != nil {
			t.Fatal(err)
		}
	}

	// 3 probe embeddings + 1 reference embedding.
	if got := calls.Load(); got != 4 {
		t.Errorf("expected 4 embedding calls, got %d", got)
	}
}

func TestEmbeddingMatcher_ServerErrorIsMatchError(t *testing.T) {
	var calls atomic.Int32
	server := embeddingServer(t, &calls)
	defer server.Close()

	dir := t.TempDir()
	probe := writeContent(t, dir, "probe.jpg", "broken")
	alice := writeContent(t, dir, "alice.jpg", "alice")

	m := NewEmbeddingMatcher(NewEmbeddingClient(server.URL, nil), 0.4)
	if _, err := m.Verify(context.Background(), probe, alice); !errors.Is(err, ErrMatch) {
		t.Errorf("expected ErrMatch, got %v", err)
	}
	if _, err := m.Verify(context.Background(), filepath.Join(dir, "missing.jpg"), alice); !errors.Is(err, ErrMatch) {
		t.Errorf("expected ErrMatch for missing probe, got %v", err)
	}
}
