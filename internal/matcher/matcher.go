// Package matcher decides whether two face images show the same person.
package matcher

import (
	"context"
	"errors"
	"math"
)

// ErrMatch marks a comparison that could not be completed. Callers treat it
// as a non-match.
var ErrMatch = errors.New("face match failed")

// Result is the outcome of one comparison.
type Result struct {
	Verified bool    `json:"verified"`
	Distance float64 `json:"distance"`
}

// Matcher compares two face images stored on disk.
type Matcher interface {
	Verify(ctx context.Context, imageA, imageB string) (Result, error)
}

// CosineSimilarity computes the cosine similarity between two embedding vectors.
// Returns a value between -1 and 1, where 1 means identical.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineDistance returns 1 - cosine similarity (0 = identical, 2 = opposite).
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}
