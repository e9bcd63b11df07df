package matcher

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"math/bits"
	"os"
	"slices"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// FaceHash holds the perceptual hashes of one face image.
type FaceHash struct {
	PHash uint64
	DHash uint64
}

// HashMatcher is a local matcher based on perceptual hashes. It needs no
// external service and only recognizes near-identical captures, which makes
// it a fallback for setups without an embedding server.
type HashMatcher struct {
	threshold int
}

// NewHashMatcher accepts a pair when both the pHash and dHash Hamming
// distances are at most threshold bits.
func NewHashMatcher(threshold int) *HashMatcher {
	return &HashMatcher{threshold: threshold}
}

func (m *HashMatcher) Verify(ctx context.Context, imageA, imageB string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrMatch, err)
	}
	a, err := hashFile(imageA)
	if err != nil {
		return Result{}, err
	}
	b, err := hashFile(imageB)
	if err != nil {
		return Result{}, err
	}

	pd := HammingDistance(a.PHash, b.PHash)
	dd := HammingDistance(a.DHash, b.DHash)
	return Result{
		Verified: pd <= m.threshold && dd <= m.threshold,
		Distance: float64(max(pd, dd)) / 64,
	}, nil
}

func hashFile(path string) (FaceHash, error) {
	f, err := os.Open(path)
	if err != nil {
		return FaceHash{}, fmt.Errorf("%w: %w", ErrMatch, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return FaceHash{}, fmt.Errorf("%w: decode %s: %w", ErrMatch, path, err)
	}
	return ComputeFaceHash(img), nil
}

// ComputeFaceHash computes the pHash and dHash of img.
func ComputeFaceHash(img image.Image) FaceHash {
	return FaceHash{
		PHash: computePHash(img),
		DHash: computeDHash(img),
	}
}

// HammingDistance computes the Hamming distance between two 64-bit hashes.
func HammingDistance(hash1, hash2 uint64) int {
	return bits.OnesCount64(hash1 ^ hash2)
}

// computePHash hashes the low-frequency 8x8 block of a 32x32 DCT, skipping
// the DC term, against its median.
func computePHash(img image.Image) uint64 {
	gray := luma(resize(img, 32, 32))
	dct := dct2D(gray)

	coeffs := make([]float64, 0, 64)
	for u := range 9 {
		for v := range 8 {
			if u == 0 && v == 0 {
				continue
			}
			if len(coeffs) < 64 {
				coeffs = append(coeffs, dct[u][v])
			}
		}
	}

	sorted := slices.Clone(coeffs)
	slices.Sort(sorted)
	median := (sorted[31] + sorted[32]) / 2

	var hash uint64
	for i, c := range coeffs {
		if c > median {
			hash |= 1 << (63 - i)
		}
	}
	return hash
}

// computeDHash compares horizontally adjacent pixels of a 9x8 thumbnail.
func computeDHash(img image.Image) uint64 {
	gray := luma(resize(img, 9, 8))

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if gray[x][y] > gray[x+1][y] {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}

func resize(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// luma returns gray[x][y] in 0-255 using ITU-R BT.601 weights.
func luma(img *image.RGBA) [][]float64 {
	b := img.Bounds()
	gray := make([][]float64, b.Dx())
	for x := range b.Dx() {
		gray[x] = make([]float64, b.Dy())
		for y := range b.Dy() {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			gray[x][y] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(bl>>8)
		}
	}
	return gray
}

// dct2D computes a DCT-II of a square matrix.
func dct2D(in [][]float64) [][]float64 {
	n := len(in)
	cos := make([][]float64, n)
	for i := range n {
		cos[i] = make([]float64, n)
		for j := range n {
			cos[i][j] = math.Cos(math.Pi * float64(i) * (2*float64(j) + 1) / (2 * float64(n)))
		}
	}

	out := make([][]float64, n)
	for u := range n {
		out[u] = make([]float64, n)
		for v := range n {
			var sum float64
			for x := range n {
				for y := range n {
					sum += in[x][y] * cos[u][x] * cos[v][y]
				}
			}
			out[u][v] = sum
		}
	}
	return out
}
