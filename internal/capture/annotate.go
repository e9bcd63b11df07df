package capture

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const markerThickness = 2

var markerColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// cropFace copies the face region into a new image with a zero origin.
// Returns nil when the region does not overlap the frame.
func cropFace(frame *image.RGBA, r image.Rectangle) *image.RGBA {
	r = r.Intersect(frame.Bounds())
	if r.Empty() {
		return nil
	}
	face := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(face, face.Bounds(), frame, r.Min, draw.Src)
	return face
}

// drawFaceMarker outlines the face and labels it.
func drawFaceMarker(frame *image.RGBA, r image.Rectangle) {
	r = r.Intersect(frame.Bounds())
	src := image.NewUniform(markerColor)
	for i := range markerThickness {
		edges := []image.Rectangle{
			image.Rect(r.Min.X, r.Min.Y+i, r.Max.X, r.Min.Y+i+1),
			image.Rect(r.Min.X, r.Max.Y-i-1, r.Max.X, r.Max.Y-i),
			image.Rect(r.Min.X+i, r.Min.Y, r.Min.X+i+1, r.Max.Y),
			image.Rect(r.Max.X-i-1, r.Min.Y, r.Max.X-i, r.Max.Y),
		}
		for _, e := range edges {
			draw.Draw(frame, e.Intersect(r), src, image.Point{}, draw.Src)
		}
	}

	labelY := r.Min.Y - 10
	if labelY < basicfont.Face7x13.Height {
		labelY = r.Min.Y + basicfont.Face7x13.Height + markerThickness
	}
	drawLabel(frame, "Face Detected", r.Min.X, labelY)
}

// drawFaceCount writes the per-frame face counter in the top-left corner.
func drawFaceCount(frame *image.RGBA, n int) {
	b := frame.Bounds()
	drawLabel(frame, fmt.Sprintf("Faces Detected: %d", n), b.Min.X+10, b.Min.Y+30)
}

func drawLabel(frame *image.RGBA, text string, x, y int) {
	d := &font.Drawer{
		Dst:  frame,
		Src:  image.NewUniform(markerColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
