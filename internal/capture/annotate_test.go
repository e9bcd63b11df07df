package capture

import (
	"image"
	"testing"
	"time"
)

func TestCropFace(t *testing.T) {
	frame := newFrame()

	tests := []struct {
		name string
		rect image.Rectangle
		want image.Rectangle
	}{
		{"inside", image.Rect(10, 20, 60, 90), image.Rect(0, 0, 50, 70)},
		{"clipped", image.Rect(150, 150, 260, 260), image.Rect(0, 0, 50, 50)},
		{"outside", image.Rect(300, 300, 400, 400), image.Rectangle{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			face := cropFace(frame, tt.rect)
			if tt.want.Empty() {
				if face != nil {
					t.Errorf("expected nil crop, got %v", face.Bounds())
				}
				return
			}
			if face == nil {
				t.Fatal("expected a crop")
			}
			if face.Bounds() != tt.want {
				t.Errorf("bounds = %v, want %v", face.Bounds(), tt.want)
			}
		})
	}
}

func TestDrawFaceMarkerNearTopEdge(t *testing.T) {
	frame := newFrame()
	r := image.Rect(20, 0, 80, 60)

	drawFaceMarker(frame, r)

	if c := frame.RGBAAt(20, 0); c != markerColor {
		t.Errorf("expected marker at top-left corner, got %v", c)
	}
	if c := frame.RGBAAt(79, 59); c != markerColor {
		t.Errorf("expected marker at bottom-right corner, got %v", c)
	}
	if c := frame.RGBAAt(40, 40); c == markerColor {
		t.Error("marker must not fill the face")
	}
}

func TestCooldown(t *testing.T) {
	c := NewCooldown(500 * time.Millisecond)
	t0 := time.Unix(100, 0)

	if !c.Ready(t0) {
		t.Fatal("fresh cooldown must be ready")
	}
	c.Mark(t0)

	tests := []struct {
		offset time.Duration
		want   bool
	}{
		{0, false},
		{499 * time.Millisecond, false},
		{500 * time.Millisecond, false},
		{501 * time.Millisecond, true},
	}
	for _, tt := range tests {
		if got := c.Ready(t0.Add(tt.offset)); got != tt.want {
			t.Errorf("Ready(+%v) = %v, want %v", tt.offset, got, tt.want)
		}
	}
}
