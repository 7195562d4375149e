package pipeline

import (
	"testing"

	"github.com/flthibaud/rapidimg/internal/domain"
)

func TestResize_NoDimensionsIsIdentity(t *testing.T) {
	img := buildTestImage(30, 20)
	if got := Resize(img, nil, nil); got != img {
		t.Fatal("expected the same image back when no dimension is set")
	}
}

func TestResize_Dimensions(t *testing.T) {
	img := buildTestImage(200, 100)

	cases := []struct {
		name          string
		width, height *uint32
		wantW, wantH  int
	}{
		{"width only", domain.Dimension(50), nil, 50, 25},
		{"height only", nil, domain.Dimension(40), 80, 40},
		{"both", domain.Dimension(10), domain.Dimension(70), 10, 70},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := Resize(img, tc.width, tc.height).Bounds()
			if b.Dx() != tc.wantW || b.Dy() != tc.wantH {
				t.Fatalf("expected %dx%d, got %dx%d", tc.wantW, tc.wantH, b.Dx(), b.Dy())
			}
		})
	}
}

func TestTargetSize_Truncates(t *testing.T) {
	w, h := TargetSize(3, 2, domain.Dimension(2), nil)
	if w != 2 || h != 1 {
		t.Fatalf("expected 2x1, got %dx%d", w, h)
	}

	w, h = TargetSize(1000, 1, domain.Dimension(10), nil)
	if w != 10 || h != 1 {
		t.Fatalf("expected derived height clamped to 1, got %dx%d", w, h)
	}

	w, h = TargetSize(7, 9, nil, nil)
	if w != 7 || h != 9 {
		t.Fatalf("expected source size, got %dx%d", w, h)
	}
}
