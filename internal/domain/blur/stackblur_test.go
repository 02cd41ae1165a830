package blur

import (
	"image"
	"image/color"
	"testing"
)

func uniformImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestTablesExactForUniformRegions(t *testing.T) {
	// A window over a uniform region sums to value*(radius+1)^2, and the
	// multiply/shift pair must recover the value exactly.
	for radius := 0; radius < len(mulTable); radius++ {
		weight := (radius + 1) * (radius + 1)
		for _, value := range []int{1, 128, 255} {
			got := (value * weight * int(mulTable[radius])) >> shgTable[radius]
			if got != value {
				t.Fatalf("radius %d value %d: got %d", radius, value, got)
			}
		}
	}
}

func TestBlurUniformImageUnchanged(t *testing.T) {
	c := color.RGBA{R: 50, G: 100, B: 150, A: 255}
	for _, radius := range []int{1, 2, 5, 8, 31} {
		img := uniformImage(16, 16, c)
		Blur(img, radius)
		for y := 0; y < 16; y++ {
			for x := 0; x < 16; x++ {
				if got := img.RGBAAt(x, y); got != c {
					t.Fatalf("radius %d: pixel (%d,%d) = %v, want %v", radius, x, y, got, c)
				}
			}
		}
	}
}

func TestBlurSmoothsStepEdge(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 32; x++ {
			v := uint8(0)
			if x >= 16 {
				v = 255
			}
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}

	Blur(img, 4)

	row := 4
	prev := -1
	for x := 0; x < 32; x++ {
		v := int(img.RGBAAt(x, row).R)
		if v < prev {
			t.Fatalf("row not monotonic at x=%d: %d after %d", x, v, prev)
		}
		prev = v
	}
	if img.RGBAAt(0, row).R != 0 {
		t.Errorf("far left should stay black, got %d", img.RGBAAt(0, row).R)
	}
	if img.RGBAAt(31, row).R != 255 {
		t.Errorf("far right should stay white, got %d", img.RGBAAt(31, row).R)
	}
	mid := int(img.RGBAAt(16, row).R)
	if mid <= 0 || mid >= 255 {
		t.Errorf("edge should be smoothed, got %d at the step", mid)
	}
}

func TestBlurKeepsSymmetry(t *testing.T) {
	w, h := 17, 9
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			d := x
			if mirror := w - 1 - x; mirror < d {
				d = mirror
			}
			v := uint8(d * 25)
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}

	Blur(img, 3)

	for y := 0; y < h; y++ {
		for x := 0; x < w/2; x++ {
			left := img.RGBAAt(x, y)
			right := img.RGBAAt(w-1-x, y)
			if left != right {
				t.Fatalf("symmetry broken at (%d,%d): %v vs %v", x, y, left, right)
			}
		}
	}
}

func TestBlurDegenerateInputs(t *testing.T) {
	Blur(nil, 5)

	img := uniformImage(4, 4, color.RGBA{R: 9, G: 9, B: 9, A: 255})
	Blur(img, 0)
	if img.RGBAAt(2, 2).R != 9 {
		t.Error("zero radius must not touch pixels")
	}

	tiny := uniformImage(1, 1, color.RGBA{R: 77, G: 1, B: 2, A: 255})
	Blur(tiny, 200)
	if tiny.RGBAAt(0, 0).R != 77 {
		t.Errorf("1x1 image changed: got %d", tiny.RGBAAt(0, 0).R)
	}

	huge := uniformImage(3, 3, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	Blur(huge, 100000)
	if huge.RGBAAt(1, 1).R != 10 {
		t.Errorf("oversized radius should clamp, got %d", huge.RGBAAt(1, 1).R)
	}
}

func TestBlurSubimageOffset(t *testing.T) {
	base := uniformImage(20, 20, color.RGBA{R: 200, G: 10, B: 10, A: 255})
	sub, ok := base.SubImage(image.Rect(5, 5, 15, 15)).(*image.RGBA)
	if !ok {
		t.Fatal("SubImage did not return *image.RGBA")
	}

	Blur(sub, 2)

	if got := sub.RGBAAt(7, 7); got.R != 200 {
		t.Errorf("subimage pixel changed: %v", got)
	}
	if got := base.RGBAAt(0, 0); got.R != 200 {
		t.Errorf("pixel outside subimage changed: %v", got)
	}
}
