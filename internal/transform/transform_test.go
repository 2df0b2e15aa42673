package transform

import (
	"testing"

	"github.com/andrc91/camerafleet/internal/settings"
)

func testFrame(w, h int) *Frame {
	f := NewFrame(w, h, RGB)
	for i := range f.Pix {
		f.Pix[i] = byte(i % 256)
	}
	return f
}

// TestTransformForStillIsColourSwapOfTransform verifies that, for
// identical input and settings, Transform and TransformForStill produce
// identical pixels up to an R/B channel swap.
func TestTransformForStillIsColourSwapOfTransform(t *testing.T) {
	scenarios := []settings.Settings{
		settings.Default(),
		{FlipHorizontal: true},
		{FlipVertical: true},
		{Rotation: 90},
		{Rotation: 180},
		{Rotation: 270},
		{Grayscale: true},
		{CropEnabled: true, CropX: 5, CropY: 5, CropWidth: 20, CropHeight: 20},
		{CropEnabled: true, CropX: 5, CropY: 5, CropWidth: 20, CropHeight: 20, Rotation: 90, FlipHorizontal: true, Grayscale: true},
	}

	for i, s := range scenarios {
		f := testFrame(40, 30)
		got := Transform(f, s)
		still := TransformForStill(testFrame(40, 30), s)

		if got.Width != still.Width || got.Height != still.Height {
			t.Fatalf("scenario %d: size mismatch: transform=%dx%d still=%dx%d",
				i, got.Width, got.Height, still.Width, still.Height)
		}
		for p := 0; p+2 < len(got.Pix); p += 3 {
			r, g, b := got.Pix[p], got.Pix[p+1], got.Pix[p+2]
			sb, sg, sr := still.Pix[p], still.Pix[p+1], still.Pix[p+2]
			if r != sr || g != sg || b != sb {
				t.Fatalf("scenario %d: pixel %d: Transform=(%d,%d,%d) TransformForStill swapped=(%d,%d,%d)",
					i, p/3, r, g, b, sr, sg, sb)
			}
		}
	}
}

func TestCropClampsWithMinimumTenPixels(t *testing.T) {
	f := testFrame(100, 100)
	out := crop(f, 95, 95, 50, 50)
	if out.Width < 10 || out.Height < 10 {
		t.Fatalf("crop produced %dx%d, want >= 10x10", out.Width, out.Height)
	}
	if out.Width > 100 || out.Height > 100 {
		t.Fatalf("crop produced %dx%d, exceeds frame bounds", out.Width, out.Height)
	}
}

func TestCropNegativeOrigin(t *testing.T) {
	f := testFrame(100, 100)
	out := crop(f, -10, -10, 50, 50)
	if out.Width != 50 || out.Height != 50 {
		t.Fatalf("crop with negative origin = %dx%d, want 50x50", out.Width, out.Height)
	}
}

func TestRotate90TwiceIs180(t *testing.T) {
	f := testFrame(8, 6)
	once := rotate(f, 90)
	twice := rotate(once, 90)
	direct := rotate(f, 180)
	if twice.Width != direct.Width || twice.Height != direct.Height {
		t.Fatalf("size mismatch: rotate(rotate(90),90)=%dx%d rotate(180)=%dx%d",
			twice.Width, twice.Height, direct.Width, direct.Height)
	}
	for i := range twice.Pix {
		if twice.Pix[i] != direct.Pix[i] {
			t.Fatalf("pixel %d differs: got %d want %d", i, twice.Pix[i], direct.Pix[i])
		}
	}
}

func TestFlipHorizontalTwiceIsIdentity(t *testing.T) {
	f := testFrame(10, 8)
	out := flipHorizontal(flipHorizontal(f))
	for i := range f.Pix {
		if out.Pix[i] != f.Pix[i] {
			t.Fatalf("pixel %d: flip-flip = %d, want %d (original)", i, out.Pix[i], f.Pix[i])
		}
	}
}

func TestGrayscaleReplicatesAcrossChannels(t *testing.T) {
	f := testFrame(4, 4)
	out := grayscale(f)
	for i := 0; i+2 < len(out.Pix); i += 3 {
		if out.Pix[i] != out.Pix[i+1] || out.Pix[i+1] != out.Pix[i+2] {
			t.Fatalf("pixel %d not replicated across channels: %v", i/3, out.Pix[i:i+3])
		}
	}
}

func TestPureTransformsDoNotMutateInput(t *testing.T) {
	f := testFrame(20, 20)
	orig := append([]byte(nil), f.Pix...)
	_ = Transform(f, settings.Settings{Rotation: 90, FlipHorizontal: true, Grayscale: true})
	for i := range f.Pix {
		if f.Pix[i] != orig[i] {
			t.Fatalf("Transform mutated its input frame at byte %d", i)
		}
	}
}
