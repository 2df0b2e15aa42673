// Package transform implements the pure frame-transform pipeline shared
// identically by the preview loop and the still handler: crop, rotation,
// horizontal flip, vertical flip, and grayscale.
package transform

import "github.com/andrc91/camerafleet/internal/settings"

// ColorOrder selects the channel order of a Frame's triplets.
type ColorOrder int

const (
	RGB ColorOrder = iota
	BGR
)

// Frame is a packed 3-channels-per-pixel raster buffer, row-major,
// channel order given by Order. It is the common currency between the
// sensor's raw capture and the JPEG encoder.
type Frame struct {
	Width, Height int
	Order         ColorOrder
	Pix           []byte // len == Width*Height*3
}

// NewFrame allocates a zeroed frame of the given size and order.
func NewFrame(w, h int, order ColorOrder) *Frame {
	return &Frame{Width: w, Height: h, Order: order, Pix: make([]byte, w*h*3)}
}

func (f *Frame) at(x, y int) []byte {
	i := (y*f.Width + x) * 3
	return f.Pix[i : i+3]
}

// Transform applies the settings-driven pipeline to an RGB frame and
// returns an RGB frame (used by the preview loop).
func Transform(f *Frame, s settings.Settings) *Frame {
	return pipeline(f, s, RGB)
}

// TransformForStill applies the identical pipeline but swaps to BGR
// channel order first (encoder-appropriate for the still path). Because
// crop, rotation, and flips are purely spatial and grayscale replicates
// luminance across all three channels identically regardless of order,
// swapping colour order before or after the spatial pipeline yields the
// same pixels up to that swap.
func TransformForStill(f *Frame, s settings.Settings) *Frame {
	return pipeline(swapColorOrder(f), s, BGR)
}

// pipeline runs crop -> rotate -> flip-H -> flip-V -> grayscale in that
// fixed order. outOrder is carried through for bookkeeping;
// the pixel values are untouched by this function except where grayscale
// replicates luminance.
func pipeline(f *Frame, s settings.Settings, outOrder ColorOrder) *Frame {
	out := f
	if s.CropEnabled {
		out = crop(out, s.CropX, s.CropY, s.CropWidth, s.CropHeight)
	}
	out = rotate(out, s.Rotation)
	if s.FlipHorizontal {
		out = flipHorizontal(out)
	}
	if s.FlipVertical {
		out = flipVertical(out)
	}
	if s.Grayscale {
		out = grayscale(out)
	}
	out.Order = outOrder
	return out
}

// swapColorOrder returns a copy of f with R and B channels exchanged.
func swapColorOrder(f *Frame) *Frame {
	out := &Frame{Width: f.Width, Height: f.Height, Order: f.Order, Pix: make([]byte, len(f.Pix))}
	for i := 0; i+2 < len(f.Pix); i += 3 {
		out.Pix[i] = f.Pix[i+2]
		out.Pix[i+1] = f.Pix[i+1]
		out.Pix[i+2] = f.Pix[i]
	}
	if f.Order == RGB {
		out.Order = BGR
	} else {
		out.Order = RGB
	}
	return out
}

// crop clamps (x, y, w, h) to the frame bounds with a minimum 10px each
// side, then slices.
func crop(f *Frame, x, y, w, h int) *Frame {
	if x < 0 {
		x = 0
	}
	if x > f.Width-10 {
		x = f.Width - 10
	}
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if y > f.Height-10 {
		y = f.Height - 10
	}
	if y < 0 {
		y = 0
	}
	if w < 10 {
		w = 10
	}
	if w > f.Width-x {
		w = f.Width - x
	}
	if h < 10 {
		h = 10
	}
	if h > f.Height-y {
		h = f.Height - y
	}

	out := NewFrame(w, h, f.Order)
	for row := 0; row < h; row++ {
		copy(out.at(0, row), f.Pix[((y+row)*f.Width+x)*3:((y+row)*f.Width+x+w)*3])
	}
	return out
}

// rotate applies a fixed rotation: 0, 90 (CW), 180, or 270 (CW, i.e. 90
// CCW). Unrecognised angles are a no-op.
func rotate(f *Frame, angle int) *Frame {
	switch angle {
	case 90:
		out := NewFrame(f.Height, f.Width, f.Order)
		for y := 0; y < f.Height; y++ {
			for x := 0; x < f.Width; x++ {
				copy(out.at(f.Height-1-y, x), f.at(x, y))
			}
		}
		return out
	case 180:
		out := NewFrame(f.Width, f.Height, f.Order)
		for y := 0; y < f.Height; y++ {
			for x := 0; x < f.Width; x++ {
				copy(out.at(f.Width-1-x, f.Height-1-y), f.at(x, y))
			}
		}
		return out
	case 270:
		out := NewFrame(f.Height, f.Width, f.Order)
		for y := 0; y < f.Height; y++ {
			for x := 0; x < f.Width; x++ {
				copy(out.at(y, f.Width-1-x), f.at(x, y))
			}
		}
		return out
	default:
		out := NewFrame(f.Width, f.Height, f.Order)
		copy(out.Pix, f.Pix)
		return out
	}
}

func flipHorizontal(f *Frame) *Frame {
	out := NewFrame(f.Width, f.Height, f.Order)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			copy(out.at(f.Width-1-x, y), f.at(x, y))
		}
	}
	return out
}

func flipVertical(f *Frame) *Frame {
	out := NewFrame(f.Width, f.Height, f.Order)
	for y := 0; y < f.Height; y++ {
		copy(out.at(0, f.Height-1-y), f.Pix[y*f.Width*3:(y+1)*f.Width*3])
	}
	return out
}

// grayscale converts to luminance and replicates it across all three
// channels so downstream code can keep assuming a 3-channel frame.
func grayscale(f *Frame) *Frame {
	out := NewFrame(f.Width, f.Height, f.Order)
	for i := 0; i+2 < len(f.Pix); i += 3 {
		var r, g, b byte
		if f.Order == BGR {
			b, g, r = f.Pix[i], f.Pix[i+1], f.Pix[i+2]
		} else {
			r, g, b = f.Pix[i], f.Pix[i+1], f.Pix[i+2]
		}
		y := byte((299*int(r) + 587*int(g) + 114*int(b)) / 1000)
		out.Pix[i], out.Pix[i+1], out.Pix[i+2] = y, y, y
	}
	return out
}
