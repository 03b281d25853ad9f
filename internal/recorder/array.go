package recorder

import (
	"image"
	"image/color"
	"slices"
)

// Element is a numeric array element type.
type Element interface {
	~uint8 | ~uint16 | ~int16 | ~int32 | ~float32 | ~float64
}

// Array is a dense row-major buffer with an explicit shape.
type Array[E Element] struct {
	Shape []int
	Data  []E
}

// NewArray wraps data with the given shape. The shape is not checked here;
// recorders reject arrays whose shape does not cover data exactly.
func NewArray[E Element](data []E, shape ...int) Array[E] {
	return Array[E]{Shape: shape, Data: data}
}

// Rank returns the number of dimensions.
func (a Array[E]) Rank() int {
	return len(a.Shape)
}

// Size returns the product of the shape.
func (a Array[E]) Size() int {
	if len(a.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

func (a Array[E]) check() error {
	for _, d := range a.Shape {
		if d < 0 {
			return validationErrorf(KindDimension, "negative dimension in shape %v", a.Shape)
		}
	}
	if len(a.Shape) == 0 || slices.Contains(a.Shape, 0) {
		if len(a.Data) != 0 {
			return validationErrorf(KindDimension, "shape %v needs 0 elements, got %d", a.Shape, len(a.Data))
		}
		return nil
	}
	// Multiply without exceeding len(Data) so huge shapes cannot overflow.
	n := 1
	for _, d := range a.Shape {
		if n > len(a.Data)/d {
			return validationErrorf(KindDimension, "shape %v needs more than the %d elements given", a.Shape, len(a.Data))
		}
		n *= d
	}
	if n != len(a.Data) {
		return validationErrorf(KindDimension, "shape %v needs %d elements, got %d", a.Shape, n, len(a.Data))
	}
	return nil
}

// Frame is one video frame shaped (height, width, channels) with 8-bit
// channel-interleaved pixels. One channel is grayscale, three are RGB and
// four are RGBA.
type Frame = Array[uint8]

// Samples is a block of audio shaped (n) for mono or (n, channels) with
// interleaved channels. Values are expected in [-1, 1].
type Samples = Array[float32]

// NewFrame allocates a zeroed frame.
func NewFrame(height, width, channels int) Frame {
	return NewArray(make([]uint8, height*width*channels), height, width, channels)
}

// FrameFromImage converts img into a frame with the given channel count.
func FrameFromImage(img image.Image, channels int) (Frame, error) {
	if channels != 1 && channels != 3 && channels != 4 {
		return Frame{}, configErrorf("channels", "must be 1, 3 or 4, got %d", channels)
	}

	b := img.Bounds()
	f := NewFrame(b.Dy(), b.Dx(), channels)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.At(x, y)
			if channels == 1 {
				f.Data[i] = color.GrayModel.Convert(c).(color.Gray).Y
				i++
				continue
			}
			n := color.NRGBAModel.Convert(c).(color.NRGBA)
			f.Data[i], f.Data[i+1], f.Data[i+2] = n.R, n.G, n.B
			if channels == 4 {
				f.Data[i+3] = n.A
			}
			i += channels
		}
	}
	return f, nil
}

// Mono wraps a single-channel sample block.
func Mono(data []float32) Samples {
	return NewArray(data, len(data))
}

// Interleaved wraps frames of interleaved samples for the given channel
// count.
func Interleaved(data []float32, channels int) Samples {
	if channels <= 0 {
		return NewArray(data, len(data), channels)
	}
	return NewArray(data, len(data)/channels, channels)
}
