package source

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"time"

	"github.com/audiolibrelab/streamrec/internal/recorder"
)

var bars = []color.NRGBA{
	{R: 192, G: 192, B: 192, A: 255},
	{R: 192, G: 192, B: 0, A: 255},
	{R: 0, G: 192, B: 192, A: 255},
	{R: 0, G: 192, B: 0, A: 255},
	{R: 192, G: 0, B: 192, A: 255},
	{R: 192, G: 0, B: 0, A: 255},
	{R: 0, G: 0, B: 192, A: 255},
}

// Pattern draws colour bars with a white block sweeping across them, one
// frame per Read.
type Pattern struct {
	params recorder.VideoParams
	pace   *pacer
	frame  int
	canvas *image.NRGBA
}

// NewPattern returns a test pattern producer for params. With realtime set
// frames are paced at params.FPS.
func NewPattern(ctx context.Context, params recorder.VideoParams, realtime bool) *Pattern {
	period := time.Duration(0)
	if realtime && params.FPS > 0 {
		period = time.Duration(float64(time.Second) / params.FPS)
	}
	return &Pattern{
		params: params,
		pace:   newPacer(ctx, period),
		canvas: image.NewNRGBA(image.Rect(0, 0, params.Width, params.Height)),
	}
}

func (p *Pattern) Read() (recorder.Frame, error) {
	if err := p.pace.wait(); err != nil {
		return recorder.Frame{}, err
	}

	w, h := p.params.Width, p.params.Height
	for i, c := range bars {
		x0, x1 := i*w/len(bars), (i+1)*w/len(bars)
		draw.Draw(p.canvas, image.Rect(x0, 0, x1, h), &image.Uniform{C: c}, image.Point{}, draw.Src)
	}

	size := max(1, h/4)
	x := p.frame % max(1, w)
	y := (h - size) / 2
	draw.Draw(p.canvas, image.Rect(x, y, x+size, y+size), image.White, image.Point{}, draw.Src)
	p.frame++

	return recorder.FrameFromImage(p.canvas, p.params.Channels)
}

// Frames returns how many frames have been drawn.
func (p *Pattern) Frames() int {
	return p.frame
}
