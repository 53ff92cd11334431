package scene

import (
	"context"

	"pixoo-scened/internal/canvas"
)

// emptyScene clears the canvas and pushes once, a single-shot no-op
// used when discovery finds nothing to show.
type emptyScene struct{}

func newEmptyScene() Module { return emptyScene{} }

func (emptyScene) Name() string    { return "empty" }
func (emptyScene) WantsLoop() bool { return false }

func (emptyScene) Render(ctx *RenderContext) (RenderResult, error) {
	ctx.Device.Canvas().Clear()
	_ = ctx.Device.Push(context.Background())
	return Done(), nil
}

// fillScene paints the whole panel a flat color, reading it from its
// state bag (defaulting to dim gray), and pushes once.
type fillScene struct{}

func newFillScene() Module { return fillScene{} }

func (fillScene) Name() string    { return "fill" }
func (fillScene) WantsLoop() bool { return false }

func (fillScene) Render(ctx *RenderContext) (RenderResult, error) {
	col, ok := ctx.State.Get("color", nil).(canvas.Color)
	if !ok {
		col = canvas.Opaque(32, 32, 32)
	}
	ctx.Device.FillRect(canvas.Point{X: 0, Y: 0}, canvas.Size{W: canvas.Width, H: canvas.Height}, col)
	_ = ctx.Device.Push(context.Background())
	return Done(), nil
}
