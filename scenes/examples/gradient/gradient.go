// Package gradient is an illustrative example scene: a slowly
// scrolling diagonal color gradient. It exists to give the Scene
// Registry something real to discover and tag under "examples"; scene
// content itself is out of scope (§1 Non-goals).
package gradient

import (
	"context"

	"pixoo-scened/internal/canvas"
	"pixoo-scened/internal/scene"
)

func init() {
	if err := scene.Default.Register(&Scene{}, "examples/gradient"); err != nil {
		panic(err)
	}
}

// Scene paints a diagonal RGB gradient that shifts phase every tick.
type Scene struct{}

func (s *Scene) Name() string    { return "gradient" }
func (s *Scene) WantsLoop() bool { return true }

func (s *Scene) Render(ctx *scene.RenderContext) (scene.RenderResult, error) {
	phase, _ := ctx.State.Get("phase", 0).(int)

	for y := 0; y < canvas.Height; y++ {
		for x := 0; x < canvas.Width; x++ {
			r := uint8((x*4 + phase) % 256)
			g := uint8((y*4 + phase) % 256)
			b := uint8((x + y + phase) % 256)
			ctx.Device.DrawPixel(x, y, canvas.Opaque(r, g, b))
		}
	}
	if err := ctx.Device.Push(context.Background()); err != nil {
		return scene.RenderResult{}, err
	}

	ctx.State.Set("phase", (phase+4)%256)
	return scene.Continue(80), nil
}
