// Package clock is a developer-only scene (tagged "dev" by its
// registration path) that renders the wall-clock time. It exists to
// exercise the registry's dev-tagging path, not as a production scene.
package clock

import (
	"context"
	"time"

	"pixoo-scened/internal/canvas"
	"pixoo-scened/internal/scene"
)

func init() {
	if err := scene.Default.Register(&Scene{}, "dev/clock"); err != nil {
		panic(err)
	}
}

// Scene draws the current local time, centered, refreshing once a second.
type Scene struct{}

func (s *Scene) Name() string    { return "clock" }
func (s *Scene) WantsLoop() bool { return true }

func (s *Scene) Init(ctx *scene.RenderContext) error {
	ctx.Device.Canvas().Clear()
	return nil
}

func (s *Scene) Render(ctx *scene.RenderContext) (scene.RenderResult, error) {
	ctx.Device.Canvas().Clear()

	now := time.Now()
	text := now.Format("15:04:05")
	white := canvas.Opaque(255, 255, 255)
	ctx.Device.DrawText(text, canvas.Point{X: canvas.Width / 2, Y: canvas.Height/2 - 3}, white, canvas.AlignCenter)

	if err := ctx.Device.Push(context.Background()); err != nil {
		return scene.RenderResult{}, err
	}

	// Re-render just after the next second boundary ticks over.
	delay := 1000 - now.Nanosecond()/1_000_000
	return scene.Continue(delay), nil
}

func (s *Scene) Cleanup(ctx *scene.RenderContext) error {
	ctx.Device.Canvas().Clear()
	return ctx.Device.Push(context.Background())
}
