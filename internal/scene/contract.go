// Package scene implements the Scene Registry and Scene Runtime
// (§4.4, §4.5): the per-device scheduler/state machine and the
// discovery-time catalog of scene modules it drives.
package scene

// Module is the scene contract (§3's SceneModule). Concrete scenes
// implement Name, WantsLoop, and Render; Init and Cleanup are
// optional and detected via the Initializer/Cleaner interfaces below.
type Module interface {
	Name() string
	WantsLoop() bool
	Render(ctx *RenderContext) (RenderResult, error)
}

// Initializer is implemented by scenes that need setup before the
// first render of a switch or parameter update.
type Initializer interface {
	Init(ctx *RenderContext) error
}

// Cleaner is implemented by scenes that need to release per-scene
// resources when torn down.
type Cleaner interface {
	Cleanup(ctx *RenderContext) error
}

// Descriptor optionally classifies a module for listings and gating:
// tags (e.g. "dev", "examples"), the device types it targets, and
// whether it is dev-only.
type Descriptor interface {
	Tags() []string
	DeviceTypes() []string
	IsDev() bool
}

// RenderResult is a scene's render() return value: either "continue"
// with a next-tick delay, or "complete" (the loop-ending sentinel).
type RenderResult struct {
	delayMs  int
	complete bool
}

// Continue schedules the next tick after delayMs milliseconds.
func Continue(delayMs int) RenderResult {
	if delayMs < 0 {
		delayMs = 0
	}
	return RenderResult{delayMs: delayMs}
}

// Done signals scene completion: the runtime stops scheduling ticks
// but leaves the scene active.
func Done() RenderResult {
	return RenderResult{complete: true}
}

// IsComplete reports whether this result is the completion sentinel.
func (r RenderResult) IsComplete() bool { return r.complete }

// DelayMs is the requested delay before the next tick. Meaningless
// when IsComplete is true.
func (r RenderResult) DelayMs() int { return r.delayMs }
