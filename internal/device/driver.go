// Package device implements the Device Driver and Device Handle:
// the polymorphic sink for a finished frame (§4.2) and the per-device
// wrapper that owns it, tracks metrics, and permits hot driver swap.
package device

import (
	"context"

	"pixoo-scened/internal/canvas"
)

// Kind is the driver variant tag. Hot-swappable at runtime.
type Kind string

const (
	KindReal Kind = "real"
	KindMock Kind = "mock"
)

// Driver is the polymorphic sink for a finished frame plus the
// out-of-band device commands. A fresh Driver instance is constructed
// on every hot-swap; the next Push re-runs its init sequence.
type Driver interface {
	Kind() Kind
	// Push ships the canvas's current buffer to the device. Returns
	// a rerr.DeviceTransport-kind error on failure.
	Push(ctx context.Context, c *canvas.Canvas) error
	SetBrightness(ctx context.Context, percent int) error
	SetDisplayOn(ctx context.Context, on bool) error
	// Reset performs the "soft reset" UX: briefly show the init
	// channel, then restore whatever was being displayed.
	Reset(ctx context.Context) error
	// Ready reports whether the driver considers itself usable.
	// Always true for the mock driver.
	Ready() bool
}
