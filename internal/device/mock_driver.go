package device

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"pixoo-scened/internal/canvas"
)

// DrawOp records one recorded push for inspection in tests/diagnostics.
type DrawOp struct {
	Pixels     [canvas.Height][canvas.Width]canvas.Color
	Brightness int
	DisplayOn  bool
}

// MockDriver records an ordered list of draw ops and logs a summary
// on push. It is always "ready" — used for tests and for devices
// configured with driver kind "mock".
type MockDriver struct {
	mu         sync.Mutex
	log        zerolog.Logger
	ops        []DrawOp
	brightness int
	displayOn  bool
}

// NewMockDriver constructs a mock driver bound to the given logger.
func NewMockDriver(log zerolog.Logger) *MockDriver {
	return &MockDriver{log: log, brightness: 100, displayOn: true}
}

func (d *MockDriver) Kind() Kind { return KindMock }

func (d *MockDriver) Push(_ context.Context, c *canvas.Canvas) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	op := DrawOp{Brightness: d.brightness, DisplayOn: d.displayOn}
	for y := 0; y < canvas.Height; y++ {
		for x := 0; x < canvas.Width; x++ {
			op.Pixels[y][x] = c.At(x, y)
		}
	}
	d.ops = append(d.ops, op)
	d.log.Debug().Int("ops", len(d.ops)).Msg("mock push")
	return nil
}

func (d *MockDriver) SetBrightness(_ context.Context, percent int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.brightness = percent
	d.log.Debug().Int("brightness", percent).Msg("mock set brightness")
	return nil
}

func (d *MockDriver) SetDisplayOn(_ context.Context, on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.displayOn = on
	d.log.Debug().Bool("on", on).Msg("mock set display")
	return nil
}

func (d *MockDriver) Reset(_ context.Context) error {
	d.log.Debug().Msg("mock reset")
	return nil
}

func (d *MockDriver) Ready() bool { return true }

// Ops returns a copy of the recorded draw ops, for tests.
func (d *MockDriver) Ops() []DrawOp {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DrawOp, len(d.ops))
	copy(out, d.ops)
	return out
}
