package scene

import (
	"context"

	"pixoo-scened/internal/canvas"
	"pixoo-scened/internal/device"
	"pixoo-scened/internal/store"
)

// Env is the fixed environment a scene renders into.
type Env struct {
	Host   string
	Width  int
	Height int
}

// PublishFunc is a best-effort success signal a scene may call after
// drawing; it never returns an error to the scene and never blocks on
// transport I/O.
type PublishFunc func(host, sceneName string, frametimeMs int64, diffPixels int, metrics map[string]interface{})

// StateBag is a scene's per-(device, sceneName) memory, backed by the
// State Store's scene tier. get/set only; aliasing is stable across
// ticks because it is a thin view over the store, not a copy.
type StateBag struct {
	st        *store.Store
	deviceID  string
	sceneName string
}

// Get returns the most recently Set value for key, or def if none.
func (b *StateBag) Get(key string, def interface{}) interface{} {
	if v, ok := b.st.GetScene(b.deviceID, b.sceneName, key); ok {
		return v
	}
	return def
}

// Set records value under key for this (device, scene) pair.
func (b *StateBag) Set(key string, value interface{}) {
	b.st.SetScene(b.deviceID, b.sceneName, key, value)
}

// DeviceView is the drawing API a scene sees: every Pixel Canvas
// primitive forwarded from the device handle's canvas, plus Push,
// which is generation-fenced — a push from a tick whose generation
// has been superseded is silently suppressed rather than forwarded to
// the driver.
type DeviceView struct {
	handle       *device.Handle
	currentGen   func() uint64
	generation   uint64
	recordPushed func(failed bool)
}

func newDeviceView(handle *device.Handle, currentGen func() uint64, generation uint64, recordPushed func(failed bool)) *DeviceView {
	return &DeviceView{handle: handle, currentGen: currentGen, generation: generation, recordPushed: recordPushed}
}

func (d *DeviceView) Canvas() *canvas.Canvas { return d.handle.Canvas() }

func (d *DeviceView) DrawPixel(x, y int, c canvas.Color) {
	d.handle.Canvas().DrawPixel(x, y, c)
}

func (d *DeviceView) DrawLine(p0, p1 canvas.Point, c canvas.Color) {
	d.handle.Canvas().DrawLine(p0, p1, c)
}

func (d *DeviceView) DrawRect(pos canvas.Point, size canvas.Size, c canvas.Color) {
	d.handle.Canvas().DrawRect(pos, size, c)
}

func (d *DeviceView) FillRect(pos canvas.Point, size canvas.Size, c canvas.Color) {
	d.handle.Canvas().FillRect(pos, size, c)
}

func (d *DeviceView) DrawText(s string, pos canvas.Point, c canvas.Color, align canvas.Alignment) int {
	return d.handle.Canvas().DrawText(s, pos, c, align)
}

func (d *DeviceView) DrawNumeric(value float64, pos canvas.Point, c canvas.Color, align canvas.Alignment, maxTotalDigits int) int {
	return d.handle.Canvas().DrawNumeric(value, pos, c, align, maxTotalDigits)
}

func (d *DeviceView) DrawImage(imagePath string, pos canvas.Point, size canvas.Size, alpha uint8) {
	d.handle.Canvas().DrawImage(imagePath, pos, size, alpha)
}

// Push ships the current canvas to the active driver, unless this
// view's generation has been superseded by a switch that happened
// while render was in flight — the fence required by §5's generation
// invariant.
func (d *DeviceView) Push(ctx context.Context) error {
	if d.currentGen() != d.generation {
		return nil
	}
	err := d.handle.Push(ctx)
	if d.recordPushed != nil {
		d.recordPushed(err != nil)
	}
	return err
}

// RenderContext is everything a scene's render/init/cleanup sees.
// Scenes must not retain it across ticks — it is rebuilt fresh for
// every invocation.
type RenderContext struct {
	Device       *DeviceView
	State        *StateBag
	Payload      map[string]interface{}
	Env          Env
	LoopDriven   bool
	GenerationID uint64
	PublishOk    PublishFunc
}
