package device

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pixoo-scened/internal/canvas"
	"pixoo-scened/internal/metrics"
	"pixoo-scened/internal/rerr"
)

// Metrics are the per-device counters §3 marks as transient
// (never persisted, reset on process restart).
type Metrics struct {
	LastFrametimeMs int64
	Pushes          uint64
	Skipped         uint64
	Errors          uint64
	LastSeen        time.Time
}

// Handle wraps one driver instance, exposes the full drawing API by
// forwarding to its own canvas, and records metrics on every Push.
// It permits hot driver swap: on change the old driver is discarded
// and a fresh one constructed, so the next Push re-runs driver init.
type Handle struct {
	id  string
	log zerolog.Logger

	mu         sync.Mutex
	canvas     *canvas.Canvas
	driver     Driver
	brightness int
	displayOn  bool
	metrics    Metrics
	collector  *metrics.DeviceCollector
}

// NewHandle constructs a handle for deviceID, starting with the given driver.
func NewHandle(deviceID string, driver Driver, log zerolog.Logger, collector *metrics.DeviceCollector) *Handle {
	return &Handle{
		id:         deviceID,
		log:        log.With().Str("deviceId", deviceID).Logger(),
		canvas:     canvas.New(),
		driver:     driver,
		brightness: 100,
		displayOn:  true,
		collector:  collector,
	}
}

// ID returns the device identifier this handle owns.
func (h *Handle) ID() string { return h.id }

// Canvas exposes the drawing surface for scene code. PixelCanvas is
// owned by the active driver's rendering session; scenes reach it
// only through the handle, never a raw buffer reference.
func (h *Handle) Canvas() *canvas.Canvas {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.canvas
}

// DriverKind reports the currently active driver variant.
func (h *Handle) DriverKind() Kind {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.driver.Kind()
}

// SwitchDriver discards the current driver instance and installs
// newDriver, a fresh instance built by the caller. The canvas (and therefore any
// drawn-but-unpushed frame) is preserved; the next Push re-runs the
// new driver's init sequence.
func (h *Handle) SwitchDriver(newDriver Driver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.driver = newDriver
	h.log.Info().Str("kind", string(newDriver.Kind())).Msg("driver switched")
}

// Push ships the current canvas buffer through the active driver and
// records metrics: push count, wall-clock frametime, last-seen
// timestamp, and (on failure) the error counter before re-raising.
func (h *Handle) Push(ctx context.Context) error {
	h.mu.Lock()
	drv := h.driver
	c := h.canvas
	h.mu.Unlock()

	start := time.Now()
	err := drv.Push(ctx, c)
	elapsed := time.Since(start)

	h.mu.Lock()
	h.metrics.Pushes++
	h.metrics.LastFrametimeMs = elapsed.Milliseconds()
	h.metrics.LastSeen = time.Now()
	if err != nil {
		h.metrics.Errors++
	}
	h.mu.Unlock()

	if h.collector != nil {
		h.collector.Observe(h.id, err != nil, elapsed)
	}

	if err != nil {
		h.log.Warn().Err(err).Msg("push failed")
		return rerr.New(rerr.DeviceTransport, h.id, err)
	}
	return nil
}

// SetBrightness forwards to the driver and records the new value.
func (h *Handle) SetBrightness(ctx context.Context, percent int) error {
	h.mu.Lock()
	drv := h.driver
	h.mu.Unlock()

	if err := drv.SetBrightness(ctx, percent); err != nil {
		if h.collector != nil {
			h.collector.ObserveError(h.id)
		}
		return rerr.New(rerr.DeviceTransport, h.id, err)
	}
	h.mu.Lock()
	h.brightness = percent
	h.mu.Unlock()
	return nil
}

// SetDisplayOn forwards to the driver and records the new value.
// Frames are still pushed while displayOn is false — the panel
// ignores them; power is a display-surface state independent of the
// render loop (see DESIGN.md's Open Question resolution).
func (h *Handle) SetDisplayOn(ctx context.Context, on bool) error {
	h.mu.Lock()
	drv := h.driver
	h.mu.Unlock()

	if err := drv.SetDisplayOn(ctx, on); err != nil {
		if h.collector != nil {
			h.collector.ObserveError(h.id)
		}
		return rerr.New(rerr.DeviceTransport, h.id, err)
	}
	h.mu.Lock()
	h.displayOn = on
	h.mu.Unlock()
	return nil
}

// Reset forwards the soft-reset UX to the driver.
func (h *Handle) Reset(ctx context.Context) error {
	h.mu.Lock()
	drv := h.driver
	h.mu.Unlock()

	if err := drv.Reset(ctx); err != nil {
		if h.collector != nil {
			h.collector.ObserveError(h.id)
		}
		return rerr.New(rerr.DeviceTransport, h.id, err)
	}
	return nil
}

// Snapshot returns a copy of this device's current metrics and
// brightness/displayOn state, for diagnostics/admin surfaces.
func (h *Handle) Snapshot() (Metrics, int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.metrics, h.brightness, h.displayOn
}
