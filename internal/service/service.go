// Package service is the Service Facade: a thin programmatic API over
// the Scene Runtime and Device Handles, so an alternate transport (the
// HTTP admin surface in http.go) can drive the same operations the
// Command Router exposes over MQTT without duplicating runtime logic.
package service

import (
	"context"

	"github.com/rs/zerolog"

	"pixoo-scened/internal/device"
	"pixoo-scened/internal/rerr"
	"pixoo-scened/internal/scene"
)

// DeviceLookup resolves a configured device ID to its handle.
type DeviceLookup func(deviceID string) (*device.Handle, bool)

// DriverFactory builds a fresh driver instance of kind for host.
type DriverFactory func(kind device.Kind, host string) device.Driver

// Service wraps a Scene Runtime and device registry with the small set
// of operations an admin surface needs; it holds no state of its own.
type Service struct {
	log     zerolog.Logger
	runtime *scene.Runtime
	devices DeviceLookup
	newDrv  DriverFactory
}

// New builds a Service over runtime and the given device lookup/driver factory.
func New(log zerolog.Logger, runtime *scene.Runtime, devices DeviceLookup, newDrv DriverFactory) *Service {
	return &Service{
		log:     log.With().Str("component", "service-facade").Logger(),
		runtime: runtime,
		devices: devices,
		newDrv:  newDrv,
	}
}

// DeviceSummary is the read-model returned for one device: the scene
// runtime's snapshot merged with the handle's transient metrics.
type DeviceSummary struct {
	DeviceID    string          `json:"deviceId"`
	ActiveScene string          `json:"activeScene"`
	Generation  uint64          `json:"generationId"`
	Status      scene.Status    `json:"status"`
	PlayState   scene.PlayState `json:"playState"`
	DriverKind  device.Kind     `json:"driverKind"`
	Brightness  int             `json:"brightness"`
	DisplayOn   bool            `json:"displayOn"`
	Metrics     device.Metrics  `json:"metrics"`
}

func (s *Service) summarize(deviceID string) (DeviceSummary, error) {
	snap, err := s.runtime.Snapshot(deviceID)
	if err != nil {
		return DeviceSummary{}, err
	}
	sum := DeviceSummary{
		DeviceID:    snap.DeviceID,
		ActiveScene: snap.ActiveScene,
		Generation:  snap.Generation,
		Status:      snap.Status,
		PlayState:   snap.PlayState,
	}
	if handle, ok := s.devices(deviceID); ok {
		metrics, brightness, displayOn := handle.Snapshot()
		sum.DriverKind = handle.DriverKind()
		sum.Brightness = brightness
		sum.DisplayOn = displayOn
		sum.Metrics = metrics
	}
	return sum, nil
}

// ListDevices returns a summary for every device the runtime knows
// about, in no particular order.
func (s *Service) ListDevices() []DeviceSummary {
	ids := s.runtime.DeviceIDs()
	out := make([]DeviceSummary, 0, len(ids))
	for _, id := range ids {
		if sum, err := s.summarize(id); err == nil {
			out = append(out, sum)
		}
	}
	return out
}

// DeviceSummary returns one device's summary, or an error if it is not registered.
func (s *Service) DeviceSummary(deviceID string) (DeviceSummary, error) {
	return s.summarize(deviceID)
}

// SetScene switches deviceID to sceneName with the given parameters.
func (s *Service) SetScene(ctx context.Context, deviceID, sceneName string, params map[string]interface{}) error {
	return s.runtime.SwitchScene(ctx, deviceID, sceneName, params)
}

// Play resumes the active scene's loop.
func (s *Service) Play(deviceID string) error {
	return s.runtime.ResumeScene(deviceID)
}

// Pause suspends the active scene's loop without tearing it down.
func (s *Service) Pause(deviceID string) error {
	return s.runtime.PauseScene(deviceID)
}

// Stop halts the active scene's loop and marks it stopped; the scene
// and its state bag stay loaded, so Play can resume it.
func (s *Service) Stop(deviceID string) error {
	return s.runtime.StopScene(deviceID)
}

// SetDriver hot-swaps deviceID's backing driver to kind.
func (s *Service) SetDriver(deviceID string, kind device.Kind) error {
	handle, ok := s.devices(deviceID)
	if !ok {
		return rerr.New(rerr.NotFound, deviceID, nil)
	}
	handle.SwitchDriver(s.newDrv(kind, deviceID))
	return nil
}
