package mqtt

import (
	"encoding/json"

	"pixoo-scened/internal/device"
	"pixoo-scened/internal/scene"
)

// NewOkPublisher adapts client into a scene.PublishFunc: the success
// signal a scene may call after drawing (§6's mandatory "ok" outbound
// event). Marshal/publish failures are swallowed, matching
// PublishFunc's contract that it never returns an error to the scene.
func NewOkPublisher(client Publisher) scene.PublishFunc {
	return func(host, sceneName string, frametimeMs int64, diffPixels int, metrics map[string]interface{}) {
		evt := OkEvent{
			Host:        host,
			Scene:       sceneName,
			FrametimeMs: frametimeMs,
			DiffPixels:  diffPixels,
			Metrics:     metrics,
		}
		body, err := json.Marshal(evt)
		if err != nil {
			return
		}
		_ = client.Publish(OutboundTopic(host, "ok"), body, false)
	}
}

// PublishMetrics emits the periodic per-device metrics event (§6's
// mandatory "metrics" outbound event) for deviceID's current counters.
func PublishMetrics(client Publisher, deviceID string, m device.Metrics) error {
	evt := MetricsEvent{
		DeviceID:        deviceID,
		LastFrametimeMs: m.LastFrametimeMs,
		Pushes:          m.Pushes,
		Skipped:         m.Skipped,
		Errors:          m.Errors,
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return client.Publish(OutboundTopic(deviceID, "metrics"), body, false)
}
