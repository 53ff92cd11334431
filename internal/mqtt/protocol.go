package mqtt

import "encoding/json"

// ScenePayload is the scene/set body: the target scene name plus
// arbitrary scene-specific parameters.
type ScenePayload struct {
	Scene  string
	Params map[string]interface{}
}

// UnmarshalJSON pulls "scene" out and keeps every other field as a
// scene parameter, per §4.6's "{scene, ...params}".
func (p *ScenePayload) UnmarshalJSON(data []byte) error {
	raw := map[string]interface{}{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if s, ok := raw["scene"].(string); ok {
		p.Scene = s
	}
	delete(raw, "scene")
	p.Params = raw
	return nil
}

// DriverPayload is the driver/set body.
type DriverPayload struct {
	Driver string `json:"driver"`
}

// PlaybackPayload optionally carries an explicit action when the
// section itself is generic (some clients encode play/pause/stop in
// the payload rather than the topic action segment).
type PlaybackPayload struct {
	Action string `json:"action,omitempty"`
}

// OkEvent is the outbound success signal published after a push.
type OkEvent struct {
	Host        string                 `json:"host"`
	Scene       string                 `json:"scene"`
	FrametimeMs int64                  `json:"frametimeMs"`
	DiffPixels  int                    `json:"diffPixels,omitempty"`
	Metrics     map[string]interface{} `json:"metrics,omitempty"`
}

// ErrorEvent is the structured failure published to <ns>/<device>/error.
type ErrorEvent struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	DeviceID string `json:"deviceId,omitempty"`
	Scene    string `json:"scene,omitempty"`
}

// SceneStateEvent mirrors the current state machine snapshot,
// published to <ns>/<device>/scene/state.
type SceneStateEvent struct {
	DeviceID    string `json:"deviceId"`
	ActiveScene string `json:"activeScene"`
	Generation  uint64 `json:"generationId"`
	Status      string `json:"status"`
	PlayState   string `json:"playState"`
}

// MetricsEvent is the periodic per-device metrics publish.
type MetricsEvent struct {
	DeviceID        string `json:"deviceId"`
	LastFrametimeMs int64  `json:"lastFrametimeMs"`
	Pushes          uint64 `json:"pushes"`
	Skipped         uint64 `json:"skipped"`
	Errors          uint64 `json:"errors"`
}
