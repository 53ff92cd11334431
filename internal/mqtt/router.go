package mqtt

import (
	"context"
	"encoding/json"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pixoo-scened/internal/device"
	"pixoo-scened/internal/rerr"
	"pixoo-scened/internal/scene"
)

// DriverFactory builds a fresh driver instance of kind for host, used
// by driver/set to hot-swap a Device Handle's backing driver.
type DriverFactory func(kind device.Kind, host string) device.Driver

// DeviceLookup resolves a configured device ID to its handle.
type DeviceLookup func(deviceID string) (*device.Handle, bool)

// Publisher is the half of a Client the Router needs, narrowed so the
// Router can be exercised without a live broker.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topic string, handler paho.MessageHandler)
}

// Router is the Command Router (§4.6): it parses inbound MQTT
// messages into (deviceId, section, action, payload) and dispatches
// into the Scene Runtime or Device Handle. A malformed payload is logged
// and reflected back as a structured error event; a malformed topic is
// only logged and dropped. It never panics.
type Router struct {
	log     zerolog.Logger
	client  Publisher
	runtime *scene.Runtime
	devices DeviceLookup
	newDrv  DriverFactory
}

// NewRouter builds a Router over runtime and the given device lookup/driver factory.
func NewRouter(log zerolog.Logger, client *Client, runtime *scene.Runtime, devices DeviceLookup, newDrv DriverFactory) *Router {
	return &Router{
		log:     log.With().Str("component", "command-router").Logger(),
		client:  client,
		runtime: runtime,
		devices: devices,
		newDrv:  newDrv,
	}
}

// Start subscribes the router to the full command namespace.
func (r *Router) Start() {
	r.client.Subscribe(SubscriptionFilter(), r.onMessage())
}

func (r *Router) onMessage() paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		r.Dispatch(msg.Topic(), msg.Payload())
	}
}

// Dispatch is the pure routing logic, exercised directly in tests
// without a live broker.
func (r *Router) Dispatch(topic string, payload []byte) {
	t, err := ParseTopic(topic)
	if err != nil {
		r.log.Warn().Err(err).Str("topic", topic).Msg("malformed topic")
		return
	}

	correlationID := uuid.NewString()
	log := r.log.With().Str("correlationId", correlationID).Str("deviceId", t.DeviceID).Logger()
	log.Debug().Str("section", t.Section).Str("action", t.Action).Msg("dispatching command")

	ctx := context.Background()
	switch {
	case t.Section == "scene" && t.Action == "set":
		r.handleSceneSet(ctx, t.DeviceID, payload)
	case t.Section == "state" && t.Action == "upd":
		r.handleStateUpdate(ctx, t.DeviceID, payload)
	case t.Section == "driver" && t.Action == "set":
		r.handleDriverSet(ctx, t.DeviceID, payload)
	case t.Section == "reset" && t.Action == "set":
		r.handleReset(ctx, t.DeviceID)
	case t.Section == "play" || t.Section == "pause" || t.Section == "stop":
		r.handlePlayback(t.DeviceID, t.Section)
	case t.Section == "playback":
		r.handlePlaybackPayload(t.DeviceID, payload)
	default:
		r.publishError(t.DeviceID, "", rerr.Validation, "unrecognized section/action: "+t.Section+"/"+t.Action)
	}
}

func (r *Router) handleSceneSet(ctx context.Context, deviceID string, payload []byte) {
	var p ScenePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		r.publishError(deviceID, "", rerr.Validation, "malformed scene/set payload: "+err.Error())
		return
	}
	if p.Scene == "" {
		r.publishError(deviceID, "", rerr.Validation, "scene/set missing scene name")
		return
	}
	if err := r.runtime.UpdateSceneParameters(ctx, deviceID, p.Scene, p.Params); err != nil {
		r.publishError(deviceID, p.Scene, kindOf(err), err.Error())
		return
	}
	r.publishSceneState(deviceID)
}

func (r *Router) handleStateUpdate(ctx context.Context, deviceID string, payload []byte) {
	params := map[string]interface{}{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &params); err != nil {
			r.publishError(deviceID, "", rerr.Validation, "malformed state/upd payload: "+err.Error())
			return
		}
	}
	if err := r.runtime.UpdateSceneParameters(ctx, deviceID, "", params); err != nil {
		r.publishError(deviceID, "", kindOf(err), err.Error())
		return
	}
	r.publishSceneState(deviceID)
}

func (r *Router) handleDriverSet(ctx context.Context, deviceID string, payload []byte) {
	var p DriverPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		r.publishError(deviceID, "", rerr.Validation, "malformed driver/set payload: "+err.Error())
		return
	}
	handle, ok := r.devices(deviceID)
	if !ok {
		r.publishError(deviceID, "", rerr.NotFound, "device not configured")
		return
	}
	kind := device.Kind(p.Driver)
	if kind != device.KindReal && kind != device.KindMock {
		r.publishError(deviceID, "", rerr.Validation, "unknown driver kind: "+p.Driver)
		return
	}
	handle.SwitchDriver(r.newDrv(kind, deviceID))
	if err := r.runtime.UpdateSceneParameters(ctx, deviceID, "", map[string]interface{}{}); err != nil {
		r.publishError(deviceID, "", kindOf(err), err.Error())
		return
	}
	r.publishSceneState(deviceID)
}

func (r *Router) handleReset(ctx context.Context, deviceID string) {
	handle, ok := r.devices(deviceID)
	if !ok {
		r.publishError(deviceID, "", rerr.NotFound, "device not configured")
		return
	}
	if err := handle.Reset(ctx); err != nil {
		r.publishError(deviceID, "", kindOf(err), err.Error())
		return
	}
	if err := r.runtime.UpdateSceneParameters(ctx, deviceID, "", map[string]interface{}{}); err != nil {
		r.publishError(deviceID, "", kindOf(err), err.Error())
		return
	}
	r.publishSceneState(deviceID)
}

func (r *Router) handlePlayback(deviceID, action string) {
	var err error
	switch action {
	case "play":
		err = r.runtime.ResumeScene(deviceID)
	case "pause":
		err = r.runtime.PauseScene(deviceID)
	case "stop":
		err = r.runtime.StopScene(deviceID)
	}
	if err != nil {
		r.publishError(deviceID, "", kindOf(err), err.Error())
		return
	}
	r.publishSceneState(deviceID)
}

func (r *Router) handlePlaybackPayload(deviceID string, payload []byte) {
	var p PlaybackPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		r.publishError(deviceID, "", rerr.Validation, "malformed playback payload: "+err.Error())
		return
	}
	r.handlePlayback(deviceID, p.Action)
}

func (r *Router) publishSceneState(deviceID string) {
	snap, err := r.runtime.Snapshot(deviceID)
	if err != nil {
		return
	}
	evt := SceneStateEvent{
		DeviceID:    deviceID,
		ActiveScene: snap.ActiveScene,
		Generation:  snap.Generation,
		Status:      string(snap.Status),
		PlayState:   string(snap.PlayState),
	}
	body, _ := json.Marshal(evt)
	_ = r.client.Publish(OutboundTopic(deviceID, "scene/state"), body, false)
}

func (r *Router) publishError(deviceID, sceneName string, kind rerr.Kind, message string) {
	evt := ErrorEvent{Kind: kind.String(), Message: message, DeviceID: deviceID, Scene: sceneName}
	body, _ := json.Marshal(evt)
	_ = r.client.Publish(OutboundTopic(deviceID, "error"), body, false)
}

func kindOf(err error) rerr.Kind {
	if e, ok := err.(*rerr.Error); ok {
		return e.Kind
	}
	return rerr.Unknown
}
