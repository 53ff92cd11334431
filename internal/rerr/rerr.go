// Package rerr defines the error taxonomy shared across the scene
// runtime and its collaborators. Every error that crosses a component
// boundary is wrapped in a Error so callers can recover the
// device/scene/generation context without parsing message text.
package rerr

import "fmt"

// Kind classifies an error per the propagation policy: validation
// failures are caller-visible and never fatal, NotFound rolls back an
// in-progress transition, DeviceTransport/SceneRender are contained at
// the tick boundary, Persistence retries on the next debounce, and
// TransportDisconnect drives the MQTT reconnect schedule.
type Kind int

const (
	Unknown Kind = iota
	Validation
	NotFound
	DeviceTransport
	SceneRender
	Persistence
	TransportDisconnect
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case DeviceTransport:
		return "device_transport"
	case SceneRender:
		return "scene_render"
	case Persistence:
		return "persistence"
	case TransportDisconnect:
		return "transport_disconnect"
	default:
		return "unknown"
	}
}

// Error is the structured context carried by errors crossing a
// component boundary: {deviceId, sceneName, generationId, cause}.
type Error struct {
	Kind         Kind
	DeviceID     string
	SceneName    string
	GenerationID uint64
	Cause        error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: device=%s scene=%s gen=%d", e.Kind, e.DeviceID, e.SceneName, e.GenerationID)
	}
	return fmt.Sprintf("%s: device=%s scene=%s gen=%d: %v", e.Kind, e.DeviceID, e.SceneName, e.GenerationID, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a taxonomy error with the minimum context a caller needs.
func New(kind Kind, deviceID string, cause error) *Error {
	return &Error{Kind: kind, DeviceID: deviceID, Cause: cause}
}

// WithScene attaches scene/generation context to an existing error.
func WithScene(kind Kind, deviceID, sceneName string, generationID uint64, cause error) *Error {
	return &Error{Kind: kind, DeviceID: deviceID, SceneName: sceneName, GenerationID: generationID, Cause: cause}
}

// IsKind reports whether err (or something it wraps) is a *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	for err != nil {
		if asErr, ok := err.(*Error); ok {
			e = asErr
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == k
}
