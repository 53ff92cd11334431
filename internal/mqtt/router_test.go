package mqtt

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixoo-scened/internal/device"
	"pixoo-scened/internal/scene"
	"pixoo-scened/internal/store"
)

type fakePublished struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu        sync.Mutex
	published []fakePublished
}

func (f *fakePublisher) Publish(topic string, payload []byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, fakePublished{topic: topic, payload: payload})
	return nil
}

func (f *fakePublisher) Subscribe(string, paho.MessageHandler) {}

func (f *fakePublisher) last() (fakePublished, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		return fakePublished{}, false
	}
	return f.published[len(f.published)-1], true
}

// loopScene is a minimal registrable module for router tests.
type loopScene struct{ name string }

func (s loopScene) Name() string    { return s.name }
func (s loopScene) WantsLoop() bool { return false }
func (s loopScene) Render(ctx *scene.RenderContext) (scene.RenderResult, error) {
	return scene.Done(), nil
}

func newTestRouter(t *testing.T) (*Router, *fakePublisher, *scene.Runtime) {
	t.Helper()
	reg := scene.NewRegistry()
	require.NoError(t, reg.Register(loopScene{name: "clock"}, "clock"))
	require.NoError(t, reg.Register(loopScene{name: "gradient"}, "gradient"))

	st := store.New(zerolog.Nop(), filepath.Join(t.TempDir(), "state.json"), time.Hour)
	rt := scene.NewRuntime(zerolog.Nop(), reg, st, 0, nil)

	handle := device.NewHandle("10.0.0.1", device.NewMockDriver(zerolog.Nop()), zerolog.Nop(), nil)
	rt.RegisterDevice(handle)

	fp := &fakePublisher{}
	lookup := func(id string) (*device.Handle, bool) {
		if id == "10.0.0.1" {
			return handle, true
		}
		return nil, false
	}
	factory := func(kind device.Kind, host string) device.Driver {
		if kind == device.KindReal {
			return device.NewRealDriver(host, zerolog.Nop())
		}
		return device.NewMockDriver(zerolog.Nop())
	}

	r := &Router{
		log:     zerolog.Nop(),
		client:  fp,
		runtime: rt,
		devices: lookup,
		newDrv:  factory,
	}
	return r, fp, rt
}

func TestDispatchSceneSetSwitchesScene(t *testing.T) {
	r, fp, rt := newTestRouter(t)
	r.Dispatch("pixoo/10.0.0.1/scene/set", []byte(`{"scene":"clock"}`))

	snap, err := rt.Snapshot("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "clock", snap.ActiveScene)

	last, ok := fp.last()
	require.True(t, ok)
	assert.Contains(t, last.topic, "scene/state")
}

func TestDispatchMalformedTopicIsIgnored(t *testing.T) {
	r, fp, _ := newTestRouter(t)
	r.Dispatch("not-pixoo/10.0.0.1/scene/set", []byte(`{}`))
	_, ok := fp.last()
	assert.False(t, ok, "a malformed topic must not publish anything")
}

func TestDispatchSceneSetMissingSceneNamePublishesError(t *testing.T) {
	r, fp, _ := newTestRouter(t)
	r.Dispatch("pixoo/10.0.0.1/scene/set", []byte(`{}`))

	last, ok := fp.last()
	require.True(t, ok)
	assert.Contains(t, last.topic, "error")

	var evt ErrorEvent
	require.NoError(t, json.Unmarshal(last.payload, &evt))
	assert.Equal(t, "validation", evt.Kind)
}

func TestDispatchUnknownSceneNamePublishesNotFoundError(t *testing.T) {
	r, fp, _ := newTestRouter(t)
	r.Dispatch("pixoo/10.0.0.1/scene/set", []byte(`{"scene":"does-not-exist"}`))

	last, ok := fp.last()
	require.True(t, ok)
	var evt ErrorEvent
	require.NoError(t, json.Unmarshal(last.payload, &evt))
	assert.Equal(t, "not_found", evt.Kind)
}

func TestDispatchPlaybackPauseStop(t *testing.T) {
	r, _, rt := newTestRouter(t)
	r.Dispatch("pixoo/10.0.0.1/scene/set", []byte(`{"scene":"clock"}`))

	r.Dispatch("pixoo/10.0.0.1/pause", nil)
	snap, err := rt.Snapshot("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, scene.PlayStatePaused, snap.PlayState)

	r.Dispatch("pixoo/10.0.0.1/stop", nil)
	snap, err = rt.Snapshot("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, scene.PlayStateStopped, snap.PlayState)
}

func TestDispatchDriverSetSwitchesDriverKind(t *testing.T) {
	r, fp, _ := newTestRouter(t)
	r.Dispatch("pixoo/10.0.0.1/scene/set", []byte(`{"scene":"clock"}`))
	fp.mu.Lock()
	fp.published = nil
	fp.mu.Unlock()

	r.Dispatch("pixoo/10.0.0.1/driver/set", []byte(`{"driver":"mock"}`))

	last, ok := fp.last()
	require.True(t, ok)
	assert.Contains(t, last.topic, "scene/state")
}
