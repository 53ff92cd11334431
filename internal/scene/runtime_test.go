package scene

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixoo-scened/internal/device"
	"pixoo-scened/internal/store"
)

func newTestRuntime(t *testing.T) (*Runtime, *Registry, *device.Handle) {
	t.Helper()
	reg := NewRegistry()
	st := store.New(zerolog.Nop(), filepath.Join(t.TempDir(), "state.json"), time.Hour)
	rt := NewRuntime(zerolog.Nop(), reg, st, 0, nil)

	handle := device.NewHandle("10.0.0.1", device.NewMockDriver(zerolog.Nop()), zerolog.Nop(), nil)
	rt.RegisterDevice(handle)
	return rt, reg, handle
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met before timeout")
}

func TestSwitchSceneInitsAndStartsLoop(t *testing.T) {
	rt, reg, _ := newTestRuntime(t)
	a := newRecordingScene("A", true, 30)
	require.NoError(t, reg.Register(a, "a"))

	require.NoError(t, rt.SwitchScene(context.Background(), "10.0.0.1", "A", nil))

	snap, err := rt.Snapshot("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "A", snap.ActiveScene)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, PlayStatePlaying, snap.PlayState)

	waitFor(t, time.Second, func() bool { return a.renderCount() >= 2 })
	assert.Equal(t, 1, a.initCount())
}

func TestSwitchSceneToUnknownLeavesDeviceUnchanged(t *testing.T) {
	rt, reg, _ := newTestRuntime(t)
	a := newRecordingScene("A", false, 0)
	require.NoError(t, reg.Register(a, "a"))
	require.NoError(t, rt.SwitchScene(context.Background(), "10.0.0.1", "A", nil))

	before, err := rt.Snapshot("10.0.0.1")
	require.NoError(t, err)

	err = rt.SwitchScene(context.Background(), "10.0.0.1", "does-not-exist", nil)
	assert.Error(t, err)

	after, err := rt.Snapshot("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, before, after, "device state must be unchanged after a failed switch")
}

func TestSwitchSceneBumpsGenerationAndRunsCleanup(t *testing.T) {
	rt, reg, _ := newTestRuntime(t)
	a := newRecordingScene("A", false, 0)
	b := newRecordingScene("B", false, 0)
	require.NoError(t, reg.Register(a, "a"))
	require.NoError(t, reg.Register(b, "b"))

	require.NoError(t, rt.SwitchScene(context.Background(), "10.0.0.1", "A", nil))
	require.NoError(t, rt.SwitchScene(context.Background(), "10.0.0.1", "B", nil))

	assert.Equal(t, 1, a.cleanupCount())
	assert.Equal(t, 1, b.initCount())

	snap, err := rt.Snapshot("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Generation)
	assert.Equal(t, "B", snap.ActiveScene)
}

func TestSwitchSceneDoesNotDeadlockWhenCleanupPushes(t *testing.T) {
	rt, reg, _ := newTestRuntime(t)
	a := &recordingScene{name: "A", pushOnCleanup: true}
	b := newRecordingScene("B", false, 0)
	require.NoError(t, reg.Register(a, "a"))
	require.NoError(t, reg.Register(b, "b"))

	require.NoError(t, rt.SwitchScene(context.Background(), "10.0.0.1", "A", nil))

	done := make(chan error, 1)
	go func() {
		done <- rt.SwitchScene(context.Background(), "10.0.0.1", "B", nil)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("SwitchScene deadlocked when the outgoing scene's Cleanup called ctx.Device.Push")
	}
}

func TestPauseStopIdempotent(t *testing.T) {
	rt, reg, _ := newTestRuntime(t)
	a := newRecordingScene("A", true, 50)
	require.NoError(t, reg.Register(a, "a"))
	require.NoError(t, rt.SwitchScene(context.Background(), "10.0.0.1", "A", nil))

	require.NoError(t, rt.PauseScene("10.0.0.1"))
	snap1, _ := rt.Snapshot("10.0.0.1")
	require.NoError(t, rt.PauseScene("10.0.0.1"))
	snap2, _ := rt.Snapshot("10.0.0.1")
	assert.Equal(t, snap1, snap2)

	require.NoError(t, rt.StopScene("10.0.0.1"))
	snap3, _ := rt.Snapshot("10.0.0.1")
	require.NoError(t, rt.StopScene("10.0.0.1"))
	snap4, _ := rt.Snapshot("10.0.0.1")
	assert.Equal(t, snap3, snap4)
}

func TestResumeReusesGenerationWithoutReinit(t *testing.T) {
	rt, reg, _ := newTestRuntime(t)
	a := newRecordingScene("A", true, 20)
	require.NoError(t, reg.Register(a, "a"))
	require.NoError(t, rt.SwitchScene(context.Background(), "10.0.0.1", "A", nil))

	snapBefore, _ := rt.Snapshot("10.0.0.1")
	require.NoError(t, rt.PauseScene("10.0.0.1"))
	require.NoError(t, rt.ResumeScene("10.0.0.1"))
	snapAfter, _ := rt.Snapshot("10.0.0.1")

	assert.Equal(t, snapBefore.Generation, snapAfter.Generation)
	assert.Equal(t, 1, a.initCount(), "resume must not re-run init")
}

func TestStaleTickSuppressedAfterSwitch(t *testing.T) {
	rt, reg, _ := newTestRuntime(t)
	slow := newRecordingScene("Slow", true, 0)
	ready := make(chan struct{})
	slow.renderSleep = func() {
		close(ready)
		time.Sleep(150 * time.Millisecond)
	}
	empty := newRecordingScene("Empty", false, 0)
	require.NoError(t, reg.Register(slow, "slow"))
	require.NoError(t, reg.Register(empty, "empty"))

	require.NoError(t, rt.SwitchScene(context.Background(), "10.0.0.1", "Slow", nil))
	<-ready
	require.NoError(t, rt.SwitchScene(context.Background(), "10.0.0.1", "Empty", nil))

	time.Sleep(250 * time.Millisecond)

	snap, err := rt.Snapshot("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "Empty", snap.ActiveScene, "the stale Slow tick must not have rescheduled or reclaimed the device")
}

func TestRenderErrorEndsLoopButKeepsActiveScene(t *testing.T) {
	rt, reg, _ := newTestRuntime(t)
	a := newRecordingScene("A", true, 10)
	a.failOnce = true
	require.NoError(t, reg.Register(a, "a"))

	require.NoError(t, rt.SwitchScene(context.Background(), "10.0.0.1", "A", nil))
	waitFor(t, time.Second, func() bool {
		snap, _ := rt.Snapshot("10.0.0.1")
		return snap.PlayState == PlayStateStopped
	})

	snap, err := rt.Snapshot("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "A", snap.ActiveScene)
	assert.Equal(t, PlayStateStopped, snap.PlayState)
}

func TestUpdateSceneParametersMergesBagWithoutBumpingGeneration(t *testing.T) {
	rt, reg, _ := newTestRuntime(t)
	a := newRecordingScene("Chart", true, 1000)
	require.NoError(t, reg.Register(a, "a"))
	require.NoError(t, rt.SwitchScene(context.Background(), "10.0.0.1", "Chart", nil))

	before, _ := rt.Snapshot("10.0.0.1")
	require.NoError(t, rt.UpdateSceneParameters(context.Background(), "10.0.0.1", "Chart", map[string]interface{}{"scale": 20}))
	after, _ := rt.Snapshot("10.0.0.1")

	assert.Equal(t, before.Generation, after.Generation, "parameter update on a running loop must not bump the generation")
	assert.Equal(t, 2, a.initCount(), "cleanup+init must run exactly once for the update")
	scale, ok := rt.store.GetScene("10.0.0.1", "Chart", "scale")
	require.True(t, ok)
	assert.Equal(t, 20, scale)
}

func TestUpdateSceneParametersDelegatesToSwitchForOtherScene(t *testing.T) {
	rt, reg, _ := newTestRuntime(t)
	a := newRecordingScene("A", false, 0)
	b := newRecordingScene("B", false, 0)
	require.NoError(t, reg.Register(a, "a"))
	require.NoError(t, reg.Register(b, "b"))
	require.NoError(t, rt.SwitchScene(context.Background(), "10.0.0.1", "A", nil))

	require.NoError(t, rt.UpdateSceneParameters(context.Background(), "10.0.0.1", "B", nil))

	snap, err := rt.Snapshot("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "B", snap.ActiveScene)
}

func TestDeviceViewPushSuppressedForStaleGeneration(t *testing.T) {
	mockDriver := device.NewMockDriver(zerolog.Nop())
	handle := device.NewHandle("10.0.0.1", mockDriver, zerolog.Nop(), nil)

	current := uint64(2)
	view := newDeviceView(handle, func() uint64 { return current }, 1, nil)

	require.NoError(t, view.Push(context.Background()))
	assert.Empty(t, mockDriver.Ops(), "a push from a superseded generation must never reach the driver")

	current = 1
	require.NoError(t, view.Push(context.Background()))
	assert.Len(t, mockDriver.Ops(), 1, "a push from the current generation must reach the driver")
}

func TestDeviceEventHonorsPersistedLoggingLevel(t *testing.T) {
	reg := NewRegistry()
	st := store.New(zerolog.Nop(), filepath.Join(t.TempDir(), "state.json"), time.Hour)

	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)
	rt := NewRuntime(log, reg, st, 0, nil)

	evt := rt.deviceEvent("10.0.0.1", zerolog.WarnLevel)
	require.NotNil(t, evt, "no persisted loggingLevel means the root floor alone governs")
	evt.Msg("unfiltered")
	assert.Contains(t, buf.String(), "unfiltered")

	buf.Reset()
	st.SetDevice("10.0.0.1", "loggingLevel", "error")
	assert.Nil(t, rt.deviceEvent("10.0.0.1", zerolog.WarnLevel), "a device asking for error-only must suppress warn")

	evt = rt.deviceEvent("10.0.0.1", zerolog.ErrorLevel)
	require.NotNil(t, evt)
	evt.Msg("still allowed")
	assert.Contains(t, buf.String(), "still allowed")
}
