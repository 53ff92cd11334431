package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, debounce time.Duration) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime-state.json")
	return New(zerolog.Nop(), path, debounce), path
}

func TestGlobalTierRoundTrip(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)

	assert.False(t, s.Has("startedAt"))
	s.Set("startedAt", "2026-07-30T00:00:00Z")
	v, ok := s.Get("startedAt")
	require.True(t, ok)
	assert.Equal(t, "2026-07-30T00:00:00Z", v)

	s.Delete("startedAt")
	assert.False(t, s.Has("startedAt"))
}

func TestDeviceTierIsolatedPerDevice(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)

	s.SetDevice("dev-a", "activeScene", "clock")
	s.SetDevice("dev-b", "activeScene", "gradient")

	va, _ := s.GetDevice("dev-a", "activeScene")
	vb, _ := s.GetDevice("dev-b", "activeScene")
	assert.Equal(t, "clock", va)
	assert.Equal(t, "gradient", vb)

	assert.False(t, s.HasDevice("dev-a", "playState"))
}

func TestSceneTierIsolatedPerDeviceAndScene(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)

	s.SetScene("dev-a", "clock", "tickCount", 5)
	s.SetScene("dev-a", "gradient", "tickCount", 9)
	s.SetScene("dev-b", "clock", "tickCount", 1)

	va, _ := s.GetScene("dev-a", "clock", "tickCount")
	vb, _ := s.GetScene("dev-a", "gradient", "tickCount")
	vc, _ := s.GetScene("dev-b", "clock", "tickCount")
	assert.Equal(t, 5, va)
	assert.Equal(t, 9, vb)
	assert.Equal(t, 1, vc)

	s.ClearScene("dev-a", "clock")
	assert.False(t, s.HasScene("dev-a", "clock", "tickCount"))
	assert.True(t, s.HasScene("dev-a", "gradient", "tickCount"))
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	s.SetDevice("dev-a", "brightness", 50)

	snap := s.Snapshot()
	snap.Device["dev-a"]["brightness"] = 999

	v, _ := s.GetDevice("dev-a", "brightness")
	assert.Equal(t, 50, v, "mutating a snapshot must not affect the store")
}

func TestSubscribeNotifiesMatchingScope(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)

	var gotScope, gotKey string
	var gotValue interface{}
	s.Subscribe("device:dev-a", func(scope, key string, value interface{}) {
		gotScope, gotKey, gotValue = scope, key, value
	})

	s.SetDevice("dev-a", "playState", "running")
	assert.Equal(t, "device:dev-a", gotScope)
	assert.Equal(t, "playState", gotKey)
	assert.Equal(t, "running", gotValue)

	s.SetDevice("dev-b", "playState", "running")
	assert.Equal(t, "device:dev-a", gotScope, "must not fire for a non-matching device scope")
}

func TestOnlyWhitelistedDeviceKeysPersist(t *testing.T) {
	s, path := newTestStore(t, time.Millisecond)

	s.SetDevice("dev-a", "activeScene", "clock")
	s.SetDevice("dev-a", "transientCounter", 42)

	require.NoError(t, s.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "activeScene")
	assert.NotContains(t, string(data), "transientCounter")
}

func TestPersistedDocumentMatchesOnDiskContract(t *testing.T) {
	s, path := newTestStore(t, time.Millisecond)

	s.SetDevice("dev-a", "activeScene", "clock")
	require.NoError(t, s.Flush())

	var doc document
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, 1, doc.Version)
	assert.NotEmpty(t, doc.Timestamp)
	assert.Contains(t, doc.Devices, "dev-a")
	assert.Equal(t, "clock", doc.Devices["dev-a"]["activeScene"])
}

func TestHeartbeatUpdatesPersistedDaemonBlock(t *testing.T) {
	s, path := newTestStore(t, time.Millisecond)
	s.SetDevice("dev-a", "activeScene", "clock")
	require.NoError(t, s.Flush())

	var before document
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &before))
	require.NotZero(t, before.Daemon.StartTime)

	time.Sleep(time.Millisecond)
	s.Heartbeat()
	require.NoError(t, s.Flush())

	var after document
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &after))

	assert.Equal(t, before.Daemon.StartTime, after.Daemon.StartTime)
	assert.GreaterOrEqual(t, after.Daemon.LastHeartbeat, before.Daemon.LastHeartbeat)
}

func TestRestoreFromDiskOnNewStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime-state.json")

	first := New(zerolog.Nop(), path, time.Millisecond)
	first.Set("startedAt", "2026-07-30T00:00:00Z")
	first.SetDevice("dev-a", "brightness", 77)
	require.NoError(t, first.Flush())

	second := New(zerolog.Nop(), path, time.Hour)
	v, ok := second.Get("startedAt")
	require.True(t, ok)
	assert.Equal(t, "2026-07-30T00:00:00Z", v)

	dv, ok := second.GetDevice("dev-a", "brightness")
	require.True(t, ok)
	assert.EqualValues(t, 77, dv)
}

func TestDebounceCollapsesBurstIntoOneFlush(t *testing.T) {
	s, path := newTestStore(t, 30*time.Millisecond)

	for i := 0; i < 5; i++ {
		s.SetDevice("dev-a", "brightness", i)
	}

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "must not have flushed before the debounce window elapses")

	time.Sleep(100 * time.Millisecond)
	_, err = os.Stat(path)
	assert.NoError(t, err, "must have flushed once the debounce window elapsed")
}

func TestMissingStateFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	s := New(zerolog.Nop(), filepath.Join(dir, "does-not-exist.json"), time.Hour)
	assert.False(t, s.Has("anything"))
}
