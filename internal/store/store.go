// Package store implements the State Store (§4.3): the single source
// of truth for global, per-device, and per-(device,scene) state, with
// debounced atomic persistence of a whitelisted subset of fields.
package store

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// persistedDeviceKeys are the only per-device keys ever written to
// disk. Transient fields (loop handles, generations, status, metrics)
// never appear here, per the §3 invariant.
var persistedDeviceKeys = map[string]bool{
	"activeScene":  true,
	"playState":    true,
	"brightness":   true,
	"displayOn":    true,
	"loggingLevel": true,
}

// Subscriber callbacks receive change notifications; used by
// diagnostics, never by correctness-critical code.
type Subscriber func(scope, key string, value interface{})

// Store is the three-tier key space: global, (deviceId,key), and
// (deviceId,sceneName,key). It is the exclusive owner of all
// DeviceRuntimeState and SceneStateBag instances in the process.
type Store struct {
	mu     sync.RWMutex
	log    zerolog.Logger
	global map[string]interface{}
	device map[string]map[string]interface{}
	scene  map[string]map[string]map[string]interface{}

	subMu sync.Mutex
	subs  map[string][]Subscriber

	persist *persister
}

// New builds a store with persistence wired to persistPath, restoring
// any prior state found at the resolved path.
func New(log zerolog.Logger, persistPath string, debounce time.Duration) *Store {
	s := &Store{
		log:    log.With().Str("component", "store").Logger(),
		global: make(map[string]interface{}),
		device: make(map[string]map[string]interface{}),
		scene:  make(map[string]map[string]map[string]interface{}),
		subs:   make(map[string][]Subscriber),
	}
	s.persist = newPersister(s, persistPath, debounce, s.log)
	return s
}

// Subscribe registers a callback invoked after any change to the
// given scope ("global", "device:<id>", "scene:<id>:<name>", or "*"
// for everything). Used by diagnostics — never relied on by the
// runtime for correctness.
func (s *Store) Subscribe(scope string, cb Subscriber) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subs[scope] = append(s.subs[scope], cb)
}

func (s *Store) notify(scope, key string, value interface{}) {
	s.subMu.Lock()
	cbs := append(append([]Subscriber{}, s.subs[scope]...), s.subs["*"]...)
	s.subMu.Unlock()
	for _, cb := range cbs {
		cb(scope, key, value)
	}
}

// --- Global tier ---

func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.global[key]
	return v, ok
}

func (s *Store) Set(key string, value interface{}) {
	s.mu.Lock()
	s.global[key] = value
	s.mu.Unlock()
	s.notify("global", key, value)
}

func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.global[key]
	return ok
}

func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.global, key)
	s.mu.Unlock()
	s.notify("global", key, nil)
}

// --- Per-device tier ---

func (s *Store) GetDevice(deviceID, key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.device[deviceID]
	if !ok {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

func (s *Store) SetDevice(deviceID, key string, value interface{}) {
	s.mu.Lock()
	m, ok := s.device[deviceID]
	if !ok {
		m = make(map[string]interface{})
		s.device[deviceID] = m
	}
	m[key] = value
	persistable := persistedDeviceKeys[key]
	s.mu.Unlock()

	s.notify("device:"+deviceID, key, value)
	if persistable {
		s.persist.markDirty()
	}
}

func (s *Store) HasDevice(deviceID, key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.device[deviceID]
	if !ok {
		return false
	}
	_, ok = m[key]
	return ok
}

func (s *Store) DeleteDevice(deviceID, key string) {
	s.mu.Lock()
	if m, ok := s.device[deviceID]; ok {
		delete(m, key)
	}
	s.mu.Unlock()
	s.notify("device:"+deviceID, key, nil)
}

// --- Per-(device,scene) tier ---

func (s *Store) GetScene(deviceID, sceneName, key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byDevice, ok := s.scene[deviceID]
	if !ok {
		return nil, false
	}
	bag, ok := byDevice[sceneName]
	if !ok {
		return nil, false
	}
	v, ok := bag[key]
	return v, ok
}

func (s *Store) SetScene(deviceID, sceneName, key string, value interface{}) {
	s.mu.Lock()
	byDevice, ok := s.scene[deviceID]
	if !ok {
		byDevice = make(map[string]map[string]interface{})
		s.scene[deviceID] = byDevice
	}
	bag, ok := byDevice[sceneName]
	if !ok {
		bag = make(map[string]interface{})
		byDevice[sceneName] = bag
	}
	bag[key] = value
	s.mu.Unlock()
	s.notify("scene:"+deviceID+":"+sceneName, key, value)
}

func (s *Store) HasScene(deviceID, sceneName, key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byDevice, ok := s.scene[deviceID]
	if !ok {
		return false
	}
	bag, ok := byDevice[sceneName]
	if !ok {
		return false
	}
	_, ok = bag[key]
	return ok
}

func (s *Store) DeleteScene(deviceID, sceneName, key string) {
	s.mu.Lock()
	if byDevice, ok := s.scene[deviceID]; ok {
		if bag, ok := byDevice[sceneName]; ok {
			delete(bag, key)
		}
	}
	s.mu.Unlock()
	s.notify("scene:"+deviceID+":"+sceneName, key, nil)
}

// ClearScene drops an entire scene's state bag for deviceID, e.g. on
// cleanup.
func (s *Store) ClearScene(deviceID, sceneName string) {
	s.mu.Lock()
	if byDevice, ok := s.scene[deviceID]; ok {
		delete(byDevice, sceneName)
	}
	s.mu.Unlock()
	s.notify("scene:"+deviceID+":"+sceneName, "", nil)
}

// Snapshot is a deep, read-only copy of the entire key space.
type Snapshot struct {
	Global map[string]interface{}
	Device map[string]map[string]interface{}
	Scene  map[string]map[string]map[string]interface{}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Global: make(map[string]interface{}, len(s.global)),
		Device: make(map[string]map[string]interface{}, len(s.device)),
		Scene:  make(map[string]map[string]map[string]interface{}, len(s.scene)),
	}
	for k, v := range s.global {
		snap.Global[k] = v
	}
	for dev, m := range s.device {
		copied := make(map[string]interface{}, len(m))
		for k, v := range m {
			copied[k] = v
		}
		snap.Device[dev] = copied
	}
	for dev, byScene := range s.scene {
		outByScene := make(map[string]map[string]interface{}, len(byScene))
		for name, bag := range byScene {
			copiedBag := make(map[string]interface{}, len(bag))
			for k, v := range bag {
				copiedBag[k] = v
			}
			outByScene[name] = copiedBag
		}
		snap.Scene[dev] = outByScene
	}
	return snap
}

// Flush forces an immediate persistence write, bypassing the debounce
// window. Intended for shutdown.
func (s *Store) Flush() error {
	return s.persist.flush()
}

// Heartbeat records that the daemon is still alive, for the
// persisted document's daemon.lastHeartbeat field. Callers invoke
// this on a periodic interval; it marks the store dirty like any
// other persisted write.
func (s *Store) Heartbeat() {
	s.persist.heartbeat()
}

// RestorePath returns the filesystem path the store actually loaded
// from (or will write to), after fallback-chain resolution.
func (s *Store) RestorePath() string {
	return s.persist.activePath
}
