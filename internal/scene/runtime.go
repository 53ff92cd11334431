package scene

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"pixoo-scened/internal/device"
	"pixoo-scened/internal/logging"
	"pixoo-scened/internal/rerr"
	"pixoo-scened/internal/store"
)

// Status is a device's transitional state, distinct from PlayState
// (the client-visible control). See §3's DeviceRuntimeState.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusSwitching Status = "switching"
	StatusRunning   Status = "running"
	StatusStopping  Status = "stopping"
	StatusPaused    Status = "paused"
	StatusStopped   Status = "stopped"
)

// PlayState is the client-visible playback control.
type PlayState string

const (
	PlayStatePlaying PlayState = "playing"
	PlayStatePaused  PlayState = "paused"
	PlayStateStopped PlayState = "stopped"
)

// DefaultErrorThreshold is how many consecutive push failures a
// device tolerates before the runtime stops pushing frames for it
// until the next explicit switch/resume (§7, "implementation detail").
const DefaultErrorThreshold = 5

// deviceState is the runtime-only (never persisted as a whole)
// in-memory state machine for one device. Its fields mirror §3's
// DeviceRuntimeState; only activeScene and playState are mirrored into
// the State Store for persistence. Brightness and displayOn live on the
// device handle and are not written to the State Store.
type deviceState struct {
	mu sync.Mutex

	id     string
	handle *device.Handle

	activeScene string
	generation  uint64
	status      Status
	playState   PlayState

	loopTimer         *time.Timer
	consecutiveErrors int
}

// Runtime is the per-device scheduler and state machine: the heart of
// the system (§4.4).
type Runtime struct {
	log          zerolog.Logger
	registry     *Registry
	store        *store.Store
	errThreshold int
	publish      PublishFunc

	mu      sync.RWMutex
	devices map[string]*deviceState
}

// NewRuntime builds a runtime over registry and store. publish may be
// nil, in which case PublishOk is a silent no-op.
func NewRuntime(log zerolog.Logger, registry *Registry, st *store.Store, errThreshold int, publish PublishFunc) *Runtime {
	if errThreshold <= 0 {
		errThreshold = DefaultErrorThreshold
	}
	if publish == nil {
		publish = func(string, string, int64, int, map[string]interface{}) {}
	}
	return &Runtime{
		log:          log.With().Str("component", "scene-runtime").Logger(),
		registry:     registry,
		store:        st,
		errThreshold: errThreshold,
		publish:      publish,
		devices:      make(map[string]*deviceState),
	}
}

// RegisterDevice introduces handle to the runtime, idle and with no
// active scene. Calling it twice for the same device is a no-op.
func (rt *Runtime) RegisterDevice(handle *device.Handle) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, exists := rt.devices[handle.ID()]; exists {
		return
	}
	rt.devices[handle.ID()] = &deviceState{
		id:        handle.ID(),
		handle:    handle,
		status:    StatusIdle,
		playState: PlayStateStopped,
	}
}

// Handle returns the device handle backing deviceID, for surfaces that
// need direct access to metrics or drawing state alongside the scene
// snapshot.
func (rt *Runtime) Handle(deviceID string) (*device.Handle, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	ds, ok := rt.devices[deviceID]
	if !ok {
		return nil, false
	}
	return ds.handle, true
}

// DeviceIDs lists every device registered with this runtime, for
// admin/discovery surfaces.
func (rt *Runtime) DeviceIDs() []string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	ids := make([]string, 0, len(rt.devices))
	for id := range rt.devices {
		ids = append(ids, id)
	}
	return ids
}

// deviceEvent returns a log event at level for deviceID, honoring its
// persisted loggingLevel (§9's advisory per-device resolution): the
// root logger's own level is still the hard floor, this only lets a
// device ask for more or less verbosity than the daemon default. Nil
// means the event should not be emitted at all.
func (rt *Runtime) deviceEvent(deviceID string, level zerolog.Level) *zerolog.Event {
	if v, ok := rt.store.GetDevice(deviceID, "loggingLevel"); ok {
		if s, ok := v.(string); ok && !logging.DeviceAllows(s, level) {
			return nil
		}
	}
	return rt.log.WithLevel(level).Str("deviceId", deviceID)
}

func (rt *Runtime) get(deviceID string) (*deviceState, error) {
	rt.mu.RLock()
	ds, ok := rt.devices[deviceID]
	rt.mu.RUnlock()
	if !ok {
		return nil, rerr.New(rerr.NotFound, deviceID, nil)
	}
	return ds, nil
}

// Bootstrap restores each registered device's persisted activeScene
// and playState (if any), so the daemon resumes cleanly after a
// restart instead of starting every device idle.
func (rt *Runtime) Bootstrap(ctx context.Context) error {
	rt.mu.RLock()
	all := make([]*deviceState, 0, len(rt.devices))
	for _, ds := range rt.devices {
		all = append(all, ds)
	}
	rt.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, ds := range all {
		ds := ds
		g.Go(func() error {
			return rt.bootstrapOne(gctx, ds)
		})
	}
	return g.Wait()
}

func (rt *Runtime) bootstrapOne(ctx context.Context, ds *deviceState) error {
	sceneName, ok := rt.store.GetDevice(ds.id, "activeScene")
	if !ok {
		return nil
	}
	name, ok := sceneName.(string)
	if !ok || name == "" {
		return nil
	}
	if err := rt.SwitchScene(ctx, ds.id, name, nil); err != nil {
		if evt := rt.deviceEvent(ds.id, zerolog.WarnLevel); evt != nil {
			evt.Err(err).Str("scene", name).Msg("failed to restore persisted scene")
		}
		return nil
	}
	if ps, ok := rt.store.GetDevice(ds.id, "playState"); ok {
		switch ps {
		case string(PlayStatePaused):
			_ = rt.PauseScene(ds.id)
		case string(PlayStateStopped):
			_ = rt.StopScene(ds.id)
		}
	}
	return nil
}

func (rt *Runtime) renderContext(ds *deviceState, sceneName string, payload map[string]interface{}, loopDriven bool, generation uint64) *RenderContext {
	return &RenderContext{
		Device: newDeviceView(ds.handle, func() uint64 {
			rt.mu.RLock()
			d := rt.devices[ds.id]
			rt.mu.RUnlock()
			if d == nil {
				return 0
			}
			d.mu.Lock()
			g := d.generation
			d.mu.Unlock()
			return g
		}, generation, func(failed bool) {
			rt.recordPushOutcome(ds, generation, failed)
		}),
		State:        &StateBag{st: rt.store, deviceID: ds.id, sceneName: sceneName},
		Payload:      payload,
		Env:          Env{Host: ds.id, Width: 64, Height: 64},
		LoopDriven:   loopDriven,
		GenerationID: generation,
		PublishOk:    rt.publish,
	}
}

// recordPushOutcome tracks consecutive driver push failures for ds
// and, once errThreshold is exceeded, stops the device's loop — a
// DeviceTransport failure ends the current tick per §7, but repeated
// failures are where the runtime gives up rather than retry forever.
func (rt *Runtime) recordPushOutcome(ds *deviceState, generation uint64, failed bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.generation != generation {
		return
	}
	if !failed {
		ds.consecutiveErrors = 0
		return
	}
	ds.consecutiveErrors++
	if ds.consecutiveErrors > rt.errThreshold {
		rt.cancelLoopLocked(ds)
		ds.playState = PlayStateStopped
		rt.store.SetDevice(ds.id, "playState", string(PlayStateStopped))
		if evt := rt.deviceEvent(ds.id, zerolog.WarnLevel); evt != nil {
			evt.Int("consecutiveErrors", ds.consecutiveErrors).Msg("push error threshold exceeded, loop stopped")
		}
	}
}

// cancelLoopLocked stops any pending timer for ds. Caller holds ds.mu.
func (rt *Runtime) cancelLoopLocked(ds *deviceState) {
	if ds.loopTimer != nil {
		ds.loopTimer.Stop()
		ds.loopTimer = nil
	}
}

// scheduleLocked arms the next tick after delayMs, fenced to
// generation. Caller holds ds.mu.
func (rt *Runtime) scheduleLocked(ds *deviceState, delayMs int, generation uint64) {
	ds.loopTimer = time.AfterFunc(time.Duration(delayMs)*time.Millisecond, func() {
		rt.tick(ds.id, generation)
	})
}

// SwitchScene implements §4.4's switchScene transition. Existence of
// the target scene is validated before any teardown of the prior one,
// so that switching to an unknown scene leaves the device completely
// unchanged (§8 scenario 5) — a stricter reading than the literal
// step order, chosen to satisfy the testable property.
func (rt *Runtime) SwitchScene(ctx context.Context, deviceID, sceneName string, payload map[string]interface{}) error {
	ds, err := rt.get(deviceID)
	if err != nil {
		return err
	}

	mod, ok := rt.registry.Lookup(sceneName)
	if !ok {
		return rerr.New(rerr.NotFound, deviceID, nil)
	}

	ds.mu.Lock()
	prevScene := ds.activeScene
	prevGeneration := ds.generation
	ds.status = StatusSwitching
	if prevScene != "" {
		ds.status = StatusStopping
		rt.cancelLoopLocked(ds)
	}
	ds.mu.Unlock()

	// Cleanup/Init/Render run with ds.mu released: a scene is free to call
	// ctx.Device.Push from either hook, which re-enters the runtime through
	// DeviceView's currentGen closure and locks ds.mu itself — holding the
	// lock across these calls would deadlock against Go's non-reentrant
	// sync.Mutex.
	if prevScene != "" {
		if prevMod, ok := rt.registry.Lookup(prevScene); ok {
			if cleaner, ok := prevMod.(Cleaner); ok {
				cleanupCtx := rt.renderContext(ds, prevScene, nil, false, prevGeneration)
				if err := cleaner.Cleanup(cleanupCtx); err != nil {
					if evt := rt.deviceEvent(deviceID, zerolog.WarnLevel); evt != nil {
						evt.Err(err).Str("scene", prevScene).Msg("scene cleanup failed")
					}
				}
			}
		}
		rt.store.ClearScene(deviceID, prevScene)
	}

	initCtx := rt.renderContext(ds, sceneName, payload, false, prevGeneration+1)
	var initErr error
	if initer, ok := mod.(Initializer); ok {
		initErr = initer.Init(initCtx)
	}

	ds.mu.Lock()
	if ds.generation != prevGeneration {
		// A concurrent switch completed while this one ran Cleanup/Init
		// unlocked; this attempt is stale and must not clobber the result.
		ds.mu.Unlock()
		return nil
	}

	if initErr != nil {
		ds.status = StatusIdle
		ds.activeScene = ""
		ds.playState = PlayStateStopped
		ds.mu.Unlock()
		rt.store.SetDevice(deviceID, "activeScene", "")
		rt.store.SetDevice(deviceID, "playState", string(PlayStateStopped))
		if evt := rt.deviceEvent(deviceID, zerolog.ErrorLevel); evt != nil {
			evt.Err(initErr).Str("scene", sceneName).Msg("scene init failed, switch aborted")
		}
		return rerr.WithScene(rerr.SceneRender, deviceID, sceneName, prevGeneration, initErr)
	}

	ds.generation = prevGeneration + 1
	ds.activeScene = sceneName
	ds.status = StatusRunning
	ds.playState = PlayStatePlaying
	ds.consecutiveErrors = 0
	generation := ds.generation
	wantsLoop := mod.WantsLoop()
	if wantsLoop {
		rt.scheduleLocked(ds, 0, generation)
	}
	ds.mu.Unlock()

	rt.store.SetDevice(deviceID, "activeScene", sceneName)
	rt.store.SetDevice(deviceID, "playState", string(PlayStatePlaying))

	if !wantsLoop {
		renderCtx := rt.renderContext(ds, sceneName, payload, false, generation)
		if _, rErr := mod.Render(renderCtx); rErr != nil {
			if evt := rt.deviceEvent(deviceID, zerolog.ErrorLevel); evt != nil {
				evt.Err(rErr).Str("scene", sceneName).Msg("one-shot render failed")
			}
		}
	}

	return nil
}

// tick runs one loop iteration for deviceID on behalf of generation,
// implementing §4.4's pseudocontract including the pre- and
// post-render generation fence.
func (rt *Runtime) tick(deviceID string, generation uint64) {
	ds, err := rt.get(deviceID)
	if err != nil {
		return
	}

	ds.mu.Lock()
	if ds.activeScene == "" || ds.generation != generation || ds.playState != PlayStatePlaying {
		ds.mu.Unlock()
		return
	}
	sceneName := ds.activeScene
	mod, ok := rt.registry.Lookup(sceneName)
	if !ok {
		ds.mu.Unlock()
		return
	}
	renderCtx := rt.renderContext(ds, sceneName, nil, true, generation)
	ds.mu.Unlock()

	result, renderErr := mod.Render(renderCtx)

	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.activeScene != sceneName || ds.generation != generation || ds.playState != PlayStatePlaying {
		// Post-render fence: a switch/pause/stop happened while this
		// tick was in flight. Discard the result entirely.
		return
	}

	if renderErr != nil {
		ds.consecutiveErrors++
		if evt := rt.deviceEvent(deviceID, zerolog.ErrorLevel); evt != nil {
			evt.Err(renderErr).Str("scene", sceneName).Msg("scene render failed")
		}
		ds.loopTimer = nil
		ds.playState = PlayStateStopped
		rt.store.SetDevice(deviceID, "playState", string(PlayStateStopped))
		return
	}
	ds.consecutiveErrors = 0

	if result.IsComplete() {
		ds.loopTimer = nil
		ds.playState = PlayStateStopped
		rt.store.SetDevice(deviceID, "playState", string(PlayStateStopped))
		return
	}

	rt.scheduleLocked(ds, result.DelayMs(), generation)
}

// PauseScene cancels the outstanding loop handle and marks the device
// paused. Idempotent: a second call observes the same end state.
func (rt *Runtime) PauseScene(deviceID string) error {
	ds, err := rt.get(deviceID)
	if err != nil {
		return err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.activeScene == "" {
		if evt := rt.deviceEvent(deviceID, zerolog.WarnLevel); evt != nil {
			evt.Msg("pause requested with no active scene")
		}
		return nil
	}
	rt.cancelLoopLocked(ds)
	ds.status = StatusPaused
	ds.playState = PlayStatePaused
	rt.store.SetDevice(deviceID, "playState", string(PlayStatePaused))
	return nil
}

// ResumeScene restarts the loop for a paused/stopped device, reusing
// its existing generation (no re-init).
func (rt *Runtime) ResumeScene(deviceID string) error {
	ds, err := rt.get(deviceID)
	if err != nil {
		return err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.playState == PlayStatePlaying {
		return nil
	}
	if ds.activeScene == "" {
		if evt := rt.deviceEvent(deviceID, zerolog.WarnLevel); evt != nil {
			evt.Msg("resume requested with no active scene")
		}
		return nil
	}
	mod, ok := rt.registry.Lookup(ds.activeScene)
	if !ok {
		if evt := rt.deviceEvent(deviceID, zerolog.WarnLevel); evt != nil {
			evt.Str("scene", ds.activeScene).Msg("resume: scene no longer registered")
		}
		return nil
	}

	ds.status = StatusRunning
	ds.playState = PlayStatePlaying
	rt.store.SetDevice(deviceID, "playState", string(PlayStatePlaying))
	if mod.WantsLoop() {
		rt.scheduleLocked(ds, 0, ds.generation)
	}
	return nil
}

// StopScene cancels the loop and marks the device stopped; the scene
// bag is preserved so a later resume is cheap. Idempotent.
func (rt *Runtime) StopScene(deviceID string) error {
	ds, err := rt.get(deviceID)
	if err != nil {
		return err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.activeScene == "" {
		if evt := rt.deviceEvent(deviceID, zerolog.WarnLevel); evt != nil {
			evt.Msg("stop requested with no active scene")
		}
		return nil
	}
	rt.cancelLoopLocked(ds)
	ds.status = StatusStopped
	ds.playState = PlayStateStopped
	rt.store.SetDevice(deviceID, "playState", string(PlayStateStopped))
	return nil
}

// UpdateSceneParameters merges payload into the active scene's state
// bag and re-runs init/render once, without bumping the generation
// unless the loop had stopped. A sceneName different from the active
// one delegates to SwitchScene instead of silently dropping.
func (rt *Runtime) UpdateSceneParameters(ctx context.Context, deviceID, sceneName string, payload map[string]interface{}) error {
	ds, err := rt.get(deviceID)
	if err != nil {
		return err
	}

	ds.mu.Lock()
	if sceneName != "" && sceneName != ds.activeScene {
		ds.mu.Unlock()
		return rt.SwitchScene(ctx, deviceID, sceneName, payload)
	}
	active := ds.activeScene
	generation := ds.generation
	ds.mu.Unlock()

	if active == "" {
		return rerr.WithScene(rerr.Validation, deviceID, sceneName, generation, nil)
	}
	mod, ok := rt.registry.Lookup(active)
	if !ok {
		return rerr.WithScene(rerr.NotFound, deviceID, active, generation, nil)
	}

	for k, v := range payload {
		if k == "scene" {
			continue
		}
		rt.store.SetScene(deviceID, active, k, v)
	}

	cleanupCtx := rt.renderContext(ds, active, payload, false, generation)
	if cleaner, ok := mod.(Cleaner); ok {
		if err := cleaner.Cleanup(cleanupCtx); err != nil {
			if evt := rt.deviceEvent(deviceID, zerolog.WarnLevel); evt != nil {
				evt.Err(err).Str("scene", active).Msg("scene cleanup failed during parameter update")
			}
		}
	}
	initCtx := rt.renderContext(ds, active, payload, false, generation)
	if initer, ok := mod.(Initializer); ok {
		if err := initer.Init(initCtx); err != nil {
			return rerr.WithScene(rerr.SceneRender, deviceID, active, generation, err)
		}
	}

	renderCtx := rt.renderContext(ds, active, payload, false, generation)
	result, renderErr := mod.Render(renderCtx)
	if renderErr != nil {
		if evt := rt.deviceEvent(deviceID, zerolog.ErrorLevel); evt != nil {
			evt.Err(renderErr).Str("scene", active).Msg("parameter-update render failed")
		}
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.activeScene != active || ds.generation != generation {
		return nil
	}
	if mod.WantsLoop() && ds.loopTimer == nil {
		ds.generation++
		ds.playState = PlayStatePlaying
		rt.store.SetDevice(deviceID, "playState", string(PlayStatePlaying))
		delay := 0
		if !result.IsComplete() {
			delay = result.DelayMs()
		}
		rt.scheduleLocked(ds, delay, ds.generation)
	}
	return nil
}

// Snapshot reports a device's current runtime-facing state, for
// diagnostics and the Service Facade.
type Snapshot struct {
	DeviceID    string
	ActiveScene string
	Generation  uint64
	Status      Status
	PlayState   PlayState
}

func (rt *Runtime) Snapshot(deviceID string) (Snapshot, error) {
	ds, err := rt.get(deviceID)
	if err != nil {
		return Snapshot{}, err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return Snapshot{
		DeviceID:    deviceID,
		ActiveScene: ds.activeScene,
		Generation:  ds.generation,
		Status:      ds.status,
		PlayState:   ds.playState,
	}, nil
}

// Shutdown cancels every device's outstanding loop timer and runs its
// active scene's Cleanup, concurrently across devices. Cleanup
// failures are aggregated (not short-circuited, since one device's
// teardown must not skip another's) and logged as a single structured
// event; Shutdown itself only fails if the context is cancelled first.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	rt.mu.RLock()
	all := make([]*deviceState, 0, len(rt.devices))
	for _, ds := range rt.devices {
		all = append(all, ds)
	}
	rt.mu.RUnlock()

	var mu sync.Mutex
	var cleanupErrs error

	g, _ := errgroup.WithContext(ctx)
	for _, ds := range all {
		ds := ds
		g.Go(func() error {
			ds.mu.Lock()
			rt.cancelLoopLocked(ds)
			activeScene := ds.activeScene
			generation := ds.generation
			var cleanupCtx *RenderContext
			if activeScene != "" {
				cleanupCtx = rt.renderContext(ds, activeScene, nil, false, generation)
			}
			ds.mu.Unlock()

			if cleanupCtx == nil {
				return nil
			}
			mod, ok := rt.registry.Lookup(activeScene)
			if !ok {
				return nil
			}
			cleaner, ok := mod.(Cleaner)
			if !ok {
				return nil
			}
			if err := cleaner.Cleanup(cleanupCtx); err != nil {
				mu.Lock()
				cleanupErrs = multierr.Append(cleanupErrs, fmt.Errorf("device %s: %w", ds.id, err))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if cleanupErrs != nil {
		rt.log.Warn().Err(cleanupErrs).Msg("errors during shutdown scene cleanup")
	}
	return nil
}
