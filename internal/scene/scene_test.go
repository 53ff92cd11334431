package scene

import (
	"sync"
	"sync/atomic"
)

// recordingScene is a configurable test double: counts init/render/
// cleanup calls, optionally loops at a fixed delay, optionally fails,
// optionally sleeps inside render to exercise stale-tick suppression.
type recordingScene struct {
	name      string
	wantsLoop bool
	delayMs   int
	failInit  bool
	failOnce  bool

	// pushOnCleanup makes Cleanup call ctx.Device.Push, mirroring
	// scenes/dev/clock's teardown behavior.
	pushOnCleanup bool

	mu          sync.Mutex
	inits       int
	cleanups    int
	renderSleep func()
	lastPayload map[string]interface{}

	renders int32
}

func newRecordingScene(name string, wantsLoop bool, delayMs int) *recordingScene {
	return &recordingScene{name: name, wantsLoop: wantsLoop, delayMs: delayMs}
}

func (s *recordingScene) Name() string    { return s.name }
func (s *recordingScene) WantsLoop() bool { return s.wantsLoop }

func (s *recordingScene) Init(ctx *RenderContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInit {
		return errInitFailed
	}
	s.inits++
	s.lastPayload = ctx.Payload
	return nil
}

func (s *recordingScene) Cleanup(ctx *RenderContext) error {
	s.mu.Lock()
	s.cleanups++
	s.mu.Unlock()
	if s.pushOnCleanup {
		return ctx.Device.Push(nil)
	}
	return nil
}

func (s *recordingScene) Render(ctx *RenderContext) (RenderResult, error) {
	atomic.AddInt32(&s.renders, 1)
	if s.renderSleep != nil {
		s.renderSleep()
	}
	if s.failOnce {
		s.failOnce = false
		return RenderResult{}, errRenderFailed
	}
	_ = ctx.Device.Push(nil)
	if !s.wantsLoop {
		return Done(), nil
	}
	return Continue(s.delayMs), nil
}

func (s *recordingScene) renderCount() int32 {
	return atomic.LoadInt32(&s.renders)
}

func (s *recordingScene) initCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inits
}

func (s *recordingScene) cleanupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanups
}

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const (
	errInitFailed   = sentinelErr("init failed")
	errRenderFailed = sentinelErr("render failed")
)
