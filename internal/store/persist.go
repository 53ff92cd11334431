package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultDebounce is the quiescence window before a dirty store is
	// flushed to disk.
	DefaultDebounce = 10 * time.Second

	defaultRelPath = ".pidicon/runtime-state.json"
)

// document is the on-disk shape: every global key, plus the
// whitelisted keys of the per-device tier. Scene-scoped state and
// non-whitelisted device keys are never written.
type document struct {
	Version   int                                `json:"version"`
	Timestamp string                             `json:"timestamp"`
	Daemon    daemonInfo                         `json:"daemon"`
	Global    map[string]interface{}             `json:"global"`
	Devices   map[string]map[string]interface{} `json:"devices"`
}

// daemonInfo records process identity the State Store persists
// alongside device state: when this run started, and the last time it
// confirmed itself alive via Store.Heartbeat.
type daemonInfo struct {
	StartTime     int64 `json:"startTime"`
	LastHeartbeat int64 `json:"lastHeartbeat"`
}

const documentVersion = 1

// persister owns the debounce timer and the fallback-chain path
// resolution, and performs the actual atomic writes, grounded on
// storage.Manager's temp+rename save().
type persister struct {
	store      *Store
	log        zerolog.Logger
	debounce   time.Duration
	activePath string

	mu    sync.Mutex
	timer *time.Timer

	hbMu          sync.Mutex
	startTime     time.Time
	lastHeartbeat time.Time
}

// newPersister resolves the fallback chain (preferredPath → env
// override → ~/.pidicon/runtime-state.json → OS tempdir) and attempts
// to restore prior state from whichever path resolves first.
func newPersister(s *Store, preferredPath string, debounce time.Duration, log zerolog.Logger) *persister {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	now := time.Now()
	p := &persister{
		store:         s,
		log:           log,
		debounce:      debounce,
		startTime:     now,
		lastHeartbeat: now,
	}
	p.activePath = resolvePath(preferredPath, log)
	if err := p.load(); err != nil {
		log.Warn().Err(err).Str("path", p.activePath).Msg("could not restore prior runtime state")
	}
	return p
}

// heartbeat records that the daemon is still alive and marks the
// store dirty so the next debounced flush carries the new timestamp.
func (p *persister) heartbeat() {
	p.hbMu.Lock()
	p.lastHeartbeat = time.Now()
	p.hbMu.Unlock()
	p.markDirty()
}

// resolvePath walks the fallback chain until it finds a directory it
// can create/write to.
func resolvePath(preferred string, log zerolog.Logger) string {
	candidates := []string{}
	if preferred != "" {
		candidates = append(candidates, preferred)
	}
	if env := os.Getenv("PIXOO_STATE_PATH"); env != "" {
		candidates = append(candidates, env)
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, defaultRelPath))
	}
	candidates = append(candidates, filepath.Join(os.TempDir(), "pixoo-scened", "runtime-state.json"))

	for _, c := range candidates {
		dir := filepath.Dir(c)
		if err := os.MkdirAll(dir, 0o755); err == nil {
			if f, err := os.CreateTemp(dir, ".probe-*"); err == nil {
				f.Close()
				os.Remove(f.Name())
				return c
			}
		}
		log.Debug().Str("path", c).Msg("state path unwritable, trying fallback")
	}
	return candidates[len(candidates)-1]
}

// markDirty (re)starts the debounce timer; a burst of writes inside
// the window collapses to a single flush.
func (p *persister) markDirty() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.debounce, func() {
		if err := p.flush(); err != nil {
			p.log.Warn().Err(err).Msg("runtime state flush failed")
		}
	})
}

// flush writes the current persisted subset atomically: write to a
// temp file in the same directory, then rename over the target so a
// crash mid-write never leaves a truncated state file.
func (p *persister) flush() error {
	doc := p.buildDocument()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal runtime state: %w", err)
	}

	tmp := p.activePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write runtime state temp file: %w", err)
	}
	if err := os.Rename(tmp, p.activePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename runtime state file: %w", err)
	}
	p.log.Debug().Str("path", p.activePath).Msg("runtime state flushed")
	return nil
}

func (p *persister) buildDocument() document {
	snap := p.store.Snapshot()

	p.hbMu.Lock()
	startTime, lastHeartbeat := p.startTime, p.lastHeartbeat
	p.hbMu.Unlock()

	doc := document{
		Version:   documentVersion,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Daemon: daemonInfo{
			StartTime:     startTime.UnixMilli(),
			LastHeartbeat: lastHeartbeat.UnixMilli(),
		},
		Global:  make(map[string]interface{}),
		Devices: make(map[string]map[string]interface{}),
	}
	for k, v := range snap.Global {
		doc.Global[k] = v
	}
	for dev, m := range snap.Device {
		filtered := make(map[string]interface{})
		for k, v := range m {
			if persistedDeviceKeys[k] {
				filtered[k] = v
			}
		}
		if len(filtered) > 0 {
			doc.Devices[dev] = filtered
		}
	}
	return doc
}

// load restores prior state from activePath, if present. A missing
// file is not an error — the daemon simply starts with empty state.
func (p *persister) load() error {
	data, err := os.ReadFile(p.activePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("unmarshal runtime state: %w", err)
	}

	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	for k, v := range doc.Global {
		p.store.global[k] = v
	}
	for dev, m := range doc.Devices {
		copied := make(map[string]interface{}, len(m))
		for k, v := range m {
			copied[k] = v
		}
		p.store.device[dev] = copied
	}
	return nil
}
