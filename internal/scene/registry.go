package scene

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
)

// Entry is a registered module plus the metadata derived from its
// registration path (§4.5).
type Entry struct {
	Module      Module
	RelPath     string
	Tags        []string
	DeviceTypes []string
	IsDev       bool
	Order       uint32
}

// Registry maps scene name to module. Scenes never register
// dynamically from untrusted sources (§1 Non-goals): every entry
// arrives via Register, called from a scene package's init(), so the
// registry's contents are fixed by the binary's compiled-in package
// set, not by a runtime filesystem scan.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// deriveOrder computes the stable per-scene integer used for
// reproducible listings: a deterministic hash of name|relativePath.
func deriveOrder(name, relPath string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name + "|" + relPath))
	return h.Sum32()
}

// deriveTags infers dev/examples/device-type hints from path
// segments, e.g. "dev/clock" implies IsDev, "examples/gradient"
// implies the "examples" tag.
func deriveTags(relPath string) (tags []string, isDev bool) {
	for _, seg := range strings.Split(filepathToSlash(relPath), "/") {
		switch seg {
		case "dev":
			isDev = true
			tags = append(tags, "dev")
		case "examples":
			tags = append(tags, "examples")
		}
	}
	return tags, isDev
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// Register validates and installs mod under relPath, the path (core
// or user scene directory relative) it was declared from. Invalid
// modules (empty name, or a name already registered) are rejected
// with a reason and never abort the caller — discovery failures are
// logged by the caller, not fatal to startup.
func (r *Registry) Register(mod Module, relPath string) error {
	if mod == nil {
		return fmt.Errorf("scene registry: nil module at %q", relPath)
	}
	name := mod.Name()
	if name == "" {
		return fmt.Errorf("scene registry: module at %q has empty name", relPath)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("scene registry: duplicate scene name %q (at %q)", name, relPath)
	}

	tags, isDev := deriveTags(relPath)
	deviceTypes := []string{}
	if d, ok := mod.(Descriptor); ok {
		tags = append(tags, d.Tags()...)
		deviceTypes = d.DeviceTypes()
		isDev = isDev || d.IsDev()
	}

	r.entries[name] = &Entry{
		Module:      mod,
		RelPath:     relPath,
		Tags:        tags,
		DeviceTypes: deviceTypes,
		IsDev:       isDev,
		Order:       deriveOrder(name, relPath),
	}
	return nil
}

// Lookup returns the module registered under name.
func (r *Registry) Lookup(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.Module, true
}

// List returns all entries ordered by their stable Order field, for
// reproducible listings across runs.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Len reports how many scenes are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// EnsureFallback installs the built-in empty/fill scenes if nothing
// else registered, so the daemon is always in a renderable state
// (§4.5). It is a no-op once any scene is present.
func (r *Registry) EnsureFallback() {
	r.mu.Lock()
	empty := len(r.entries) == 0
	r.mu.Unlock()
	if !empty {
		return
	}
	_ = r.Register(newEmptyScene(), "fallback/empty")
	_ = r.Register(newFillScene(), "fallback/fill")
}

// Default is the process-wide registry that in-tree scene packages
// register themselves into via init(), mirroring the self-registration
// idiom of database/sql drivers.
var Default = NewRegistry()
