// Package state holds the Config State record shared between the Ingress
// Reconciler and the ConfigMap Watcher, and read by the Renderer and
// Supervisor. Go's goroutines run in true parallel, unlike the
// single-threaded scheduler the source assumed, so access is guarded by a
// mutex (spec.md §9).
package state

import (
	"sync"

	"github.com/mariusmagureanu/vingress/pkg/backend"
)

// Config is the mutable record driving rendering. VCLFile, Template and
// WorkDir are fixed at startup; Backends, Snippet and RecvSnippet change
// as events are reconciled.
type Config struct {
	mu sync.Mutex

	backends    []backend.Backend
	snippet     string
	recvSnippet string

	VCLFile  string
	Template string
	WorkDir  string
}

// New returns a Config State with the given fixed file-system locations.
func New(vclFile, template, workDir string) *Config {
	return &Config{VCLFile: vclFile, Template: template, WorkDir: workDir}
}

// SetBackends replaces the flattened backend list, e.g. the output of
// backend.Fold after an Ingress reconcile.
func (c *Config) SetBackends(bs []backend.Backend) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backends = bs
}

// SetSnippets updates the free-form VCL snippet and the vcl_recv snippet.
// Passing hasSnippet or hasRecvSnippet as false leaves that field unchanged (the ConfigMap watcher
// only updates keys that are actually present in the ConfigMap's data).
func (c *Config) SetSnippets(snippet string, hasSnippet bool, recvSnippet string, hasRecvSnippet bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hasSnippet {
		c.snippet = snippet
	}
	if hasRecvSnippet {
		c.recvSnippet = recvSnippet
	}
}

// ClearSnippets resets both snippet fields unconditionally, for when the
// ConfigMap backing them is deleted outright.
func (c *Config) ClearSnippets() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snippet = ""
	c.recvSnippet = ""
}

// Snapshot returns a point-in-time copy safe to read without holding the
// lock, e.g. to hand to the renderer.
type Snapshot struct {
	Backends    []backend.Backend
	Snippet     string
	RecvSnippet string
}

func (c *Config) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	bs := make([]backend.Backend, len(c.backends))
	copy(bs, c.backends)
	return Snapshot{Backends: bs, Snippet: c.snippet, RecvSnippet: c.recvSnippet}
}
