package cache

import (
	"sync"

	"git.home.luguber.info/inful/texcache/internal/util/sets"
)

// GeneratedSet records every artifact path a build touched, whether reused or
// freshly compiled. It is append-only and safe for concurrent use.
type GeneratedSet struct {
	mu    sync.Mutex
	paths sets.Set[string]
	order []Artifact
}

// NewGeneratedSet returns an empty set for a new build.
func NewGeneratedSet() *GeneratedSet {
	return &GeneratedSet{paths: sets.New[string]()}
}

// Add records an artifact. Adding the same path twice is harmless.
func (g *GeneratedSet) Add(a Artifact) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paths.Has(a.Path) {
		return
	}
	g.paths.Add(a.Path)
	g.order = append(g.order, a)
}

// Contains reports whether path was recorded.
func (g *GeneratedSet) Contains(path string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paths.Has(path)
}

// Len returns the number of distinct artifacts recorded.
func (g *GeneratedSet) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.order)
}

// Paths returns a snapshot of the recorded paths.
func (g *GeneratedSet) Paths() sets.Set[string] {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paths.Clone()
}

// Artifacts returns the recorded artifacts in first-seen order.
func (g *GeneratedSet) Artifacts() []Artifact {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Artifact, len(g.order))
	copy(out, g.order)
	return out
}
