package cache

import (
	"context"
	"os"

	"golang.org/x/sync/singleflight"
)

// Outcome describes how Ensure satisfied a request.
type Outcome string

const (
	// OutcomeHit means the artifact already existed on disk.
	OutcomeHit Outcome = "hit"
	// OutcomeCompiled means this call ran the compile function.
	OutcomeCompiled Outcome = "compiled"
	// OutcomeShared means a concurrent call for the same fingerprint compiled it.
	OutcomeShared Outcome = "shared"
	// OutcomeFailed means the compile function returned an error.
	OutcomeFailed Outcome = "failed"
)

// CompileFunc produces the artifact for a fingerprint on a cache miss. It must
// leave the file at the artifact's Path on success and nothing on failure.
type CompileFunc func(ctx context.Context, a Artifact) error

// Cache maps fingerprints to artifact files in the source directory.
type Cache struct {
	dir       string
	generated *GeneratedSet
	flight    singleflight.Group
}

// New creates a cache rooted at dir that registers into generated.
func New(dir string, generated *GeneratedSet) *Cache {
	return &Cache{dir: dir, generated: generated}
}

// Dir returns the cache source directory.
func (c *Cache) Dir() string { return c.dir }

// Generated returns the build's generated set.
func (c *Cache) Generated() *GeneratedSet { return c.generated }

// Lookup reports whether the artifact for fp exists. It has no side effects.
func (c *Cache) Lookup(fp string) (Artifact, bool) {
	a := NewArtifact(c.dir, fp)
	info, err := os.Stat(a.Path)
	if err != nil || !info.Mode().IsRegular() {
		return a, false
	}
	return a, true
}

// Register marks an artifact as used by the current build.
func (c *Cache) Register(a Artifact) {
	c.generated.Add(a)
}

// Ensure returns the artifact for fp, compiling it at most once across
// concurrent callers. The artifact is registered on hits and successful
// compiles; failures are neither registered nor remembered.
func (c *Cache) Ensure(ctx context.Context, fp string, compile CompileFunc) (Artifact, Outcome, error) {
	if a, ok := c.Lookup(fp); ok {
		c.Register(a)
		return a, OutcomeHit, nil
	}

	leader := false
	v, err, _ := c.flight.Do(fp, func() (any, error) {
		leader = true
		// Another flight may have finished between Lookup and Do.
		if a, ok := c.Lookup(fp); ok {
			return flightResult{artifact: a, hit: true}, nil
		}
		a := NewArtifact(c.dir, fp)
		if err := compile(ctx, a); err != nil {
			return nil, err
		}
		return flightResult{artifact: a}, nil
	})
	if err != nil {
		return Artifact{}, OutcomeFailed, err
	}

	res := v.(flightResult)
	c.Register(res.artifact)
	switch {
	case res.hit:
		return res.artifact, OutcomeHit, nil
	case leader:
		return res.artifact, OutcomeCompiled, nil
	default:
		return res.artifact, OutcomeShared, nil
	}
}

type flightResult struct {
	artifact Artifact
	hit      bool
}
