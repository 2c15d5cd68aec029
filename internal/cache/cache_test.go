package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/texcache/internal/fingerprint"
)

func writeArtifact(t *testing.T, a Artifact) {
	t.Helper()
	require.NoError(t, os.WriteFile(a.Path, []byte("png"), 0o600))
}

func TestFileNameRoundTrip(t *testing.T) {
	fp := fingerprint.Compute("300", "", "x")
	name := FileName(fp)
	assert.Equal(t, "latex-"+fp+".png", name)

	got, ok := ParseFileName(name)
	require.True(t, ok)
	assert.Equal(t, fp, got)

	_, ok = ParseFileName("latex-notahash.png")
	assert.False(t, ok)
	_, ok = ParseFileName("photo.png")
	assert.False(t, ok)

	matched, err := filepath.Match(Pattern, name)
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestLookup(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, NewGeneratedSet())
	fp := fingerprint.Compute("300", "", "a")

	a, ok := c.Lookup(fp)
	assert.False(t, ok)
	assert.Equal(t, filepath.Join(dir, FileName(fp)), a.Path)
	assert.Equal(t, 0, c.Generated().Len(), "lookup must not register")

	writeArtifact(t, a)
	_, ok = c.Lookup(fp)
	assert.True(t, ok)
	assert.Equal(t, 0, c.Generated().Len())
}

func TestEnsure_HitSkipsCompile(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, NewGeneratedSet())
	fp := fingerprint.Compute("300", "", "hit")
	writeArtifact(t, NewArtifact(dir, fp))

	calls := 0
	a, outcome, err := c.Ensure(context.Background(), fp, func(context.Context, Artifact) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeHit, outcome)
	assert.Equal(t, 0, calls)
	assert.True(t, c.Generated().Contains(a.Path))
}

func TestEnsure_MissCompilesAndRegisters(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, NewGeneratedSet())
	fp := fingerprint.Compute("300", "", "miss")

	a, outcome, err := c.Ensure(context.Background(), fp, func(_ context.Context, a Artifact) error {
		return os.WriteFile(a.Path, []byte("png"), 0o600)
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompiled, outcome)
	assert.FileExists(t, a.Path)
	assert.Equal(t, 1, c.Generated().Len())

	// A second request in the same build is a hit.
	_, outcome, err = c.Ensure(context.Background(), fp, func(context.Context, Artifact) error {
		t.Fatal("compile must not run for a cached fingerprint")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeHit, outcome)
	assert.Equal(t, 1, c.Generated().Len())
}

func TestEnsure_FailureIsNotCachedOrRegistered(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, NewGeneratedSet())
	fp := fingerprint.Compute("300", "", "broken")
	boom := errors.New("stage failed")

	_, _, err := c.Ensure(context.Background(), fp, func(context.Context, Artifact) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Generated().Len())

	calls := 0
	_, _, err = c.Ensure(context.Background(), fp, func(context.Context, Artifact) error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "a failed fingerprint is retried on the next request")
}

func TestEnsure_ConcurrentRequestsCompileOnce(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, NewGeneratedSet())
	fp := fingerprint.Compute("300", "", "shared")

	var compiles atomic.Int32
	release := make(chan struct{})
	compile := func(_ context.Context, a Artifact) error {
		compiles.Add(1)
		<-release
		return os.WriteFile(a.Path, []byte("png"), 0o600)
	}

	const callers = 6
	var wg sync.WaitGroup
	outcomes := make(chan Outcome, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, outcome, err := c.Ensure(context.Background(), fp, compile)
			assert.NoError(t, err)
			outcomes <- outcome
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(outcomes)

	assert.Equal(t, int32(1), compiles.Load())
	compiled := 0
	for o := range outcomes {
		if o == OutcomeCompiled {
			compiled++
		}
	}
	assert.Equal(t, 1, compiled)
	assert.Equal(t, 1, c.Generated().Len())
}

func TestGeneratedSet(t *testing.T) {
	g := NewGeneratedSet()
	a := NewArtifact("/src/latex", fingerprint.Compute("1", "", "a"))
	b := NewArtifact("/src/latex", fingerprint.Compute("1", "", "b"))

	g.Add(a)
	g.Add(b)
	g.Add(a)

	assert.Equal(t, 2, g.Len())
	assert.True(t, g.Contains(a.Path))
	assert.False(t, g.Contains("/src/latex/other.png"))
	assert.Equal(t, []Artifact{a, b}, g.Artifacts())

	snapshot := g.Paths()
	snapshot.Delete(a.Path)
	assert.True(t, g.Contains(a.Path), "snapshot must not alias the set")
}
