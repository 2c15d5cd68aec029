package janitor

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/texcache/internal/cache"
	"git.home.luguber.info/inful/texcache/internal/config"
	"git.home.luguber.info/inful/texcache/internal/fingerprint"
)

type fixture struct {
	settings  config.Settings
	generated *cache.GeneratedSet
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return newFixtureIn(t, t.TempDir())
}

func newFixtureIn(t *testing.T, root string) fixture {
	t.Helper()
	st := config.Settings{
		SrcDir: filepath.Join(root, "src", "latex"),
		DstDir: filepath.Join(root, "public", "latex"),
	}
	require.NoError(t, os.MkdirAll(st.SrcDir, 0o750))
	return fixture{settings: st, generated: cache.NewGeneratedSet()}
}

func (f fixture) artifact(t *testing.T, snippet string, published bool) cache.Artifact {
	t.Helper()
	a := cache.NewArtifact(f.settings.SrcDir, fingerprint.Compute("300", "", snippet))
	require.NoError(t, os.WriteFile(a.Path, []byte("png"), 0o600))
	if published {
		require.NoError(t, os.MkdirAll(f.settings.DstDir, 0o750))
		require.NoError(t, os.WriteFile(filepath.Join(f.settings.DstDir, a.Name), []byte("png"), 0o600))
	}
	return a
}

func (f fixture) janitor() *Janitor {
	return New(f.settings, f.generated, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestReconcile_KeepsWantedAndRemovesOrphansFromBothTrees(t *testing.T) {
	f := newFixture(t)
	wanted := f.artifact(t, "keep", true)
	orphan := f.artifact(t, "stale", true)
	f.generated.Add(wanted)

	report, err := f.janitor().Reconcile(context.Background())
	require.NoError(t, err)

	assert.FileExists(t, wanted.Path)
	assert.FileExists(t, filepath.Join(f.settings.DstDir, wanted.Name))
	assert.NoFileExists(t, orphan.Path)
	assert.NoFileExists(t, filepath.Join(f.settings.DstDir, orphan.Name))

	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Kept)
	assert.Equal(t, []string{orphan.Path}, report.Orphans)
	assert.Equal(t, []string{orphan.Path}, report.Removed)
	assert.Equal(t, 1, report.PublishedRemoved)
	assert.Zero(t, report.Failures)
}

func TestReconcile_CreatesPublishDirectory(t *testing.T) {
	f := newFixture(t)
	f.artifact(t, "stale", false)

	report, err := f.janitor().Reconcile(context.Background())
	require.NoError(t, err)
	assert.DirExists(t, f.settings.DstDir)
	assert.Len(t, report.Removed, 1)
	assert.Zero(t, report.PublishedRemoved, "a missing publish copy is not an error")
}

func TestReconcile_EmptyBuildRemovesEverything(t *testing.T) {
	f := newFixture(t)
	f.artifact(t, "a", true)
	f.artifact(t, "b", false)

	report, err := f.janitor().Reconcile(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Removed, 2)

	left, err := filepath.Glob(filepath.Join(f.settings.SrcDir, cache.Pattern))
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestReconcile_IgnoresUnrelatedFiles(t *testing.T) {
	f := newFixture(t)
	other := filepath.Join(f.settings.SrcDir, "diagram.png")
	require.NoError(t, os.WriteFile(other, []byte("png"), 0o600))

	report, err := f.janitor().Reconcile(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, other)
	assert.Zero(t, report.Scanned)
}

func TestReconcile_DeletionFailureIsCountedNotFatal(t *testing.T) {
	f := newFixture(t)
	stuck := f.artifact(t, "stuck", false)
	orphan := f.artifact(t, "stale", false)

	// A non-empty directory at the publish path cannot be removed.
	blocker := filepath.Join(f.settings.DstDir, stuck.Name)
	require.NoError(t, os.MkdirAll(filepath.Join(blocker, "child"), 0o750))

	report, err := f.janitor().Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failures)
	assert.NoFileExists(t, stuck.Path)
	assert.NoFileExists(t, orphan.Path)
	assert.Len(t, report.Removed, 2)
}

func TestReconcile_DryRunDeletesNothing(t *testing.T) {
	f := newFixture(t)
	orphan := f.artifact(t, "stale", true)

	report, err := f.janitor().WithDryRun(true).Reconcile(context.Background())
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, []string{orphan.Path}, report.Orphans)
	assert.Empty(t, report.Removed)
	assert.FileExists(t, orphan.Path)
}

func TestReconcile_StopsOnCancellation(t *testing.T) {
	f := newFixture(t)
	orphan := f.artifact(t, "stale", false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.janitor().Reconcile(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.FileExists(t, orphan.Path)
	assert.Equal(t, []string{orphan.Path}, report.Orphans)
}

func TestOnBuildCompleteStoresReport(t *testing.T) {
	f := newFixture(t)
	f.artifact(t, "stale", false)
	j := f.janitor()

	_, ok := j.LastReport()
	assert.False(t, ok)

	require.NoError(t, j.OnBuildComplete(context.Background()))
	report, ok := j.LastReport()
	require.True(t, ok)
	assert.Len(t, report.Removed, 1)
}

func TestReconcile_SourcePathWithGlobCharacters(t *testing.T) {
	f := newFixtureIn(t, filepath.Join(t.TempDir(), "site[1]"))
	orphan := f.artifact(t, "stale", true)

	report, err := f.janitor().Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, []string{orphan.Path}, report.Removed)
	assert.NoFileExists(t, orphan.Path)
	assert.NoFileExists(t, filepath.Join(f.settings.DstDir, orphan.Name))
}

func TestReconcile_MissingSourceDirectory(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.RemoveAll(f.settings.SrcDir))

	report, err := f.janitor().Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)
}
