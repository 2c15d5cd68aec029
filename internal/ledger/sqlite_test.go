package ledger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/texcache/internal/foundation/errors"
)

func newLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	l, err := NewSQLiteLedger(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLedger_BuildRoundTrip(t *testing.T) {
	l := newLedger(t)
	ctx := t.Context()

	require.NoError(t, l.BeginBuild(ctx, "b1"))
	require.NoError(t, l.RecordArtifact(ctx, "b1", "aa", "/src/latex/latex-aa.png", "compiled"))
	require.NoError(t, l.RecordArtifact(ctx, "b1", "bb", "/src/latex/latex-bb.png", "hit"))
	require.NoError(t, l.FinishBuild(ctx, "b1", Summary{Status: StatusSucceeded, Pages: 2, Snippets: 3, Compiled: 1, Reused: 2}))

	builds, err := l.ListBuilds(ctx, 10)
	require.NoError(t, err)
	require.Len(t, builds, 1)
	b := builds[0]
	assert.Equal(t, "b1", b.ID)
	assert.Equal(t, StatusSucceeded, b.Status)
	assert.Equal(t, 2, b.Pages)
	assert.Equal(t, 3, b.Snippets)
	assert.Equal(t, 1, b.Compiled)
	assert.Equal(t, 2, b.Reused)
	assert.False(t, b.FinishedAt.IsZero())
	assert.False(t, b.FinishedAt.Before(b.StartedAt))
}

func TestLedger_LastSuccessfulArtifacts(t *testing.T) {
	l := newLedger(t)
	ctx := t.Context()

	got, err := l.LastSuccessfulArtifacts(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "no builds yet")

	require.NoError(t, l.BeginBuild(ctx, "old"))
	require.NoError(t, l.RecordArtifact(ctx, "old", "aa", "/a.png", "compiled"))
	require.NoError(t, l.FinishBuild(ctx, "old", Summary{Status: StatusSucceeded}))

	require.NoError(t, l.BeginBuild(ctx, "new"))
	require.NoError(t, l.RecordArtifact(ctx, "new", "bb", "/b.png", "compiled"))
	require.NoError(t, l.RecordArtifact(ctx, "new", "bb", "/b.png", "hit"))
	require.NoError(t, l.RecordArtifact(ctx, "new", "cc", "/c.png", "failed"))
	require.NoError(t, l.FinishBuild(ctx, "new", Summary{Status: StatusSucceeded}))

	require.NoError(t, l.BeginBuild(ctx, "broken"))
	require.NoError(t, l.RecordArtifact(ctx, "broken", "dd", "/d.png", "compiled"))
	require.NoError(t, l.FinishBuild(ctx, "broken", Summary{Status: StatusFailed, Error: "boom"}))

	got, err = l.LastSuccessfulArtifacts(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].BuildID)
	assert.Equal(t, "bb", got[0].Fingerprint)
	assert.Equal(t, "/b.png", got[0].Path)

	builds, err := l.ListBuilds(ctx, 2)
	require.NoError(t, err)
	require.Len(t, builds, 2)
	assert.Equal(t, "broken", builds[0].ID)
	assert.Equal(t, "boom", builds[0].Error)
	assert.Equal(t, "new", builds[1].ID)

	all, err := l.ListBuilds(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLedger_FinishUnknownBuild(t *testing.T) {
	l := newLedger(t)
	err := l.FinishBuild(t.Context(), "missing", Summary{Status: StatusSucceeded})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
}

func TestLedger_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "ledger.db")
	ctx := t.Context()

	l, err := NewSQLiteLedger(path)
	require.NoError(t, err)
	require.NoError(t, l.BeginBuild(ctx, "b1"))
	require.NoError(t, l.FinishBuild(ctx, "b1", Summary{Status: StatusCanceled}))
	require.NoError(t, l.Close())

	l, err = NewSQLiteLedger(path)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	builds, err := l.ListBuilds(ctx, 0)
	require.NoError(t, err)
	require.Len(t, builds, 1)
	assert.Equal(t, StatusCanceled, builds[0].Status)
}

func TestNoopLedger(t *testing.T) {
	var l Ledger = NoopLedger{}
	ctx := t.Context()
	require.NoError(t, l.BeginBuild(ctx, "x"))
	require.NoError(t, l.RecordArtifact(ctx, "x", "fp", "p", "hit"))
	require.NoError(t, l.FinishBuild(ctx, "x", Summary{}))
	arts, err := l.LastSuccessfulArtifacts(ctx)
	require.NoError(t, err)
	assert.Nil(t, arts)
	require.NoError(t, l.Close())
}
