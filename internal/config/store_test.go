package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/texcache/internal/foundation/errors"
)

func TestStore_ResolveMergesDefaultsAndCreatesSrcDir(t *testing.T) {
	root := t.TempDir()
	store := NewStore()

	st, err := store.Resolve(Overrides{
		Source:      filepath.Join(root, "src"),
		Destination: filepath.Join(root, "public"),
		Latex:       LatexConfig{Density: "150", UsePackages: "amsmath"},
	})
	require.NoError(t, err)

	assert.Equal(t, "150", st.Density)
	assert.Equal(t, "amsmath", st.UsePackages)
	assert.Equal(t, DefaultConvertCmd, st.ConvertCmd)
	assert.Equal(t, DefaultTempFilename, st.TempFilename)
	assert.Equal(t, DefaultClasses, st.Classes)
	assert.Equal(t, DefaultStageTimeout, st.StageTimeout)
	assert.Equal(t, filepath.Join(root, "src"), st.Source)
	assert.Equal(t, filepath.Join(root, "public"), st.Destination)
	assert.Equal(t, filepath.Join(root, "src", "latex"), st.SrcDir)
	assert.Equal(t, filepath.Join(root, "public", "latex"), st.DstDir)
	assert.Equal(t, os.TempDir(), st.WorkDir)
	assert.DirExists(t, st.SrcDir)
	assert.NoDirExists(t, st.DstDir, "publish side is created by the janitor, not the store")
}

func TestStore_ResolveKeepsEmptyClasses(t *testing.T) {
	st, err := NewStore().Resolve(Overrides{
		Source: t.TempDir(),
		Latex:  LatexConfig{Classes: StringPtr("")},
	})
	require.NoError(t, err)
	assert.Empty(t, st.Classes)
}

func TestStore_ResolveOnce(t *testing.T) {
	root := t.TempDir()
	store := NewStore()

	first, err := store.Resolve(Overrides{Source: root, Latex: LatexConfig{Density: "100"}})
	require.NoError(t, err)

	second, err := store.Resolve(Overrides{Source: filepath.Join(root, "other"), Latex: LatexConfig{Density: "600"}})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "100", second.Density)
	assert.NoDirExists(t, filepath.Join(root, "other"))
}

func TestStore_ResolveConcurrentCallersShareResult(t *testing.T) {
	root := t.TempDir()
	store := NewStore()
	calls := 0
	store.mkdirAll = func(path string, perm os.FileMode) error {
		calls++
		return os.MkdirAll(path, perm)
	}

	var wg sync.WaitGroup
	results := make([]Settings, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, err := store.Resolve(Overrides{Source: root})
			assert.NoError(t, err)
			results[i] = st
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
	for _, st := range results {
		assert.Equal(t, results[0], st)
	}
}

func TestStore_ExistingSrcDirIsNotAnError(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "latex"), 0o750))

	_, err := NewStore().Resolve(Overrides{Source: root})
	require.NoError(t, err)
}

func TestStore_MkdirFailureIsFatalAndSticky(t *testing.T) {
	store := NewStore()
	store.mkdirAll = func(string, os.FileMode) error { return errors.New("read-only file system") }

	_, err := store.Resolve(Overrides{Source: t.TempDir()})
	require.Error(t, err)

	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, ferrors.CategoryFileSystem, ce.Category())
	assert.True(t, ce.IsFatal())

	_, again := store.Resolve(Overrides{})
	assert.Same(t, err, again)
}

func TestSettings_DebugLogPath(t *testing.T) {
	st := Settings{WorkDir: "/tmp/work", DebugLog: "output.log"}
	assert.Equal(t, filepath.Join("/tmp/work", "output.log"), st.DebugLogPath())

	st.DebugLog = "/var/log/texcache.log"
	assert.Equal(t, "/var/log/texcache.log", st.DebugLogPath())
}

func TestSplitPackages(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"", nil},
		{"  ", nil},
		{"amsmath", []string{"amsmath"}},
		{"amsmath, amssymb", []string{"amsmath", "amssymb"}},
		{"a,,b,", []string{"a", "b"}},
		{"a,a", []string{"a", "a"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, SplitPackages(tt.input), "input %q", tt.input)
	}
}
