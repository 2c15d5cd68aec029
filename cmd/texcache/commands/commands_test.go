package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/texcache/internal/config"
	ferrors "git.home.luguber.info/inful/texcache/internal/foundation/errors"
	"git.home.luguber.info/inful/texcache/internal/janitor"
	"git.home.luguber.info/inful/texcache/internal/ledger"
)

// run parses args and executes the selected command, returning its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cli := &CLI{}
	parser, err := kong.New(cli, kong.Name("texcache"), kong.Vars{"version": "test"},
		kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	var out bytes.Buffer
	err = kctx.Run(&Global{Logger: config.NewLogger(&bytes.Buffer{}, 0, config.LogFormatText), Out: &out}, cli)
	return out.String(), err
}

// siteFixture writes a small site and a configuration whose stage commands
// are shell one-liners, so no TeX installation is required.
func siteFixture(t *testing.T) (cfgPath, root string) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	root = t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(src, 0o750))
	page := "# Math\n\n{% latex %}x^2{% endlatex %}\n\n{% latex density=150 %}\\fail{% endlatex %}\n"
	require.NoError(t, os.WriteFile(filepath.Join(src, "index.md"), []byte(page), 0o600))

	cfg := strings.Join([]string{
		"source: " + src,
		"destination: " + filepath.Join(root, "public"),
		"latex:",
		"  work_dir: " + filepath.Join(root, "work"),
		`  latex_cmd: "grep -q fail $texfile && exit 1 || true"`,
		`  dvips_cmd: "true"`,
		`  convert_cmd: "printf PNG > $pngfile"`,
		"ledger:",
		"  path: " + filepath.Join(root, "state", "ledger.db"),
		"",
	}, "\n")
	cfgPath = filepath.Join(root, "texcache.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	return cfgPath, root
}

func TestInit_WritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "texcache.yaml")
	out, err := run(t, "--config", path, "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultLedgerPath, cfg.Ledger.Path)

	_, err = run(t, "--config", path, "init")
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))

	_, err = run(t, "--config", path, "init", "--force")
	require.NoError(t, err)
}

func TestBuild_HistoryAndGC(t *testing.T) {
	cfgPath, root := siteFixture(t)

	out, err := run(t, "-c", cfgPath, "build")
	require.NoError(t, err)
	assert.Contains(t, out, "success")
	assert.Contains(t, out, "snippets: 2")
	assert.Contains(t, out, "compiled: 1")
	assert.Contains(t, out, "failed: 1")

	html, err := os.ReadFile(filepath.Join(root, "public", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), `<img src="/latex/latex-`)
	assert.Contains(t, string(html), "Failed to render the following block of LaTeX:<br/>")

	// A stray artifact is an orphan for gc.
	stray := filepath.Join(root, "src", "latex", "latex-"+strings.Repeat("0", 64)+".png")
	require.NoError(t, os.WriteFile(stray, []byte("PNG"), 0o600))

	out, err = run(t, "-c", cfgPath, "gc", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Would remove "+stray)
	assert.FileExists(t, stray)

	out, err = run(t, "-c", cfgPath, "gc")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed "+stray)
	assert.NoFileExists(t, stray)

	out, err = run(t, "-c", cfgPath, "history", "--json")
	require.NoError(t, err)
	var builds []ledger.BuildRecord
	require.NoError(t, json.Unmarshal([]byte(out), &builds))
	require.Len(t, builds, 1)
	assert.Equal(t, ledger.StatusSucceeded, builds[0].Status)
	assert.Equal(t, 2, builds[0].Snippets)

	out, err = run(t, "-c", cfgPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, builds[0].ID)
}

func TestRender_PrintsMarkup(t *testing.T) {
	cfgPath, root := siteFixture(t)

	out, err := run(t, "-c", cfgPath, "render", "--options", "classes=wide", `\frac{1}{2}`)
	require.NoError(t, err)
	assert.Contains(t, out, `class="wide"`)
	matches, err := filepath.Glob(filepath.Join(root, "src", "latex", "latex-*.png"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	out, err = run(t, "-c", cfgPath, "render", `\fail`)
	require.Error(t, err)
	assert.Contains(t, out, "Failed to render the following block of LaTeX:<br/>")

	_, err = run(t, "-c", cfgPath, "render", "--options", "density", "x")
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
}

func TestGC_RequiresLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "texcache.yaml")
	require.NoError(t, os.WriteFile(path, []byte("source: "+filepath.Dir(path)+"\n"), 0o600))

	_, err := run(t, "-c", path, "gc")
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestWatchOptions_FlagsOverrideConfig(t *testing.T) {
	cfg := &config.Config{
		Watch:      config.WatchConfig{Debounce: "5s", RebuildInterval: "1h"},
		Monitoring: config.MonitoringConfig{MetricsAddr: ":9464"},
	}
	opts := (&WatchCmd{}).options(cfg)
	assert.Equal(t, "5s", opts.Debounce.String())
	assert.Equal(t, "1h0m0s", opts.RebuildInterval.String())
	assert.Equal(t, ":9464", opts.MetricsAddr)

	opts = (&WatchCmd{MetricsAddr: "127.0.0.1:0"}).options(&config.Config{})
	assert.Equal(t, config.DefaultDebounce, opts.Debounce)
	assert.Zero(t, opts.RebuildInterval)
	assert.Equal(t, "127.0.0.1:0", opts.MetricsAddr)
}

func TestPrintGCReport_ListsOnlyDeletedPaths(t *testing.T) {
	var out bytes.Buffer
	printGCReport(&out, janitor.Report{
		Scanned:  3,
		Kept:     1,
		Orphans:  []string{"/src/latex-a.png", "/src/latex-b.png"},
		Removed:  []string{"/src/latex-b.png"},
		Failures: 1,
	})
	assert.NotContains(t, out.String(), "latex-a.png")
	assert.Contains(t, out.String(), "Removed /src/latex-b.png")
	assert.Contains(t, out.String(), "2 orphaned")
	assert.Contains(t, out.String(), "1 failures")

	out.Reset()
	printGCReport(&out, janitor.Report{
		Orphans: []string{"/src/latex-a.png"},
		DryRun:  true,
	})
	assert.Contains(t, out.String(), "Would remove /src/latex-a.png")
}
