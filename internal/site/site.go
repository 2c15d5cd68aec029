package site

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	ferrors "git.home.luguber.info/inful/texcache/internal/foundation/errors"
	"git.home.luguber.info/inful/texcache/internal/logfields"
)

// Options configure a site build.
type Options struct {
	Source      string
	Destination string
	// Concurrency bounds how many pages render in parallel; values below one
	// mean sequential.
	Concurrency int
}

// Report summarizes a site build.
type Report struct {
	Pages         []PageReport  `json:"pages"`
	Snippets      int           `json:"snippets"`
	StaticCopied  int           `json:"static_copied"`
	StaticSkipped int           `json:"static_skipped"`
	Duration      time.Duration `json:"duration"`
}

// Site builds a source tree into a publish tree.
type Site struct {
	opts     Options
	renderer TagRenderer
	hooks    []BuildCompleteHook
	logger   *slog.Logger
}

// New creates a site host.
func New(opts Options, renderer TagRenderer, logger *slog.Logger) *Site {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Site{opts: opts, renderer: renderer, logger: logger}
}

// AddHook registers a build-complete hook. Hooks run in registration order.
func (s *Site) AddHook(h BuildCompleteHook) {
	if h != nil {
		s.hooks = append(s.hooks, h)
	}
}

// IsPage reports whether rel is rendered as a Markdown page.
func IsPage(rel string) bool {
	switch strings.ToLower(filepath.Ext(rel)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// Build renders every page, copies static files and runs the hooks. Page
// rendering stops at the first error; hooks only run after a complete render.
func (s *Site) Build(ctx context.Context) (Report, error) {
	start := time.Now()
	var report Report

	pages, err := s.scan(true)
	if err != nil {
		return report, err
	}

	results := make([]PageReport, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, rel := range pages {
		g.Go(func() error {
			pr, err := s.buildPage(gctx, rel)
			if err != nil {
				return err
			}
			results[i] = pr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	report.Pages = results
	for _, pr := range results {
		report.Snippets += pr.Snippets
	}

	// Static files are scanned after rendering so freshly compiled artifacts
	// are published in this build.
	statics, err := s.scan(false)
	if err != nil {
		return report, err
	}
	for _, rel := range statics {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		copied, err := copyIfChanged(filepath.Join(s.opts.Source, rel), filepath.Join(s.opts.Destination, rel))
		if err != nil {
			return report, ferrors.WrapError(err, ferrors.CategoryFileSystem, "copy static file").
				WithContext("path", rel).
				Build()
		}
		if copied {
			report.StaticCopied++
		} else {
			report.StaticSkipped++
		}
	}

	for _, h := range s.hooks {
		if err := h.OnBuildComplete(ctx); err != nil {
			return report, err
		}
	}

	report.Duration = time.Since(start)
	s.logger.Info("Site build complete",
		logfields.Count(len(report.Pages)),
		slog.Int("snippets", report.Snippets),
		slog.Int("static_copied", report.StaticCopied),
		logfields.DurationMS(float64(report.Duration.Milliseconds())))
	return report, nil
}

func (s *Site) buildPage(ctx context.Context, rel string) (PageReport, error) {
	src := filepath.Join(s.opts.Source, filepath.FromSlash(rel))
	// #nosec G304 -- src is discovered under the configured source tree
	data, err := os.ReadFile(src)
	if err != nil {
		return PageReport{}, ferrors.WrapError(err, ferrors.CategoryFileSystem, "read page").
			WithContext("page", rel).
			Build()
	}
	page, err := ParsePage(rel, data)
	if err != nil {
		return PageReport{}, ferrors.WrapError(err, ferrors.CategoryValidation, "parse page frontmatter").
			WithContext("page", rel).
			Build()
	}
	html, pr, err := RenderPage(ctx, page, s.renderer)
	if err != nil {
		return PageReport{}, err
	}

	dst := filepath.Join(s.opts.Destination, filepath.FromSlash(pr.Output))
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return PageReport{}, fmt.Errorf("create page directory: %w", err)
	}
	if err := os.WriteFile(dst, html, 0o644); err != nil { // #nosec G306 -- published site content
		return PageReport{}, ferrors.WrapError(err, ferrors.CategoryFileSystem, "write page").
			WithContext("page", rel).
			Build()
	}
	s.logger.Debug("Rendered page", logfields.Page(rel), slog.Int("snippets", pr.Snippets))
	return pr, nil
}

// scan lists source files relative to the source root, either pages or
// static files. Hidden entries and the destination tree are skipped.
func (s *Site) scan(pages bool) ([]string, error) {
	root, err := filepath.Abs(s.opts.Source)
	if err != nil {
		return nil, err
	}
	dest, err := filepath.Abs(s.opts.Destination)
	if err != nil {
		return nil, err
	}

	var out []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path == dest {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if IsPage(rel) == pages {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "scan source tree").
			WithContext("path", root).
			Build()
	}
	sort.Strings(out)
	return out, nil
}

var copyBufPool = sync.Pool{New: func() any { b := make([]byte, 32*1024); return &b }}

// copyIfChanged copies src to dst unless dst already has the same size and a
// modification time no older than src.
func copyIfChanged(src, dst string) (bool, error) {
	si, err := os.Stat(src)
	if err != nil {
		return false, err
	}
	if di, err := os.Stat(dst); err == nil && di.Size() == si.Size() && !di.ModTime().Before(si.ModTime()) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return false, err
	}

	// #nosec G304 -- src is discovered under the configured source tree
	in, err := os.Open(src)
	if err != nil {
		return false, err
	}
	defer func() { _ = in.Close() }()

	// #nosec G304 -- dst is derived from the configured destination tree
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return false, err
	}
	buf := copyBufPool.Get().(*[]byte)
	defer copyBufPool.Put(buf)
	if _, err := io.CopyBuffer(out, in, *buf); err != nil {
		_ = out.Close()
		return false, err
	}
	if err := out.Close(); err != nil {
		return false, err
	}
	return true, nil
}
