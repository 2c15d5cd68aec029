// Package render turns latex snippets into HTML: a cached <img> tag when the
// artifact can be produced, an escaped source block when it cannot.
package render

import (
	"context"
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/texcache/internal/cache"
	"git.home.luguber.info/inful/texcache/internal/config"
	"git.home.luguber.info/inful/texcache/internal/fingerprint"
	"git.home.luguber.info/inful/texcache/internal/logfields"
	"git.home.luguber.info/inful/texcache/internal/metrics"
	"git.home.luguber.info/inful/texcache/internal/pipeline"
)

// Request is one snippet to render.
type Request struct {
	Snippet string
	Options Options
	// Page is the source page the snippet came from, for logging.
	Page string
}

// Result describes how a request was satisfied.
type Result struct {
	Markup   string
	Artifact cache.Artifact
	Outcome  cache.Outcome
	Page     string
	// Err is the recovered compile failure when Markup is the fallback block.
	Err error
}

// Failed reports whether the request fell back to the source block.
func (r Result) Failed() bool { return r.Err != nil }

// Observer is notified after every rendered snippet.
type Observer interface {
	OnSnippet(ctx context.Context, r Result)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, r Result)

func (f ObserverFunc) OnSnippet(ctx context.Context, r Result) { f(ctx, r) }

// Engine drives a snippet through settings resolution, fingerprinting, the
// artifact cache and, on a miss, the compile pipeline. One Engine serves one
// build.
type Engine struct {
	store     *config.Store
	overrides config.Overrides
	generated *cache.GeneratedSet
	runner    pipeline.Runner
	logger    *slog.Logger
	recorder  metrics.Recorder
	observers []Observer

	initOnce sync.Once
	settings config.Settings
	initErr  error
	cache    *cache.Cache
	pipe     *pipeline.Pipeline
}

// NewEngine creates an engine. Settings are resolved lazily from store on the
// first render.
func NewEngine(store *config.Store, overrides config.Overrides, generated *cache.GeneratedSet, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     store,
		overrides: overrides,
		generated: generated,
		runner:    pipeline.ExecRunner{},
		logger:    logger,
		recorder:  metrics.NoopRecorder{},
	}
}

// WithRunner replaces the stage command runner.
func (e *Engine) WithRunner(r pipeline.Runner) *Engine {
	if r != nil {
		e.runner = r
	}
	return e
}

// WithRecorder sets the metrics recorder.
func (e *Engine) WithRecorder(r metrics.Recorder) *Engine {
	if r != nil {
		e.recorder = r
	}
	return e
}

// WithObserver registers an observer for rendered snippets.
func (e *Engine) WithObserver(o Observer) *Engine {
	if o != nil {
		e.observers = append(e.observers, o)
	}
	return e
}

// Settings resolves and returns the build settings.
func (e *Engine) Settings() (config.Settings, error) {
	e.initOnce.Do(func() {
		e.settings, e.initErr = e.store.Resolve(e.overrides)
		if e.initErr != nil {
			return
		}
		e.cache = cache.New(e.settings.SrcDir, e.generated)
		e.pipe = pipeline.New(e.settings, e.runner, e.logger).WithRecorder(e.recorder)
	})
	return e.settings, e.initErr
}

// RenderTag parses the raw tag options and renders body. A malformed option
// string is returned as an error before any external process runs.
func (e *Engine) RenderTag(ctx context.Context, page, rawOptions, body string) (string, error) {
	opts, err := ParseOptions(rawOptions)
	if err != nil {
		return "", err
	}
	res, err := e.Render(ctx, Request{Snippet: body, Options: opts, Page: page})
	if err != nil {
		return "", err
	}
	return res.Markup, nil
}

// Render produces the markup for one snippet. Compile failures are recovered
// into the fallback block and reported in Result.Err; only settings errors
// and cancellation are returned.
func (e *Engine) Render(ctx context.Context, req Request) (Result, error) {
	st, err := e.Settings()
	if err != nil {
		return Result{}, err
	}
	for _, key := range req.Options.Unknown {
		e.logger.Warn("Ignoring unknown latex option", slog.String("option", key), logfields.Page(req.Page))
	}

	density := st.Density
	if req.Options.Density != "" {
		density = req.Options.Density
	}
	classes := st.Classes
	if req.Options.Classes != "" {
		classes = req.Options.Classes
	}
	global := st.Packages()
	packages := make([]string, 0, len(global)+len(req.Options.UsePackages))
	packages = append(packages, global...)
	packages = append(packages, req.Options.UsePackages...)

	fp := fingerprint.Compute(density, fingerprint.MergePackages(global, req.Options.UsePackages), req.Snippet)
	a, outcome, err := e.cache.Ensure(ctx, fp, e.pipe.CompileFunc(density, packages, req.Snippet))

	res := Result{Artifact: a, Outcome: outcome, Page: req.Page}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		e.recorder.IncCacheResult(metrics.CacheFailed)
		e.logger.Warn("Failed to render latex block",
			logfields.Page(req.Page), logfields.Fingerprint(fp), logfields.Error(err))
		res.Artifact = cache.NewArtifact(st.SrcDir, fp)
		res.Markup = FallbackBlock(req.Snippet)
		res.Err = err
		e.notify(ctx, res)
		return res, nil
	}

	switch outcome {
	case cache.OutcomeHit:
		e.recorder.IncCacheResult(metrics.CacheHit)
	case cache.OutcomeShared:
		e.recorder.IncCacheResult(metrics.CacheShared)
	default:
		e.recorder.IncCacheResult(metrics.CacheMiss)
	}
	e.logger.Debug("Rendered latex block",
		logfields.Page(req.Page), logfields.Fingerprint(fp), logfields.Outcome(string(outcome)))

	res.Markup = ImageTag(st.OutputDirectory, a.Name, classes)
	e.notify(ctx, res)
	return res, nil
}

func (e *Engine) notify(ctx context.Context, r Result) {
	for _, o := range e.observers {
		o.OnSnippet(ctx, r)
	}
}
