package build

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/texcache/internal/cache"
	"git.home.luguber.info/inful/texcache/internal/config"
	"git.home.luguber.info/inful/texcache/internal/events"
	ferrors "git.home.luguber.info/inful/texcache/internal/foundation/errors"
	"git.home.luguber.info/inful/texcache/internal/janitor"
	"git.home.luguber.info/inful/texcache/internal/ledger"
	"git.home.luguber.info/inful/texcache/internal/logfields"
	"git.home.luguber.info/inful/texcache/internal/metrics"
	"git.home.luguber.info/inful/texcache/internal/pipeline"
	"git.home.luguber.info/inful/texcache/internal/render"
	"git.home.luguber.info/inful/texcache/internal/site"
)

// DefaultBuildService is the standard implementation of BuildService.
// Every Run gets a fresh config store, generated set, engine and janitor;
// the ledger, publisher and recorder are shared across runs.
type DefaultBuildService struct {
	logger    *slog.Logger
	recorder  metrics.Recorder
	ledger    ledger.Ledger
	publisher events.Publisher
	runner    pipeline.Runner
	newID     func() string
}

// NewBuildService creates a build service with no ledger, no event
// publisher and the default shell runner.
func NewBuildService(logger *slog.Logger) *DefaultBuildService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultBuildService{
		logger:    logger,
		recorder:  metrics.NoopRecorder{},
		ledger:    ledger.NoopLedger{},
		publisher: events.NoopPublisher{},
		newID:     uuid.NewString,
	}
}

// WithRecorder sets the metrics recorder.
func (s *DefaultBuildService) WithRecorder(r metrics.Recorder) *DefaultBuildService {
	if r != nil {
		s.recorder = r
	}
	return s
}

// WithLedger sets the build ledger.
func (s *DefaultBuildService) WithLedger(l ledger.Ledger) *DefaultBuildService {
	if l != nil {
		s.ledger = l
	}
	return s
}

// WithPublisher sets the event publisher.
func (s *DefaultBuildService) WithPublisher(p events.Publisher) *DefaultBuildService {
	if p != nil {
		s.publisher = p
	}
	return s
}

// WithRunner replaces the stage command runner (for testing).
func (s *DefaultBuildService) WithRunner(r pipeline.Runner) *DefaultBuildService {
	s.runner = r
	return s
}

// Run executes one build: render every page, publish static files and
// artifacts, then reconcile the artifact cache.
func (s *DefaultBuildService) Run(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	result := &BuildResult{BuildID: s.newID(), StartTime: time.Now()}
	log := s.logger.With(logfields.BuildID(result.BuildID))

	if err := s.ledger.BeginBuild(context.WithoutCancel(ctx), result.BuildID); err != nil {
		log.Warn("Failed to record build start", logfields.Error(err))
	}
	if req.Config == nil {
		return s.finish(ctx, log, result, ferrors.ConfigError("config required").Build())
	}

	generated := cache.NewGeneratedSet()
	t := &tracker{svc: s, buildID: result.BuildID, log: log}
	engine := render.NewEngine(config.NewStore(), config.OverridesFrom(req.Config), generated, log).
		WithRunner(s.runner).
		WithRecorder(s.recorder).
		WithObserver(t)

	settings, err := engine.Settings()
	if err != nil {
		return s.finish(ctx, log, result, err)
	}
	concurrency := settings.Concurrency
	if req.Options.Concurrency > 0 {
		concurrency = req.Options.Concurrency
	}

	gc := janitor.New(settings, generated, log).
		WithRecorder(s.recorder).
		WithDryRun(req.Options.DryRunGC)
	host := site.New(site.Options{
		Source:      settings.Source,
		Destination: settings.Destination,
		Concurrency: concurrency,
	}, engine, log)
	host.AddHook(gc)

	log.Info("Starting build",
		logfields.Path(settings.Source),
		slog.String("destination", settings.Destination),
		slog.Int("concurrency", concurrency))

	report, err := host.Build(ctx)
	result.Site = report
	t.apply(result)
	if gcReport, ok := gc.LastReport(); ok {
		result.GC = gcReport
		s.publishRemoved(ctx, log, result.BuildID, gcReport)
	}
	return s.finish(ctx, log, result, err)
}

// CollectGarbage reconciles the artifact cache against the artifacts
// referenced by the last successful build recorded in the ledger.
func (s *DefaultBuildService) CollectGarbage(ctx context.Context, cfg *config.Config, dryRun bool) (janitor.Report, error) {
	if cfg == nil {
		return janitor.Report{}, ferrors.ConfigError("config required").Build()
	}
	settings, err := config.NewStore().Resolve(config.OverridesFrom(cfg))
	if err != nil {
		return janitor.Report{}, err
	}

	records, err := s.ledger.LastSuccessfulArtifacts(ctx)
	if err != nil {
		return janitor.Report{}, ferrors.WrapError(err, ferrors.CategoryLedger, "read last successful build").Build()
	}
	if records == nil {
		return janitor.Report{}, ferrors.NewError(ferrors.CategoryNotFound, "no successful build recorded in the ledger").
			UserAction().
			WithHint("run 'texcache build' with ledger.path configured first").
			Build()
	}

	generated := cache.NewGeneratedSet()
	for _, r := range records {
		generated.Add(cache.NewArtifact(settings.SrcDir, r.Fingerprint))
	}
	report, err := janitor.New(settings, generated, s.logger).
		WithRecorder(s.recorder).
		WithDryRun(dryRun).
		Reconcile(ctx)
	s.publishRemoved(ctx, s.logger, "", report)
	return report, err
}

func (s *DefaultBuildService) finish(ctx context.Context, log *slog.Logger, result *BuildResult, err error) (*BuildResult, error) {
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	var outcome string
	var status ledger.Status
	switch {
	case err == nil:
		result.Status, outcome, status = BuildStatusSuccess, metrics.BuildOutcomeSuccess, ledger.StatusSucceeded
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
		result.Status, outcome, status = BuildStatusCancelled, metrics.BuildOutcomeCanceled, ledger.StatusCanceled
	default:
		result.Status, outcome, status = BuildStatusFailed, metrics.BuildOutcomeFailed, ledger.StatusFailed
	}
	s.recorder.ObserveBuildDuration(result.Duration)
	s.recorder.IncBuildOutcome(outcome)

	summary := ledger.Summary{
		Status:   status,
		Pages:    len(result.Site.Pages),
		Snippets: result.Site.Snippets,
		Compiled: result.Compiled,
		Reused:   result.Reused,
		Failed:   len(result.Failures),
		Removed:  len(result.GC.Removed),
	}
	if err != nil {
		summary.Error = err.Error()
	}

	// Bookkeeping outlives a cancelled build.
	bg := context.WithoutCancel(ctx)
	if lerr := s.ledger.FinishBuild(bg, result.BuildID, summary); lerr != nil {
		log.Warn("Failed to record build result", logfields.Error(lerr))
	}
	pubErr := s.publisher.Publish(bg, events.Event{
		Type:    events.BuildCompleted,
		BuildID: result.BuildID,
		Build: &events.BuildSummary{
			Status:     string(result.Status),
			Pages:      summary.Pages,
			Snippets:   summary.Snippets,
			Compiled:   summary.Compiled,
			Reused:     summary.Reused,
			Failed:     summary.Failed,
			Removed:    summary.Removed,
			DurationMS: float64(result.Duration.Milliseconds()),
		},
	})
	if pubErr != nil {
		log.Warn("Failed to publish build event", logfields.Error(pubErr))
	}

	attrs := []any{
		slog.String("status", string(result.Status)),
		logfields.Count(summary.Snippets),
		slog.Int("compiled", summary.Compiled),
		slog.Int("reused", summary.Reused),
		slog.Int("failed", summary.Failed),
		slog.Int("removed", summary.Removed),
		logfields.DurationMS(float64(result.Duration.Milliseconds())),
	}
	if err != nil {
		log.Error("Build finished with error", append(attrs, logfields.Error(err))...)
	} else {
		log.Info("Build finished", attrs...)
	}
	return result, err
}

func (s *DefaultBuildService) publishRemoved(ctx context.Context, log *slog.Logger, buildID string, r janitor.Report) {
	bg := context.WithoutCancel(ctx)
	for _, path := range r.Removed {
		fp, _ := cache.ParseFileName(filepath.Base(path))
		err := s.publisher.Publish(bg, events.Event{
			Type:        events.ArtifactRemoved,
			BuildID:     buildID,
			Fingerprint: fp,
			Artifact:    path,
		})
		if err != nil {
			log.Warn("Failed to publish artifact event", logfields.Artifact(path), logfields.Error(err))
		}
	}
}

// tracker observes every rendered snippet: it counts outcomes, records the
// referenced artifact in the ledger and publishes an artifact event.
type tracker struct {
	svc     *DefaultBuildService
	buildID string
	log     *slog.Logger

	mu       sync.Mutex
	compiled int
	reused   int
	failures []SnippetFailure
}

func (t *tracker) OnSnippet(ctx context.Context, r render.Result) {
	e := events.Event{
		BuildID:     t.buildID,
		Fingerprint: r.Artifact.Fingerprint,
		Artifact:    r.Artifact.Path,
		Page:        r.Page,
	}

	t.mu.Lock()
	switch {
	case r.Failed():
		e.Type = events.ArtifactFailed
		e.Error = r.Err.Error()
		t.failures = append(t.failures, SnippetFailure{Page: r.Page, Fingerprint: r.Artifact.Fingerprint, Error: e.Error})
	case r.Outcome == cache.OutcomeCompiled:
		e.Type = events.ArtifactCompiled
		t.compiled++
	default:
		e.Type = events.ArtifactReused
		t.reused++
	}
	t.mu.Unlock()

	if err := t.svc.ledger.RecordArtifact(ctx, t.buildID, r.Artifact.Fingerprint, r.Artifact.Path, string(r.Outcome)); err != nil {
		t.log.Warn("Failed to record artifact", logfields.Fingerprint(r.Artifact.Fingerprint), logfields.Error(err))
	}
	if err := t.svc.publisher.Publish(ctx, e); err != nil {
		t.log.Warn("Failed to publish artifact event", logfields.Fingerprint(r.Artifact.Fingerprint), logfields.Error(err))
	}
}

func (t *tracker) apply(result *BuildResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	result.Compiled = t.compiled
	result.Reused = t.reused
	result.Failures = append([]SnippetFailure(nil), t.failures...)
}
