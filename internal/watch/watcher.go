// Package watch rebuilds the site when its source tree changes and,
// optionally, on a fixed interval. It also serves /healthz and /metrics.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/texcache/internal/build"
	"git.home.luguber.info/inful/texcache/internal/config"
	ferrors "git.home.luguber.info/inful/texcache/internal/foundation/errors"
	"git.home.luguber.info/inful/texcache/internal/logfields"
	"git.home.luguber.info/inful/texcache/internal/metrics"
)

// Options configure a Watcher.
type Options struct {
	Debounce time.Duration
	// MaxDelay bounds how long a stream of changes can postpone a rebuild.
	// Zero means ten times Debounce.
	MaxDelay time.Duration
	// RebuildInterval schedules periodic rebuilds when positive.
	RebuildInterval time.Duration
	// MetricsAddr enables the HTTP endpoints when non-empty.
	MetricsAddr string
	// Registry is served on /metrics.
	Registry *prometheus.Registry
}

// Watcher runs an initial build and rebuilds on change.
type Watcher struct {
	cfg      *config.Config
	settings config.Settings
	service  build.BuildService
	opts     Options
	logger   *slog.Logger

	debouncer *Debouncer
	started   time.Time

	mu     sync.RWMutex
	last   *build.BuildResult
	builds int
}

// New creates a watcher. The settings are resolved once to learn which
// directories the build itself writes to.
func New(cfg *config.Config, service build.BuildService, opts Options, logger *slog.Logger) (*Watcher, error) {
	if cfg == nil {
		return nil, ferrors.ConfigError("config required").Build()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = config.DefaultDebounce
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 10 * opts.Debounce
	}
	settings, err := config.NewStore().Resolve(config.OverridesFrom(cfg))
	if err != nil {
		return nil, err
	}
	d, err := NewDebouncer(opts.Debounce, opts.MaxDelay)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		cfg:       cfg,
		settings:  settings,
		service:   service,
		opts:      opts,
		logger:    logger,
		debouncer: d,
	}, nil
}

// Run builds once, then watches until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	w.started = time.Now()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryWatch, "failed to create file watcher").Build()
	}
	defer func() { _ = fsw.Close() }()
	if err := w.addTree(fsw, w.settings.Source); err != nil {
		return err
	}

	if w.opts.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              w.opts.MetricsAddr,
			Handler:           w.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			w.logger.Info("Serving health and metrics", slog.String("addr", w.opts.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				w.logger.Error("HTTP server failed", logfields.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if w.opts.RebuildInterval > 0 {
		sched, err := w.schedule()
		if err != nil {
			return err
		}
		defer func() {
			if err := sched.Shutdown(); err != nil {
				w.logger.Warn("Failed to stop scheduler", logfields.Error(err))
			}
		}()
	}

	go w.watchLoop(ctx, fsw)

	w.rebuild(ctx, Trigger{Cause: "startup", Reason: "initial build", RequestCount: 1, FirstRequest: time.Now()})
	w.logger.Info("Watching for changes",
		logfields.Path(w.settings.Source),
		slog.Duration("debounce", w.opts.Debounce))
	return w.debouncer.Run(ctx, w.rebuild)
}

func (w *Watcher) schedule() (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	job, err := s.NewJob(
		gocron.DurationJob(w.opts.RebuildInterval),
		gocron.NewTask(w.debouncer.Request, "scheduled"),
		gocron.WithName("periodic-rebuild"),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to create periodic rebuild job: %w", err)
	}
	s.Start()
	w.logger.Info("Scheduled periodic rebuild",
		logfields.ScheduleID(job.ID().String()),
		slog.Duration("interval", w.opts.RebuildInterval))
	return s, nil
}

func (w *Watcher) rebuild(ctx context.Context, t Trigger) {
	w.logger.Info("Rebuilding",
		slog.String("cause", t.Cause),
		slog.String("reason", t.Reason),
		logfields.Count(t.RequestCount))
	result, err := w.service.Run(ctx, build.BuildRequest{Config: w.cfg})
	if err != nil && ctx.Err() == nil {
		w.logger.Warn("Rebuild failed", logfields.Error(err))
	}
	w.mu.Lock()
	w.last = result
	w.builds++
	w.mu.Unlock()
}

func (w *Watcher) watchLoop(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if w.ignored(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}
			if ev.Op.Has(fsnotify.Create) {
				// New directories need their own watch.
				if err := w.addTree(fsw, ev.Name); err != nil {
					w.logger.Debug("Failed to watch new path", logfields.Path(ev.Name), logfields.Error(err))
				}
			}
			w.logger.Debug("Source change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
			w.debouncer.Request(ev.Name)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", logfields.Error(err))
		}
	}
}

// addTree watches root and every directory below it that is not ignored.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(path) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryWatch, "failed to watch source tree").
			WithContext("path", root).
			Build()
	}
	return nil
}

// ignored reports whether path is written by the build itself or hidden.
// Directories enclosing the whole source tree are not treated as outputs.
func (w *Watcher) ignored(path string) bool {
	for _, dir := range []string{w.settings.SrcDir, w.settings.Destination, w.settings.WorkDir} {
		if dir != "" && !within(dir, w.settings.Source) && within(dir, path) {
			return true
		}
	}
	rel, err := filepath.Rel(w.settings.Source, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Builds returns the number of completed builds and the latest result.
func (w *Watcher) Builds() (int, *build.BuildResult) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.builds, w.last
}

// Handler serves /healthz and, when a registry is configured, /metrics.
func (w *Watcher) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", w.handleHealth)
	if w.opts.Registry != nil {
		mux.Handle("/metrics", metrics.HTTPHandler(w.opts.Registry))
	}
	return mux
}
