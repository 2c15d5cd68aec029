// Package janitor removes cached artifacts that the finished build no longer
// references, from both the cache source directory and the publish tree.
package janitor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"git.home.luguber.info/inful/texcache/internal/cache"
	"git.home.luguber.info/inful/texcache/internal/config"
	ferrors "git.home.luguber.info/inful/texcache/internal/foundation/errors"
	"git.home.luguber.info/inful/texcache/internal/logfields"
	"git.home.luguber.info/inful/texcache/internal/metrics"
	"git.home.luguber.info/inful/texcache/internal/util/sets"
)

// Report summarizes one reconciliation.
type Report struct {
	// Scanned is the number of artifact files found in the source directory.
	Scanned int `json:"scanned"`
	// Kept is the number of scanned files referenced by the build.
	Kept int `json:"kept"`
	// Orphans are the source paths not referenced by the build, sorted.
	Orphans []string `json:"orphans,omitempty"`
	// Removed are the orphans whose source file is gone after reconciliation.
	Removed []string `json:"removed,omitempty"`
	// PublishedRemoved counts publish-tree copies deleted.
	PublishedRemoved int `json:"published_removed"`
	// Failures counts deletions that failed and were skipped.
	Failures int `json:"failures"`
	// DryRun is set when nothing was deleted.
	DryRun bool `json:"dry_run,omitempty"`
}

// Janitor diffs the on-disk artifacts against a build's GeneratedSet.
type Janitor struct {
	srcDir    string
	dstDir    string
	generated *cache.GeneratedSet
	logger    *slog.Logger
	recorder  metrics.Recorder
	dryRun    bool

	mu   sync.Mutex
	last *Report
}

// New creates a janitor for the resolved settings and the build's set.
func New(settings config.Settings, generated *cache.GeneratedSet, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		srcDir:    settings.SrcDir,
		dstDir:    settings.DstDir,
		generated: generated,
		logger:    logger,
		recorder:  metrics.NoopRecorder{},
	}
}

// WithRecorder sets the metrics recorder.
func (j *Janitor) WithRecorder(r metrics.Recorder) *Janitor {
	if r != nil {
		j.recorder = r
	}
	return j
}

// WithDryRun makes Reconcile report orphans without deleting them.
func (j *Janitor) WithDryRun(dryRun bool) *Janitor {
	j.dryRun = dryRun
	return j
}

// OnBuildComplete runs reconciliation as a site build-complete hook.
func (j *Janitor) OnBuildComplete(ctx context.Context) error {
	_, err := j.Reconcile(ctx)
	return err
}

// LastReport returns the report of the most recent Reconcile, if any.
func (j *Janitor) LastReport() (Report, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.last == nil {
		return Report{}, false
	}
	return *j.last, true
}

// Reconcile deletes every latex-*.png in the source directory that the build
// did not register, together with its publish-tree copy. Individual deletion
// failures are logged and counted; they never abort the pass.
func (j *Janitor) Reconcile(ctx context.Context) (Report, error) {
	report := Report{DryRun: j.dryRun}

	if !j.dryRun {
		if err := os.MkdirAll(j.dstDir, 0o750); err != nil {
			return report, ferrors.WrapError(err, ferrors.CategoryFileSystem, "create publish artifact directory").
				WithContext("path", j.dstDir).
				Build()
		}
	}

	found, err := listArtifacts(j.srcDir)
	if err != nil {
		return report, ferrors.WrapError(err, ferrors.CategoryFileSystem, "list cached artifacts").
			WithContext("path", j.srcDir).
			Build()
	}
	report.Scanned = len(found)

	orphans := sets.New(found...).Difference(j.generated.Paths())
	report.Orphans = sets.Sorted(orphans)
	report.Kept = report.Scanned - len(report.Orphans)

	for _, src := range report.Orphans {
		if err := ctx.Err(); err != nil {
			j.store(report)
			return report, err
		}
		if j.dryRun {
			j.logger.Info("Would remove orphaned artifact", logfields.Artifact(src))
			continue
		}
		j.remove(src, &report)
	}

	j.recorder.AddOrphansRemoved(len(report.Removed))
	j.logger.Info("Artifact reconciliation complete",
		slog.Int("scanned", report.Scanned),
		slog.Int("kept", report.Kept),
		slog.Int("removed", len(report.Removed)),
		slog.Int("failures", report.Failures),
		slog.Bool("dry_run", report.DryRun))
	j.store(report)
	return report, nil
}

// listArtifacts returns the artifact files directly inside dir. Names are
// matched individually so dir itself is never read as a glob pattern.
func listArtifacts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var found []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(cache.Pattern, e.Name()); ok {
			found = append(found, filepath.Join(dir, e.Name()))
		}
	}
	return found, nil
}

func (j *Janitor) remove(src string, report *Report) {
	removed := true
	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		removed = false
		report.Failures++
		j.logger.Warn("Failed to remove orphaned artifact", logfields.Artifact(src), logfields.Error(err))
	}
	if removed {
		report.Removed = append(report.Removed, src)
	}

	dst := filepath.Join(j.dstDir, filepath.Base(src))
	switch err := os.Remove(dst); {
	case err == nil:
		report.PublishedRemoved++
	case os.IsNotExist(err):
	default:
		report.Failures++
		j.logger.Warn("Failed to remove published artifact", logfields.Artifact(dst), logfields.Error(err))
	}
	j.logger.Debug("Removed orphaned artifact", logfields.Artifact(src))
}

func (j *Janitor) store(r Report) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.last = &r
}
