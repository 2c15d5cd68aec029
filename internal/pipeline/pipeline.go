package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/texcache/internal/cache"
	"git.home.luguber.info/inful/texcache/internal/config"
	ferrors "git.home.luguber.info/inful/texcache/internal/foundation/errors"
	"git.home.luguber.info/inful/texcache/internal/logfields"
	"git.home.luguber.info/inful/texcache/internal/metrics"
)

// scratchPrefixLen is how many fingerprint characters name the scratch files.
const scratchPrefixLen = 16

// Job is one snippet to compile.
type Job struct {
	Fingerprint string
	Density     string
	Packages    []string
	Snippet     string
	Target      cache.Artifact
}

// Pipeline runs the latex → dvips → convert chain for cache misses.
type Pipeline struct {
	settings config.Settings
	runner   Runner
	logger   *slog.Logger
	recorder metrics.Recorder

	logMu sync.Mutex
}

// New creates a pipeline for the resolved build settings.
func New(settings config.Settings, runner Runner, logger *slog.Logger) *Pipeline {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{settings: settings, runner: runner, logger: logger, recorder: metrics.NoopRecorder{}}
}

// WithRecorder sets the metrics recorder.
func (p *Pipeline) WithRecorder(r metrics.Recorder) *Pipeline {
	if r != nil {
		p.recorder = r
	}
	return p
}

// ScratchBase returns the path prefix shared by every scratch file of fp.
func (p *Pipeline) ScratchBase(fp string) string {
	short := fp
	if len(short) > scratchPrefixLen {
		short = short[:scratchPrefixLen]
	}
	return filepath.Join(p.settings.WorkDir, p.settings.TempFilename+"-"+short)
}

// CompileFunc adapts the pipeline to cache.Ensure for the given job shape.
func (p *Pipeline) CompileFunc(density string, packages []string, snippet string) cache.CompileFunc {
	return func(ctx context.Context, a cache.Artifact) error {
		_, err := p.Compile(ctx, Job{
			Fingerprint: a.Fingerprint,
			Density:     density,
			Packages:    packages,
			Snippet:     snippet,
			Target:      a,
		})
		return err
	}
}

// Compile produces job.Target from the snippet. On failure it returns a
// classified pipeline error wrapping a *StageError and leaves no file at the
// target path. Scratch files are removed on every path.
func (p *Pipeline) Compile(ctx context.Context, job Job) (cache.Artifact, error) {
	base := p.ScratchBase(job.Fingerprint)
	defer p.cleanup(base)

	name := filepath.Base(base)
	vars := Vars{
		Density: job.Density,
		TexFile: name + ".tex",
		DviFile: name + ".dvi",
		EpsFile: name + ".eps",
		PngFile: name + ".png",
		LogFile: os.DevNull,
	}

	if err := os.MkdirAll(p.settings.WorkDir, 0o750); err != nil {
		return cache.Artifact{}, ferrors.WrapError(err, ferrors.CategoryFileSystem, "create work directory").
			WithContext("path", p.settings.WorkDir).
			Build()
	}
	if err := os.WriteFile(base+".tex", []byte(Document(job.Packages, job.Snippet)), 0o600); err != nil {
		return cache.Artifact{}, ferrors.WrapError(err, ferrors.CategoryFileSystem, "write scratch document").
			WithContext("path", base+".tex").
			Build()
	}

	out, closeOut := p.output()
	defer closeOut()
	if p.settings.Debug {
		vars.LogFile = p.settings.DebugLogPath()
		p.logger.Info("Compiling with LaTeX...", logfields.Fingerprint(job.Fingerprint))
	}

	stages := []struct {
		name StageName
		tmpl string
	}{
		{StageLatex, p.settings.LatexCmd},
		{StageDvips, p.settings.DvipsCmd},
		{StageConvert, p.settings.ConvertCmd},
	}
	for i, st := range stages {
		rec := p.runStage(ctx, st.name, Expand(st.tmpl, vars), out)
		if rec.Result == StageResultSuccess {
			continue
		}
		skipped := make([]StageName, 0, len(stages)-i-1)
		for _, rest := range stages[i+1:] {
			skipped = append(skipped, rest.name)
			p.recorder.IncStageResult(string(rest.name), metrics.ResultSkipped)
		}
		return cache.Artifact{}, p.stageFailure(job, rec, skipped)
	}

	if err := publish(base+".png", job.Target.Path); err != nil {
		se := &StageError{Stage: StageConvert, Result: StageResultFailed, Err: err}
		return cache.Artifact{}, classify(job, se)
	}
	return job.Target, nil
}

func (p *Pipeline) runStage(ctx context.Context, stage StageName, line string, out io.Writer) stageRun {
	if p.settings.Debug {
		p.logger.Info(line, logfields.Stage(string(stage)))
	}
	p.logger.Debug("Running pipeline stage", logfields.Stage(string(stage)), logfields.Command(line))

	start := time.Now()
	err := p.runner.Run(ctx, Command{
		Stage:   stage,
		Line:    line,
		Dir:     p.settings.WorkDir,
		Output:  out,
		Timeout: p.settings.StageTimeout,
	})
	d := time.Since(start)
	p.recorder.ObserveStageDuration(string(stage), d)

	rec := stageRun{StageRecord: StageRecord{Stage: stage, Command: line, Duration: d}, err: err}
	switch {
	case err == nil:
		rec.Result = StageResultSuccess
		p.recorder.IncStageResult(string(stage), metrics.ResultSuccess)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		rec.Result = StageResultCanceled
		p.recorder.IncStageResult(string(stage), metrics.ResultCanceled)
	case errors.Is(err, ErrStageTimeout):
		rec.Result = StageResultTimeout
		p.recorder.IncStageResult(string(stage), metrics.ResultTimeout)
	default:
		rec.Result = StageResultFailed
		rec.ExitCode = exitCode(err)
		p.recorder.IncStageResult(string(stage), metrics.ResultFailed)
	}
	return rec
}

type stageRun struct {
	StageRecord
	err error
}

func (p *Pipeline) stageFailure(job Job, rec stageRun, skipped []StageName) error {
	se := &StageError{
		Stage:    rec.Stage,
		Result:   rec.Result,
		ExitCode: rec.ExitCode,
		Skipped:  skipped,
		Err:      rec.err,
	}
	p.logger.Warn("Pipeline stage failed",
		logfields.Fingerprint(job.Fingerprint),
		logfields.Stage(string(rec.Stage)),
		logfields.Outcome(string(rec.Result)),
		logfields.ExitCode(rec.ExitCode),
		logfields.DurationMS(float64(rec.Duration.Milliseconds())),
		logfields.Error(rec.err))
	return classify(job, se)
}

func classify(job Job, se *StageError) error {
	return ferrors.WrapError(se, ferrors.CategoryPipeline, "compile snippet").
		Warning().
		NextBuild().
		WithContext("fingerprint", job.Fingerprint).
		WithContext("stage", string(se.Stage)).
		Build()
}

// output returns the writer stage output goes to and a func releasing it.
func (p *Pipeline) output() (io.Writer, func()) {
	if !p.settings.Debug {
		return io.Discard, func() {}
	}
	path := p.settings.DebugLogPath()
	// #nosec G304 -- debug log path comes from operator configuration
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		p.logger.Warn("Cannot open debug log, discarding stage output", logfields.Path(path), logfields.Error(err))
		return io.Discard, func() {}
	}
	return &lockedWriter{mu: &p.logMu, w: f}, func() { _ = f.Close() }
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(b)
}

// cleanup removes every file matching base.*; failures are logged only.
func (p *Pipeline) cleanup(base string) {
	matches, err := filepath.Glob(globEscape(base) + ".*")
	if err != nil {
		p.logger.Warn("Cannot list scratch files", logfields.Path(base), logfields.Error(err))
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			p.logger.Warn("Failed to remove scratch file", logfields.Path(m), logfields.Error(err))
		}
	}
}

func globEscape(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `\`, `\\`)
	if filepath.Separator == '\\' {
		r = strings.NewReplacer(`*`, `[*]`, `?`, `[?]`, `[`, `[[]`)
	}
	return r.Replace(s)
}

// publish moves the scratch image to its canonical path. When a rename is
// not possible (different filesystems) the file is copied to a temporary
// name beside dst and renamed, so a partial file is never visible as dst.
func publish(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("convert produced no image: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("convert produced an empty image")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	// #nosec G304 -- src is a scratch file this package created
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open scratch image: %w", err)
	}
	defer func() { _ = in.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".latex-*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("copy scratch image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temporary artifact: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod artifact: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("publish artifact: %w", err)
	}
	return nil
}
