package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/texcache/internal/foundation/errors"
)

// Settings is the resolved, read-only configuration for one build. It is
// passed by value so no component can mutate another's view.
type Settings struct {
	Debug           bool
	Density         string
	UsePackages     string
	LatexCmd        string
	DvipsCmd        string
	ConvertCmd      string
	TempFilename    string
	OutputDirectory string
	// Source and Destination are the absolute site roots; SrcDir and DstDir
	// are the artifact directories beneath them.
	Source       string
	Destination  string
	SrcDir       string
	DstDir       string
	Classes      string
	StageTimeout time.Duration
	WorkDir      string
	DebugLog     string
	Concurrency  int
}

// Packages returns the global package list split on commas, with blanks removed.
func (s Settings) Packages() []string {
	return SplitPackages(s.UsePackages)
}

// DebugLogPath returns the absolute path of the stage output log.
func (s Settings) DebugLogPath() string {
	if filepath.IsAbs(s.DebugLog) {
		return s.DebugLog
	}
	return filepath.Join(s.WorkDir, s.DebugLog)
}

// SplitPackages splits a comma-joined package list, trimming whitespace and
// dropping empty entries. Order and duplicates are preserved.
func SplitPackages(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ReplaceAll(strings.TrimSpace(p), " ", "")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Overrides are the host-provided values merged into the built-in defaults.
type Overrides struct {
	Source      string
	Destination string
	Latex       LatexConfig
}

// OverridesFrom extracts the store overrides from a loaded configuration.
func OverridesFrom(cfg *Config) Overrides {
	return Overrides{Source: cfg.Source, Destination: cfg.Destination, Latex: cfg.Latex}
}

// Store resolves Settings exactly once per build. A new Store is created for
// every build; within a build all callers share the first resolution.
type Store struct {
	once     sync.Once
	settings Settings
	err      error

	mkdirAll func(string, os.FileMode) error
}

// NewStore creates an unresolved store.
func NewStore() *Store {
	return &Store{mkdirAll: os.MkdirAll}
}

// Resolve merges overrides into the defaults on first call and ensures the
// artifact source directory exists. Later calls ignore their argument and
// return the first result, including a directory creation failure.
func (s *Store) Resolve(o Overrides) (Settings, error) {
	s.once.Do(func() {
		s.settings, s.err = s.resolve(o)
	})
	return s.settings, s.err
}

func (s *Store) resolve(o Overrides) (Settings, error) {
	l := o.Latex.withDefaults()

	source, err := filepath.Abs(orDefault(o.Source, "."))
	if err != nil {
		return Settings{}, ferrors.WrapError(err, ferrors.CategoryConfig, "resolve source directory").Fatal().Build()
	}
	dest, err := filepath.Abs(orDefault(o.Destination, "_site"))
	if err != nil {
		return Settings{}, ferrors.WrapError(err, ferrors.CategoryConfig, "resolve destination directory").Fatal().Build()
	}
	workDir := l.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	if workDir, err = filepath.Abs(workDir); err != nil {
		return Settings{}, ferrors.WrapError(err, ferrors.CategoryConfig, "resolve work directory").Fatal().Build()
	}

	st := Settings{
		Debug:           l.Debug,
		Density:         l.Density,
		UsePackages:     l.UsePackages,
		LatexCmd:        l.LatexCmd,
		DvipsCmd:        l.DvipsCmd,
		ConvertCmd:      l.ConvertCmd,
		TempFilename:    l.TempFilename,
		OutputDirectory: l.OutputDirectory,
		Source:          source,
		Destination:     dest,
		SrcDir:          filepath.Join(source, l.OutputDirectory),
		DstDir:          filepath.Join(dest, l.OutputDirectory),
		Classes:         *l.Classes,
		StageTimeout:    ParseDurationOr(l.StageTimeout, DefaultStageTimeout),
		WorkDir:         workDir,
		DebugLog:        l.DebugLog,
		Concurrency:     l.Concurrency,
	}

	if err := s.mkdirAll(st.SrcDir, 0o750); err != nil {
		return Settings{}, ferrors.WrapError(err, ferrors.CategoryFileSystem, "create artifact cache directory").
			Fatal().
			WithContext("path", st.SrcDir).
			Build()
	}
	return st, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
