// Package build provides the canonical build execution path for texcache.
// All execution paths (CLI build, watch mode, tests) route through
// BuildService.
package build

import (
	"context"
	"time"

	"git.home.luguber.info/inful/texcache/internal/config"
	"git.home.luguber.info/inful/texcache/internal/janitor"
	"git.home.luguber.info/inful/texcache/internal/site"
)

// BuildService is the canonical interface for executing site builds.
type BuildService interface {
	// Run renders the site, reconciles the artifact cache and records the
	// build. The returned result is populated even when err is non-nil.
	Run(ctx context.Context, req BuildRequest) (*BuildResult, error)
}

// BuildRequest contains all inputs required to execute a build.
type BuildRequest struct {
	// Config is the loaded configuration for this build.
	Config *config.Config

	// Options provides optional build behavior modifiers.
	Options BuildOptions
}

// BuildOptions provides optional configuration for build behavior.
type BuildOptions struct {
	// Concurrency overrides latex.concurrency when positive.
	Concurrency int

	// DryRunGC reports orphaned artifacts without deleting them.
	DryRunGC bool
}

// SnippetFailure describes a snippet that fell back to its source block.
type SnippetFailure struct {
	Page        string `json:"page"`
	Fingerprint string `json:"fingerprint"`
	Error       string `json:"error"`
}

// BuildResult contains the outcome of a build execution.
type BuildResult struct {
	BuildID string      `json:"build_id"`
	Status  BuildStatus `json:"status"`

	Site site.Report    `json:"site"`
	GC   janitor.Report `json:"gc"`

	// Compiled counts snippets whose artifact was produced by this build,
	// Reused those served from the cache or a concurrent compile.
	Compiled int              `json:"compiled"`
	Reused   int              `json:"reused"`
	Failures []SnippetFailure `json:"failures,omitempty"`

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
}

// BuildStatus represents the outcome of a build execution.
type BuildStatus string

const (
	// BuildStatusSuccess indicates the build completed. Individual snippets
	// may still have fallen back.
	BuildStatusSuccess BuildStatus = "success"

	// BuildStatusFailed indicates the build encountered a fatal error.
	BuildStatusFailed BuildStatus = "failed"

	// BuildStatusCancelled indicates the build was cancelled.
	BuildStatusCancelled BuildStatus = "cancelled"
)

// IsTerminal returns true if the status represents a final state.
func (s BuildStatus) IsTerminal() bool {
	return s == BuildStatusSuccess || s == BuildStatusFailed || s == BuildStatusCancelled
}

// IsSuccess returns true if the build completed successfully.
func (s BuildStatus) IsSuccess() bool {
	return s == BuildStatusSuccess
}
