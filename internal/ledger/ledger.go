// Package ledger records builds and the artifacts each build referenced, so a
// standalone garbage collection can run without rebuilding the site.
package ledger

import (
	"context"
	"time"
)

// Status is the terminal state of a recorded build.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Summary is written when a build finishes.
type Summary struct {
	Status   Status `json:"status"`
	Pages    int    `json:"pages"`
	Snippets int    `json:"snippets"`
	Compiled int    `json:"compiled"`
	Reused   int    `json:"reused"`
	Failed   int    `json:"failed"`
	Removed  int    `json:"removed"`
	Error    string `json:"error,omitempty"`
}

// BuildRecord is one row of build history.
type BuildRecord struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Summary
}

// ArtifactRecord is an artifact referenced by a build.
type ArtifactRecord struct {
	BuildID     string    `json:"build_id"`
	Fingerprint string    `json:"fingerprint"`
	Path        string    `json:"path"`
	Outcome     string    `json:"outcome"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Ledger persists build history.
type Ledger interface {
	BeginBuild(ctx context.Context, buildID string) error
	RecordArtifact(ctx context.Context, buildID, fingerprint, path, outcome string) error
	FinishBuild(ctx context.Context, buildID string, summary Summary) error
	// LastSuccessfulArtifacts returns the artifacts referenced by the most
	// recent succeeded build, or nil when there is none.
	LastSuccessfulArtifacts(ctx context.Context) ([]ArtifactRecord, error)
	ListBuilds(ctx context.Context, limit int) ([]BuildRecord, error)
	Close() error
}

// NoopLedger discards everything. Used when no ledger path is configured.
type NoopLedger struct{}

func (NoopLedger) BeginBuild(context.Context, string) error                             { return nil }
func (NoopLedger) RecordArtifact(context.Context, string, string, string, string) error { return nil }
func (NoopLedger) FinishBuild(context.Context, string, Summary) error                   { return nil }
func (NoopLedger) LastSuccessfulArtifacts(context.Context) ([]ArtifactRecord, error)    { return nil, nil }
func (NoopLedger) ListBuilds(context.Context, int) ([]BuildRecord, error)               { return nil, nil }
func (NoopLedger) Close() error                                                         { return nil }
