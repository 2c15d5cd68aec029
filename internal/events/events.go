// Package events publishes artifact and build lifecycle events.
package events

import (
	"context"
	"time"
)

// Type names an event.
type Type string

const (
	ArtifactCompiled Type = "artifact.compiled"
	ArtifactReused   Type = "artifact.reused"
	ArtifactFailed   Type = "artifact.failed"
	ArtifactRemoved  Type = "artifact.removed"
	BuildCompleted   Type = "build.completed"
)

// BuildSummary is the payload of a build.completed event.
type BuildSummary struct {
	Status     string  `json:"status"`
	Pages      int     `json:"pages"`
	Snippets   int     `json:"snippets"`
	Compiled   int     `json:"compiled"`
	Reused     int     `json:"reused"`
	Failed     int     `json:"failed"`
	Removed    int     `json:"removed"`
	DurationMS float64 `json:"duration_ms"`
}

// Event is the JSON document published for every lifecycle change.
type Event struct {
	Type        Type          `json:"type"`
	BuildID     string        `json:"build_id"`
	Timestamp   time.Time     `json:"timestamp"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	Artifact    string        `json:"artifact,omitempty"`
	Page        string        `json:"page,omitempty"`
	Error       string        `json:"error,omitempty"`
	Build       *BuildSummary `json:"build,omitempty"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                         { return nil }
