package errors

import "maps"

// ErrorCategory routes an error to an exit code and a log treatment.
type ErrorCategory string

// User input.
const (
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryNotFound   ErrorCategory = "not_found"
)

// Rendering and the artifact cache.
const (
	CategoryPipeline   ErrorCategory = "pipeline"
	CategoryCache      ErrorCategory = "cache"
	CategoryFileSystem ErrorCategory = "filesystem"
	CategoryBuild      ErrorCategory = "build"
)

// Build ledger, event broker and other external systems.
const (
	CategoryLedger  ErrorCategory = "ledger"
	CategoryEvents  ErrorCategory = "events"
	CategoryNetwork ErrorCategory = "network"
)

// Process runtime.
const (
	CategoryRuntime  ErrorCategory = "runtime"
	CategoryWatch    ErrorCategory = "watch"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity is the impact of an error on the current command.
type ErrorSeverity string

const (
	// SeverityFatal stops the command.
	SeverityFatal ErrorSeverity = "fatal"
	// SeverityError fails the current operation.
	SeverityError ErrorSeverity = "error"
	// SeverityWarning degrades output, e.g. a fallback block instead of an image.
	SeverityWarning ErrorSeverity = "warning"
	SeverityInfo    ErrorSeverity = "info"
)

// RetryStrategy says whether and how an operation may be retried.
type RetryStrategy string

const (
	RetryNever     RetryStrategy = "never"
	RetryImmediate RetryStrategy = "immediate"
	RetryBackoff   RetryStrategy = "backoff"
	// RetryNextBuild failures are not cached, so the next build tries again.
	RetryNextBuild  RetryStrategy = "next_build"
	RetryUserAction RetryStrategy = "user"
)

// ErrorContext holds structured values attached to an error.
type ErrorContext map[string]any

// Set stores value under key, allocating the map when c is nil.
func (c ErrorContext) Set(key string, value any) ErrorContext {
	if c == nil {
		c = make(ErrorContext)
	}
	c[key] = value
	return c
}

func (c ErrorContext) Get(key string) (any, bool) {
	value, ok := c[key]
	return value, ok
}

// GetString returns the value under key when it is a string.
func (c ErrorContext) GetString(key string) (string, bool) {
	s, ok := c[key].(string)
	return s, ok
}

// Merge returns a new context with other's values taking precedence.
func (c ErrorContext) Merge(other ErrorContext) ErrorContext {
	out := make(ErrorContext, len(c)+len(other))
	maps.Copy(out, c)
	maps.Copy(out, other)
	return out
}
