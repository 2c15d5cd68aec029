package errors

// ErrorBuilder assembles a ClassifiedError. The zero severity is
// SeverityError and the zero retry strategy is RetryNever.
type ErrorBuilder struct {
	err ClassifiedError
}

// NewError starts an error of the given category.
func NewError(category ErrorCategory, message string) *ErrorBuilder {
	return &ErrorBuilder{err: ClassifiedError{
		category: category,
		severity: SeverityError,
		retry:    RetryNever,
		message:  message,
		context:  make(ErrorContext),
	}}
}

// WrapError starts an error of the given category caused by err.
func WrapError(err error, category ErrorCategory, message string) *ErrorBuilder {
	b := NewError(category, message)
	b.err.cause = err
	return b
}

func (b *ErrorBuilder) WithSeverity(severity ErrorSeverity) *ErrorBuilder {
	b.err.severity = severity
	return b
}

func (b *ErrorBuilder) WithRetry(strategy RetryStrategy) *ErrorBuilder {
	b.err.retry = strategy
	return b
}

func (b *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	b.err.cause = err
	return b
}

// WithContext attaches a structured value such as a path, stage or
// fingerprint. It is rendered in Error() and logged by the CLI.
func (b *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	b.err.context = b.err.context.Set(key, value)
	return b
}

// WithHint attaches a remedy shown to the user below the error message.
func (b *ErrorBuilder) WithHint(hint string) *ErrorBuilder {
	return b.WithContext(hintKey, hint)
}

func (b *ErrorBuilder) Fatal() *ErrorBuilder   { return b.WithSeverity(SeverityFatal) }
func (b *ErrorBuilder) Warning() *ErrorBuilder { return b.WithSeverity(SeverityWarning) }
func (b *ErrorBuilder) Info() *ErrorBuilder    { return b.WithSeverity(SeverityInfo) }

// Retryable marks the error as worth retrying with backoff.
func (b *ErrorBuilder) Retryable() *ErrorBuilder { return b.WithRetry(RetryBackoff) }

// NextBuild marks the failure as retried by the next build.
func (b *ErrorBuilder) NextBuild() *ErrorBuilder { return b.WithRetry(RetryNextBuild) }

// UserAction marks the error as needing the user to change something.
func (b *ErrorBuilder) UserAction() *ErrorBuilder { return b.WithRetry(RetryUserAction) }

// Build returns the error. The builder must not be reused afterwards.
func (b *ErrorBuilder) Build() *ClassifiedError {
	e := b.err
	return &e
}

// ConfigError is a fatal configuration problem the user must fix.
func ConfigError(message string) *ErrorBuilder {
	return NewError(CategoryConfig, message).Fatal().UserAction()
}

// ValidationError is fatal malformed input, such as a bad tag option.
func ValidationError(message string) *ErrorBuilder {
	return NewError(CategoryValidation, message).Fatal().UserAction()
}

// PipelineError is a failed render stage. These degrade to fallback output
// and are retried by the next build, never cached.
func PipelineError(message string) *ErrorBuilder {
	return NewError(CategoryPipeline, message).Warning().NextBuild()
}

func CacheError(message string) *ErrorBuilder {
	return NewError(CategoryCache, message)
}

func FileSystemError(message string) *ErrorBuilder {
	return NewError(CategoryFileSystem, message).Retryable()
}

func BuildError(message string) *ErrorBuilder {
	return NewError(CategoryBuild, message).Fatal()
}

func LedgerError(message string) *ErrorBuilder {
	return NewError(CategoryLedger, message)
}

func EventsError(message string) *ErrorBuilder {
	return NewError(CategoryEvents, message).Retryable()
}

func RuntimeError(message string) *ErrorBuilder {
	return NewError(CategoryRuntime, message).Fatal()
}

func InternalError(message string) *ErrorBuilder {
	return NewError(CategoryInternal, message).Fatal()
}
