// Package errors classifies texcache errors by category, severity and retry
// strategy, and carries structured context (stage, fingerprint, path) from
// the point of failure to the log and the CLI.
//
// Stage failures are built as warnings that the next build retries:
//
//	err := errors.WrapError(cause, errors.CategoryPipeline, "stage failed").
//		Warning().
//		NextBuild().
//		WithContext("stage", "dvips").
//		WithContext("fingerprint", fp).
//		Build()
//
// CLIErrorAdapter maps categories to process exit codes.
package errors
