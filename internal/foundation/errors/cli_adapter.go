package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Process exit codes used by the texcache CLI.
const (
	ExitOK          = 0
	ExitGeneral     = 1
	ExitUsage       = 2
	ExitNotFound    = 4
	ExitConfig      = 7
	ExitExternal    = 8
	ExitInternal    = 10
	ExitBuild       = 11
	ExitRuntime     = 12
	ExitInterrupted = 130
)

// CLIErrorAdapter turns a command error into a stderr message, a log record
// and an exit code.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
	stderr  io.Writer
	exit    func(int)
}

// NewCLIErrorAdapter creates an adapter writing to os.Stderr and exiting the
// process.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{
		verbose: verbose,
		logger:  logger,
		stderr:  os.Stderr,
		exit:    os.Exit,
	}
}

// ExitCodeFor maps an error to a process exit code.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	if stderrors.Is(err, context.Canceled) {
		return ExitInterrupted
	}
	classified, ok := AsClassified(err)
	if !ok {
		return ExitGeneral
	}
	switch classified.Category() {
	case CategoryValidation:
		return ExitUsage
	case CategoryNotFound:
		return ExitNotFound
	case CategoryConfig:
		return ExitConfig
	case CategoryNetwork, CategoryEvents, CategoryLedger:
		return ExitExternal
	case CategoryBuild, CategoryPipeline, CategoryCache, CategoryFileSystem:
		return ExitBuild
	case CategoryWatch, CategoryRuntime:
		return ExitRuntime
	case CategoryInternal:
		return ExitInternal
	default:
		return ExitGeneral
	}
}

// FormatError renders the user-facing message. A hint attached to the error
// is printed on its own line.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	if stderrors.Is(err, context.Canceled) {
		return "Interrupted"
	}
	classified, ok := AsClassified(err)
	if !ok {
		return fmt.Sprintf("Error: %v", err)
	}

	var msg string
	switch {
	case a.verbose:
		msg = err.Error()
	case classified.Category() == CategoryInternal:
		msg = "Internal error occurred (use -v for details)"
	case classified.Category() == CategoryConfig, classified.Category() == CategoryValidation:
		msg = fmt.Sprintf("Error: %s", classified.Message())
	default:
		msg = fmt.Sprintf("Error (%s): %s", classified.Category(), classified.Message())
	}
	if hint := classified.Hint(); hint != "" {
		msg += "\nHint: " + hint
	}
	return msg
}

// HandleError reports err and exits with its code. It returns without
// exiting when err is nil.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}
	if a.shouldLog(err) {
		a.logError(err)
	}
	_, _ = fmt.Fprintln(a.stderr, a.FormatError(err))
	a.exit(a.ExitCodeFor(err))
}

// shouldLog logs everything when verbose, otherwise only fatal and
// unclassified errors; the stderr message covers the rest.
func (a *CLIErrorAdapter) shouldLog(err error) bool {
	if a.verbose {
		return true
	}
	if stderrors.Is(err, context.Canceled) {
		return false
	}
	if classified, ok := AsClassified(err); ok {
		return classified.IsFatal()
	}
	return true
}

func (a *CLIErrorAdapter) logError(err error) {
	classified, ok := AsClassified(err)
	if !ok {
		a.logger.Error("Command failed", slog.String("error", err.Error()))
		return
	}
	a.logger.LogAttrs(context.Background(), levelFor(classified.Severity()), classified.Message(), classified.LogAttrs()...)
}

func levelFor(severity ErrorSeverity) slog.Level {
	switch severity {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
