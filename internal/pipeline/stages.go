package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// StageName identifies one external conversion step.
type StageName string

const (
	StageLatex   StageName = "latex"
	StageDvips   StageName = "dvips"
	StageConvert StageName = "convert"
)

// StageResult enumerates per-stage outcomes.
type StageResult string

const (
	StageResultSuccess  StageResult = "success"
	StageResultFailed   StageResult = "failed"
	StageResultTimeout  StageResult = "timeout"
	StageResultCanceled StageResult = "canceled"
	StageResultSkipped  StageResult = "skipped"
)

// StageRecord is the trace of one stage run.
type StageRecord struct {
	Stage    StageName
	Result   StageResult
	Command  string
	Duration time.Duration
	ExitCode int
}

// StageError reports the stage that stopped a compile and the stages that
// were consequently skipped.
type StageError struct {
	Stage    StageName
	Result   StageResult
	ExitCode int
	Skipped  []StageName
	Err      error
}

func (e *StageError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "stage %s %s", e.Stage, e.Result)
	if e.ExitCode > 0 {
		fmt.Fprintf(&b, " (exit %d)", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if len(e.Skipped) > 0 {
		names := make([]string, len(e.Skipped))
		for i, s := range e.Skipped {
			names[i] = string(s)
		}
		fmt.Fprintf(&b, "; skipped %s", strings.Join(names, ", "))
	}
	return b.String()
}

func (e *StageError) Unwrap() error { return e.Err }
