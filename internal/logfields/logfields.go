package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID     = "build_id"
	KeyFingerprint = "fingerprint"
	KeyStage       = "stage"
	KeyArtifact    = "artifact"
	KeyPage        = "page"
	KeyPath        = "path"
	KeyCommand     = "command"
	KeyExitCode    = "exit_code"
	KeyDurationMS  = "duration_ms"
	KeyCount       = "count"
	KeyOutcome     = "outcome"
	KeyScheduleID  = "schedule_id"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr     { return slog.String(KeyBuildID, id) }
func Fingerprint(fp string) slog.Attr { return slog.String(KeyFingerprint, fp) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Artifact(path string) slog.Attr  { return slog.String(KeyArtifact, path) }
func Page(rel string) slog.Attr       { return slog.String(KeyPage, rel) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Command(cmd string) slog.Attr    { return slog.String(KeyCommand, cmd) }
func ExitCode(code int) slog.Attr     { return slog.Int(KeyExitCode, code) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Outcome(o string) slog.Attr      { return slog.String(KeyOutcome, o) }
func ScheduleID(id string) slog.Attr  { return slog.String(KeyScheduleID, id) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
