package config

import "time"

// Built-in defaults for the latex settings block.
const (
	DefaultDensity         = "300"
	DefaultLatexCmd        = "latex -interaction=nonstopmode -halt-on-error $texfile"
	DefaultDvipsCmd        = "dvips -E $dvifile -o $epsfile"
	DefaultConvertCmd      = "convert -trim -density $density $epsfile $pngfile"
	DefaultTempFilename    = "latex_temp"
	DefaultOutputDirectory = "/latex"
	DefaultClasses         = "body-responsive"
	DefaultDebugLog        = "output.log"
	DefaultStageTimeout    = 2 * time.Minute

	DefaultLedgerPath    = ".texcache/ledger.db"
	DefaultEventsSubject = "texcache.artifacts"
	DefaultDebounce      = 2 * time.Second
)

// applyDefaults fills unset values. String options are treated as absent when
// empty, which is how the host settings block expresses "keep the default".
// Classes is the exception: only a missing key takes the default.
func applyDefaults(cfg *Config) {
	if cfg.Source == "" {
		cfg.Source = "."
	}
	if cfg.Destination == "" {
		cfg.Destination = "_site"
	}
	cfg.Latex = cfg.Latex.withDefaults()

	if cfg.Events.Subject == "" {
		cfg.Events.Subject = DefaultEventsSubject
	}
	if cfg.Events.MaxRetries <= 0 {
		cfg.Events.MaxRetries = 2
	}

	cfg.Monitoring.Logging.Level = NormalizeLogLevel(string(cfg.Monitoring.Logging.Level))
	cfg.Monitoring.Logging.Format = NormalizeLogFormat(string(cfg.Monitoring.Logging.Format))

	if cfg.Watch.Debounce == "" {
		cfg.Watch.Debounce = DefaultDebounce.String()
	}
}

// StringPtr returns a pointer to s, for options where empty differs from unset.
func StringPtr(s string) *string { return &s }

// withDefaults returns a copy of l with every absent option replaced by its
// built-in default.
func (l LatexConfig) withDefaults() LatexConfig {
	if l.Density == "" {
		l.Density = DefaultDensity
	}
	if l.LatexCmd == "" {
		l.LatexCmd = DefaultLatexCmd
	}
	if l.DvipsCmd == "" {
		l.DvipsCmd = DefaultDvipsCmd
	}
	if l.ConvertCmd == "" {
		l.ConvertCmd = DefaultConvertCmd
	}
	if l.TempFilename == "" {
		l.TempFilename = DefaultTempFilename
	}
	if l.OutputDirectory == "" {
		l.OutputDirectory = DefaultOutputDirectory
	}
	// An explicit empty classes value is kept and yields class="".
	if l.Classes == nil {
		l.Classes = StringPtr(DefaultClasses)
	}
	if l.StageTimeout == "" {
		l.StageTimeout = DefaultStageTimeout.String()
	}
	if l.DebugLog == "" {
		l.DebugLog = DefaultDebugLog
	}
	if l.Concurrency <= 0 {
		l.Concurrency = 1
	}
	return l
}
