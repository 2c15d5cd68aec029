package config

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ferrors "git.home.luguber.info/inful/texcache/internal/foundation/errors"
)

// ValidateConfig validates a defaulted configuration.
func ValidateConfig(cfg *Config) error {
	v := &configurationValidator{config: cfg}
	return v.validate()
}

type configurationValidator struct {
	config *Config
}

func (cv *configurationValidator) validate() error {
	if err := cv.validateLatex(); err != nil {
		return err
	}
	if err := cv.validateDurations(); err != nil {
		return err
	}
	return nil
}

func (cv *configurationValidator) validateLatex() error {
	l := cv.config.Latex
	if d, err := strconv.ParseFloat(l.Density, 64); err != nil || d <= 0 {
		return invalid("latex.density must be a positive number", "density", l.Density)
	}
	if strings.ContainsAny(l.TempFilename, `/\`) {
		return invalid("latex.temp_filename must be a base name, not a path", "temp_filename", l.TempFilename)
	}
	if escapesRoot(l.OutputDirectory) {
		return invalid("latex.output_directory must stay inside the source tree", "output_directory", l.OutputDirectory)
	}
	for name, cmd := range map[string]string{
		"latex_cmd":   l.LatexCmd,
		"dvips_cmd":   l.DvipsCmd,
		"convert_cmd": l.ConvertCmd,
	} {
		if strings.TrimSpace(cmd) == "" {
			return invalid("latex command template must not be blank", "option", name)
		}
	}
	return nil
}

func (cv *configurationValidator) validateDurations() error {
	checks := []struct {
		field string
		value string
	}{
		{"latex.stage_timeout", cv.config.Latex.StageTimeout},
		{"watch.debounce", cv.config.Watch.Debounce},
		{"watch.rebuild_interval", cv.config.Watch.RebuildInterval},
	}
	for _, c := range checks {
		if c.value == "" {
			continue
		}
		d, err := time.ParseDuration(c.value)
		if err != nil || d <= 0 {
			return invalid(c.field+" must be a positive duration", c.field, c.value)
		}
	}
	return nil
}

// escapesRoot reports whether a relative output directory climbs out of the
// tree it is joined to.
func escapesRoot(dir string) bool {
	cleaned := filepath.Clean(filepath.Join("root", dir))
	return cleaned != "root" && !strings.HasPrefix(cleaned, "root"+string(filepath.Separator))
}

func invalid(msg, key, value string) error {
	return ferrors.ValidationError(msg).WithContext(key, value).Build()
}

// ParseDurationOr parses raw, returning fallback when raw is empty or invalid.
func ParseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
