package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/texcache/internal/foundation/errors"
)

// Config represents the texcache configuration file.
type Config struct {
	// Source is the root of the site source tree. Cached artifacts live under
	// Source/<latex.output_directory>.
	Source string `yaml:"source" toml:"source"`

	// Destination is the publish tree the site is written to.
	Destination string `yaml:"destination" toml:"destination"`

	Latex      LatexConfig      `yaml:"latex" toml:"latex"`
	Ledger     LedgerConfig     `yaml:"ledger" toml:"ledger"`
	Events     EventsConfig     `yaml:"events" toml:"events"`
	Monitoring MonitoringConfig `yaml:"monitoring" toml:"monitoring"`
	Watch      WatchConfig      `yaml:"watch" toml:"watch"`
}

// LatexConfig is the nested settings block for the latex tag. Any subset of
// the options may be supplied; absent keys keep built-in defaults.
type LatexConfig struct {
	Debug           bool    `yaml:"debug" toml:"debug"`
	Density         string  `yaml:"density" toml:"density"`
	UsePackages     string  `yaml:"usepackages" toml:"usepackages"`
	LatexCmd        string  `yaml:"latex_cmd" toml:"latex_cmd"`
	DvipsCmd        string  `yaml:"dvips_cmd" toml:"dvips_cmd"`
	ConvertCmd      string  `yaml:"convert_cmd" toml:"convert_cmd"`
	TempFilename    string  `yaml:"temp_filename" toml:"temp_filename"`
	OutputDirectory string  `yaml:"output_directory" toml:"output_directory"`
	Classes         *string `yaml:"classes" toml:"classes"`
	StageTimeout    string  `yaml:"stage_timeout" toml:"stage_timeout"`
	WorkDir         string  `yaml:"work_dir" toml:"work_dir"`
	DebugLog        string  `yaml:"debug_log" toml:"debug_log"`
	Concurrency     int     `yaml:"concurrency" toml:"concurrency"`
}

// LedgerConfig configures the SQLite build ledger. An empty path disables it.
type LedgerConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// EventsConfig configures artifact event publishing over NATS.
type EventsConfig struct {
	NATSURL    string `yaml:"nats_url" toml:"nats_url"`
	Subject    string `yaml:"subject" toml:"subject"`
	MaxRetries int    `yaml:"max_retries" toml:"max_retries"`
}

// Enabled reports whether an events backend is configured.
func (e EventsConfig) Enabled() bool { return strings.TrimSpace(e.NATSURL) != "" }

// MonitoringConfig represents monitoring and observability configuration.
type MonitoringConfig struct {
	MetricsAddr string            `yaml:"metrics_addr" toml:"metrics_addr"`
	Logging     MonitoringLogging `yaml:"logging" toml:"logging"`
}

// MonitoringLogging represents logging configuration.
type MonitoringLogging struct {
	Level  LogLevel  `yaml:"level" toml:"level"`
	Format LogFormat `yaml:"format" toml:"format"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce        string `yaml:"debounce" toml:"debounce"`
	RebuildInterval string `yaml:"rebuild_interval" toml:"rebuild_interval"`
}

// Load loads a configuration file. Files ending in .toml are decoded as TOML,
// everything else as YAML.
func Load(configPath string) (*Config, error) {
	if err := loadEnvFile(filepath.Dir(configPath)); err != nil {
		// Don't fail if .env doesn't exist, just note it
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, ferrors.ConfigError("configuration file not found").
			WithContext("path", configPath).
			Build()
	}

	// #nosec G304 -- configPath is an operator-supplied CLI argument
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").
			Fatal().
			WithContext("path", configPath).
			Build()
	}

	cfg, err := Parse(data, formatFor(configPath))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Format identifies a configuration file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

func formatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// envRef matches ${VAR}. Bare $name is left alone because the stage command
// templates use it for their own placeholders.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(m[2 : len(m)-1])
	})
}

// Parse decodes, defaults and validates configuration bytes.
func Parse(data []byte, format Format) (*Config, error) {
	expanded := expandEnv(string(data))

	var cfg Config
	var err error
	switch format {
	case FormatTOML:
		_, err = toml.Decode(expanded, &cfg)
	default:
		err = yaml.Unmarshal([]byte(expanded), &cfg)
	}
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to unmarshal config").
			Fatal().
			WithContext("format", string(format)).
			Build()
	}

	applyDefaults(&cfg)

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return ferrors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}

	example := Config{
		Source:      "./src",
		Destination: "./public",
		Latex: LatexConfig{
			Density:         DefaultDensity,
			UsePackages:     "amsmath,amssymb",
			LatexCmd:        DefaultLatexCmd,
			DvipsCmd:        DefaultDvipsCmd,
			ConvertCmd:      DefaultConvertCmd,
			TempFilename:    DefaultTempFilename,
			OutputDirectory: DefaultOutputDirectory,
			Classes:         StringPtr(DefaultClasses),
			StageTimeout:    DefaultStageTimeout.String(),
			Concurrency:     1,
		},
		Ledger: LedgerConfig{Path: DefaultLedgerPath},
		Events: EventsConfig{Subject: DefaultEventsSubject},
		Monitoring: MonitoringConfig{
			MetricsAddr: ":9464",
			Logging:     MonitoringLogging{Level: LogLevelInfo, Format: LogFormatText},
		},
		Watch: WatchConfig{Debounce: DefaultDebounce.String(), RebuildInterval: "1h"},
	}

	var data []byte
	var err error
	if formatFor(configPath) == FormatTOML {
		var sb strings.Builder
		err = toml.NewEncoder(&sb).Encode(example)
		data = []byte(sb.String())
	} else {
		data, err = yaml.Marshal(&example)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write config file").
			WithContext("path", configPath).
			Build()
	}
	return nil
}
