// Package commands implements the texcache command line.
package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/texcache/internal/build"
	"git.home.luguber.info/inful/texcache/internal/config"
	"git.home.luguber.info/inful/texcache/internal/events"
	ferrors "git.home.luguber.info/inful/texcache/internal/foundation/errors"
	"git.home.luguber.info/inful/texcache/internal/ledger"
	"git.home.luguber.info/inful/texcache/internal/logfields"
	"git.home.luguber.info/inful/texcache/internal/metrics"
)

// Global is passed to every subcommand.
type Global struct {
	Logger *slog.Logger
	// Out receives command results. Logs go to stderr.
	Out io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"texcache.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" help:"Build the site, rendering LaTeX blocks through the artifact cache"`
	Render  RenderCmd  `cmd:"" help:"Render a single LaTeX snippet and print its markup"`
	GC      GCCmd      `cmd:"" name:"gc" help:"Remove artifacts not referenced by the last successful build"`
	Watch   WatchCmd   `cmd:"" help:"Build, then rebuild whenever the source tree changes"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
	History HistoryCmd `cmd:"" help:"List recorded builds from the ledger"`
}

// AfterApply runs after flag parsing and installs a provisional logger.
// Commands that load a configuration replace it with the configured one.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	slog.SetDefault(config.NewLogger(os.Stderr, config.ResolveLogLevel(c.Verbose, ""), config.LogFormatText))
	return nil
}

// loadConfig reads the configuration file and reconfigures logging from it.
func (c *CLI) loadConfig(g *Global) (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	logging := cfg.Monitoring.Logging
	g.Logger = config.NewLogger(os.Stderr, config.ResolveLogLevel(c.Verbose, logging.Level), logging.Format)
	slog.SetDefault(g.Logger)
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// runtime holds the process-wide collaborators shared by the build service
// and the garbage collector.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	ledger    ledger.Ledger
	publisher events.Publisher
	recorder  metrics.Recorder
}

// openRuntime opens the ledger and event publisher named by cfg. A nil
// registry disables metrics.
func openRuntime(cfg *config.Config, logger *slog.Logger, reg *prometheus.Registry) (*runtime, error) {
	rt := &runtime{
		cfg:       cfg,
		logger:    logger,
		ledger:    ledger.NoopLedger{},
		publisher: events.NoopPublisher{},
		recorder:  metrics.NoopRecorder{},
	}
	if reg != nil {
		rt.recorder = metrics.NewPrometheusRecorder(reg)
	}

	if cfg.Ledger.Path != "" {
		l, err := ledger.NewSQLiteLedger(cfg.Ledger.Path)
		if err != nil {
			return nil, err
		}
		rt.ledger = l
		logger.Debug("Opened build ledger", logfields.Path(cfg.Ledger.Path))
	}

	if cfg.Events.Enabled() {
		p, err := events.NewNATSPublisher(cfg.Events, logger)
		if err != nil {
			// Builds proceed without events when the broker is unreachable.
			logger.Warn("Event publishing disabled", logfields.Error(err))
		} else {
			rt.publisher = p.WithRecorder(rt.recorder)
		}
	}
	return rt, nil
}

func (rt *runtime) service() *build.DefaultBuildService {
	return build.NewBuildService(rt.logger).
		WithRecorder(rt.recorder).
		WithLedger(rt.ledger).
		WithPublisher(rt.publisher)
}

func (rt *runtime) Close() {
	if err := rt.publisher.Close(); err != nil {
		rt.logger.Warn("Failed to close event publisher", logfields.Error(err))
	}
	if err := rt.ledger.Close(); err != nil {
		rt.logger.Warn("Failed to close ledger", logfields.Error(err))
	}
}

// requireLedger rejects commands that need build history when none is kept.
func requireLedger(cfg *config.Config, command string) error {
	if cfg.Ledger.Path != "" {
		return nil
	}
	return ferrors.ConfigError("ledger.path is not configured").
		UserAction().
		WithContext("command", command).
		WithHint("set ledger.path in the configuration file").
		Build()
}
