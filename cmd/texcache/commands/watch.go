package commands

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/texcache/internal/config"
	"git.home.luguber.info/inful/texcache/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Debounce        time.Duration `help:"Quiet period before a rebuild (overrides watch.debounce)"`
	RebuildInterval time.Duration `name:"rebuild-interval" help:"Rebuild periodically (overrides watch.rebuild_interval)"`
	MetricsAddr     string        `name:"metrics-addr" help:"Serve /healthz and /metrics on this address (overrides monitoring.metrics_addr)"`
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	opts := w.options(cfg)

	var reg *prometheus.Registry
	if opts.MetricsAddr != "" {
		reg = prometheus.NewRegistry()
		opts.Registry = reg
	}
	rt, err := openRuntime(cfg, g.Logger, reg)
	if err != nil {
		return err
	}
	defer rt.Close()

	watcher, err := watch.New(cfg, rt.service(), opts, g.Logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	return watcher.Run(ctx)
}

// options merges flags over the configuration file.
func (w *WatchCmd) options(cfg *config.Config) watch.Options {
	opts := watch.Options{
		Debounce:        config.ParseDurationOr(cfg.Watch.Debounce, config.DefaultDebounce),
		RebuildInterval: config.ParseDurationOr(cfg.Watch.RebuildInterval, 0),
		MetricsAddr:     cfg.Monitoring.MetricsAddr,
	}
	if w.Debounce > 0 {
		opts.Debounce = w.Debounce
	}
	if w.RebuildInterval > 0 {
		opts.RebuildInterval = w.RebuildInterval
	}
	if w.MetricsAddr != "" {
		opts.MetricsAddr = w.MetricsAddr
	}
	return opts
}
