package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"git.home.luguber.info/inful/texcache/internal/cache"
	"git.home.luguber.info/inful/texcache/internal/config"
	"git.home.luguber.info/inful/texcache/internal/logfields"
	"git.home.luguber.info/inful/texcache/internal/render"
)

// RenderCmd implements the 'render' command: it runs one snippet through the
// cache and pipeline exactly as a latex block in a page would.
type RenderCmd struct {
	Snippet string `arg:"" optional:"" help:"LaTeX snippet to render (read from stdin when omitted)"`
	Options string `short:"o" help:"Tag options, e.g. 'density=200 usepackages=tikz'"`
}

func (r *RenderCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	opts, err := render.ParseOptions(r.Options)
	if err != nil {
		return err
	}
	snippet := r.Snippet
	if snippet == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read snippet from stdin: %w", err)
		}
		snippet = strings.TrimSpace(string(data))
	}

	ctx, cancel := signalContext()
	defer cancel()

	engine := render.NewEngine(config.NewStore(), config.OverridesFrom(cfg), cache.NewGeneratedSet(), g.Logger)
	res, err := engine.Render(ctx, render.Request{Snippet: snippet, Options: opts, Page: "<cli>"})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(g.Out, res.Markup)
	if res.Failed() {
		return res.Err
	}
	g.Logger.Debug("Rendered snippet", logfields.Outcome(string(res.Outcome)), logfields.Artifact(res.Artifact.Path))
	return nil
}
