package commands

import (
	"fmt"
	"time"

	"git.home.luguber.info/inful/texcache/internal/build"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Concurrency int  `help:"Override latex.concurrency (pages rendered in parallel)"`
	DryRunGC    bool `name:"dry-run-gc" help:"Report orphaned artifacts without deleting them"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	rt, err := openRuntime(cfg, g.Logger, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	result, err := rt.service().Run(ctx, build.BuildRequest{
		Config:  cfg,
		Options: build.BuildOptions{Concurrency: b.Concurrency, DryRunGC: b.DryRunGC},
	})
	if result != nil {
		printBuildResult(g, result)
	}
	return err
}

func printBuildResult(g *Global, r *build.BuildResult) {
	_, _ = fmt.Fprintf(g.Out, "Build %s %s in %s\n", r.BuildID, r.Status, r.Duration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(g.Out, "  pages: %d  snippets: %d  compiled: %d  reused: %d  failed: %d\n",
		len(r.Site.Pages), r.Site.Snippets, r.Compiled, r.Reused, len(r.Failures))
	_, _ = fmt.Fprintf(g.Out, "  static: %d copied, %d unchanged\n", r.Site.StaticCopied, r.Site.StaticSkipped)
	verb := "removed"
	if r.GC.DryRun {
		verb = "would remove"
	}
	_, _ = fmt.Fprintf(g.Out, "  gc: %d scanned, %d kept, %s %d\n", r.GC.Scanned, r.GC.Kept, verb, len(r.GC.Orphans))
	for _, f := range r.Failures {
		_, _ = fmt.Fprintf(g.Out, "  failed: %s (%s): %s\n", f.Page, shortFingerprint(f.Fingerprint), f.Error)
	}
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
