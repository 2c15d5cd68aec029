package commands

import (
	"fmt"
	"io"

	"git.home.luguber.info/inful/texcache/internal/janitor"
)

// GCCmd implements the 'gc' command. It reconciles the artifact cache against
// the last successful build recorded in the ledger, so it can run between
// builds.
type GCCmd struct {
	DryRun bool `name:"dry-run" help:"List orphaned artifacts without deleting them"`
}

func (c *GCCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	if err := requireLedger(cfg, "gc"); err != nil {
		return err
	}
	rt, err := openRuntime(cfg, g.Logger, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	report, err := rt.service().CollectGarbage(ctx, cfg, c.DryRun)
	if err != nil {
		return err
	}
	printGCReport(g.Out, report)
	return nil
}

// printGCReport lists what a dry run would delete, or what a real run
// actually deleted, followed by the totals.
func printGCReport(w io.Writer, report janitor.Report) {
	verb, paths := "Removed", report.Removed
	if report.DryRun {
		verb, paths = "Would remove", report.Orphans
	}
	for _, path := range paths {
		_, _ = fmt.Fprintf(w, "%s %s\n", verb, path)
	}
	_, _ = fmt.Fprintf(w, "%d scanned, %d kept, %d orphaned, %d published copies removed, %d failures\n",
		report.Scanned, report.Kept, len(report.Orphans), report.PublishedRemoved, report.Failures)
}
