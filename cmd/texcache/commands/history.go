package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int  `short:"n" help:"Number of builds to show (0 for all)" default:"10"`
	JSON  bool `name:"json" help:"Print builds as JSON"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	if err := requireLedger(cfg, "history"); err != nil {
		return err
	}
	rt, err := openRuntime(cfg, g.Logger, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	builds, err := rt.ledger.ListBuilds(context.Background(), h.Limit)
	if err != nil {
		return err
	}
	if h.JSON {
		enc := json.NewEncoder(g.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(builds)
	}

	tw := tabwriter.NewWriter(g.Out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "BUILD\tSTARTED\tSTATUS\tSNIPPETS\tCOMPILED\tREUSED\tFAILED\tREMOVED")
	for _, b := range builds {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			b.ID, b.StartedAt.Format(time.RFC3339), b.Status,
			b.Snippets, b.Compiled, b.Reused, b.Failed, b.Removed)
	}
	return tw.Flush()
}
