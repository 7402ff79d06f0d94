package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/HendryAvila/bevy-brp-mcp/internal/history"
)

// ---------------------------------------------------------------------------
// historyCmd
// ---------------------------------------------------------------------------

func historyCmd() *cobra.Command {
	var (
		limit      int
		all        bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent watches and how they ended",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.History {
				return fmt.Errorf("watch history is disabled in %s", cfg.HistoryPath())
			}
			store, err := history.New(history.DefaultConfig(cfg.HistoryPath()))
			if err != nil {
				return fmt.Errorf("opening watch history: %w", err)
			}
			defer store.Close()

			// Opening the store starts a new run, so "current" would always
			// be empty here: the CLI always reads across runs.
			entries, err := store.Recent(limit, false)
			if err != nil {
				return fmt.Errorf("reading watch history: %w", err)
			}
			if !all {
				entries = withoutRun(entries, store.RunID())
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			if len(entries) == 0 {
				fmt.Println("No watches recorded.")
				return nil
			}
			printHistory(entries, time.Now())
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum watches to show")
	cmd.Flags().BoolVar(&all, "all", false, "Include this command's own run")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	return cmd
}

func withoutRun(entries []history.Entry, runID string) []history.Entry {
	out := entries[:0]
	for _, e := range entries {
		if e.RunID != runID {
			out = append(out, e)
		}
	}
	return out
}

func printHistory(entries []history.Entry, now time.Time) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tENTITY\tPORT\tSTATE\tSTARTED\tDETAIL")
	for _, e := range entries {
		detail := e.Error
		if detail == "" {
			detail = strings.Join(e.Components, ",")
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\t%s\t%s\n",
			e.WatchID, e.Kind, e.Entity, e.Port, e.State,
			humanize.RelTime(e.CreatedAt, now, "ago", "from now"), detail)
	}
	_ = w.Flush()
}
