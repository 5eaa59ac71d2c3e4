package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajsharma/form_tail/internal/store"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Query events recorded in a SQLite database",
	Long: `events prints recorded events as JSON lines, newest first, or a count
per event name with --counts.

Example:
  form_tail events --db events.db --name form_submit_success --limit 20
  form_tail events --db events.db --counts`,
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "SQLite database written by form_tail --db")
	eventsCmd.Flags().String("name", "", "Only events with this name")
	eventsCmd.Flags().String("site", "", "Only events from this site")
	eventsCmd.Flags().String("form", "", "Only events for this form ID")
	eventsCmd.Flags().Duration("since", 0, "Only events newer than this (e.g. 1h)")
	eventsCmd.Flags().Int("limit", store.DefaultLimit, "Maximum number of events")
	eventsCmd.Flags().Bool("counts", false, "Print counts per event name")
}

func runEvents(cmd *cobra.Command, args []string) error {
	if cfg.DatabasePath == "" {
		return fmt.Errorf("--db is required")
	}
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()

	if counts, _ := cmd.Flags().GetBool("counts"); counts {
		byName, err := st.Count(ctx)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(byName))
		for name := range byName {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%-28s %d\n", name, byName[name])
		}
		return nil
	}

	f := store.Filter{}
	f.Name, _ = cmd.Flags().GetString("name")
	f.Site, _ = cmd.Flags().GetString("site")
	f.FormID, _ = cmd.Flags().GetString("form")
	f.Limit, _ = cmd.Flags().GetInt("limit")
	if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
		f.Since = time.Now().Add(-since)
	}

	records, err := st.List(ctx, f)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}
