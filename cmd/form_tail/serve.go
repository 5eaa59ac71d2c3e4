package main

import (
	"github.com/spf13/cobra"

	"github.com/ajsharma/form_tail/internal/server"
	"github.com/ajsharma/form_tail/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the demo page and the event API without watching Chrome",
	Long: `serve starts the local HTTP server on its own. The demo page has forms
that exercise every detection path; the API reads events recorded with --db.

Example:
  form_tail serve --db events.db --addr 127.0.0.1:8089`,
	RunE: func(cmd *cobra.Command, args []string) error {
		defer log.Sync()

		opts := server.Options{Logger: log}
		if cfg.DatabasePath != "" {
			st, err := store.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer st.Close()
			opts.Store = st
		}

		ctx, cancel := signalContext()
		defer cancel()
		return server.New(opts).ListenAndServe(ctx, cfg.ServeAddr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "SQLite database written by form_tail --db")
	serveCmd.Flags().StringVar(&cfg.ServeAddr, "addr", cfg.ServeAddr, "Listen address")
}
