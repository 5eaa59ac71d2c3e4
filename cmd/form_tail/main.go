// form_tail tracks form submissions and success messages in Chrome tabs
// and forwards them as analytics events.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ajsharma/form_tail/internal/cdp"
	"github.com/ajsharma/form_tail/internal/config"
	"github.com/ajsharma/form_tail/internal/server"
)

var cfg = config.DefaultConfig()

// Global flags.
var (
	configPath string
	envFile    string
	debug      bool
	log        = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "form_tail",
	Short: "Track form submissions in Chrome and forward them as analytics events",
	Long: `form_tail connects to Chrome via the DevTools Protocol, injects a small
probe into every tab and reports form submissions, submit attempts, success
messages and background form posts as analytics events.

Events go to JSONL files organized by site and tab, and optionally to
stdout, a SQLite database and a GA4 property (Measurement Protocol).

Example:
  # Connect to existing Chrome (must be started with --remote-debugging-port=9222)
  form_tail

  # Auto-launch Chrome and open a page
  form_tail --launch --url https://example.com/contact

  # Record to SQLite and serve the event API and demo page
  form_tail --db events.db --serve

  # Check a page for success messages visible on load
  form_tail diagnose --url https://example.com/contact`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              runWatch,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"YAML config file; flags override its values")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"Env file with GA4 credentials")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"Verbose logging")
	rootCmd.PersistentFlags().StringVarP(&cfg.ChromePort, "port", "p", cfg.ChromePort,
		"Chrome remote debugging port")

	// Connection flags
	rootCmd.Flags().BoolVar(&cfg.AutoLaunch, "launch", cfg.AutoLaunch,
		"Auto-launch Chrome with debugging enabled")
	rootCmd.Flags().StringVar(&cfg.StartURL, "url", cfg.StartURL,
		"Open this URL in a new tab once monitoring starts")

	// Output flags
	rootCmd.Flags().StringVarP(&cfg.OutputDir, "output", "o", cfg.OutputDir,
		"Output directory for event logs")
	rootCmd.Flags().DurationVar(&cfg.FlushInterval, "flush-interval", cfg.FlushInterval,
		"Flush interval for log buffering")
	rootCmd.Flags().IntVar(&cfg.BufferSize, "buffer-size", cfg.BufferSize,
		"Buffer size per tab in bytes")
	rootCmd.Flags().BoolVar(&cfg.EnableStdoutSink, "stdout", cfg.EnableStdoutSink,
		"Also print events to stdout as JSON lines")
	rootCmd.Flags().StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath,
		"Record events to this SQLite database")
	rootCmd.Flags().IntVar(&cfg.QueueSize, "queue-size", cfg.QueueSize,
		"Events buffered before new ones are dropped")

	// Privacy flags
	rootCmd.Flags().BoolVarP(&cfg.Redact, "redact", "r", cfg.Redact,
		"Redact sensitive params and query values")
	rootCmd.Flags().Bool("no-redact", false, "Disable redaction")
	rootCmd.Flags().Bool("no-files", false, "Disable JSONL event logs")

	// Tracking flags
	rootCmd.Flags().DurationVar(&cfg.SubmitWindow, "submit-window", cfg.SubmitWindow,
		"Minimum gap between two submit events for the same form")
	rootCmd.Flags().DurationVar(&cfg.SuccessWindow, "success-window", cfg.SuccessWindow,
		"Minimum gap between two success events for the same form")
	rootCmd.Flags().StringVar(&cfg.TransitionMode, "transition", cfg.TransitionMode,
		"Success transition detection: diff or edge")
	rootCmd.Flags().DurationVar(&cfg.RescanInterval, "rescan-interval", cfg.RescanInterval,
		"How often tabs are rescanned for new forms (0 disables)")

	// GA4 flags
	rootCmd.Flags().StringVar(&cfg.MeasurementID, "measurement-id", cfg.MeasurementID,
		"GA4 measurement ID (or "+config.EnvMeasurementID+")")
	rootCmd.Flags().StringVar(&cfg.APISecret, "api-secret", cfg.APISecret,
		"GA4 Measurement Protocol API secret (or "+config.EnvAPISecret+")")
	rootCmd.Flags().BoolVar(&cfg.GADebug, "ga-debug", cfg.GADebug,
		"Send to the GA4 validation endpoint and log its findings")

	// Local server
	rootCmd.Flags().Bool("serve", false, "Serve the demo page, event API and live stream")
	rootCmd.Flags().StringVar(&cfg.ServeAddr, "addr", cfg.ServeAddr, "Address for --serve")

	rootCmd.Version = config.Version

	rootCmd.AddCommand(controlCmd)
	rootCmd.AddCommand(diagnoseCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(eventsCmd)
}

// setup builds the logger and the effective config for every command.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	log, err = newLogger(debug)
	if err != nil {
		return err
	}

	if configPath != "" {
		if err := loadConfigFile(cmd.Flags(), configPath); err != nil {
			return err
		}
	}
	if noRedact, _ := cmd.Flags().GetBool("no-redact"); noRedact {
		cfg.Redact = false
	}
	if noFiles, _ := cmd.Flags().GetBool("no-files"); noFiles {
		cfg.EnableFileSink = false
	}
	if err := cfg.ApplyEnv(envFile); err != nil {
		return err
	}
	return cfg.Validate()
}

// loadConfigFile replaces cfg with the file's values, then re-applies the
// flags set on the command line.
func loadConfigFile(flags *pflag.FlagSet, path string) error {
	fileCfg, err := config.LoadFromFile(path)
	if err != nil {
		return err
	}

	changed := map[string]string{}
	flags.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	*cfg = *fileCfg

	for name, value := range changed {
		if err := flags.Set(name, value); err != nil {
			return fmt.Errorf("re-apply --%s: %w", name, err)
		}
	}
	return nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Encoding = "console"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.DisableStacktrace = true
	if debug {
		zcfg = zap.NewDevelopmentConfig()
	}
	return zcfg.Build()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			log.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func runWatch(cmd *cobra.Command, args []string) error {
	defer log.Sync()

	p, err := newPipeline(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Warn("failed to close sinks", zap.Error(err))
		}
		sent, failed, dropped := p.dispatcher.Stats()
		log.Info("events delivered",
			zap.Int64("sent", sent),
			zap.Int64("failed", failed),
			zap.Int64("dropped", dropped))
	}()

	manager := cdp.NewManager(cfg, p.files, p.dispatcher, log)

	ctx, cancel := signalContext()
	defer cancel()

	log.Info("form_tail starting",
		zap.String("version", config.Version),
		zap.String("output", cfg.OutputDir),
		zap.String("port", cfg.ChromePort),
		zap.Bool("launch", cfg.AutoLaunch),
		zap.Bool("ga4", cfg.GAEnabled()),
		zap.String("transition", cfg.TransitionMode))

	if serve, _ := cmd.Flags().GetBool("serve"); serve {
		srv := server.New(server.Options{Store: p.store, Hub: p.hub, Logger: log})
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.ServeAddr); err != nil {
				log.Error("server stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- manager.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			manager.Stop()
			return err
		}
	case <-ctx.Done():
		// Give the manager time to observe the cancellation.
		time.Sleep(100 * time.Millisecond)
	}

	manager.Stop()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
