package main

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ajsharma/form_tail/internal/config"
	"github.com/ajsharma/form_tail/internal/logger"
	"github.com/ajsharma/form_tail/internal/redact"
	"github.com/ajsharma/form_tail/internal/sink"
	"github.com/ajsharma/form_tail/internal/store"
)

// pipeline is every destination an analytics event can reach, behind one
// dispatcher.
type pipeline struct {
	files      *logger.FileManager
	store      *store.Store
	hub        *sink.Hub
	dispatcher *sink.Dispatcher
	ownsFiles  bool
}

func newPipeline(cfg *config.Config, log *zap.Logger) (*pipeline, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	// Lifecycle events always go to the FileManager, even when analytics
	// events do not.
	fm := logger.NewFileManager(cfg.OutputDir)
	fm.SetFlushInterval(cfg.FlushInterval)
	fm.SetBufferSize(cfg.BufferSize)

	p := &pipeline{files: fm, hub: sink.NewHub(log)}
	multi := sink.NewMulti(p.hub)

	if cfg.EnableFileSink {
		multi.Add(sink.NewFile(fm))
	} else {
		p.ownsFiles = true
	}
	if cfg.EnableStdoutSink {
		multi.Add(sink.NewWriter(os.Stdout))
	}
	if cfg.DatabasePath != "" {
		st, err := store.Open(cfg.DatabasePath)
		if err != nil {
			_ = multi.Close()
			return nil, err
		}
		p.store = st
		multi.Add(sink.NewStore(st))
	}
	if cfg.GAEnabled() {
		ga, err := sink.NewGA4(sink.GA4Config{
			MeasurementID: cfg.MeasurementID,
			APISecret:     cfg.APISecret,
			Debug:         cfg.GADebug,
		}, log)
		if err != nil {
			_ = multi.Close()
			return nil, err
		}
		multi.Add(ga)
		log.Info("forwarding to GA4",
			zap.String("measurement_id", cfg.MeasurementID),
			zap.String("client_id", ga.ClientID()))
	}

	p.dispatcher = sink.NewDispatcher(multi, redact.New(cfg.Redact), cfg.QueueSize, log)
	return p, nil
}

// Close drains queued events and closes every sink.
func (p *pipeline) Close() error {
	err := p.dispatcher.Close()
	if p.ownsFiles {
		err = errors.Join(err, p.files.Close())
	}
	return err
}
