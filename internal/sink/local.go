package sink

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/ajsharma/form_tail/internal/events"
	"github.com/ajsharma/form_tail/internal/logger"
	"github.com/ajsharma/form_tail/internal/store"
)

// unattachedTab is the log directory for events that carry no tab.
const unattachedTab = "_session"

// File appends events to per-site, per-tab JSONL logs.
type File struct {
	fm *logger.FileManager
}

// NewFile wraps a FileManager. The sink owns it and closes it on Close.
func NewFile(fm *logger.FileManager) *File {
	return &File{fm: fm}
}

// Send writes ev as one JSONL line.
func (f *File) Send(_ context.Context, ev *events.Event) error {
	le := ev.LogEvent()
	if le.Site == "" {
		le.Site = logger.UnknownSite
	}
	tabID := ev.TabID
	if tabID == "" {
		tabID = unattachedTab
		le.TabID = tabID
	}
	return f.fm.WriteEvent(tabID, le)
}

// Close flushes and closes every open log.
func (f *File) Close() error {
	return f.fm.Close()
}

// Writer prints each event as a JSON line, typically to stdout.
type Writer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriter creates a sink writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// Send encodes ev.
func (w *Writer) Send(_ context.Context, ev *events.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(ev)
}

// Close is a no-op.
func (w *Writer) Close() error { return nil }

// Store records events in a SQLite store.
type Store struct {
	st *store.Store
}

// NewStore wraps st. The sink owns it and closes it on Close.
func NewStore(st *store.Store) *Store {
	return &Store{st: st}
}

// Send inserts ev.
func (s *Store) Send(ctx context.Context, ev *events.Event) error {
	_, err := s.st.Insert(ctx, ev)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.st.Close()
}
