package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ajsharma/form_tail/internal/events"
)

const (
	// DefaultBufferSize is the default buffer size for log writers (8 KB).
	DefaultBufferSize = 8 * 1024

	// DefaultFlushInterval is the default interval between automatic flushes.
	DefaultFlushInterval = 100 * time.Millisecond
)

// Event type prefixes that are flushed as soon as they are written.
const (
	metaPrefix     = "meta."
	formPrefix     = events.AnalyticsPrefix + "form_"
	eventsFileName = "events.jsonl"
)

// jsonlWriter manages a single JSONL file for one (tab, site) pair.
type jsonlWriter struct {
	file       *os.File
	writer     *bufio.Writer
	flushTimer *time.Timer
	mu         sync.Mutex
	site       string
	tabID      string
}

// FileManager writes events to one JSONL file per tab and site.
type FileManager struct {
	baseDir       string
	files         map[string]*jsonlWriter // key: tabID + ":" + site
	mu            sync.RWMutex
	flushInterval time.Duration
	bufferSize    int
}

// NewFileManager creates a new FileManager with the specified base directory.
func NewFileManager(baseDir string) *FileManager {
	return &FileManager{
		baseDir:       baseDir,
		files:         make(map[string]*jsonlWriter),
		flushInterval: DefaultFlushInterval,
		bufferSize:    DefaultBufferSize,
	}
}

// SetFlushInterval sets the flush interval for automatic flushing.
func (fm *FileManager) SetFlushInterval(interval time.Duration) {
	fm.flushInterval = interval
}

// SetBufferSize sets the buffer size for new writers.
func (fm *FileManager) SetBufferSize(size int) {
	fm.bufferSize = size
}

// fileKey returns the key used to identify a file in the files map.
func fileKey(tabID, site string) string {
	return tabID + ":" + site
}

// getWriter returns the writer for the given tab and site, creating it if necessary.
func (fm *FileManager) getWriter(tabID, site string) (*jsonlWriter, error) {
	key := fileKey(tabID, site)

	fm.mu.RLock()
	if w, exists := fm.files[key]; exists {
		fm.mu.RUnlock()
		return w, nil
	}
	fm.mu.RUnlock()

	fm.mu.Lock()
	defer fm.mu.Unlock()

	// Double-check after acquiring write lock
	if w, exists := fm.files[key]; exists {
		return w, nil
	}

	path := GetLogPath(fm.baseDir, site, tabID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	w := &jsonlWriter{
		file:   f,
		writer: bufio.NewWriterSize(f, fm.bufferSize),
		site:   site,
		tabID:  tabID,
	}
	fm.files[key] = w
	return w, nil
}

// WriteEvent writes a log event to the appropriate file.
func (fm *FileManager) WriteEvent(tabID string, event *events.LogEvent) error {
	w, err := fm.getWriter(tabID, event.Site)
	if err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.writer.Write(append(data, '\n')); err != nil {
		return err
	}
	return fm.handleFlush(w, event.EventType)
}

// handleFlush determines and executes the appropriate flush strategy.
// Meta events are synced to disk, form events are flushed to the OS, and
// everything else waits for the flush timer or a nearly full buffer.
func (fm *FileManager) handleFlush(w *jsonlWriter, eventType string) error {
	bufferFull := w.writer.Buffered() > w.writer.Size()*3/4

	switch {
	case strings.HasPrefix(eventType, metaPrefix):
		if err := w.writer.Flush(); err != nil {
			return err
		}
		if err := w.file.Sync(); err != nil {
			return err
		}
		w.cancelFlushTimer()
	case strings.HasPrefix(eventType, formPrefix), bufferFull:
		if err := w.writer.Flush(); err != nil {
			return err
		}
		w.cancelFlushTimer()
	default:
		w.scheduleFlush(fm.flushInterval)
	}
	return nil
}

// scheduleFlush schedules a flush after the given interval.
func (w *jsonlWriter) scheduleFlush(interval time.Duration) {
	if w.flushTimer != nil {
		return
	}
	w.flushTimer = time.AfterFunc(interval, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		_ = w.writer.Flush()
		w.flushTimer = nil
	})
}

// cancelFlushTimer cancels any pending flush timer.
func (w *jsonlWriter) cancelFlushTimer() {
	if w.flushTimer != nil {
		w.flushTimer.Stop()
		w.flushTimer = nil
	}
}

// close flushes, syncs and closes the file, returning the last error seen.
func (w *jsonlWriter) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.cancelFlushTimer()

	var lastErr error
	if err := w.writer.Flush(); err != nil {
		lastErr = err
	}
	if err := w.file.Sync(); err != nil {
		lastErr = err
	}
	if err := w.file.Close(); err != nil {
		lastErr = err
	}
	return lastErr
}

// detach removes every writer matching keep from the map and returns them.
func (fm *FileManager) detach(match func(*jsonlWriter) bool) []*jsonlWriter {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	var out []*jsonlWriter
	for key, w := range fm.files {
		if match(w) {
			out = append(out, w)
			delete(fm.files, key)
		}
	}
	return out
}

func closeAll(writers []*jsonlWriter) error {
	var lastErr error
	for _, w := range writers {
		if err := w.close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// CloseTab closes the log file for a specific tab and site.
func (fm *FileManager) CloseTab(tabID, site string) error {
	return closeAll(fm.detach(func(w *jsonlWriter) bool {
		return w.tabID == tabID && w.site == site
	}))
}

// CloseAllForTab closes all log files for a specific tab (all sites).
func (fm *FileManager) CloseAllForTab(tabID string) error {
	return closeAll(fm.detach(func(w *jsonlWriter) bool {
		return w.tabID == tabID
	}))
}

// Close closes all open log files.
func (fm *FileManager) Close() error {
	return closeAll(fm.detach(func(*jsonlWriter) bool { return true }))
}

// GetOpenFiles returns the number of currently open log files.
func (fm *FileManager) GetOpenFiles() int {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	return len(fm.files)
}
