package cdp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/chromedp/cdproto/target"

	"github.com/ajsharma/form_tail/internal/config"
	"github.com/ajsharma/form_tail/internal/events"
	"github.com/ajsharma/form_tail/internal/logger"
	"github.com/ajsharma/form_tail/internal/monitor"
	"github.com/ajsharma/form_tail/internal/tracking"
)

func newTestManager(t *testing.T, port string) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.ChromePort = port
	cfg.OutputDir = dir
	fm := logger.NewFileManager(dir)
	t.Cleanup(func() { _ = fm.Close() })
	nop := tracking.EmitterFunc(func(*events.Event) {})
	return NewManager(cfg, fm, nop, nil), dir
}

// addMonitor registers a monitor without attaching it to a browser.
func addMonitor(t *testing.T, m *Manager, targetID, url string) *monitor.PageMonitor {
	t.Helper()
	mon := monitor.NewPageMonitor(context.Background(), monitor.Options{
		TargetID:  targetID,
		TabID:     m.tabRegistry.GetOrCreateTabID(targetID),
		SessionID: m.SessionID(),
		URL:       url,
	}, m.emitter, m.fileManager, m.config, nil)
	m.mu.Lock()
	m.monitors[targetID] = mon
	m.mu.Unlock()
	return mon
}

func TestNewManager(t *testing.T) {
	m, _ := newTestManager(t, "9222")

	if m.monitors == nil {
		t.Error("monitors map not initialized")
	}
	if m.tabRegistry == nil {
		t.Error("tabRegistry not initialized")
	}
	if m.SessionID() == "" {
		t.Error("expected a session ID")
	}
	if count := m.GetActiveTabCount(); count != 0 {
		t.Errorf("expected 0 active tabs, got %d", count)
	}
}

func TestManagerStopWithoutStart(t *testing.T) {
	m, _ := newTestManager(t, "9222")
	// Must not panic when nothing was started.
	m.Stop()
	m.Stop()
}

func TestManagerStartWritesSessionStart(t *testing.T) {
	// Nothing listens on this port, so discovery fails after the session
	// event has been written.
	m, dir := newTestManager(t, "59998")

	err := m.Start(context.Background())
	if err == nil {
		t.Fatal("expected discovery error")
	}
	if !strings.Contains(err.Error(), "discover") {
		t.Errorf("unexpected error: %v", err)
	}

	if err := m.fileManager.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(logger.GetLogPath(dir, "_meta", sessionTab))
	if err != nil {
		t.Fatalf("session log missing: %v", err)
	}
	if !strings.Contains(string(data), events.EventMetaSessionStart) {
		t.Errorf("session_start not written: %s", data)
	}
}

func TestManagerHandleTargetDestroyed(t *testing.T) {
	m, dir := newTestManager(t, "9222")
	mon := addMonitor(t, m, "TARGET-A", "https://example.com/contact")

	m.handleTargetDestroyed("UNKNOWN")
	if got := m.GetActiveTabCount(); got != 1 {
		t.Fatalf("unknown target removed a monitor, count = %d", got)
	}

	m.handleTargetDestroyed("TARGET-A")
	if got := m.GetActiveTabCount(); got != 0 {
		t.Errorf("expected 0 active tabs, got %d", got)
	}

	data, err := os.ReadFile(logger.GetLogPath(dir, "example.com", mon.TabID()))
	if err != nil {
		t.Fatalf("tab log missing: %v", err)
	}
	if !strings.Contains(string(data), events.EventMetaTabClosed) {
		t.Errorf("tab_closed not written: %s", data)
	}
}

func TestManagerHandleTargetInfoChanged(t *testing.T) {
	m, _ := newTestManager(t, "9222")
	mon := addMonitor(t, m, "TARGET-A", "https://example.com/")

	m.handleTargetInfoChanged(&target.Info{
		TargetID: "TARGET-A",
		Type:     TargetTypePage,
		URL:      "https://shop.example.org/checkout",
	})
	if got := mon.CurrentSite(); got != "shop.example.org" {
		t.Errorf("CurrentSite() = %q, want shop.example.org", got)
	}

	// Unknown targets are ignored.
	m.handleTargetInfoChanged(&target.Info{TargetID: "OTHER", URL: "https://x.test/"})
}

func TestManagerStopClosesOpenedTabs(t *testing.T) {
	var mu sync.Mutex
	var closed []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		closed = append(closed, filepath.Base(r.URL.Path))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	port := strings.TrimPrefix(server.URL, "http://127.0.0.1:")
	m, _ := newTestManager(t, port)
	addMonitor(t, m, "TARGET-A", "https://example.com/")
	m.opened = []target.ID{"START-1"}

	m.Stop()

	if got := m.GetActiveTabCount(); got != 0 {
		t.Errorf("expected monitors cleared, got %d", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(closed) != 1 || closed[0] != "START-1" {
		t.Errorf("closed = %v, want [START-1]", closed)
	}
}

func TestManagerConcurrentAccess(t *testing.T) {
	m, _ := newTestManager(t, "9222")
	addMonitor(t, m, "TARGET-A", "https://example.com/")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = m.GetActiveTabCount()
		}()
		go func() {
			defer wg.Done()
			m.handleTargetInfoChanged(&target.Info{TargetID: "TARGET-A", URL: "https://example.com/about"})
		}()
	}
	wg.Wait()
}

func TestShortID(t *testing.T) {
	if got := shortID("ABCDEFGHIJ"); got != "ABCDEFGH" {
		t.Errorf("shortID() = %q", got)
	}
	if got := shortID("ABC"); got != "ABC" {
		t.Errorf("shortID() = %q", got)
	}
}
