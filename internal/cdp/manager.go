package cdp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/ajsharma/form_tail/internal/config"
	"github.com/ajsharma/form_tail/internal/events"
	"github.com/ajsharma/form_tail/internal/logger"
	"github.com/ajsharma/form_tail/internal/monitor"
	"github.com/ajsharma/form_tail/internal/tracking"
)

// sessionTab is the log directory for lifecycle events not tied to a tab.
const sessionTab = "_session"

// chromeStartTimeout bounds how long an auto-launched Chrome may take to
// expose a page target.
const chromeStartTimeout = 30 * time.Second

// closeTimeout bounds closing the tabs opened for StartURL.
const closeTimeout = 5 * time.Second

// Manager discovers browser tabs and runs one PageMonitor per tab.
type Manager struct {
	config        *config.Config
	fileManager   *logger.FileManager
	emitter       tracking.Emitter
	logger        *zap.Logger
	tabRegistry   *logger.TabRegistry
	devtools      *DevTools
	chromeProcess *ChromeProcess
	monitors      map[string]*monitor.PageMonitor // targetID -> monitor
	opened        []target.ID                     // targets opened by StartURL
	mu            sync.RWMutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewManager creates a new CDP Manager. Analytics events from every tab go
// to emitter; lifecycle events are written to fm.
func NewManager(cfg *config.Config, fm *logger.FileManager, emitter tracking.Emitter, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		config:      cfg,
		fileManager: fm,
		emitter:     emitter,
		logger:      log.Named("cdp"),
		tabRegistry: logger.NewTabRegistry(),
		devtools:    NewDevTools(cfg.ChromePort),
		monitors:    make(map[string]*monitor.PageMonitor),
	}
}

// SessionID returns the process session ID shared by every tab.
func (m *Manager) SessionID() string {
	return m.tabRegistry.GetSessionID()
}

// Start connects to Chrome and monitors tabs until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	if m.config.AutoLaunch {
		var err error
		m.chromeProcess, err = LaunchChrome(m.config.ChromePort)
		if err != nil {
			return fmt.Errorf("failed to launch chrome: %w", err)
		}
		waitCtx, cancel := context.WithTimeout(ctx, chromeStartTimeout)
		err = m.devtools.Wait(waitCtx)
		cancel()
		if err != nil {
			_ = m.chromeProcess.Stop()
			return err
		}
		m.logger.Info("launched chrome",
			zap.Int("pid", m.chromeProcess.PID()),
			zap.String("port", m.config.ChromePort))
	}

	chromePID := 0
	if m.chromeProcess != nil {
		chromePID = m.chromeProcess.PID()
	}
	m.writeEvent(sessionTab, events.NewSessionStartEvent(m.SessionID(), chromePID, config.Version))

	// Initial discovery via /json happens once; after that, target events
	// drive everything.
	initialTabs, err := m.devtools.Pages(ctx)
	if err != nil {
		return fmt.Errorf("failed to discover initial tabs: %w", err)
	}
	m.logger.Info("discovered existing tabs", zap.Int("count", len(initialTabs)))

	browserInfo, err := m.devtools.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get browser info: %w", err)
	}

	allocatorCtx, allocatorCancel := chromedp.NewRemoteAllocator(ctx, browserInfo.WebSocketDebuggerURL)
	defer allocatorCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	defer browserCancel()

	m.mu.Lock()
	m.browserCtx, m.browserCancel = browserCtx, browserCancel
	m.mu.Unlock()

	if err := chromedp.Run(browserCtx, target.SetDiscoverTargets(true)); err != nil {
		return fmt.Errorf("failed to enable target discovery: %w", err)
	}

	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *target.EventTargetCreated:
			if ev.TargetInfo.Type == TargetTypePage && !ev.TargetInfo.Attached && trackable(ev.TargetInfo.URL) {
				m.handleNewTarget(ctx, ev.TargetInfo)
			}
		case *target.EventTargetDestroyed:
			m.handleTargetDestroyed(string(ev.TargetID))
		case *target.EventTargetInfoChanged:
			if ev.TargetInfo.Type == TargetTypePage {
				m.handleTargetInfoChanged(ev.TargetInfo)
			}
		}
	})

	for _, info := range initialTabs {
		m.handleNewTarget(ctx, info)
	}

	if m.config.StartURL != "" {
		id, err := m.devtools.Open(ctx, m.config.StartURL)
		if err != nil {
			m.logger.Warn("failed to open start url", zap.String("url", m.config.StartURL), zap.Error(err))
		} else {
			m.mu.Lock()
			m.opened = append(m.opened, id)
			m.mu.Unlock()
		}
	}

	m.logger.Info("monitoring started", zap.String("session", m.SessionID()))

	<-ctx.Done()
	return nil
}

// handleNewTarget starts monitoring a new tab.
func (m *Manager) handleNewTarget(ctx context.Context, info *target.Info) {
	targetID := string(info.TargetID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.monitors[targetID]; exists {
		return
	}

	tabID := m.tabRegistry.GetOrCreateTabID(targetID)
	mon := monitor.NewPageMonitor(ctx, monitor.Options{
		TargetID:  targetID,
		TabID:     tabID,
		SessionID: m.SessionID(),
		Title:     info.Title,
		URL:       info.URL,
	}, m.emitter, m.fileManager, m.config, m.logger)
	m.monitors[targetID] = mon

	browserCtx := m.browserCtx
	go func() {
		if err := mon.Start(browserCtx); err != nil {
			m.logger.Warn("tab monitor failed", zap.String("tab", tabID), zap.Error(err))
		}
	}()

	m.logger.Info("monitoring tab",
		zap.String("tab", tabID),
		zap.String("target", shortID(targetID)),
		zap.String("url", info.URL))
}

// handleTargetDestroyed stops the monitor of a closed tab.
func (m *Manager) handleTargetDestroyed(targetID string) {
	m.mu.Lock()
	mon, exists := m.monitors[targetID]
	if !exists {
		m.mu.Unlock()
		return
	}
	delete(m.monitors, targetID)
	m.mu.Unlock()

	mon.Stop()
	m.logger.Info("tab closed", zap.String("tab", mon.TabID()))
}

// handleTargetInfoChanged rotates a tab's log when it navigates to another site.
func (m *Manager) handleTargetInfoChanged(info *target.Info) {
	m.mu.RLock()
	mon, exists := m.monitors[string(info.TargetID)]
	m.mu.RUnlock()

	if !exists {
		return
	}

	newSite := logger.ExtractSite(info.URL)
	if mon.HandleSiteChange(newSite, info.URL) {
		m.logger.Info("tab changed site", zap.String("tab", mon.TabID()), zap.String("site", newSite))
	}
}

// Stop unloads every tracked page and shuts the manager down. It does not
// close the FileManager; the file sink owns it.
func (m *Manager) Stop() {
	m.logger.Info("shutting down")

	m.mu.Lock()
	if m.browserCancel != nil {
		m.browserCancel()
	}
	monitors := make([]*monitor.PageMonitor, 0, len(m.monitors))
	for _, mon := range m.monitors {
		monitors = append(monitors, mon)
	}
	m.monitors = make(map[string]*monitor.PageMonitor)
	opened := m.opened
	m.opened = nil
	m.mu.Unlock()

	for _, mon := range monitors {
		mon.Stop()
	}

	if m.chromeProcess != nil {
		if err := m.chromeProcess.Stop(); err != nil {
			m.logger.Warn("failed to stop chrome", zap.Error(err))
		}
		return
	}

	// Leave a user's browser the way we found it.
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	for _, id := range opened {
		if err := m.devtools.Close(ctx, id); err != nil {
			m.logger.Debug("failed to close start tab", zap.String("target", shortID(string(id))), zap.Error(err))
		}
	}
}

// GetActiveTabCount returns the number of actively monitored tabs.
func (m *Manager) GetActiveTabCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.monitors)
}

func (m *Manager) writeEvent(tabID string, ev *events.LogEvent) {
	if m.fileManager == nil {
		return
	}
	if err := m.fileManager.WriteEvent(tabID, ev); err != nil {
		m.logger.Warn("failed to write lifecycle event", zap.String("event", ev.EventType), zap.Error(err))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
