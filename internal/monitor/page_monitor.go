// Package monitor attaches form tracking to a single browser tab.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/ajsharma/form_tail/internal/config"
	"github.com/ajsharma/form_tail/internal/events"
	"github.com/ajsharma/form_tail/internal/logger"
	"github.com/ajsharma/form_tail/internal/probe"
	"github.com/ajsharma/form_tail/internal/tracking"
)

// PageMonitor injects the probe into one tab and feeds its reports, plus the
// tab's network traffic, into a tracking session.
type PageMonitor struct {
	targetID    string
	tabID       string
	sessionID   string
	currentSite string
	currentURL  string
	title       string
	startTime   time.Time

	session     *tracking.Session
	interceptor *tracking.Interceptor
	fileManager *logger.FileManager
	config      *config.Config
	logger      *zap.Logger

	targetCtx context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	stopOnce  sync.Once
	mu        sync.RWMutex
}

// Options carries the per-tab identity of a PageMonitor.
type Options struct {
	TargetID  string
	TabID     string
	SessionID string
	Title     string
	URL       string
}

// NewPageMonitor creates a monitor for one tab. Events produced by its
// trackers go to emitter.
func NewPageMonitor(
	parentCtx context.Context,
	opts Options,
	emitter tracking.Emitter,
	fm *logger.FileManager,
	cfg *config.Config,
	log *zap.Logger,
) *PageMonitor {
	ctx, cancel := context.WithCancel(parentCtx)
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("monitor").With(zap.String("tab", opts.TabID))

	// An invalid mode was rejected by Config.Validate; fall back to the default.
	mode, _ := cfg.Mode()
	session := tracking.NewSession(opts.SessionID, emitter, tracking.Options{
		SubmitWindow:  cfg.SubmitWindow,
		SuccessWindow: cfg.SuccessWindow,
		Mode:          mode,
		Logger:        log,
	})

	return &PageMonitor{
		targetID:    opts.TargetID,
		tabID:       opts.TabID,
		sessionID:   opts.SessionID,
		currentSite: logger.ExtractSite(opts.URL),
		currentURL:  opts.URL,
		title:       opts.Title,
		startTime:   time.Now(),
		session:     session,
		fileManager: fm,
		config:      cfg,
		logger:      log,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start attaches to the tab and blocks until the monitor is stopped or the
// tab goes away.
func (pm *PageMonitor) Start(browserCtx context.Context) error {
	targetCtx, cancel := chromedp.NewContext(browserCtx,
		chromedp.WithTargetID(target.ID(pm.targetID)),
	)
	defer cancel()

	pm.mu.Lock()
	pm.targetCtx = targetCtx
	pm.mu.Unlock()

	// Listen before enabling domains so no early binding call is lost.
	// NOTE: Target.targetDestroyed is owned by the Manager, which signals
	// shutdown through context cancellation.
	chromedp.ListenTarget(targetCtx, func(ev interface{}) {
		pm.handleEvent(ev)
	})

	if !pm.session.Begin() {
		return nil
	}
	if err := chromedp.Run(targetCtx, pm.setup()); err != nil {
		return fmt.Errorf("attach to tab %s: %w", pm.tabID, err)
	}
	pm.installInterceptor()

	pm.mu.RLock()
	pm.writeEvent(events.NewTabCreatedEvent(
		pm.currentSite,
		pm.tabID,
		pm.sessionID,
		pm.targetID,
		pm.title,
		pm.currentURL,
	))
	pm.mu.RUnlock()

	pm.rescanLoop(targetCtx)
	return nil
}

// setup enables the CDP domains, installs the binding and injects the probe
// into future documents and the current one.
func (pm *PageMonitor) setup() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := runtime.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable runtime: %w", err)
		}
		if err := page.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable page: %w", err)
		}
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network: %w", err)
		}
		if err := runtime.AddBinding(probe.BindingName).Do(ctx); err != nil {
			return fmt.Errorf("add binding: %w", err)
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(probe.Script()).Do(ctx); err != nil {
			return fmt.Errorf("inject probe: %w", err)
		}
		// The tab may already hold a loaded document.
		if _, exc, err := runtime.Evaluate(probe.Script()).Do(ctx); err != nil {
			return fmt.Errorf("evaluate probe: %w", err)
		} else if exc != nil {
			pm.logger.Warn("probe threw on current document", zap.String("error", exc.Text))
		}
		return nil
	})
}

// installInterceptor wires the session's interceptor to the tab's network tap.
func (pm *PageMonitor) installInterceptor() {
	ic, installed := pm.session.InstallInterceptor(pm.config.EndpointPatterns...)
	if !installed {
		return
	}
	pm.mu.Lock()
	pm.interceptor = ic
	pm.mu.Unlock()
}

// rescanLoop periodically asks the probe to register forms added after load.
func (pm *PageMonitor) rescanLoop(targetCtx context.Context) {
	interval := pm.config.RescanInterval
	if interval <= 0 {
		<-pm.done(targetCtx)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	done := pm.done(targetCtx)
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			var added int
			if err := chromedp.Run(targetCtx, chromedp.Evaluate(probe.RescanExpression, &added)); err != nil {
				pm.logger.Debug("rescan failed", zap.Error(err))
				continue
			}
			if added > 0 {
				pm.logger.Debug("rescan found new forms", zap.Int("count", added))
			}
		}
	}
}

// done closes when either the monitor or the target context ends.
func (pm *PageMonitor) done(targetCtx context.Context) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		select {
		case <-pm.ctx.Done():
		case <-targetCtx.Done():
		}
		close(ch)
	}()
	return ch
}

// handleEvent processes CDP events for the tab.
func (pm *PageMonitor) handleEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *runtime.EventBindingCalled:
		if ev.Name != probe.BindingName {
			return
		}
		msg, err := probe.Decode(ev.Payload)
		if err != nil {
			pm.logger.Warn("ignoring probe message", zap.Error(err))
			return
		}
		pm.handleProbeMessage(msg)

	case *network.EventRequestWillBeSent:
		// Redirect hops repeat the original request. Native form posts
		// arrive as Document requests and are reported by the probe.
		if ev.RedirectResponse != nil || ev.Request == nil || !backgroundRequest(ev.Type) {
			return
		}
		pm.mu.RLock()
		ic := pm.interceptor
		pm.mu.RUnlock()
		if ic != nil && ic.Observe(ev.Request.Method, ev.Request.URL) {
			pm.logger.Debug("background form submission", zap.String("url", ev.Request.URL))
		}

	case *runtime.EventExceptionThrown:
		if d := ev.ExceptionDetails; d != nil {
			pm.logger.Debug("page exception",
				zap.String("text", exceptionText(d)),
				zap.String("url", d.URL),
				zap.Int64("line", d.LineNumber))
		}

	case *runtime.EventConsoleAPICalled:
		if ev.Type == runtime.APITypeError || ev.Type == runtime.APITypeWarning {
			args := make([]interface{}, 0, len(ev.Args))
			for _, arg := range ev.Args {
				args = append(args, remoteValue(arg))
			}
			pm.logger.Debug("page console", zap.String("level", ev.Type.String()), zap.Any("args", args))
		}
	}
}

// handleProbeMessage routes one decoded probe report to the tracking session.
func (pm *PageMonitor) handleProbeMessage(msg probe.Message) {
	if msg.Type == probe.MessagePage {
		pm.attach(msg)
		return
	}

	t := pm.session.Current()
	if t == nil {
		pm.logger.Debug("probe message before page attach", zap.String("type", string(msg.Type)))
		return
	}

	switch msg.Type {
	case probe.MessageRegister:
		if added := t.RegisterNewForms(msg.Forms); len(added) > 0 {
			pm.logger.Info("tracking forms", zap.Strings("forms", added))
		}
	case probe.MessageInteraction:
		switch msg.Kind {
		case tracking.InteractionSubmit:
			t.HandleSubmit(msg.Form)
		case tracking.InteractionSubmitClick:
			t.HandleSubmitClick(msg.Form, msg.ButtonText, msg.Valid)
		default:
			t.HandleInteraction(msg.Form, msg.Kind)
		}
	case probe.MessageMutations:
		t.HandleMutations(msg.Form, msg.Records)
	case probe.MessageScroll:
		t.HandleScroll(msg.Percent)
	case probe.MessageUnload:
		t.Unload()
	}
}

// attach starts tracking a freshly loaded document.
func (pm *PageMonitor) attach(msg probe.Message) {
	site := logger.ExtractSite(msg.URL)
	pm.HandleSiteChange(site, msg.URL)

	pm.mu.Lock()
	pm.title = msg.Title
	pm.mu.Unlock()

	t := pm.session.Attach(tracking.Page{
		SessionID: pm.sessionID,
		Site:      site,
		TabID:     pm.tabID,
		URL:       msg.URL,
		Path:      msg.Path,
		Title:     msg.Title,
	})
	t.PageView()

	pm.writeEvent(events.NewPageAttachedEvent(site, pm.tabID, msg.URL, msg.Title))
	pm.logger.Debug("page attached", zap.String("url", msg.URL))
}

// writeEvent writes a lifecycle event to the tab's log.
func (pm *PageMonitor) writeEvent(ev *events.LogEvent) {
	if pm.fileManager == nil {
		return
	}
	// Errors are non-fatal; tracking continues even if writes fail.
	if err := pm.fileManager.WriteEvent(pm.tabID, ev); err != nil {
		pm.logger.Debug("write event failed", zap.String("event", ev.EventType), zap.Error(err))
	}
}

// HandleSiteChange records navigation to a different site, closing the old
// site's log. Returns true if the site actually changed.
func (pm *PageMonitor) HandleSiteChange(newSite, newURL string) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.currentURL = newURL
	if newSite == pm.currentSite {
		return false
	}

	oldSite := pm.currentSite
	pm.currentSite = newSite
	if pm.fileManager != nil {
		if err := pm.fileManager.CloseTab(pm.tabID, oldSite); err != nil {
			pm.logger.Debug("close log failed", zap.String("site", oldSite), zap.Error(err))
		}
	}
	return true
}

// Stop unloads the current page and stops the monitor. Safe to call twice.
func (pm *PageMonitor) Stop() {
	pm.stopOnce.Do(func() {
		pm.session.Close()

		pm.mu.RLock()
		site := pm.currentSite
		duration := time.Since(pm.startTime).Seconds()
		pm.mu.RUnlock()

		pm.writeEvent(events.NewTabClosedEvent(
			site,
			pm.tabID,
			pm.sessionID,
			pm.targetID,
			duration,
		))

		if pm.fileManager != nil {
			// Errors are non-fatal during shutdown.
			_ = pm.fileManager.CloseAllForTab(pm.tabID)
		}
		pm.cancel()
	})
}

// TabID returns the tab ID.
func (pm *PageMonitor) TabID() string {
	return pm.tabID
}

// CurrentSite returns the current site.
func (pm *PageMonitor) CurrentSite() string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.currentSite
}

// CurrentURL returns the current URL.
func (pm *PageMonitor) CurrentURL() string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.currentURL
}

// Session returns the tab's tracking session.
func (pm *PageMonitor) Session() *tracking.Session {
	return pm.session
}

// backgroundRequest reports whether a request was issued by page script
// rather than by navigation.
func backgroundRequest(t network.ResourceType) bool {
	return t == network.ResourceTypeFetch || t == network.ResourceTypeXHR
}

func exceptionText(d *runtime.ExceptionDetails) string {
	if d.Exception != nil && d.Exception.Description != "" {
		return d.Exception.Description
	}
	return d.Text
}

// remoteValue extracts a printable value from a CDP RemoteObject.
func remoteValue(obj *runtime.RemoteObject) interface{} {
	if obj == nil {
		return nil
	}
	if obj.UnserializableValue != "" {
		return string(obj.UnserializableValue)
	}
	if obj.Value != nil {
		var v interface{}
		if err := json.Unmarshal(obj.Value, &v); err == nil {
			return v
		}
		return string(obj.Value)
	}
	if obj.Type == runtime.TypeUndefined {
		return "undefined"
	}
	if obj.Subtype == runtime.SubtypeNull {
		return nil
	}
	if obj.Description != "" {
		return obj.Description
	}
	return string(obj.Type)
}
