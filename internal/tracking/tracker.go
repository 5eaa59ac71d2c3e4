package tracking

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajsharma/form_tail/internal/events"
)

// Emitter accepts analytics events. Delivery is best effort; the tracker
// never looks at the outcome.
type Emitter interface {
	Emit(ev *events.Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ev *events.Event)

// Emit calls f(ev).
func (f EmitterFunc) Emit(ev *events.Event) { f(ev) }

// Page describes the document a Tracker is attached to.
type Page struct {
	SessionID string
	Site      string
	TabID     string
	URL       string
	Path      string
	Title     string
}

// Options configures a Tracker.
type Options struct {
	SubmitWindow  time.Duration
	SuccessWindow time.Duration
	Mode          TransitionMode
	Now           func() time.Time
	Logger        *zap.Logger
}

func (o *Options) defaults() {
	if o.SubmitWindow <= 0 {
		o.SubmitWindow = DefaultSubmitWindow
	}
	if o.SuccessWindow <= 0 {
		o.SuccessWindow = DefaultSuccessWindow
	}
	if o.Mode == "" {
		o.Mode = TransitionDiff
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// InteractionKind is a user action reported by the probe.
type InteractionKind string

const (
	InteractionClick       InteractionKind = "click"
	InteractionFocus       InteractionKind = "focusin"
	InteractionSubmit      InteractionKind = "submit"
	InteractionSubmitClick InteractionKind = "submit_click"
)

// Tracker holds the tracking state of one loaded document: its forms, the
// dedup windows and engagement counters. All methods are safe for
// concurrent use; state changes are serialised.
type Tracker struct {
	mu       sync.Mutex
	opts     Options
	emitter  Emitter
	logger   *zap.Logger
	page     Page
	registry *Registry
	dedup    *Deduplicator
	scroll   ScrollDepth
	started  time.Time
	unloaded bool
}

// NewTracker creates a Tracker for page.
func NewTracker(emitter Emitter, page Page, opts Options) *Tracker {
	opts.defaults()
	return &Tracker{
		opts:     opts,
		emitter:  emitter,
		logger:   opts.Logger.Named("tracker").With(zap.String("page", page.URL)),
		page:     page,
		registry: NewRegistry(),
		dedup:    NewDeduplicator(opts.Now),
		started:  opts.Now(),
	}
}

// Page returns the document the tracker is attached to.
func (t *Tracker) Page() Page {
	return t.page
}

// RegisterNewForms registers every snapshot whose identity is not yet known
// and returns the keys that were added. Calling it again with the same forms
// is a no-op, so it can run on a schedule.
func (t *Tracker) RegisterNewForms(snaps []FormSnapshot) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var added []string
	now := t.opts.Now()
	for _, snap := range snaps {
		rec, ok := t.registry.Register(snap, now)
		if !ok {
			continue
		}
		added = append(added, rec.Key)
		if rec.HasPreexistingSuccess() {
			t.logger.Debug("form has visible success state on load; requiring a real submit",
				zap.String("form", rec.Key))
		} else {
			t.logger.Debug("form registered", zap.String("form", rec.Key), zap.Int("index", rec.Index))
		}
	}
	return added
}

// Form returns a copy of the record for key.
func (t *Tracker) Form(key string) (FormRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.registry.Get(key)
	if !ok {
		return FormRecord{}, false
	}
	return *rec, true
}

// FormKeys returns the registered identities in discovery order.
func (t *Tracker) FormKeys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.registry.Keys()
}

// HandleInteraction applies a click or focus to the form's state.
func (t *Tracker) HandleInteraction(formKey string, kind InteractionKind) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.lookup(formKey)
	if !ok {
		return
	}
	switch kind {
	case InteractionClick, InteractionFocus:
		if rec.markInteracted() {
			t.logger.Debug("user interacted with form", zap.String("form", formKey), zap.String("via", string(kind)))
		}
	default:
		t.logger.Debug("ignoring interaction kind", zap.String("kind", string(kind)))
	}
}

// HandleSubmit records a native submit and emits form_submit unless one was
// emitted for the form within the submit window.
func (t *Tracker) HandleSubmit(formKey string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.lookup(formKey)
	if !ok {
		return false
	}
	rec.markSubmitted()

	if !t.dedup.ShouldEmit(DedupKey(formKey, KindSubmit), t.opts.SubmitWindow) {
		t.logger.Debug("duplicate form submit event, skipping", zap.String("form", formKey))
		return false
	}
	t.emit(events.FormSubmit(formKey, rec.Action, t.page.Path))
	return true
}

// HandleSubmitClick reports a click on a submit button. valid is the
// result of the form's validity check; nil means the page could not check,
// which counts as valid.
func (t *Tracker) HandleSubmitClick(formKey, buttonText string, valid *bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.lookup(formKey); !ok {
		return false
	}
	if valid != nil && !*valid {
		t.logger.Debug("form validation failed, not tracking attempt", zap.String("form", formKey))
		return false
	}
	t.emit(events.FormSubmitAttempt(formKey, buttonText, t.page.Path))
	return true
}

// HandleMutations processes one observer batch for a form and returns the
// number of success events emitted (0 or 1, given the dedup window).
func (t *Tracker) HandleMutations(formKey string, batch []MutationRecord) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.lookup(formKey)
	if !ok {
		return 0
	}

	emitted := 0
	for _, m := range batch {
		if !rec.successAllowed() {
			t.logger.Debug("blocking success detection",
				zap.String("form", formKey),
				zap.Bool("preexisting_success", rec.HasPreexistingSuccess()),
				zap.Stringer("state", rec.State()))
			continue
		}

		sig := Classify(m, t.opts.Mode)
		if !sig.IsSuccess() {
			continue
		}

		if !t.dedup.ShouldEmit(DedupKey(formKey, KindSuccess), t.opts.SuccessWindow) {
			t.logger.Debug("duplicate form success event, skipping", zap.String("form", formKey))
			continue
		}

		t.logger.Info("form success detected",
			zap.String("form", formKey),
			zap.String("attribute", sig.Attribute),
			zap.Strings("classes", sig.Target.Classes),
			zap.Bool("preexisting_success", rec.HasPreexistingSuccess()),
			zap.Bool("submitted", rec.WasSubmitted()))
		t.emit(events.FormSubmitSuccess(formKey, t.page.Path))
		emitted++
	}
	return emitted
}

// HandleAjax emits form_submit_ajax for a background form submission.
func (t *Tracker) HandleAjax(destination string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emit(events.FormSubmitAjax(destination, t.page.Path))
}

// PageView emits page_view for the attached document.
func (t *Tracker) PageView() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emit(events.PageView(t.page.Title, t.page.URL, t.page.Path))
}

// HandleScroll emits a scroll event when percent reaches a new milestone.
func (t *Tracker) HandleScroll(percent int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	milestone := t.scroll.Observe(percent)
	if milestone == 0 {
		return false
	}
	t.emit(events.Scroll(milestone))
	return true
}

// Unload emits timing_complete with the whole seconds spent on the page.
// Only the first call emits.
func (t *Tracker) Unload() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.unloaded {
		return
	}
	t.unloaded = true
	seconds := int(math.Round(t.opts.Now().Sub(t.started).Seconds()))
	t.emit(events.TimingComplete(seconds))
}

func (t *Tracker) lookup(formKey string) (*FormRecord, bool) {
	rec, ok := t.registry.Get(formKey)
	if !ok {
		t.logger.Debug("event for unregistered form", zap.String("form", formKey))
	}
	return rec, ok
}

// emit stamps ev with the page context and hands it to the emitter.
// Callers hold t.mu.
func (t *Tracker) emit(ev *events.Event) {
	if t.emitter == nil {
		return
	}
	ev.Timestamp = t.opts.Now().UTC()
	ev.SessionID = t.page.SessionID
	ev.Site = t.page.Site
	ev.TabID = t.page.TabID
	t.emitter.Emit(ev)
}
