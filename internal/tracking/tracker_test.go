package tracking

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajsharma/form_tail/internal/events"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recorder) Emit(ev *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) named(name string) []*events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*events.Event
	for _, ev := range r.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func newTestTracker(t *testing.T) (*Tracker, *recorder, *fakeClock) {
	t.Helper()
	rec := &recorder{}
	clock := newFakeClock()
	tr := NewTracker(rec, Page{
		SessionID: "sess-1",
		Site:      "example.com",
		TabID:     "tab-1",
		URL:       "https://example.com/contact",
		Path:      "/contact",
		Title:     "Contact",
	}, Options{Now: clock.Now})
	return tr, rec, clock
}

func hiddenIndicator() IndicatorState {
	return IndicatorState{Scope: ScopeWrapper, Classes: []string{"w-form-done"}, Display: "none", Visibility: "visible", Opacity: "1"}
}

func visibleIndicator() IndicatorState {
	return IndicatorState{Scope: ScopeWrapper, Classes: []string{"w-form-done"}, Display: "block", Visibility: "visible", Opacity: "1"}
}

func styleBlock(old string) MutationRecord {
	return MutationRecord{
		Type:          MutationAttributes,
		AttributeName: "style",
		OldValue:      &old,
		Target:        TargetState{Tag: "div", Classes: []string{"w-form-done"}, InlineDisplay: "block"},
	}
}

func classChange(old string, classes ...string) MutationRecord {
	return MutationRecord{
		Type:          MutationAttributes,
		AttributeName: "class",
		OldValue:      &old,
		Target:        TargetState{Tag: "div", Classes: classes},
	}
}

func TestPreexistingSuccessFormIgnoresUnrelatedMutation(t *testing.T) {
	tr, rec, _ := newTestTracker(t)
	tr.RegisterNewForms([]FormSnapshot{{ID: "form-a", Indicators: []IndicatorState{visibleIndicator()}}})

	form, ok := tr.Form("form-a")
	require.True(t, ok)
	assert.True(t, form.HasPreexistingSuccess())

	// A script adds a "visible" class to the already-visible banner; the
	// user never touched the form.
	n := tr.HandleMutations("form-a", []MutationRecord{classChange("w-form-done", "w-form-done", "visible")})
	assert.Equal(t, 0, n)

	// Interaction alone is not enough for a form that looked successful on load.
	tr.HandleInteraction("form-a", InteractionClick)
	n = tr.HandleMutations("form-a", []MutationRecord{styleBlock("display: none")})
	assert.Equal(t, 0, n)
	assert.Empty(t, rec.named(events.EventFormSubmitSuccess))
}

func TestPreexistingSuccessFormReportsAfterSubmit(t *testing.T) {
	tr, rec, _ := newTestTracker(t)
	tr.RegisterNewForms([]FormSnapshot{{ID: "form-a", Indicators: []IndicatorState{visibleIndicator()}}})

	tr.HandleSubmit("form-a")
	n := tr.HandleMutations("form-a", []MutationRecord{styleBlock("display: none")})

	assert.Equal(t, 1, n)
	assert.Len(t, rec.named(events.EventFormSubmitSuccess), 1)
}

func TestInteractedFormReportsOneSuccess(t *testing.T) {
	tr, rec, _ := newTestTracker(t)
	tr.RegisterNewForms([]FormSnapshot{{ID: "form-b", Indicators: []IndicatorState{hiddenIndicator()}}})

	// Before any interaction the reveal is ignored.
	assert.Equal(t, 0, tr.HandleMutations("form-b", []MutationRecord{styleBlock("display: none")}))

	tr.HandleInteraction("form-b", InteractionClick)
	n := tr.HandleMutations("form-b", []MutationRecord{styleBlock("display: none")})
	require.Equal(t, 1, n)

	success := rec.named(events.EventFormSubmitSuccess)
	require.Len(t, success, 1)
	assert.Equal(t, "form-b", success[0].Params[events.ParamFormID])
	assert.Equal(t, events.DetectionMethodMutation, success[0].Params[events.ParamDetectionMethod])
	assert.Equal(t, "/contact", success[0].Params[events.ParamPagePath])
	assert.Equal(t, "sess-1", success[0].SessionID)
	assert.Equal(t, "tab-1", success[0].TabID)
}

func TestSuccessBatchWithClassAndStyleRecordsEmitsOnce(t *testing.T) {
	tr, rec, clock := newTestTracker(t)
	tr.RegisterNewForms([]FormSnapshot{{ID: "form-b"}})
	tr.HandleInteraction("form-b", InteractionFocus)

	batch := []MutationRecord{
		classChange("hidden-block", "w-form-done"),
		styleBlock(""),
	}
	assert.Equal(t, 1, tr.HandleMutations("form-b", batch))

	clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, 0, tr.HandleMutations("form-b", []MutationRecord{styleBlock("display: none")}))

	clock.Advance(600 * time.Millisecond)
	assert.Equal(t, 1, tr.HandleMutations("form-b", []MutationRecord{styleBlock("display: none")}))
	assert.Len(t, rec.named(events.EventFormSubmitSuccess), 2)
}

func TestDoubleSubmitWithinWindowEmitsOnce(t *testing.T) {
	tr, rec, clock := newTestTracker(t)
	tr.RegisterNewForms([]FormSnapshot{{ID: "signup", Action: "https://example.com/signup"}})

	assert.True(t, tr.HandleSubmit("signup"))
	clock.Advance(500 * time.Millisecond)
	assert.False(t, tr.HandleSubmit("signup"))

	submits := rec.named(events.EventFormSubmit)
	require.Len(t, submits, 1)
	assert.Equal(t, "https://example.com/signup", submits[0].Params[events.ParamFormDestination])
	assert.Equal(t, events.CategoryEngagement, submits[0].Params[events.ParamEventCategory])

	clock.Advance(time.Second)
	assert.True(t, tr.HandleSubmit("signup"))
	assert.Len(t, rec.named(events.EventFormSubmit), 2)
}

func TestSubmitWindowsAreIndependentPerForm(t *testing.T) {
	tr, rec, _ := newTestTracker(t)
	tr.RegisterNewForms([]FormSnapshot{{ID: "a"}, {ID: "b"}})

	assert.True(t, tr.HandleSubmit("a"))
	assert.True(t, tr.HandleSubmit("b"))
	assert.Len(t, rec.named(events.EventFormSubmit), 2)
}

func TestSubmitAndSuccessWindowsAreIndependent(t *testing.T) {
	tr, rec, _ := newTestTracker(t)
	tr.RegisterNewForms([]FormSnapshot{{ID: "a"}})
	tr.HandleInteraction("a", InteractionClick)

	assert.True(t, tr.HandleSubmit("a"))
	assert.Equal(t, 1, tr.HandleMutations("a", []MutationRecord{styleBlock("display:none")}))
	assert.Len(t, rec.named(events.EventFormSubmit), 1)
	assert.Len(t, rec.named(events.EventFormSubmitSuccess), 1)
}

func TestRegisterNewFormsIsIdempotent(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	snaps := []FormSnapshot{{ID: "contact"}, {Index: 1}}

	added := tr.RegisterNewForms(snaps)
	assert.Equal(t, []string{"contact", "form_1"}, added)

	added = tr.RegisterNewForms(snaps)
	assert.Empty(t, added)
	assert.Equal(t, []string{"contact", "form_1"}, tr.FormKeys())
}

func TestRescanDoesNotResetState(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	tr.RegisterNewForms([]FormSnapshot{{ID: "contact"}})
	tr.HandleInteraction("contact", InteractionClick)

	// The second scan sees a visible banner, but classification already ran.
	tr.RegisterNewForms([]FormSnapshot{{ID: "contact", Indicators: []IndicatorState{visibleIndicator()}}})

	form, ok := tr.Form("contact")
	require.True(t, ok)
	assert.False(t, form.HasPreexistingSuccess())
	assert.True(t, form.HasUserInteracted())
}

func TestInteractionStateIsMonotonic(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	tr.RegisterNewForms([]FormSnapshot{{ID: "f"}})

	form, _ := tr.Form("f")
	assert.Equal(t, StateFresh, form.State())

	tr.HandleInteraction("f", InteractionFocus)
	form, _ = tr.Form("f")
	assert.Equal(t, StateInteracted, form.State())

	tr.HandleSubmit("f")
	tr.HandleInteraction("f", InteractionClick)
	form, _ = tr.Form("f")
	assert.Equal(t, StateSubmitted, form.State())
	assert.True(t, form.HasUserInteracted())
	assert.True(t, form.WasSubmitted())
}

func TestSubmitClickRespectsValidity(t *testing.T) {
	tr, rec, _ := newTestTracker(t)
	tr.RegisterNewForms([]FormSnapshot{{ID: "f"}})

	invalid := false
	valid := true
	assert.False(t, tr.HandleSubmitClick("f", "Send", &invalid))
	assert.True(t, tr.HandleSubmitClick("f", "Send", &valid))
	// No validity capability: fail open.
	assert.True(t, tr.HandleSubmitClick("f", "Send", nil))

	attempts := rec.named(events.EventFormSubmitAttempt)
	require.Len(t, attempts, 2)
	assert.Equal(t, "Send", attempts[0].Params[events.ParamButtonText])
}

func TestUnregisteredFormIsIgnored(t *testing.T) {
	tr, rec, _ := newTestTracker(t)

	tr.HandleInteraction("ghost", InteractionClick)
	assert.False(t, tr.HandleSubmit("ghost"))
	assert.Equal(t, 0, tr.HandleMutations("ghost", []MutationRecord{styleBlock("")}))
	assert.Empty(t, rec.events)
}

func TestScrollAndUnload(t *testing.T) {
	tr, rec, clock := newTestTracker(t)

	assert.False(t, tr.HandleScroll(10))
	assert.True(t, tr.HandleScroll(26))
	assert.False(t, tr.HandleScroll(30))
	assert.True(t, tr.HandleScroll(80))
	assert.False(t, tr.HandleScroll(50))

	scrolls := rec.named(events.EventScroll)
	require.Len(t, scrolls, 2)
	assert.Equal(t, 25, scrolls[0].Params[events.ParamPercentScrolled])
	assert.Equal(t, "75%", scrolls[1].Params[events.ParamEventLabel])

	clock.Advance(42*time.Second + 400*time.Millisecond)
	tr.Unload()
	tr.Unload()

	timing := rec.named(events.EventTimingComplete)
	require.Len(t, timing, 1)
	assert.Equal(t, 42, timing[0].Params[events.ParamValue])
}

func TestPageView(t *testing.T) {
	tr, rec, _ := newTestTracker(t)
	tr.PageView()

	views := rec.named(events.EventPageView)
	require.Len(t, views, 1)
	assert.Equal(t, "Contact", views[0].Params[events.ParamPageTitle])
	assert.Equal(t, "https://example.com/contact", views[0].Params[events.ParamPageLocation])
}
