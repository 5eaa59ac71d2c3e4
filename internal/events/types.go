// Package events defines analytics and log event types.
package events

import (
	"strconv"
	"time"
)

// LogEvent represents a single logged event in JSONL format.
type LogEvent struct {
	Timestamp string                 `json:"timestamp"`
	Site      string                 `json:"site"`
	TabID     string                 `json:"tab_id"`
	EventType string                 `json:"event_type"`
	Data      map[string]interface{} `json:"data"`
}

// NewLogEvent creates a new LogEvent with the current timestamp.
func NewLogEvent(site, tabID, eventType string, data map[string]interface{}) *LogEvent {
	return &LogEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Site:      site,
		TabID:     tabID,
		EventType: eventType,
		Data:      data,
	}
}

// Event is a named analytics event with a flat parameter payload.
// Name and Params are what an analytics backend receives; the remaining
// fields locate the event for local sinks.
type Event struct {
	Name      string                 `json:"name"`
	Params    map[string]interface{} `json:"params"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id,omitempty"`
	Site      string                 `json:"site,omitempty"`
	TabID     string                 `json:"tab_id,omitempty"`
}

// NewEvent creates an Event stamped with the current time.
func NewEvent(name string, params map[string]interface{}) *Event {
	if params == nil {
		params = map[string]interface{}{}
	}
	return &Event{
		Name:      name,
		Params:    params,
		Timestamp: time.Now().UTC(),
	}
}

// LogEvent converts the analytics event into a JSONL log line.
func (e *Event) LogEvent() *LogEvent {
	data := make(map[string]interface{}, len(e.Params)+1)
	for k, v := range e.Params {
		data[k] = v
	}
	if e.SessionID != "" {
		data["session_id"] = e.SessionID
	}
	return &LogEvent{
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		Site:      e.Site,
		TabID:     e.TabID,
		EventType: AnalyticsPrefix + e.Name,
		Data:      data,
	}
}

// AnalyticsPrefix namespaces analytics events in the JSONL logs.
const AnalyticsPrefix = "analytics."

// Event type constants for meta events.
const (
	EventMetaSessionStart = "meta.session_start"
	EventMetaTabCreated   = "meta.tab_created"
	EventMetaTabClosed    = "meta.tab_closed"
	EventMetaPageAttached = "meta.page_attached"
)

// Analytics event names, as sent to GA4.
const (
	EventPageView          = "page_view"
	EventFormSubmit        = "form_submit"
	EventFormSubmitAttempt = "form_submit_attempt"
	EventFormSubmitSuccess = "form_submit_success"
	EventFormSubmitAjax    = "form_submit_ajax"
	EventScroll            = "scroll"
	EventTimingComplete    = "timing_complete"
)

// Parameter keys.
const (
	ParamEventCategory   = "event_category"
	ParamEventLabel      = "event_label"
	ParamFormID          = "form_id"
	ParamFormDestination = "form_destination"
	ParamPagePath        = "page_path"
	ParamPageTitle       = "page_title"
	ParamPageLocation    = "page_location"
	ParamMethod          = "method"
	ParamDetectionMethod = "detection_method"
	ParamButtonText      = "button_text"
	ParamValue           = "value"
	ParamPercentScrolled = "percent_scrolled"
	ParamName            = "name"
)

// Parameter values.
const (
	CategoryEngagement      = "engagement"
	LabelAjaxForm           = "ajax_form"
	MethodSuccessDetection  = "webflow_success_detection"
	DetectionMethodMutation = "mutation"
	TimingNamePageLoadTime  = "page_load_time"
)

// FormSubmit builds a form_submit event.
func FormSubmit(formKey, action, pagePath string) *Event {
	return NewEvent(EventFormSubmit, map[string]interface{}{
		ParamEventCategory:   CategoryEngagement,
		ParamEventLabel:      formKey,
		ParamFormID:          formKey,
		ParamFormDestination: action,
		ParamPagePath:        pagePath,
	})
}

// FormSubmitAttempt builds a form_submit_attempt event.
func FormSubmitAttempt(formKey, buttonText, pagePath string) *Event {
	return NewEvent(EventFormSubmitAttempt, map[string]interface{}{
		ParamEventCategory: CategoryEngagement,
		ParamEventLabel:    formKey,
		ParamFormID:        formKey,
		ParamButtonText:    buttonText,
		ParamPagePath:      pagePath,
	})
}

// FormSubmitSuccess builds a form_submit_success event detected from a DOM mutation.
func FormSubmitSuccess(formKey, pagePath string) *Event {
	return NewEvent(EventFormSubmitSuccess, map[string]interface{}{
		ParamEventCategory:   CategoryEngagement,
		ParamEventLabel:      formKey,
		ParamFormID:          formKey,
		ParamPagePath:        pagePath,
		ParamMethod:          MethodSuccessDetection,
		ParamDetectionMethod: DetectionMethodMutation,
	})
}

// FormSubmitAjax builds a form_submit_ajax event.
func FormSubmitAjax(destination, pagePath string) *Event {
	return NewEvent(EventFormSubmitAjax, map[string]interface{}{
		ParamEventCategory:   CategoryEngagement,
		ParamEventLabel:      LabelAjaxForm,
		ParamFormDestination: destination,
		ParamPagePath:        pagePath,
	})
}

// PageView builds a page_view event.
func PageView(title, location, pagePath string) *Event {
	return NewEvent(EventPageView, map[string]interface{}{
		ParamPageTitle:    title,
		ParamPageLocation: location,
		ParamPagePath:     pagePath,
	})
}

// Scroll builds a scroll depth event for a milestone percentage.
func Scroll(percent int) *Event {
	return NewEvent(EventScroll, map[string]interface{}{
		ParamEventCategory:   CategoryEngagement,
		ParamEventLabel:      strconv.Itoa(percent) + "%",
		ParamValue:           percent,
		ParamPercentScrolled: percent,
	})
}

// TimingComplete builds a timing_complete event carrying whole seconds on page.
func TimingComplete(seconds int) *Event {
	return NewEvent(EventTimingComplete, map[string]interface{}{
		ParamName:  TimingNamePageLoadTime,
		ParamValue: seconds,
	})
}

// NewSessionStartEvent creates a meta.session_start event.
func NewSessionStartEvent(sessionID string, chromePID int, version string) *LogEvent {
	return NewLogEvent("_meta", "_session", EventMetaSessionStart, map[string]interface{}{
		"session_id":        sessionID,
		"chrome_pid":        chromePID,
		"form_tail_version": version,
		"start_time":        time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// NewTabCreatedEvent creates a meta.tab_created event.
func NewTabCreatedEvent(site, tabID, sessionID, targetID, title, url string) *LogEvent {
	return NewLogEvent(site, tabID, EventMetaTabCreated, map[string]interface{}{
		"session_id": sessionID,
		"target_id":  targetID,
		"title":      title,
		"url":        url,
	})
}

// NewTabClosedEvent creates a meta.tab_closed event.
func NewTabClosedEvent(site, tabID, sessionID, targetID string, durationSeconds float64) *LogEvent {
	return NewLogEvent(site, tabID, EventMetaTabClosed, map[string]interface{}{
		"session_id":       sessionID,
		"target_id":        targetID,
		"duration_seconds": durationSeconds,
	})
}

// NewPageAttachedEvent creates a meta.page_attached event, written when the
// probe reports a freshly loaded document.
func NewPageAttachedEvent(site, tabID, url, title string) *LogEvent {
	return NewLogEvent(site, tabID, EventMetaPageAttached, map[string]interface{}{
		"url":   url,
		"title": title,
	})
}
