// Package tracking implements per-form submission and success detection.
//
// A page probe reports form snapshots, user interactions and DOM mutation
// batches; the Tracker turns them into deduplicated analytics events. Forms
// whose success indicator is already visible when they are registered only
// report success after a native submit, which filters out page builders
// that render the "thank you" block on load.
package tracking

import "strings"

// SuccessMarkers are the class names that identify a success indicator.
var SuccessMarkers = []string{"w-form-done", "success-message", "w-form-success"}

// IndicatorScope names where a success indicator was found relative to its form.
type IndicatorScope string

const (
	ScopeForm    IndicatorScope = "form"
	ScopeWrapper IndicatorScope = "wrapper"
	ScopeParent  IndicatorScope = "parent"
)

// IndicatorState is the computed-style snapshot of one success indicator.
type IndicatorState struct {
	Scope      IndicatorScope `json:"scope"`
	Tag        string         `json:"tag,omitempty"`
	Classes    []string       `json:"classes"`
	Display    string         `json:"display"`
	Visibility string         `json:"visibility"`
	Opacity    string         `json:"opacity"`
	Text       string         `json:"text,omitempty"`
}

// Visible reports whether the computed style renders the element.
func (s IndicatorState) Visible() bool {
	return s.Display != "none" && s.Visibility != "hidden" && s.Opacity != "0"
}

// HasSuccessMarker reports whether any of classes is a success marker.
func HasSuccessMarker(classes []string) bool {
	for _, c := range classes {
		for _, m := range SuccessMarkers {
			if c == m {
				return true
			}
		}
	}
	return false
}

// HasPreexistingSuccess reports whether at least one marked indicator is
// already visible. It is evaluated once, when the form is registered.
func HasPreexistingSuccess(indicators []IndicatorState) bool {
	for _, ind := range indicators {
		if HasSuccessMarker(ind.Classes) && ind.Visible() {
			return true
		}
	}
	return false
}

// splitClasses splits a class attribute value into class names.
func splitClasses(attr string) []string {
	return strings.Fields(attr)
}

// inlineDisplay extracts the display value from an inline style attribute.
// The last declaration wins, as in the CSSOM.
func inlineDisplay(style string) string {
	display := ""
	for _, decl := range strings.Split(style, ";") {
		prop, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(prop), "display") {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.TrimSpace(strings.TrimSuffix(value, "!important"))
		display = strings.ToLower(value)
	}
	return display
}
