package tracking

import "fmt"

// MutationType mirrors MutationRecord.type in the DOM.
type MutationType string

const (
	MutationAttributes MutationType = "attributes"
	MutationChildList  MutationType = "childList"
)

// TargetState is the target element as it looked when the observer callback ran.
type TargetState struct {
	Tag           string   `json:"tag,omitempty"`
	Classes       []string `json:"classes"`
	InlineDisplay string   `json:"inlineDisplay"`
}

// MutationRecord is one change record delivered to the page observer.
// OldValue is the attribute value before the change; nil means the attribute
// was absent or the observer was not asked for old values.
type MutationRecord struct {
	Type          MutationType `json:"type"`
	AttributeName string       `json:"attributeName,omitempty"`
	OldValue      *string      `json:"oldValue,omitempty"`
	Scope         string       `json:"scope,omitempty"`
	Target        TargetState  `json:"target"`
}

// TransitionMode selects how a record is judged to make an indicator newly visible.
type TransitionMode string

const (
	// TransitionDiff compares the attribute's old value with the current
	// state, so only real transitions into success count.
	TransitionDiff TransitionMode = "diff"
	// TransitionEdge trusts that the attribute which just changed is the one
	// that revealed the indicator. Matches the historical script.
	TransitionEdge TransitionMode = "edge"
)

// ParseTransitionMode validates a mode name. The empty string selects TransitionDiff.
func ParseTransitionMode(s string) (TransitionMode, error) {
	switch TransitionMode(s) {
	case "", TransitionDiff:
		return TransitionDiff, nil
	case TransitionEdge:
		return TransitionEdge, nil
	default:
		return "", fmt.Errorf("unknown transition mode %q (want %q or %q)", s, TransitionDiff, TransitionEdge)
	}
}

// MutationSignal is the classification of a single record.
type MutationSignal struct {
	Target       TargetState
	Attribute    string
	Marked       bool
	NewlyVisible bool
}

// IsSuccess reports whether the record is a success signal.
func (s MutationSignal) IsSuccess() bool {
	return s.Marked && s.NewlyVisible
}

// Classify derives a MutationSignal from a change record. Only attribute
// changes on elements carrying a success marker can qualify:
//   - style: the inline display is now "block";
//   - class: the element carries a marker class.
//
// In TransitionDiff mode the old value must also show the element was not
// already in that state.
func Classify(rec MutationRecord, mode TransitionMode) MutationSignal {
	sig := MutationSignal{
		Target:    rec.Target,
		Attribute: rec.AttributeName,
		Marked:    HasSuccessMarker(rec.Target.Classes),
	}
	if rec.Type != MutationAttributes {
		return sig
	}

	switch rec.AttributeName {
	case "style":
		nowBlock := rec.Target.InlineDisplay == "block"
		if mode == TransitionEdge || !nowBlock {
			sig.NewlyVisible = nowBlock
			return sig
		}
		sig.NewlyVisible = rec.OldValue == nil || inlineDisplay(*rec.OldValue) != "block"
	case "class":
		if mode == TransitionEdge || !sig.Marked {
			sig.NewlyVisible = sig.Marked
			return sig
		}
		sig.NewlyVisible = rec.OldValue == nil || !HasSuccessMarker(splitClasses(*rec.OldValue))
	}
	return sig
}
