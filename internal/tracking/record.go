package tracking

import "time"

// State is the interaction state of a form.
type State int

const (
	// StateFresh means no interaction has been observed.
	StateFresh State = iota
	// StateInteracted means the user clicked or focused inside the form.
	StateInteracted
	// StateSubmitted means a native submit event fired.
	StateSubmitted
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateInteracted:
		return "interacted"
	case StateSubmitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// FormRecord is the tracking state of one discovered form.
//
// hasPreexistingSuccess is fixed at registration. interacted and submitted
// only ever move from false to true.
type FormRecord struct {
	Key          string
	Index        int
	ElementID    string
	Action       string
	RegisteredAt time.Time

	hasPreexistingSuccess bool
	interacted            bool
	submitted             bool
}

func newFormRecord(snap FormSnapshot, key string, now time.Time) *FormRecord {
	return &FormRecord{
		Key:                   key,
		Index:                 snap.Index,
		ElementID:             snap.ID,
		Action:                snap.Action,
		RegisteredAt:          now,
		hasPreexistingSuccess: HasPreexistingSuccess(snap.Indicators),
	}
}

// HasPreexistingSuccess reports whether a success indicator was visible at registration.
func (r *FormRecord) HasPreexistingSuccess() bool { return r.hasPreexistingSuccess }

// HasUserInteracted reports whether a click or focus was observed.
func (r *FormRecord) HasUserInteracted() bool { return r.interacted }

// WasSubmitted reports whether a native submit was observed.
func (r *FormRecord) WasSubmitted() bool { return r.submitted }

// State returns the furthest state reached.
func (r *FormRecord) State() State {
	switch {
	case r.submitted:
		return StateSubmitted
	case r.interacted:
		return StateInteracted
	default:
		return StateFresh
	}
}

// markInteracted records a click or focus. It returns true on the first call only.
func (r *FormRecord) markInteracted() bool {
	if r.interacted {
		return false
	}
	r.interacted = true
	return true
}

// markSubmitted records a native submit. It returns true on the first call only.
func (r *FormRecord) markSubmitted() bool {
	if r.submitted {
		return false
	}
	r.submitted = true
	return true
}

// successAllowed is the gate in front of mutation classification: forms that
// looked successful on load need a real submit, all others an interaction.
func (r *FormRecord) successAllowed() bool {
	if r.hasPreexistingSuccess {
		return r.submitted
	}
	return r.interacted
}
