// Package probe holds the scripts injected into tracked pages and decodes the
// messages they report back over the CDP binding.
package probe

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ajsharma/form_tail/internal/tracking"
)

// BindingName is the page-global function the probe reports through. It is
// installed with Runtime.addBinding before the probe runs.
const BindingName = "__formTailBinding"

// RescanExpression registers forms added since the last scan. Evaluating it
// on a page without the probe is harmless.
const RescanExpression = `window.__formTail ? window.__formTail.scan() : 0`

//go:embed js/probe.js
var probeJS string

//go:embed js/diagnose.js
var diagnoseJS string

// Script returns the probe source, injected on every new document.
func Script() string {
	return probeJS
}

// DiagnoseScript returns an expression evaluating to a diagnostic Report.
func DiagnoseScript() string {
	return diagnoseJS
}

// MessageType identifies a probe message.
type MessageType string

const (
	// MessagePage announces a freshly loaded document.
	MessagePage MessageType = "page"
	// MessageRegister carries snapshots of newly discovered forms.
	MessageRegister MessageType = "register"
	// MessageInteraction reports a click, focus, submit or submit-button click.
	MessageInteraction MessageType = "interaction"
	// MessageMutations carries one observer callback's records for a form.
	MessageMutations MessageType = "mutations"
	// MessageScroll reports scroll depth in percent.
	MessageScroll MessageType = "scroll"
	// MessageUnload is sent on pagehide.
	MessageUnload MessageType = "unload"
)

// Message is one probe report. Only the fields of its Type are set.
type Message struct {
	Type MessageType `json:"type"`

	// page
	URL   string `json:"url,omitempty"`
	Path  string `json:"path,omitempty"`
	Title string `json:"title,omitempty"`

	// register
	Forms []tracking.FormSnapshot `json:"forms,omitempty"`

	// interaction and mutations
	Form       string                    `json:"form,omitempty"`
	Kind       tracking.InteractionKind  `json:"kind,omitempty"`
	ButtonText string                    `json:"buttonText,omitempty"`
	Valid      *bool                     `json:"valid,omitempty"`
	Records    []tracking.MutationRecord `json:"records,omitempty"`

	// scroll
	Percent int `json:"percent,omitempty"`
}

// ErrMissingForm is returned for form-scoped messages without a form key.
var ErrMissingForm = errors.New("probe: message has no form key")

// Decode parses and validates a binding payload.
func Decode(payload string) (Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return Message{}, fmt.Errorf("probe: decode message: %w", err)
	}

	switch m.Type {
	case MessagePage, MessageRegister, MessageScroll, MessageUnload:
	case MessageInteraction:
		if m.Form == "" {
			return Message{}, ErrMissingForm
		}
		switch m.Kind {
		case tracking.InteractionClick, tracking.InteractionFocus,
			tracking.InteractionSubmit, tracking.InteractionSubmitClick:
		default:
			return Message{}, fmt.Errorf("probe: unknown interaction kind %q", m.Kind)
		}
	case MessageMutations:
		if m.Form == "" {
			return Message{}, ErrMissingForm
		}
	default:
		return Message{}, fmt.Errorf("probe: unknown message type %q", m.Type)
	}
	return m, nil
}
