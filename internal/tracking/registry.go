package tracking

import (
	"strconv"
	"time"
)

// FormSnapshot is what the page probe reports about a form when it is discovered.
type FormSnapshot struct {
	Key           string           `json:"key"`
	ID            string           `json:"id"`
	Index         int              `json:"index"`
	Action        string           `json:"action"`
	Classes       string           `json:"classes,omitempty"`
	HasParent     bool             `json:"hasParent"`
	HasWrapper    bool             `json:"hasWrapper"`
	Fields        int              `json:"fields"`
	SubmitButtons int              `json:"submitButtons"`
	Indicators    []IndicatorState `json:"indicators"`
}

// FormKey derives a form identity from its id attribute, falling back to
// its position among the page's forms at discovery time.
func FormKey(id string, index int) string {
	if id != "" {
		return id
	}
	return "form_" + strconv.Itoa(index)
}

// key returns the identity the snapshot should be registered under.
func (s FormSnapshot) key() string {
	if s.Key != "" {
		return s.Key
	}
	return FormKey(s.ID, s.Index)
}

// Registry holds one FormRecord per form identity, in discovery order.
// It is not safe for concurrent use; the Tracker serialises access.
type Registry struct {
	forms map[string]*FormRecord
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{forms: make(map[string]*FormRecord)}
}

// Register adds a form and classifies its initial success state. A snapshot
// whose identity is already registered is ignored and added is false.
func (r *Registry) Register(snap FormSnapshot, now time.Time) (rec *FormRecord, added bool) {
	key := snap.key()
	if existing, ok := r.forms[key]; ok {
		return existing, false
	}
	rec = newFormRecord(snap, key, now)
	r.forms[key] = rec
	r.order = append(r.order, key)
	return rec, true
}

// Get returns the record for key.
func (r *Registry) Get(key string) (*FormRecord, bool) {
	rec, ok := r.forms[key]
	return rec, ok
}

// Keys returns the registered identities in discovery order.
func (r *Registry) Keys() []string {
	keys := make([]string, len(r.order))
	copy(keys, r.order)
	return keys
}

// Len returns the number of registered forms.
func (r *Registry) Len() int {
	return len(r.order)
}
