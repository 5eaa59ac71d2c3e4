// Package redact provides privacy filtering for analytics payloads.
package redact

import (
	"net/url"
)

// RedactedValue is the placeholder for redacted content.
const RedactedValue = "[REDACTED]"

// Redactor removes sensitive values from event parameters before they
// leave the process.
type Redactor struct {
	enabled       bool
	paramDenylist []string
	queryDenylist []string
}

// New creates a new Redactor with default settings.
func New(enabled bool) *Redactor {
	return &Redactor{
		enabled:       enabled,
		paramDenylist: DefaultParamDenylist,
		queryDenylist: DefaultQueryDenylist,
	}
}

// NewWithCustomRules creates a Redactor with additional denylist patterns.
func NewWithCustomRules(enabled bool, params, query []string) *Redactor {
	r := New(enabled)
	if params != nil {
		r.paramDenylist = append(append([]string(nil), r.paramDenylist...), params...)
	}
	if query != nil {
		r.queryDenylist = append(append([]string(nil), r.queryDenylist...), query...)
	}
	return r
}

// IsEnabled returns whether redaction is enabled.
func (r *Redactor) IsEnabled() bool {
	return r.enabled
}

// RedactParams returns a copy of params with sensitive keys replaced and
// URL-valued strings stripped of sensitive query parameters.
func (r *Redactor) RedactParams(params map[string]interface{}) map[string]interface{} {
	if !r.enabled || params == nil {
		return params
	}

	result := make(map[string]interface{}, len(params))
	for key, value := range params {
		switch {
		case r.shouldRedactParam(key):
			result[key] = RedactedValue
		case isURLParam(key):
			if s, ok := value.(string); ok {
				result[key] = r.RedactURL(s)
				continue
			}
			result[key] = value
		default:
			result[key] = value
		}
	}
	return result
}

// RedactURL replaces the values of sensitive query parameters. Strings
// that do not parse as URLs are returned unchanged.
func (r *Redactor) RedactURL(raw string) string {
	if !r.enabled || raw == "" {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}

	q := u.Query()
	changed := false
	for key := range q {
		if r.shouldRedactQuery(key) {
			q.Set(key, RedactedValue)
			changed = true
		}
	}
	if !changed {
		return raw
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// shouldRedactParam checks if an event parameter should be redacted.
func (r *Redactor) shouldRedactParam(name string) bool {
	for _, pattern := range r.paramDenylist {
		if matchFieldName(name, pattern) {
			return true
		}
	}
	return false
}

// shouldRedactQuery checks if a query parameter should be redacted.
func (r *Redactor) shouldRedactQuery(name string) bool {
	for _, pattern := range r.queryDenylist {
		if matchFieldName(name, pattern) {
			return true
		}
	}
	return false
}
