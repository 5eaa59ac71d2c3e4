package redact

import (
	"net/url"
	"testing"
)

func TestRedactParams(t *testing.T) {
	r := New(true)

	tests := []struct {
		name     string
		params   map[string]interface{}
		expected map[string]interface{}
	}{
		{
			name: "redacts sensitive keys",
			params: map[string]interface{}{
				"form_id":   "contact",
				"api_token": "abc123",
			},
			expected: map[string]interface{}{
				"form_id":   "contact",
				"api_token": RedactedValue,
			},
		},
		{
			name: "case insensitive matching",
			params: map[string]interface{}{
				"Password":  "hunter2",
				"CVV":       "123",
				"page_path": "/checkout",
			},
			expected: map[string]interface{}{
				"Password":  RedactedValue,
				"CVV":       RedactedValue,
				"page_path": "/checkout",
			},
		},
		{
			name: "keeps non-string url params",
			params: map[string]interface{}{
				"form_destination": 42,
			},
			expected: map[string]interface{}{
				"form_destination": 42,
			},
		},
		{
			name:     "handles nil params",
			params:   nil,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := r.RedactParams(tt.params)
			if tt.expected == nil {
				if result != nil {
					t.Errorf("expected nil, got %v", result)
				}
				return
			}
			for key, expectedVal := range tt.expected {
				if result[key] != expectedVal {
					t.Errorf("param %s: expected %v, got %v", key, expectedVal, result[key])
				}
			}
		})
	}
}

func TestRedactParamsDoesNotMutateInput(t *testing.T) {
	r := New(true)
	params := map[string]interface{}{"secret": "x"}
	_ = r.RedactParams(params)
	if params["secret"] != "x" {
		t.Error("input map was modified")
	}
}

func TestRedactParamsDisabled(t *testing.T) {
	r := New(false)
	params := map[string]interface{}{"password": "hunter2"}
	result := r.RedactParams(params)
	if result["password"] != "hunter2" {
		t.Errorf("expected no redaction when disabled, got %v", result["password"])
	}
	if r.IsEnabled() {
		t.Error("expected IsEnabled false")
	}
}

func TestRedactURL(t *testing.T) {
	r := New(true)

	tests := []struct {
		name     string
		input    string
		wantSame bool
		redacted []string
		kept     map[string]string
	}{
		{
			name:     "no query",
			input:    "https://example.com/submit",
			wantSame: true,
		},
		{
			name:     "nothing sensitive",
			input:    "https://example.com/submit?form=contact",
			wantSame: true,
		},
		{
			name:     "email and token",
			input:    "https://example.com/submit?form=contact&email=a%40b.com&access_token=xyz",
			redacted: []string{"email", "access_token"},
			kept:     map[string]string{"form": "contact"},
		},
		{
			name:     "not a url",
			input:    "::not a url::",
			wantSame: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.RedactURL(tt.input)
			if tt.wantSame {
				if got != tt.input {
					t.Errorf("expected %q unchanged, got %q", tt.input, got)
				}
				return
			}
			u, err := url.Parse(got)
			if err != nil {
				t.Fatalf("redacted URL does not parse: %v", err)
			}
			q := u.Query()
			for _, key := range tt.redacted {
				if q.Get(key) != RedactedValue {
					t.Errorf("query %s = %q, want redacted", key, q.Get(key))
				}
			}
			for key, want := range tt.kept {
				if q.Get(key) != want {
					t.Errorf("query %s = %q, want %q", key, q.Get(key), want)
				}
			}
		})
	}
}

func TestRedactParamsRewritesDestination(t *testing.T) {
	r := New(true)
	result := r.RedactParams(map[string]interface{}{
		"form_destination": "https://example.com/submit?email=a%40b.com",
	})
	u, err := url.Parse(result["form_destination"].(string))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if u.Query().Get("email") != RedactedValue {
		t.Errorf("email not redacted: %s", u)
	}
}

func TestNewWithCustomRules(t *testing.T) {
	r := NewWithCustomRules(true, []string{"button_text"}, []string{"utm_"})

	result := r.RedactParams(map[string]interface{}{"button_text": "Send to Ada"})
	if result["button_text"] != RedactedValue {
		t.Errorf("custom param rule not applied: %v", result["button_text"])
	}

	got := r.RedactURL("https://example.com/?utm_source=mail")
	u, _ := url.Parse(got)
	if u.Query().Get("utm_source") != RedactedValue {
		t.Errorf("custom query rule not applied: %s", got)
	}

	// Defaults must not be modified by custom rules.
	if len(DefaultParamDenylist) != 11 {
		t.Errorf("DefaultParamDenylist modified: %v", DefaultParamDenylist)
	}
}

func TestMatchFieldName(t *testing.T) {
	tests := []struct {
		actual  string
		pattern string
		want    bool
	}{
		{"email", "email", true},
		{"user_email", "email", true},
		{"AccessToken", "token", true},
		{"form_id", "token", false},
	}
	for _, tt := range tests {
		if got := matchFieldName(tt.actual, tt.pattern); got != tt.want {
			t.Errorf("matchFieldName(%q, %q) = %v, want %v", tt.actual, tt.pattern, got, tt.want)
		}
	}
}
