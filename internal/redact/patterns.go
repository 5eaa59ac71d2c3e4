package redact

import "strings"

// DefaultParamDenylist contains event parameter names that are never forwarded.
var DefaultParamDenylist = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"apikey",
	"api_key",
	"credential",
	"ssn",
	"credit_card",
	"card_number",
	"cvv",
}

// DefaultQueryDenylist contains query parameter names redacted from URLs
// such as form destinations and page locations.
var DefaultQueryDenylist = []string{
	"email",
	"phone",
	"token",
	"key",
	"secret",
	"password",
	"auth",
	"code",
	"session",
}

// urlParams are event parameters whose values are URLs.
var urlParams = []string{"form_destination", "page_location"}

// matchFieldName checks if a field name matches a pattern (case-insensitive).
// Substring matches count, which catches "user_email", "accessToken" and
// similar variations.
func matchFieldName(actual, pattern string) bool {
	return strings.Contains(strings.ToLower(actual), strings.ToLower(pattern))
}

func isURLParam(name string) bool {
	for _, p := range urlParams {
		if name == p {
			return true
		}
	}
	return false
}
