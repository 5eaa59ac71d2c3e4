package tracking

import (
	"net/http"
	"net/url"
	"strings"
)

// DefaultEndpointPatterns are destination substrings that suggest a form
// endpoint. A pattern that looks like a host name ("webflow.com") matches
// the destination host and its subdomains; any other pattern matches the
// path and query only.
var DefaultEndpointPatterns = []string{"webflow.com", "submit", "form"}

// Interceptor is an observation tap over outbound requests. It never
// changes a request; it only reports POSTs whose destination looks like a
// form endpoint.
type Interceptor struct {
	patterns []string
	report   func(destination string)
}

// NewInterceptor creates an Interceptor. With no patterns,
// DefaultEndpointPatterns is used.
func NewInterceptor(report func(destination string), patterns ...string) *Interceptor {
	if len(patterns) == 0 {
		patterns = DefaultEndpointPatterns
	}
	return &Interceptor{patterns: patterns, report: report}
}

// Matches reports whether a request looks like a background form submission.
func (i *Interceptor) Matches(method, destination string) bool {
	if !strings.EqualFold(method, http.MethodPost) {
		return false
	}
	host, rest := splitDestination(destination)
	for _, p := range i.patterns {
		if isHostPattern(p) {
			if host == p || strings.HasSuffix(host, "."+p) {
				return true
			}
			continue
		}
		if strings.Contains(rest, p) {
			return true
		}
	}
	return false
}

// splitDestination returns the lowercased host and the path plus query of
// destination. Relative destinations have no host.
func splitDestination(destination string) (host, rest string) {
	u, err := url.Parse(destination)
	if err != nil {
		return "", destination
	}
	rest = u.EscapedPath()
	if u.RawQuery != "" {
		rest += "?" + u.RawQuery
	}
	return strings.ToLower(u.Hostname()), rest
}

func isHostPattern(p string) bool {
	return strings.Contains(p, ".") && !strings.ContainsAny(p, "/?=")
}

// Observe reports destination when the request matches and returns whether it did.
func (i *Interceptor) Observe(method, destination string) bool {
	if !i.Matches(method, destination) {
		return false
	}
	if i.report != nil {
		i.report(destination)
	}
	return true
}

// Wrap returns a RoundTripper that observes every request and then
// delegates to base. The response and error from base are returned as is.
func (i *Interceptor) Wrap(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &tapTransport{base: base, tap: i}
}

type tapTransport struct {
	base http.RoundTripper
	tap  *Interceptor
}

func (t *tapTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.tap.Observe(req.Method, req.URL.String())
	return t.base.RoundTrip(req)
}
