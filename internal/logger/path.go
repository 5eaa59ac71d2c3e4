// Package logger writes analytics and lifecycle events to per-site JSONL files.
package logger

import (
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// UnknownSite is the default site name for unknown or invalid URLs.
const UnknownSite = "unknown"

var (
	sessionID   string
	sessionOnce sync.Once
	tabCounter  atomic.Int64
)

// GetSessionID returns the unique session ID for this process.
// It is generated once and remains constant for the process lifetime.
func GetSessionID() string {
	sessionOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

// GenerateTabID creates a new unique tab ID (tab-1, tab-2, ...).
func GenerateTabID() string {
	return "tab-" + strconv.FormatInt(tabCounter.Add(1), 10)
}

// TabRegistry maps CDP target IDs to stable tab IDs.
type TabRegistry struct {
	sessionID   string
	targetToTab map[string]string
	mu          sync.RWMutex
}

// NewTabRegistry creates a new tab registry for the current session.
func NewTabRegistry() *TabRegistry {
	return &TabRegistry{
		sessionID:   GetSessionID(),
		targetToTab: make(map[string]string),
	}
}

// GetOrCreateTabID returns the tab ID for a given target ID, allocating one
// on first sight.
func (r *TabRegistry) GetOrCreateTabID(targetID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tabID, exists := r.targetToTab[targetID]; exists {
		return tabID
	}
	tabID := GenerateTabID()
	r.targetToTab[targetID] = tabID
	return tabID
}

// GetTabID returns the tab ID for a given target ID, or empty string if not found.
func (r *TabRegistry) GetTabID(targetID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.targetToTab[targetID]
}

// RemoveTarget removes a target from the registry.
func (r *TabRegistry) RemoveTarget(targetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.targetToTab, targetID)
}

// GetSessionID returns the session ID for this registry.
func (r *TabRegistry) GetSessionID() string {
	return r.sessionID
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "0.0.0.0"
}

var unsafePathChars = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	" ", "_",
)

// SanitizeSiteName converts a hostname into a safe directory name.
// Loopback hosts keep their port so that local dev servers stay apart.
func SanitizeSiteName(hostname string) string {
	if hostname == "" {
		return UnknownSite
	}

	if host, port, found := strings.Cut(hostname, ":"); found {
		if isLoopback(host) {
			hostname = host + "_" + port
		} else {
			hostname = host
		}
	}

	result := unsafePathChars.Replace(hostname)
	if len(result) > 255 {
		result = result[:255]
	}
	return result
}

// ExtractSite extracts and sanitizes the site name from a URL.
func ExtractSite(rawURL string) string {
	if rawURL == "" {
		return UnknownSite
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return UnknownSite
	}

	hostname := u.Hostname()
	if hostname == "" {
		// about:blank, chrome://newtab and friends
		if u.Scheme != "" {
			return SanitizeSiteName(u.Scheme + "_" + u.Opaque)
		}
		return UnknownSite
	}

	if port := u.Port(); port != "" && isLoopback(hostname) {
		return SanitizeSiteName(hostname + ":" + port)
	}
	return SanitizeSiteName(hostname)
}

// GetLogPath returns the JSONL file path for a given site and tab ID.
func GetLogPath(baseDir, site, tabID string) string {
	return filepath.Join(baseDir, site, tabID, eventsFileName)
}
