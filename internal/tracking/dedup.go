package tracking

import "time"

// Kind names a deduplicated event family.
type Kind string

const (
	KindSubmit  Kind = "submit"
	KindSuccess Kind = "success"
)

// Default suppression windows.
const (
	// DefaultSubmitWindow guards against duplicate submit listeners or
	// double-fired native submit events.
	DefaultSubmitWindow = 1 * time.Second
	// DefaultSuccessWindow covers one logical success transition reported as
	// several change records (class, then style).
	DefaultSuccessWindow = 2 * time.Second
)

// DedupKey combines a form identity and an event kind.
func DedupKey(formKey string, kind Kind) string {
	return formKey + "_" + string(kind)
}

// Deduplicator remembers when each key was last emitted.
// Entries are overwritten on each accepted emission and never deleted.
// It is not safe for concurrent use.
type Deduplicator struct {
	last map[string]time.Time
	now  func() time.Time
}

// NewDeduplicator creates a Deduplicator. A nil clock means time.Now.
func NewDeduplicator(now func() time.Time) *Deduplicator {
	if now == nil {
		now = time.Now
	}
	return &Deduplicator{
		last: make(map[string]time.Time),
		now:  now,
	}
}

// ShouldEmit reports whether key may be emitted now. On true the current
// time is recorded; on false the previous timestamp is left untouched.
// Suppression holds while elapsed < window, so a call exactly one window
// after the last accepted one is allowed.
func (d *Deduplicator) ShouldEmit(key string, window time.Duration) bool {
	now := d.now()
	if last, ok := d.last[key]; ok && now.Sub(last) < window {
		return false
	}
	d.last[key] = now
	return true
}

// LastEmitted returns the time key was last accepted.
func (d *Deduplicator) LastEmitted(key string) (time.Time, bool) {
	t, ok := d.last[key]
	return t, ok
}
