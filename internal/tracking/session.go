package tracking

import (
	"sync"

	"go.uber.org/zap"
)

// Session is the initialisation context shared by everything that tracks
// one browser tab. It owns the one-time setup flag, the transport
// interceptor and the tracker of the currently loaded document.
type Session struct {
	ID string

	emitter Emitter
	opts    Options
	logger  *zap.Logger

	mu          sync.Mutex
	initialized bool
	interceptor *Interceptor
	current     *Tracker
}

// NewSession creates a Session. Trackers created through Attach share
// emitter and opts.
func NewSession(id string, emitter Emitter, opts Options) *Session {
	opts.defaults()
	return &Session{
		ID:      id,
		emitter: emitter,
		opts:    opts,
		logger:  opts.Logger.Named("session").With(zap.String("session", id)),
	}
}

// Begin marks the session initialised. It returns false if it already was,
// in which case the caller must skip its setup.
func (s *Session) Begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		s.logger.Debug("already initialized, skipping duplicate setup")
		return false
	}
	s.initialized = true
	return true
}

// InstallInterceptor returns the session's interceptor, creating it on the
// first call. Matches are reported to whichever tracker is current at the
// time of the request. installed is true only for the call that created it.
func (s *Session) InstallInterceptor(patterns ...string) (ic *Interceptor, installed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interceptor != nil {
		return s.interceptor, false
	}
	s.interceptor = NewInterceptor(func(destination string) {
		if t := s.Current(); t != nil {
			t.HandleAjax(destination)
		}
	}, patterns...)
	return s.interceptor, true
}

// Attach creates a tracker for a newly loaded document and makes it current.
// The previous document's tracker, if any, is unloaded.
func (s *Session) Attach(page Page) *Tracker {
	if page.SessionID == "" {
		page.SessionID = s.ID
	}
	t := NewTracker(s.emitter, page, s.opts)

	s.mu.Lock()
	prev := s.current
	s.current = t
	s.mu.Unlock()

	if prev != nil {
		prev.Unload()
	}
	return t
}

// Current returns the tracker of the loaded document, or nil before the
// first Attach.
func (s *Session) Current() *Tracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Close unloads the current document.
func (s *Session) Close() {
	s.mu.Lock()
	t := s.current
	s.current = nil
	s.mu.Unlock()

	if t != nil {
		t.Unload()
	}
}
