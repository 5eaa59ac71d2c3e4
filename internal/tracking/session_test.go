package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajsharma/form_tail/internal/events"
)

func TestSessionBeginOnce(t *testing.T) {
	s := NewSession("s", &recorder{}, Options{})
	assert.True(t, s.Begin())
	assert.False(t, s.Begin())
}

func TestSessionAttachUnloadsPrevious(t *testing.T) {
	rec := &recorder{}
	clock := newFakeClock()
	s := NewSession("s", rec, Options{Now: clock.Now})
	assert.Nil(t, s.Current())

	first := s.Attach(Page{URL: "https://example.com/a"})
	assert.Same(t, first, s.Current())
	assert.Equal(t, "s", first.Page().SessionID)

	clock.Advance(3 * time.Second)
	second := s.Attach(Page{URL: "https://example.com/b"})
	assert.Same(t, second, s.Current())

	timing := rec.named(events.EventTimingComplete)
	require.Len(t, timing, 1)
	assert.Equal(t, 3, timing[0].Params[events.ParamValue])

	s.Close()
	assert.Nil(t, s.Current())
	assert.Len(t, rec.named(events.EventTimingComplete), 2)
}

func TestSessionTrackersDoNotShareState(t *testing.T) {
	rec := &recorder{}
	s := NewSession("s", rec, Options{Now: newFakeClock().Now})

	first := s.Attach(Page{})
	first.RegisterNewForms([]FormSnapshot{{ID: "f"}})
	assert.True(t, first.HandleSubmit("f"))

	second := s.Attach(Page{})
	assert.Empty(t, second.FormKeys())
	second.RegisterNewForms([]FormSnapshot{{ID: "f"}})
	assert.True(t, second.HandleSubmit("f"))
}
