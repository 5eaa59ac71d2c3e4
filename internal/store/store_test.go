package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajsharma/form_tail/internal/events"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func stamped(ev *events.Event, site string, at time.Time) *events.Event {
	ev.Site = site
	ev.TabID = "tab-1"
	ev.SessionID = "sess-1"
	ev.Timestamp = at
	return ev
}

func TestOpenCreatesSchema(t *testing.T) {
	s := openTestStore(t)

	var count int
	err := s.DB().QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='events'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Init is idempotent.
	assert.NoError(t, s.Init())
}

func TestInsertAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.Insert(ctx, stamped(events.FormSubmit("contact", "/submit", "/"), "example.com", base))
	require.NoError(t, err)
	id, err := s.Insert(ctx, stamped(events.FormSubmitSuccess("contact", "/"), "example.com", base.Add(time.Second)))
	require.NoError(t, err)
	assert.Positive(t, id)

	recs, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Newest first.
	assert.Equal(t, events.EventFormSubmitSuccess, recs[0].Name)
	assert.Equal(t, "contact", recs[0].Params[events.ParamFormID])
	assert.Equal(t, events.DetectionMethodMutation, recs[0].Params[events.ParamDetectionMethod])
	assert.Equal(t, "example.com", recs[0].Site)
	assert.Equal(t, "sess-1", recs[0].SessionID)
	assert.True(t, recs[0].Timestamp.Equal(base.Add(time.Second)))
}

func TestListFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	inserts := []*events.Event{
		stamped(events.FormSubmit("contact", "/submit", "/"), "example.com", base),
		stamped(events.FormSubmit("newsletter", "/subscribe", "/"), "example.com", base.Add(time.Minute)),
		stamped(events.Scroll(50), "other.org", base.Add(2*time.Minute)),
		stamped(events.FormSubmitAjax("https://webflow.com/api", "/"), "other.org", base.Add(3*time.Minute)),
	}
	for _, ev := range inserts {
		_, err := s.Insert(ctx, ev)
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"by name", Filter{Name: events.EventFormSubmit}, 2},
		{"by site", Filter{Site: "other.org"}, 2},
		{"by form", Filter{FormID: "newsletter"}, 1},
		{"since", Filter{Since: base.Add(90 * time.Second)}, 2},
		{"limit", Filter{Limit: 3}, 3},
		{"no match", Filter{Name: events.EventTimingComplete}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := s.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, recs, tt.want)
		})
	}
}

func TestCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 25; i <= 75; i += 25 {
		_, err := s.Insert(ctx, events.Scroll(i))
		require.NoError(t, err)
	}
	_, err := s.Insert(ctx, events.TimingComplete(4))
	require.NoError(t, err)

	counts, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{events.EventScroll: 3, events.EventTimingComplete: 1}, counts)
}

func TestOpenFileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Insert(ctx, events.PageView("Home", "https://example.com/", "/"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	recs, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, events.EventPageView, recs[0].Name)
}
