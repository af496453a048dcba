package reminder

import (
	"context"
	"sync"
	"testing"
	"time"

	"todobot/internal/domain"
	"todobot/pkg/logx"
)

type weeklyStore struct {
	mu    sync.Mutex
	items []domain.Item
	from  time.Time
	to    time.Time
}

func (s *weeklyStore) ListByDeadline(ctx context.Context, from, to time.Time) ([]domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.from, s.to = from, to
	return s.items, nil
}

func TestWindowAnchorsToMonday(t *testing.T) {
	t.Parallel()
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	agg := NewAggregator(nil, nil, nil, jakarta, logx.Nop())

	// Sunday 2025-04-13 20:00 Jakarta: the week being summarized ran
	// Monday the 7th through Saturday the 12th.
	now := time.Date(2025, 4, 13, 20, 0, 0, 0, jakarta)
	from, to := agg.Window(now)

	wantFrom := time.Date(2025, 4, 7, 0, 0, 0, 0, jakarta)
	wantTo := time.Date(2025, 4, 13, 0, 0, 0, 0, jakarta)
	if !from.Equal(wantFrom) || !to.Equal(wantTo) {
		t.Fatalf("Window = [%v, %v], want [%v, %v]", from, to, wantFrom, wantTo)
	}

	// Mid-week run still anchors to the same Monday.
	from2, _ := agg.Window(time.Date(2025, 4, 9, 11, 30, 0, 0, jakarta))
	if !from2.Equal(wantFrom) {
		t.Fatalf("mid-week Window start = %v, want %v", from2, wantFrom)
	}
}

func TestSummarizeCounts(t *testing.T) {
	t.Parallel()
	agg := NewAggregator(nil, nil, nil, time.UTC, logx.Nop())
	from := time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 6)

	items := []domain.Item{
		{ID: "b", Title: "late one", OwnerID: "u2", Status: domain.StatusActive,
			DueAt: from.Add(72 * time.Hour)},
		{ID: "a", Title: "group task", OwnerID: "u1", Assignees: []string{"u2", "u3"},
			Status: domain.StatusCompleted, DueAt: from.Add(24 * time.Hour)},
		{ID: "c", Title: "solo done", OwnerID: "u3", Status: domain.StatusCompleted,
			DueAt: from.Add(96 * time.Hour)},
	}

	s := agg.Summarize("g1", items, from, to)
	if s.Total != 3 || s.Completed != 2 {
		t.Fatalf("Total/Completed = %d/%d, want 3/2", s.Total, s.Completed)
	}
	// u1, u2, u3 all touched a completed item.
	if s.Contributors != 3 {
		t.Fatalf("Contributors = %d, want 3", s.Contributors)
	}
	if len(s.Items) != 3 || s.Items[0].Title != "group task" {
		t.Fatalf("rows not sorted by deadline: %+v", s.Items)
	}
	if !s.Items[0].Group || !s.Items[0].Done {
		t.Fatalf("group task row flags wrong: %+v", s.Items[0])
	}
	if s.Items[1].Done {
		t.Fatalf("active item marked done: %+v", s.Items[1])
	}
}

func TestRunPostsPerGuildAndSkipsUnconfigured(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 4, 13, 20, 0, 0, 0, time.UTC)
	ws := &weeklyStore{items: []domain.Item{
		{ID: "a", Title: "one", GuildID: "g1", OwnerID: "u1",
			Status: domain.StatusCompleted, DueAt: now.Add(-48 * time.Hour)},
		{ID: "b", Title: "two", GuildID: "g2", OwnerID: "u2",
			Status: domain.StatusActive, DueAt: now.Add(-24 * time.Hour)},
		{ID: "dm", Title: "personal", OwnerID: "u3",
			Status: domain.StatusActive, DueAt: now.Add(-24 * time.Hour)},
	}}
	settings := newMemStore()
	settings.channels["g1"] = domain.GuildSetting{GuildID: "g1", TaskChannelID: "c1"}
	// g2 has no task channel configured.
	notifier := newMemNotifier()

	agg := NewAggregator(ws, settings, notifier, time.UTC, logx.Nop())
	if err := agg.Run(context.Background(), now); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.summaries) != 1 {
		t.Fatalf("summaries = %d, want only the configured guild", len(notifier.summaries))
	}
	if notifier.summaries[0].GuildID != "g1" || notifier.summaries[0].Total != 1 {
		t.Fatalf("summary = %+v, want g1 with one item", notifier.summaries[0])
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.from.Weekday() != time.Monday {
		t.Fatalf("query window starts on %v, want Monday", ws.from.Weekday())
	}
}
