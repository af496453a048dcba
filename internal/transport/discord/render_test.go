package discord

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"todobot/internal/domain"
	"todobot/internal/transport"
)

func TestHumanDelta(t *testing.T) {
	t.Parallel()

	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "0m"},
		{30 * time.Second, "1m"}, // rounds to the nearest minute
		{90 * time.Minute, "1h 30m"},
		{5 * time.Hour, "5h"},
		{49*time.Hour + 30*time.Minute, "2d 1h 30m"},
		{72 * time.Hour, "3d"},
		{-90 * time.Minute, "-1h 30m"},
	}
	for _, tc := range cases {
		if got := humanDelta(tc.d); got != tc.want {
			t.Errorf("humanDelta(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestRefHeadlineColors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		ref       domain.ReminderRef
		wantColor int
	}{
		{domain.StdRef(domain.Tag72h), color72h},
		{domain.StdRef(domain.Tag24h), color24h},
		{domain.StdRef(domain.Tag5h), color5h},
		{domain.StdRef(domain.TagDue), colorDue},
		{domain.CustomRef(0), colorCustom},
		{domain.CustomRef(3), colorCustom},
	}
	for _, tc := range cases {
		head, color := refHeadline(tc.ref)
		if color != tc.wantColor {
			t.Errorf("refHeadline(%s) color = %#x, want %#x", tc.ref, color, tc.wantColor)
		}
		if head == "" {
			t.Errorf("refHeadline(%s) returned empty headline", tc.ref)
		}
	}
}

func TestDiscordTime(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	want := fmt.Sprintf("<t:%d:F>", at.Unix())
	if got := discordTime(at, 'F'); got != want {
		t.Fatalf("discordTime = %q, want %q", got, want)
	}
}

func TestReminderEmbedFields(t *testing.T) {
	t.Parallel()

	ends := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	it := &domain.Item{
		ID:        "0d9be90a-1111-2222-3333-444455556666",
		Kind:      domain.KindEvent,
		Title:     "standup",
		DueAt:     time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		EndsAt:    &ends,
		Assignees: []string{"u1", "u2"},
	}
	e := reminderEmbed(transport.ReminderNotice{Item: it, Ref: domain.StdRef(domain.Tag24h)})

	if e.Author == nil || e.Author.Name != "⏰ Due in 24 hours" {
		t.Fatalf("unexpected author: %+v", e.Author)
	}
	if len(e.Fields) != 3 {
		t.Fatalf("got %d fields, want 3 (deadline, ends, assigned)", len(e.Fields))
	}
	if !strings.Contains(e.Fields[2].Value, "<@u1>") || !strings.Contains(e.Fields[2].Value, "<@u2>") {
		t.Errorf("assignee field missing mentions: %q", e.Fields[2].Value)
	}
	if !strings.Contains(e.Footer.Text, "0d9be90a") {
		t.Errorf("footer should carry the short id: %q", e.Footer.Text)
	}
}

func TestListEmbedOrderAndTruncation(t *testing.T) {
	t.Parallel()

	base := time.Now().Add(time.Hour)
	var items []domain.Item
	for i := 0; i < maxListRows+3; i++ {
		items = append(items, domain.Item{
			ID:     fmt.Sprintf("item-%03d", i),
			Kind:   domain.KindTask,
			Title:  fmt.Sprintf("task %d", i),
			DueAt:  base.Add(time.Duration(maxListRows+3-i) * time.Hour), // reverse order on purpose
			Status: domain.StatusActive,
		})
	}

	e := listEmbed(domain.KindTask, items)
	lines := strings.Split(e.Description, "\n")
	if len(lines) != maxListRows+1 {
		t.Fatalf("got %d lines, want %d rows plus truncation note", len(lines), maxListRows+1)
	}
	if !strings.Contains(lines[0], fmt.Sprintf("task %d", maxListRows+2)) {
		t.Errorf("first row should be the soonest deadline, got %q", lines[0])
	}
	if !strings.Contains(lines[maxListRows], "3 more") {
		t.Errorf("missing truncation note: %q", lines[maxListRows])
	}
}

func TestListEmbedEmptyAndCompleted(t *testing.T) {
	t.Parallel()

	if e := listEmbed(domain.KindEvent, nil); e.Description != "Nothing here yet." {
		t.Errorf("empty list: %q", e.Description)
	}

	items := []domain.Item{{
		ID:     "abc",
		Title:  "shipped",
		DueAt:  time.Now().Add(-time.Hour),
		Status: domain.StatusCompleted,
	}}
	e := listEmbed(domain.KindTask, items)
	if !strings.HasPrefix(e.Description, "✅") {
		t.Errorf("completed row should be checked: %q", e.Description)
	}
}

func TestWeeklyEmbedRows(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	sum := transport.WeeklySummary{
		GuildID:      "g1",
		PeriodStart:  start,
		PeriodEnd:    start.AddDate(0, 0, 7),
		Total:        2,
		Completed:    1,
		Contributors: 1,
		Items: []transport.WeeklyItem{
			{Title: "write report", DueAt: start.Add(30 * time.Hour), Done: true},
			{Title: "plan offsite", DueAt: start.Add(90 * time.Hour), Group: true},
		},
	}
	e := weeklyEmbed(sum)
	if !strings.Contains(e.Description, "**2** due · **1** completed") {
		t.Errorf("missing counts line: %q", e.Description)
	}
	if !strings.Contains(e.Description, "✅ **write report**") {
		t.Errorf("missing done row: %q", e.Description)
	}
	if !strings.Contains(e.Description, "**plan offsite** 👥") {
		t.Errorf("missing group marker: %q", e.Description)
	}
}
