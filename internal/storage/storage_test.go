package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"todobot/internal/domain"
	"todobot/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testItem(due time.Time) domain.Item {
	return domain.Item{
		Kind:    domain.KindTask,
		GuildID: "g1",
		OwnerID: "u1",
		Title:   "write report",
		DueAt:   due,
	}
}

func TestCreateGetRoundtrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	due := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	in := testItem(due)
	in.Assignees = []string{"u2", "u3"}
	in.Description = "quarterly numbers"
	in.Custom = []domain.CustomReminder{{FireAt: due.Add(-36 * time.Hour), CreatedBy: "u1"}}

	created, err := s.CreateItem(ctx, in)
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if created.ID == "" {
		t.Fatal("CreateItem did not assign an id")
	}

	got, err := s.GetItem(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Title != in.Title || got.Description != in.Description {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
	if !got.DueAt.Equal(due) {
		t.Fatalf("DueAt = %v, want %v", got.DueAt, due)
	}
	if len(got.Assignees) != 2 || got.Assignees[0] != "u2" {
		t.Fatalf("Assignees = %v", got.Assignees)
	}
	if len(got.Custom) != 1 || got.Custom[0].Fired || got.Custom[0].CreatedBy != "u1" {
		t.Fatalf("Custom = %+v", got.Custom)
	}
	if got.Status != domain.StatusActive {
		t.Fatalf("Status = %v, want active", got.Status)
	}

	if _, err := s.GetItem(ctx, "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetItem(missing) = %v, want ErrNotFound", err)
	}
}

func TestConditionalMarkFiredWinsOnce(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	it, err := s.CreateItem(ctx, testItem(time.Now().Add(48*time.Hour).UTC()))
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	won, err := s.ConditionalMarkFired(ctx, it.ID, domain.StdRef(domain.Tag72h))
	if err != nil || !won {
		t.Fatalf("first mark: won=%v err=%v, want win", won, err)
	}
	won, err = s.ConditionalMarkFired(ctx, it.ID, domain.StdRef(domain.Tag72h))
	if err != nil || won {
		t.Fatalf("second mark: won=%v err=%v, want loss without error", won, err)
	}
	// A different tag is an independent reservation.
	won, err = s.ConditionalMarkFired(ctx, it.ID, domain.StdRef(domain.Tag24h))
	if err != nil || !won {
		t.Fatalf("other tag: won=%v err=%v, want win", won, err)
	}

	got, err := s.GetItem(ctx, it.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if !got.HasFired(domain.Tag72h) || !got.HasFired(domain.Tag24h) || got.HasFired(domain.Tag5h) {
		t.Fatalf("fired set = %v", got.Fired)
	}
}

func TestConditionalMarkFiredCustom(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	due := time.Now().Add(72 * time.Hour).UTC()
	in := testItem(due)
	in.Custom = []domain.CustomReminder{
		{FireAt: due.Add(-40 * time.Hour)},
		{FireAt: due.Add(-10 * time.Hour)},
	}
	it, err := s.CreateItem(ctx, in)
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	won, err := s.ConditionalMarkFired(ctx, it.ID, domain.CustomRef(1))
	if err != nil || !won {
		t.Fatalf("custom mark: won=%v err=%v, want win", won, err)
	}
	won, err = s.ConditionalMarkFired(ctx, it.ID, domain.CustomRef(1))
	if err != nil || won {
		t.Fatalf("repeat custom mark: won=%v err=%v, want loss", won, err)
	}
	// Out-of-range index is a loss, not an error.
	won, err = s.ConditionalMarkFired(ctx, it.ID, domain.CustomRef(5))
	if err != nil || won {
		t.Fatalf("out-of-range mark: won=%v err=%v, want loss", won, err)
	}

	got, err := s.GetItem(ctx, it.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Custom[0].Fired || !got.Custom[1].Fired {
		t.Fatalf("custom fired flags = %+v", got.Custom)
	}

	// Marking on a deleted item is a silent loss.
	if err := s.Delete(ctx, it.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	won, err = s.ConditionalMarkFired(ctx, it.ID, domain.CustomRef(0))
	if err != nil || won {
		t.Fatalf("mark on deleted item: won=%v err=%v, want loss", won, err)
	}
}

func TestFindItemPrefix(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	due := time.Now().Add(24 * time.Hour).UTC()

	a := testItem(due)
	a.ID = "abc12345-0000"
	b := testItem(due)
	b.ID = "abd99999-0000"
	for _, it := range []domain.Item{a, b} {
		if _, err := s.CreateItem(ctx, it); err != nil {
			t.Fatalf("CreateItem: %v", err)
		}
	}

	got, err := s.FindItem(ctx, "abc")
	if err != nil {
		t.Fatalf("FindItem: %v", err)
	}
	if got.ID != a.ID {
		t.Fatalf("FindItem = %s, want %s", got.ID, a.ID)
	}
	if _, err := s.FindItem(ctx, "ab"); !errors.Is(err, ErrAmbiguousID) {
		t.Fatalf("FindItem(ambiguous) = %v, want ErrAmbiguousID", err)
	}
	if _, err := s.FindItem(ctx, "zzz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindItem(missing) = %v, want ErrNotFound", err)
	}
}

func TestListQueries(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC)

	later := testItem(base.Add(72 * time.Hour))
	sooner := testItem(base.Add(24 * time.Hour))
	done := testItem(base.Add(48 * time.Hour))
	done.Status = domain.StatusCompleted
	event := testItem(base.Add(12 * time.Hour))
	event.Kind = domain.KindEvent
	personal := testItem(base.Add(36 * time.Hour))
	personal.GuildID = ""

	for _, it := range []domain.Item{later, sooner, done, event, personal} {
		if _, err := s.CreateItem(ctx, it); err != nil {
			t.Fatalf("CreateItem: %v", err)
		}
	}

	active, err := s.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 4 {
		t.Fatalf("ListActive = %d items, want 4", len(active))
	}
	for i := 1; i < len(active); i++ {
		if active[i].DueAt.Before(active[i-1].DueAt) {
			t.Fatal("ListActive not ordered by deadline")
		}
	}

	tasks, err := s.ListGuild(ctx, "g1", domain.KindTask, false)
	if err != nil {
		t.Fatalf("ListGuild: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("guild tasks = %d, want 2 active", len(tasks))
	}
	all, err := s.ListGuild(ctx, "g1", domain.KindTask, true)
	if err != nil {
		t.Fatalf("ListGuild with completed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("guild tasks incl completed = %d, want 3", len(all))
	}

	mine, err := s.ListOwner(ctx, "u1", domain.KindTask)
	if err != nil {
		t.Fatalf("ListOwner: %v", err)
	}
	if len(mine) != 1 || mine[0].GuildID != "" {
		t.Fatalf("owner items = %+v, want the guildless one", mine)
	}

	week, err := s.ListByDeadline(ctx, base, base.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("ListByDeadline: %v", err)
	}
	// 12h, 24h and 36h fall inside [base, base+48h); completed 48h is the
	// half-open boundary and excluded.
	if len(week) != 3 {
		t.Fatalf("ListByDeadline = %d items, want 3", len(week))
	}
}

func TestLegacyFiredTagsNormalized(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	due := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	// Row written by an earlier schema generation: day-count tag names plus
	// one tag that no longer exists.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items(id, kind, guild_id, owner_id, title, due_at, fired, created_at)
		 VALUES('legacy-1', 'task', 'g1', 'u1', 'old row', ?, '["3d","1d","gone"]', ?)`,
		due.UnixMilli(), due.Add(-100*time.Hour).UnixMilli())
	if err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}

	got, err := s.GetItem(ctx, "legacy-1")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if !got.HasFired(domain.Tag72h) || !got.HasFired(domain.Tag24h) {
		t.Fatalf("legacy tags not normalized: %v", got.Fired)
	}
	if len(got.Fired) != 2 {
		t.Fatalf("fired = %v, want unknown tag dropped", got.Fired)
	}
}

func TestConditionalMarkFiredLegacyRow(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()
	due := time.Now().Add(48 * time.Hour).UTC()

	// The guard must match the column text as stored, day-count spelling
	// included, or reservations on migrated rows are lost forever.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items(id, kind, guild_id, owner_id, title, due_at, fired, created_at)
		 VALUES('legacy-2', 'task', 'g1', 'u1', 'old row', ?, '["3d"]', ?)`,
		due.UnixMilli(), due.Add(-100*time.Hour).UnixMilli())
	if err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}

	won, err := s.ConditionalMarkFired(ctx, "legacy-2", domain.StdRef(domain.Tag72h))
	if err != nil || won {
		t.Fatalf("legacy-spelled tag: won=%v err=%v, want loss", won, err)
	}
	won, err = s.ConditionalMarkFired(ctx, "legacy-2", domain.StdRef(domain.Tag24h))
	if err != nil || !won {
		t.Fatalf("new tag on legacy row: won=%v err=%v, want win", won, err)
	}

	got, err := s.GetItem(ctx, "legacy-2")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if !got.HasFired(domain.Tag72h) || !got.HasFired(domain.Tag24h) {
		t.Fatalf("fired set = %v", got.Fired)
	}
}

func TestUserAndGuildSettings(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	tz, err := s.UserTimezone(ctx, "u1")
	if err != nil || tz != "" {
		t.Fatalf("unset timezone = %q, %v", tz, err)
	}
	if err := s.SetUserTimezone(ctx, "u1", "Asia/Jakarta"); err != nil {
		t.Fatalf("SetUserTimezone: %v", err)
	}
	if err := s.SetUserTimezone(ctx, "u1", "Europe/Berlin"); err != nil {
		t.Fatalf("SetUserTimezone update: %v", err)
	}
	tz, err = s.UserTimezone(ctx, "u1")
	if err != nil || tz != "Europe/Berlin" {
		t.Fatalf("timezone = %q, %v", tz, err)
	}

	if err := s.SetGuildChannel(ctx, "g1", domain.KindTask, "c-task"); err != nil {
		t.Fatalf("SetGuildChannel: %v", err)
	}
	if err := s.SetGuildChannel(ctx, "g1", domain.KindEvent, "c-event"); err != nil {
		t.Fatalf("SetGuildChannel event: %v", err)
	}
	ch, err := s.ChannelFor(ctx, "g1", domain.KindTask)
	if err != nil || ch != "c-task" {
		t.Fatalf("ChannelFor task = %q, %v", ch, err)
	}
	ch, err = s.ChannelFor(ctx, "g1", domain.KindEvent)
	if err != nil || ch != "c-event" {
		t.Fatalf("ChannelFor event = %q, %v", ch, err)
	}
	ch, err = s.ChannelFor(ctx, "g-unknown", domain.KindTask)
	if err != nil || ch != "" {
		t.Fatalf("ChannelFor unknown guild = %q, %v", ch, err)
	}
}
