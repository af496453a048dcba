package discord

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"todobot/internal/domain"
	"todobot/internal/reminder"
	"todobot/internal/storage"
)

func TestOrdinal(t *testing.T) {
	t.Parallel()

	cases := []struct {
		ref string
		n   int
		ok  bool
	}{
		{"1", 1, true},
		{"25", 25, true},
		{"0", 0, false},
		{"-1", 0, false},
		{"1234", 0, false}, // four digits reads as an id prefix
		{"0d9be90a", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		n, ok := ordinal(tc.ref)
		if n != tc.n || ok != tc.ok {
			t.Errorf("ordinal(%q) = (%d, %v), want (%d, %v)", tc.ref, n, ok, tc.n, tc.ok)
		}
	}
}

func TestUpcomingFiltersAndSorts(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	items := []domain.Item{
		{ID: "late", Status: domain.StatusActive, DueAt: now.Add(-time.Hour)},
		{ID: "b", Status: domain.StatusActive, DueAt: now.Add(2 * time.Hour)},
		{ID: "a", Status: domain.StatusActive, DueAt: now.Add(time.Hour)},
		{ID: "done", Status: domain.StatusCompleted, DueAt: now.Add(-time.Hour)},
	}

	got := upcoming(items, now)
	var ids []string
	for _, it := range got {
		ids = append(ids, it.ID)
	}
	want := "done,a,b"
	if strings.Join(ids, ",") != want {
		t.Fatalf("upcoming order = %s, want %s", strings.Join(ids, ","), want)
	}
}

func TestInScope(t *testing.T) {
	t.Parallel()

	guildI := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		GuildID: "g1",
		Member:  &discordgo.Member{User: &discordgo.User{ID: "u1"}},
	}}
	dmI := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		User: &discordgo.User{ID: "u1"},
	}}

	cases := []struct {
		name string
		i    *discordgo.InteractionCreate
		it   domain.Item
		want bool
	}{
		{"same guild", guildI, domain.Item{GuildID: "g1"}, true},
		{"other guild", guildI, domain.Item{GuildID: "g2"}, false},
		{"dm item from guild", guildI, domain.Item{OwnerID: "u1"}, false},
		{"own dm item", dmI, domain.Item{OwnerID: "u1"}, true},
		{"foreign dm item", dmI, domain.Item{OwnerID: "u2"}, false},
		{"guild item from dm", dmI, domain.Item{GuildID: "g1", OwnerID: "u1"}, false},
	}
	for _, tc := range cases {
		if got := inScope(tc.i, tc.it); got != tc.want {
			t.Errorf("%s: inScope = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestUserMessage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{&reminder.ParseError{Input: "xx", Reason: "unrecognized"}, "cannot parse"},
		{&reminder.PastInstantError{Input: "1h"}, "already in the past"},
		{storage.ErrNotFound, "No item"},
		{storage.ErrAmbiguousID, "more than one"},
		{errors.New("disk on fire"), "Something went wrong"},
	}
	for _, tc := range cases {
		if got := userMessage(tc.err); !strings.Contains(got, tc.want) {
			t.Errorf("userMessage(%v) = %q, want substring %q", tc.err, got, tc.want)
		}
	}
}
