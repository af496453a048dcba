package discord

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"todobot/internal/domain"
	"todobot/internal/transport"
)

// maxListRows caps the rows a single list embed renders.
const maxListRows = 25

// Embed colors by urgency.
const (
	color72h     = 0x3498DB // blue
	color24h     = 0xF1C40F // yellow
	color5h      = 0xE67E22 // orange
	colorDue     = 0xE74C3C // red
	colorCustom  = 0x9B59B6 // purple
	colorSummary = 0x2ECC71 // green
)

func kindLabel(k domain.Kind) (emoji, noun string) {
	if k == domain.KindEvent {
		return "📅", "Event"
	}
	return "📝", "Task"
}

func refHeadline(ref domain.ReminderRef) (string, int) {
	if ref.IsCustom() {
		return "🔔 Reminder", colorCustom
	}
	switch ref.Std {
	case domain.Tag72h:
		return "⏰ Due in 3 days", color72h
	case domain.Tag24h:
		return "⏰ Due in 24 hours", color24h
	case domain.Tag5h:
		return "⏰ Due in 5 hours", color5h
	default:
		return "🚨 Deadline reached", colorDue
	}
}

// discordTime renders Discord's client-local timestamp markup, so every
// reader sees the instant in their own timezone.
func discordTime(t time.Time, style byte) string {
	return fmt.Sprintf("<t:%d:%c>", t.Unix(), style)
}

func mentionList(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, "<@"+id+">")
	}
	return strings.Join(parts, " ")
}

func reminderEmbed(n transport.ReminderNotice) *discordgo.MessageEmbed {
	it := n.Item
	headline, color := refHeadline(n.Ref)
	emoji, noun := kindLabel(it.Kind)

	e := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("%s %s", emoji, it.Title),
		Author: &discordgo.MessageEmbedAuthor{
			Name: headline,
		},
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "Deadline",
				Value:  discordTime(it.DueAt, 'F') + " (" + discordTime(it.DueAt, 'R') + ")",
				Inline: true,
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("%s · %s", noun, it.ShortID()),
		},
	}
	if it.Description != "" {
		e.Description = it.Description
	}
	if it.EndsAt != nil {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:   "Ends",
			Value:  discordTime(*it.EndsAt, 'F'),
			Inline: true,
		})
	}
	if m := mentionList(it.Assignees); m != "" {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:  "Assigned",
			Value: m,
		})
	}
	return e
}

func weeklyEmbed(sum transport.WeeklySummary) *discordgo.MessageEmbed {
	var b strings.Builder
	fmt.Fprintf(&b, "%s – %s\n", discordTime(sum.PeriodStart, 'D'), discordTime(sum.PeriodEnd.AddDate(0, 0, -1), 'D'))
	fmt.Fprintf(&b, "**%d** due · **%d** completed · **%d** contributors\n", sum.Total, sum.Completed, sum.Contributors)

	if len(sum.Items) > 0 {
		b.WriteString("\n")
	}
	for _, row := range sum.Items {
		status := "⏳"
		if row.Done {
			status = "✅"
		}
		group := ""
		if row.Group {
			group = " 👥"
		}
		fmt.Fprintf(&b, "%s **%s**%s — %s\n", status, row.Title, group, discordTime(row.DueAt, 'f'))
	}

	return &discordgo.MessageEmbed{
		Title:       "📊 Weekly recap",
		Description: strings.TrimRight(b.String(), "\n"),
		Color:       colorSummary,
	}
}

// listEmbed renders up to maxListRows items, soonest deadline first.
func listEmbed(kind domain.Kind, items []domain.Item) *discordgo.MessageEmbed {
	emoji, noun := kindLabel(kind)
	e := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("%s %ss", emoji, noun),
		Color: colorSummary,
	}
	if len(items) == 0 {
		e.Description = "Nothing here yet."
		return e
	}

	sorted := make([]domain.Item, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].DueAt.Before(sorted[b].DueAt) })

	now := time.Now()
	var b strings.Builder
	shown := sorted
	if len(shown) > maxListRows {
		shown = shown[:maxListRows]
	}
	for _, it := range shown {
		if it.Status == domain.StatusCompleted {
			fmt.Fprintf(&b, "✅ **%s** `%s`\n", it.Title, it.ShortID())
			continue
		}
		group := ""
		if len(it.Assignees) > 0 {
			group = " 👥"
		}
		fmt.Fprintf(&b, "⏳ **%s**%s — %s (%s) `%s`\n",
			it.Title, group, discordTime(it.DueAt, 'f'), humanDelta(it.DueAt.Sub(now)), it.ShortID())
	}
	if len(sorted) > maxListRows {
		fmt.Fprintf(&b, "…and %d more\n", len(sorted)-maxListRows)
	}
	e.Description = strings.TrimRight(b.String(), "\n")
	return e
}

func helpEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "📖 Commands",
		Color: colorSummary,
		Description: strings.Join([]string{
			"`/add` — add a task with a deadline",
			"`/addevent` — add an event with a start (and optional end)",
			"`/list` `/listevent` — open items; pass `all: true` to include done ones",
			"`/listgroup` — tasks with assignees",
			"`/edit` — change title, description, or deadline by id",
			"`/done` `/doneevent` — mark an item completed",
			"`/assign` — assign up to three members to a task",
			"`/setreminder` — extra reminder, e.g. `2h` before or `2026-09-01 18:00`",
			"`/settimezone` — your IANA zone for deadline input",
			"`/setchannel` — where reminders post (Manage Server only)",
			"`/checknow` — run a reminder pass immediately",
			"`/ping` — gateway latency",
			"",
			"Deadlines use `YYYY-MM-DD HH:MM` in your timezone. Items are addressed by a unique id prefix or their position in the list.",
		}, "\n"),
	}
}

// humanDelta renders a duration as "2d 5h 30m", dropping zero components.
// Negative durations read as overdue.
func humanDelta(d time.Duration) string {
	prefix := ""
	if d < 0 {
		prefix = "-"
		d = -d
	}
	d = d.Round(time.Minute)
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	mins := int(d%time.Hour) / int(time.Minute)

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if mins > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%dm", mins))
	}
	return prefix + strings.Join(parts, " ")
}
