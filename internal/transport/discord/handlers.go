package discord

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"todobot/internal/domain"
	"todobot/internal/reminder"
	"todobot/internal/storage"
	"todobot/pkg/logx"
)

const commandTimeout = 10 * time.Second

type optMap map[string]*discordgo.ApplicationCommandInteractionDataOption

func options(i *discordgo.InteractionCreate) optMap {
	opts := i.ApplicationCommandData().Options
	m := make(optMap, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func (m optMap) str(name string) string {
	if o, ok := m[name]; ok {
		return strings.TrimSpace(o.StringValue())
	}
	return ""
}

func (m optMap) boolean(name string) bool {
	if o, ok := m[name]; ok {
		return o.BoolValue()
	}
	return false
}

// caller returns the invoking user, which lives in a different field for
// guild and DM interactions.
func caller(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil {
		return i.Member.User
	}
	return i.User
}

func (c *Commands) reply(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		c.log.Warn("interaction respond failed",
			logx.String("command", i.ApplicationCommandData().Name),
			logx.Err(err))
	}
}

func (c *Commands) replyEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, e *discordgo.MessageEmbed) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{e}},
	})
	if err != nil {
		c.log.Warn("interaction respond failed",
			logx.String("command", i.ApplicationCommandData().Name),
			logx.Err(err))
	}
}

// userZone resolves the caller's zone for deadline input, falling back to
// the configured default.
func (c *Commands) userZone(ctx context.Context, userID string) string {
	tz, err := c.store.UserTimezone(ctx, userID)
	if err != nil {
		c.log.Warn("timezone lookup failed", logx.String("user", userID), logx.Err(err))
	}
	if tz == "" {
		return c.defaultTZ
	}
	return tz
}

// userMessage maps internal errors onto text the user can act on.
func userMessage(err error) string {
	var pe *reminder.ParseError
	if errors.As(err, &pe) {
		return "❌ " + pe.Error()
	}
	var pie *reminder.PastInstantError
	if errors.As(err, &pie) {
		return "❌ That time is already in the past."
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "❌ No item with that id."
	case errors.Is(err, storage.ErrAmbiguousID):
		return "❌ That id matches more than one item; use more characters."
	default:
		return "❌ Something went wrong, try again."
	}
}

// upcomingTags lists the standard pre-deadline reminders that still lie in
// the future for a given deadline.
func (c *Commands) upcomingTags(due, now time.Time) []string {
	var tags []string
	for _, tag := range domain.StandardTags {
		if tag == domain.TagDue {
			continue
		}
		if due.Add(-c.rules.Offset(tag)).After(now) {
			tags = append(tags, string(tag))
		}
	}
	return tags
}

// inScope reports whether the item is visible from this interaction: same
// guild, or owned by the caller for DM items.
func inScope(i *discordgo.InteractionCreate, it domain.Item) bool {
	if i.GuildID != "" {
		return it.GuildID == i.GuildID
	}
	return it.GuildID == "" && it.OwnerID == caller(i).ID
}

// upcoming filters the items a default listing shows: active items whose
// deadline has not passed, soonest first. Ordinal references resolve against
// this order.
func upcoming(items []domain.Item, now time.Time) []domain.Item {
	out := make([]domain.Item, 0, len(items))
	for _, it := range items {
		if it.Status == domain.StatusActive && it.DueAt.Before(now) {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].DueAt.Before(out[b].DueAt) })
	return out
}

// ordinal reports whether ref reads as a 1-based listing position rather
// than an id prefix.
func ordinal(ref string) (int, bool) {
	if len(ref) == 0 || len(ref) > 3 {
		return 0, false
	}
	n, err := strconv.Atoi(ref)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// findScoped resolves a reference (listing position or id prefix) to an item
// of the wanted kind that is visible from this interaction.
func (c *Commands) findScoped(ctx context.Context, i *discordgo.InteractionCreate, ref string, kind domain.Kind) (domain.Item, error) {
	if n, ok := ordinal(ref); ok {
		items, err := c.listItems(ctx, i, kind, false)
		if err != nil {
			return domain.Item{}, err
		}
		items = upcoming(items, time.Now())
		if n > len(items) {
			return domain.Item{}, storage.ErrNotFound
		}
		return items[n-1], nil
	}

	it, err := c.store.FindItem(ctx, ref)
	if err != nil {
		return domain.Item{}, err
	}
	if it.Kind != kind || !inScope(i, it) {
		return domain.Item{}, storage.ErrNotFound
	}
	return it, nil
}

// findAny is findScoped for the kind-agnostic commands. Ordinals resolve
// against the task listing first, then the events.
func (c *Commands) findAny(ctx context.Context, i *discordgo.InteractionCreate, ref string) (domain.Item, error) {
	if _, ok := ordinal(ref); ok {
		it, err := c.findScoped(ctx, i, ref, domain.KindTask)
		if errors.Is(err, storage.ErrNotFound) {
			return c.findScoped(ctx, i, ref, domain.KindEvent)
		}
		return it, err
	}

	it, err := c.store.FindItem(ctx, ref)
	if err != nil {
		return domain.Item{}, err
	}
	if !inScope(i, it) {
		return domain.Item{}, storage.ErrNotFound
	}
	return it, nil
}

func (c *Commands) handleAdd(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	opts := options(i)
	user := caller(i)

	due, err := reminder.ResolveDeadline(opts.str("deadline"), c.userZone(ctx, user.ID))
	if err != nil {
		c.reply(s, i, userMessage(err), true)
		return
	}
	if !due.After(time.Now()) {
		c.reply(s, i, "❌ The deadline is already in the past.", true)
		return
	}

	it, err := c.store.CreateItem(ctx, domain.Item{
		Kind:        domain.KindTask,
		GuildID:     i.GuildID,
		OwnerID:     user.ID,
		Title:       opts.str("title"),
		Description: opts.str("description"),
		DueAt:       due,
	})
	if err != nil {
		c.log.Error("create task failed", logx.Err(err))
		c.reply(s, i, userMessage(err), true)
		return
	}
	msg := fmt.Sprintf("📝 **%s** — due %s (`%s`)", it.Title, discordTime(it.DueAt, 'F'), it.ShortID())
	if tags := c.upcomingTags(it.DueAt, time.Now()); len(tags) > 0 {
		msg += fmt.Sprintf("\nReminders %s before the deadline.", strings.Join(tags, ", "))
	}
	c.reply(s, i, msg, false)
}

func (c *Commands) handleAddEvent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	opts := options(i)
	user := caller(i)
	zone := c.userZone(ctx, user.ID)

	start, err := reminder.ResolveDeadline(opts.str("start"), zone)
	if err != nil {
		c.reply(s, i, userMessage(err), true)
		return
	}
	if !start.After(time.Now()) {
		c.reply(s, i, "❌ The start time is already in the past.", true)
		return
	}
	var ends *time.Time
	if raw := opts.str("end"); raw != "" {
		end, err := reminder.ResolveDeadline(raw, zone)
		if err != nil {
			c.reply(s, i, userMessage(err), true)
			return
		}
		if !end.After(start) {
			c.reply(s, i, "❌ The end time must be after the start.", true)
			return
		}
		ends = &end
	}

	it, err := c.store.CreateItem(ctx, domain.Item{
		Kind:        domain.KindEvent,
		GuildID:     i.GuildID,
		OwnerID:     user.ID,
		Title:       opts.str("title"),
		Description: opts.str("description"),
		DueAt:       start,
		EndsAt:      ends,
	})
	if err != nil {
		c.log.Error("create event failed", logx.Err(err))
		c.reply(s, i, userMessage(err), true)
		return
	}
	msg := fmt.Sprintf("📅 **%s** — starts %s (`%s`)", it.Title, discordTime(it.DueAt, 'F'), it.ShortID())
	if tags := c.upcomingTags(it.DueAt, time.Now()); len(tags) > 0 {
		msg += fmt.Sprintf("\nReminders %s before the start.", strings.Join(tags, ", "))
	}
	c.reply(s, i, msg, false)
}

func (c *Commands) listItems(ctx context.Context, i *discordgo.InteractionCreate, kind domain.Kind, all bool) ([]domain.Item, error) {
	if i.GuildID != "" {
		return c.store.ListGuild(ctx, i.GuildID, kind, all)
	}
	return c.store.ListOwner(ctx, caller(i).ID, kind)
}

func (c *Commands) handleList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	c.handleListKind(s, i, domain.KindTask)
}

func (c *Commands) handleListEvent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	c.handleListKind(s, i, domain.KindEvent)
}

func (c *Commands) handleListKind(s *discordgo.Session, i *discordgo.InteractionCreate, kind domain.Kind) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	all := options(i).boolean("all")
	items, err := c.listItems(ctx, i, kind, all)
	if err != nil {
		c.log.Error("list failed", logx.Err(err))
		c.reply(s, i, userMessage(err), true)
		return
	}
	if !all {
		items = upcoming(items, time.Now())
	}
	c.replyEmbed(s, i, listEmbed(kind, items))
}

func (c *Commands) handleListGroup(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		c.reply(s, i, "❌ This command only works in a server.", true)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	items, err := c.store.ListGuild(ctx, i.GuildID, domain.KindTask, false)
	if err != nil {
		c.log.Error("listgroup failed", logx.Err(err))
		c.reply(s, i, userMessage(err), true)
		return
	}
	var group []domain.Item
	for _, it := range upcoming(items, time.Now()) {
		if len(it.Assignees) > 0 {
			group = append(group, it)
		}
	}
	e := listEmbed(domain.KindTask, group)
	e.Title = "👥 Group tasks"
	c.replyEmbed(s, i, e)
}

func (c *Commands) handleEdit(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	opts := options(i)
	user := caller(i)

	it, err := c.findAny(ctx, i, opts.str("id"))
	if err != nil {
		c.reply(s, i, userMessage(err), true)
		return
	}

	if v := opts.str("title"); v != "" {
		it.Title = v
	}
	if v := opts.str("description"); v != "" {
		it.Description = v
	}
	deadlineChanged := false
	if v := opts.str("deadline"); v != "" {
		due, err := reminder.ResolveDeadline(v, c.userZone(ctx, user.ID))
		if err != nil {
			c.reply(s, i, userMessage(err), true)
			return
		}
		if !due.After(time.Now()) {
			c.reply(s, i, "❌ The new deadline is already in the past.", true)
			return
		}
		if !due.Equal(it.DueAt) {
			it.DueAt = due
			deadlineChanged = true
			// A moved deadline means a fresh reminder cycle.
			it.Fired = nil
		}
	}

	if err := c.store.UpdateItem(ctx, it); err != nil {
		c.log.Error("edit failed", logx.String("item", it.ID), logx.Err(err))
		c.reply(s, i, userMessage(err), true)
		return
	}
	msg := fmt.Sprintf("✏️ **%s** updated (`%s`)", it.Title, it.ShortID())
	if deadlineChanged {
		msg += fmt.Sprintf(" — now due %s", discordTime(it.DueAt, 'F'))
	}
	c.reply(s, i, msg, false)
}

func (c *Commands) handleDone(s *discordgo.Session, i *discordgo.InteractionCreate) {
	c.completeItem(s, i, domain.KindTask)
}

func (c *Commands) handleDoneEvent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	c.completeItem(s, i, domain.KindEvent)
}

func (c *Commands) completeItem(s *discordgo.Session, i *discordgo.InteractionCreate, kind domain.Kind) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	it, err := c.findScoped(ctx, i, options(i).str("id"), kind)
	if err != nil {
		c.reply(s, i, userMessage(err), true)
		return
	}
	if it.Status == domain.StatusCompleted {
		c.reply(s, i, fmt.Sprintf("**%s** is already done.", it.Title), true)
		return
	}
	now := time.Now().UTC()
	it.Status = domain.StatusCompleted
	it.CompletedAt = &now
	if err := c.store.UpdateItem(ctx, it); err != nil {
		c.log.Error("complete failed", logx.String("item", it.ID), logx.Err(err))
		c.reply(s, i, userMessage(err), true)
		return
	}
	verdict := "on time 🎉"
	if now.After(it.DueAt) {
		verdict = humanDelta(now.Sub(it.DueAt)) + " late"
	}
	c.reply(s, i, fmt.Sprintf("✅ **%s** done, %s.", it.Title, verdict), false)
}

func (c *Commands) handleAssign(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		c.reply(s, i, "❌ This command only works in a server.", true)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	opts := options(i)

	it, err := c.findScoped(ctx, i, opts.str("id"), domain.KindTask)
	if err != nil {
		c.reply(s, i, userMessage(err), true)
		return
	}

	have := make(map[string]bool, len(it.Assignees))
	for _, id := range it.Assignees {
		have[id] = true
	}
	var added []string
	for _, name := range []string{"member", "member2", "member3"} {
		o, ok := opts[name]
		if !ok {
			continue
		}
		u := o.UserValue(s)
		if u == nil || have[u.ID] {
			continue
		}
		have[u.ID] = true
		it.Assignees = append(it.Assignees, u.ID)
		added = append(added, u.ID)
	}
	if len(added) == 0 {
		c.reply(s, i, "Nothing to do; they are already assigned.", true)
		return
	}

	if err := c.store.UpdateItem(ctx, it); err != nil {
		c.log.Error("assign failed", logx.String("item", it.ID), logx.Err(err))
		c.reply(s, i, userMessage(err), true)
		return
	}
	c.reply(s, i, fmt.Sprintf("👥 **%s** assigned to %s", it.Title, mentionList(added)), false)
}

func (c *Commands) handleSetReminder(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	opts := options(i)
	user := caller(i)

	it, err := c.findAny(ctx, i, opts.str("id"))
	if err != nil {
		c.reply(s, i, userMessage(err), true)
		return
	}

	cr, err := reminder.ParseCustomReminder(opts.str("when"), c.userZone(ctx, user.ID), it.DueAt, time.Now().UTC(), user.ID)
	if err != nil {
		c.reply(s, i, userMessage(err), true)
		return
	}
	it.Custom = append(it.Custom, cr)
	if err := c.store.UpdateItem(ctx, it); err != nil {
		c.log.Error("setreminder failed", logx.String("item", it.ID), logx.Err(err))
		c.reply(s, i, userMessage(err), true)
		return
	}
	c.reply(s, i, fmt.Sprintf("🔔 Reminder for **%s** set at %s", it.Title, discordTime(cr.FireAt, 'F')), false)
}

func (c *Commands) handleSetTimezone(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	zone := options(i).str("zone")

	if _, err := time.LoadLocation(zone); err != nil {
		c.reply(s, i, fmt.Sprintf("❌ Unknown timezone %q; use an IANA name like Asia/Jakarta.", zone), true)
		return
	}
	if err := c.store.SetUserTimezone(ctx, caller(i).ID, zone); err != nil {
		c.log.Error("settimezone failed", logx.Err(err))
		c.reply(s, i, userMessage(err), true)
		return
	}
	c.reply(s, i, fmt.Sprintf("🌍 Timezone set to **%s**.", zone), true)
}

func (c *Commands) handleSetChannel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		c.reply(s, i, "❌ This command only works in a server.", true)
		return
	}
	if i.Member == nil || i.Member.Permissions&discordgo.PermissionManageServer == 0 {
		c.reply(s, i, "❌ You need the Manage Server permission for that.", true)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	opts := options(i)

	kind := domain.Kind(opts.str("kind"))
	ch := opts["channel"].ChannelValue(nil)
	if err := c.store.SetGuildChannel(ctx, i.GuildID, kind, ch.ID); err != nil {
		c.log.Error("setchannel failed", logx.Err(err))
		c.reply(s, i, userMessage(err), true)
		return
	}
	noun := "Task"
	if kind == domain.KindEvent {
		noun = "Event"
	}
	c.reply(s, i, fmt.Sprintf("📌 %s reminders will go to <#%s>.", noun, ch.ID), false)
}

// handleCheckNow defers the response first; a full pass can outlive the 3s
// interaction window when channels are slow.
func (c *Commands) handleCheckNow(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		c.log.Warn("interaction defer failed", logx.Err(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	content := ""
	if res, err := c.engine.EvaluateOnce(ctx, time.Now().UTC()); err != nil {
		c.log.Error("checknow failed", logx.Err(err))
		content = userMessage(err)
	} else {
		content = fmt.Sprintf("🔎 Pass done: %d delivered, %d failed, %d skipped, %d expired items removed.",
			len(res.Delivered), len(res.Failed), len(res.Skipped), len(res.Deleted))
	}
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		c.log.Warn("interaction edit failed", logx.Err(err))
	}
}

func (c *Commands) handlePing(s *discordgo.Session, i *discordgo.InteractionCreate) {
	c.reply(s, i, fmt.Sprintf("🏓 Pong! Gateway latency %s.", s.HeartbeatLatency().Round(time.Millisecond)), true)
}

func (c *Commands) handleHelp(s *discordgo.Session, i *discordgo.InteractionCreate) {
	c.replyEmbed(s, i, helpEmbed())
}
