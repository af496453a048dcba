package discord

import (
	"github.com/bwmarrin/discordgo"

	"todobot/internal/reminder"
	"todobot/internal/storage"
	"todobot/pkg/logx"
)

// Commands implements the slash command surface. Handlers resolve the
// calling user's timezone, mutate the store and answer inside the
// interaction; reminder delivery itself stays in the engine.
type Commands struct {
	store     *storage.Store
	engine    *reminder.Engine
	rules     *reminder.RuleSet
	defaultTZ string
	log       logx.Logger
}

func NewCommands(store *storage.Store, engine *reminder.Engine, rules *reminder.RuleSet, defaultTZ string, log logx.Logger) *Commands {
	if defaultTZ == "" {
		defaultTZ = "UTC"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Commands{
		store:     store,
		engine:    engine,
		rules:     rules,
		defaultTZ: defaultTZ,
		log:       log,
	}
}

func stringOpt(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        name,
		Description: desc,
		Required:    required,
	}
}

// Definitions returns the full command set for registration.
func (c *Commands) Definitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "add",
			Description: "Add a task with a deadline",
			Options: []*discordgo.ApplicationCommandOption{
				stringOpt("title", "What needs to be done", true),
				stringOpt("deadline", "Deadline as YYYY-MM-DD HH:MM in your timezone", true),
				stringOpt("description", "Extra details", false),
			},
		},
		{
			Name:        "addevent",
			Description: "Add an event with a start time",
			Options: []*discordgo.ApplicationCommandOption{
				stringOpt("title", "Event name", true),
				stringOpt("start", "Start as YYYY-MM-DD HH:MM in your timezone", true),
				stringOpt("end", "End as YYYY-MM-DD HH:MM (optional)", false),
				stringOpt("description", "Extra details", false),
			},
		},
		{
			Name:        "list",
			Description: "List tasks",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "all",
					Description: "Include completed tasks",
				},
			},
		},
		{
			Name:        "listevent",
			Description: "List events",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "all",
					Description: "Include completed events",
				},
			},
		},
		{
			Name:        "listgroup",
			Description: "List tasks that have assignees",
		},
		{
			Name:        "edit",
			Description: "Edit a task or event",
			Options: []*discordgo.ApplicationCommandOption{
				stringOpt("id", "Item id prefix or list position", true),
				stringOpt("title", "New title", false),
				stringOpt("deadline", "New deadline as YYYY-MM-DD HH:MM", false),
				stringOpt("description", "New description", false),
			},
		},
		{
			Name:        "done",
			Description: "Mark a task completed",
			Options: []*discordgo.ApplicationCommandOption{
				stringOpt("id", "Task id prefix or list position", true),
			},
		},
		{
			Name:        "doneevent",
			Description: "Mark an event completed",
			Options: []*discordgo.ApplicationCommandOption{
				stringOpt("id", "Event id prefix or list position", true),
			},
		},
		{
			Name:        "assign",
			Description: "Assign a task to members",
			Options: []*discordgo.ApplicationCommandOption{
				stringOpt("id", "Task id prefix or list position", true),
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "member",
					Description: "Member to assign",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "member2",
					Description: "Another member",
				},
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "member3",
					Description: "Another member",
				},
			},
		},
		{
			Name:        "setreminder",
			Description: "Add a custom reminder to an item",
			Options: []*discordgo.ApplicationCommandOption{
				stringOpt("id", "Item id prefix or list position", true),
				stringOpt("when", "Offset before deadline (30m, 5h, 1d, 2w) or YYYY-MM-DD HH:MM", true),
			},
		},
		{
			Name:        "settimezone",
			Description: "Set your timezone for deadline input",
			Options: []*discordgo.ApplicationCommandOption{
				stringOpt("zone", "IANA zone, e.g. Asia/Jakarta", true),
			},
		},
		{
			Name:        "setchannel",
			Description: "Choose where reminders for this server go",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "kind",
					Description: "Which reminders",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "tasks", Value: "task"},
						{Name: "events", Value: "event"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "channel",
					Description: "Target text channel",
					Required:    true,
					ChannelTypes: []discordgo.ChannelType{
						discordgo.ChannelTypeGuildText,
					},
				},
			},
		},
		{
			Name:        "checknow",
			Description: "Run a reminder pass immediately",
		},
		{
			Name:        "ping",
			Description: "Check that the bot is alive",
		},
		{
			Name:        "help",
			Description: "Show what the bot can do",
		},
	}
}

// Handle routes one interaction to its handler.
func (c *Commands) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	name := i.ApplicationCommandData().Name
	h, ok := c.handlers()[name]
	if !ok {
		c.log.Warn("unknown command", logx.String("command", name))
		return
	}
	h(s, i)
}

func (c *Commands) handlers() map[string]func(*discordgo.Session, *discordgo.InteractionCreate) {
	return map[string]func(*discordgo.Session, *discordgo.InteractionCreate){
		"add":         c.handleAdd,
		"addevent":    c.handleAddEvent,
		"list":        c.handleList,
		"listevent":   c.handleListEvent,
		"listgroup":   c.handleListGroup,
		"edit":        c.handleEdit,
		"done":        c.handleDone,
		"doneevent":   c.handleDoneEvent,
		"assign":      c.handleAssign,
		"setreminder": c.handleSetReminder,
		"settimezone": c.handleSetTimezone,
		"setchannel":  c.handleSetChannel,
		"checknow":    c.handleCheckNow,
		"ping":        c.handlePing,
		"help":        c.handleHelp,
	}
}
