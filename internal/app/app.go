package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"todobot/internal/config"
	"todobot/internal/eventbus"
	"todobot/internal/notify"
	"todobot/internal/observability/pprof"
	"todobot/internal/reminder"
	"todobot/internal/scheduler"
	"todobot/internal/storage"
	"todobot/internal/transport/discord"
	"todobot/pkg/logx"
)

const (
	jobReminderTick  = "reminder.tick"
	jobWeeklySummary = "weekly.summary"

	defaultTick           = time.Minute
	defaultWeeklySchedule = "cron:0 20 * * 0" // Sunday 20:00 in the weekly timezone
)

// App wires every service together and owns their lifecycle.
type App struct {
	cfgm *config.Manager

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store *storage.Store

	session *discordgo.Session
	gateway *discord.Service

	notif  *notify.Service
	sched  *scheduler.Service
	engine *reminder.Engine
	weekly *reminder.Aggregator
	debug  *pprof.Service

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	session, err := discord.NewSession(cfg.Discord.Token)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	adapter := discord.NewAdapter(session, log.With(logx.String("comp", "discord")))

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	notif := notify.New(ncfg, adapter, log.With(logx.String("comp", "notify")), bus)

	grace, err := config.ParseDurationField("reminder.grace", cfg.Reminder.Grace)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	rules := reminder.NewRuleSet(reminder.RuleConfig{
		Offsets: cfg.OffsetDurations(),
		Grace:   grace,
	})

	sendTimeout, err := config.ParseDurationField("reminder.send_timeout", cfg.Reminder.SendTimeout)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}
	disp := reminder.NewDispatcher(notif, store, sendTimeout, log.With(logx.String("comp", "dispatch")))
	engine := reminder.NewEngine(store, rules, disp, bus, log.With(logx.String("comp", "engine")))

	weeklyZone, err := loadZone(cfg.Reminder.Weekly.Timezone, cfg.Reminder.DefaultTimezone)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	weekly := reminder.NewAggregator(store, store, notif, weeklyZone, log.With(logx.String("comp", "weekly")))

	sched := scheduler.New(scheduler.Config{
		Workers:  2,
		Timezone: weeklyZone.String(),
	}, log.With(logx.String("comp", "scheduler")), bus)

	cmds := discord.NewCommands(store, engine, rules, cfg.Reminder.DefaultTimezone, log.With(logx.String("comp", "commands")))
	gateway := discord.NewService(session, cfg.Discord.GuildID, cmds, log.With(logx.String("comp", "discord")))

	var debug *pprof.Service
	if p := cfg.Pprof; p != nil {
		debug = pprof.New(pprof.Config{
			Enabled: p.Enabled,
			Addr:    p.Addr,
			Token:   p.Token,
		}, log.With(logx.String("comp", "pprof")))
	}

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		session: session,
		gateway: gateway,
		notif:   notif,
		sched:   sched,
		engine:  engine,
		weekly:  weekly,
		debug:   debug,
	}, nil
}

// Start connects the gateway, schedules the periodic jobs and spawns the
// config watcher. It returns once everything is running.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.sched.Start(runCtx)
	if err := a.registerJobs(a.cfgm.Get()); err != nil {
		cancel()
		return err
	}

	if err := a.gateway.Start(runCtx); err != nil {
		cancel()
		return err
	}

	if a.debug != nil && a.debug.Enabled() {
		if err := a.debug.Start(runCtx); err != nil {
			a.log.Warn("pprof start failed", logx.Err(err))
		}
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Error("config watcher stopped", logx.Err(err))
		}
	}()

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(runCtx, sub)
	}()

	events, unsub := a.bus.Subscribe(32)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsub()
		a.observeEvents(runCtx, events)
	}()

	a.log.Info("started")
	return nil
}

// observeEvents surfaces the engine's bus traffic that warrants operator
// attention. Pass summaries are already logged by the tick job.
func (a *App) observeEvents(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			switch data := e.Data.(type) {
			case reminder.DeliveryFailedEvent:
				a.log.Warn("delivery failed",
					logx.String("item", data.ItemID),
					logx.String("ref", data.Ref),
					logx.String("dest", data.Dest),
					logx.String("reason", data.Reason))
			case reminder.AutoDeleteEvent:
				a.log.Info("item auto-deleted",
					logx.String("item", data.ItemID),
					logx.String("title", data.Title),
					logx.String("guild", data.GuildID))
			}
		}
	}
}

// Stop tears services down in reverse order of Start.
func (a *App) Stop(ctx context.Context) {
	if err := a.gateway.Stop(ctx); err != nil {
		a.log.Warn("gateway stop", logx.Err(err))
	}
	if a.debug != nil {
		a.debug.Stop(ctx)
	}
	a.sched.Stop(ctx)
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close", logx.Err(err))
	}
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

// registerJobs upserts the evaluation tick and the weekly summary job from
// the given config. Disabled jobs are removed so a reload can toggle them.
func (a *App) registerJobs(cfg *config.Config) error {
	if cfg.ReminderEnabled() {
		tick, err := config.ParseDurationField("reminder.tick_interval", cfg.Reminder.TickInterval)
		if err != nil {
			return err
		}
		if tick <= 0 {
			tick = defaultTick
		}
		err = a.sched.Add(jobReminderTick, tick.String(), func(ctx context.Context) error {
			res, err := a.engine.EvaluateOnce(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			if n := len(res.Delivered) + len(res.Failed) + len(res.Deleted); n > 0 {
				a.log.Info("reminder pass",
					logx.Int("delivered", len(res.Delivered)),
					logx.Int("failed", len(res.Failed)),
					logx.Int("skipped", len(res.Skipped)),
					logx.Int("deleted", len(res.Deleted)))
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("schedule %s: %w", jobReminderTick, err)
		}
	} else {
		a.sched.Remove(jobReminderTick)
	}

	if cfg.WeeklyEnabled() {
		spec := cfg.Reminder.Weekly.Schedule
		if spec == "" {
			spec = defaultWeeklySchedule
		}
		err := a.sched.Add(jobWeeklySummary, spec, func(ctx context.Context) error {
			return a.weekly.Run(ctx, time.Now())
		})
		if err != nil {
			return fmt.Errorf("schedule %s: %w", jobWeeklySummary, err)
		}
	} else {
		a.sched.Remove(jobWeeklySummary)
	}
	return nil
}

// reloadLoop applies hot-reloadable config sections. Storage and reminder
// policy changes need a restart and only produce a warning.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts, keep only the newest.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			a.logs.Apply(mapLogConfig(cfg))

			if ncfg, err := mapNotifierConfig(cfg); err != nil {
				a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
			} else {
				a.notif.Apply(ncfg)
			}

			if err := a.registerJobs(cfg); err != nil {
				a.log.Warn("job reschedule failed; keeping previous", logx.Err(err))
			}

			if last != nil {
				if cfg.Storage != last.Storage {
					a.log.Warn("storage config changed; restart required")
				}
				if cfg.Reminder.Grace != last.Reminder.Grace ||
					!equalOffsets(cfg.Reminder.Offsets, last.Reminder.Offsets) {
					a.log.Warn("reminder policy changed; restart required")
				}
				if cfg.Discord != last.Discord {
					a.log.Warn("discord config changed; restart required")
				}
			}
			last = cfg
			a.log.Info("config reloaded")
		}
	}
}

func equalOffsets(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func loadZone(zones ...string) (*time.Location, error) {
	for _, tz := range zones {
		if tz == "" {
			continue
		}
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("unknown timezone %q: %w", tz, err)
		}
		return loc, nil
	}
	return time.UTC, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapNotifierConfig(cfg *config.Config) (notify.Config, error) {
	n := cfg.Notifier
	if n == nil {
		return notify.Config{}, nil
	}
	base, err := config.ParseDurationField("notifier.retry_base", n.RetryBase)
	if err != nil {
		return notify.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
	if err != nil {
		return notify.Config{}, err
	}
	return notify.Config{
		RatePerSec:    n.RatePerSec,
		Burst:         n.Burst,
		RetryMax:      n.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
	}, nil
}
