package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"todobot/internal/eventbus"
	"todobot/pkg/logx"
)

// Config controls the job runner.
type Config struct {
	Workers     int
	Timezone    string // IANA TZ anchoring cron schedules, e.g. "Asia/Jakarta"
	HistorySize int
}

// HistoryItem is one finished job run.
type HistoryItem struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

// JobEvent is the bus payload for job.started / job.finished.
type JobEvent struct {
	Name    string        `json:"name"`
	Started time.Time     `json:"started"`
	Took    time.Duration `json:"took,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type job struct {
	name string
	run  func(ctx context.Context) error
}

type scheduleDef struct {
	name    string
	spec    ParsedSpec
	raw     string
	run     func(ctx context.Context) error
	running bool
	entryID cron.EntryID
}

// Service runs named jobs on cron or interval schedules through a small
// worker pool. A job still running when its schedule fires again is skipped,
// not queued twice.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	bus eventbus.Bus
	cfg Config

	parser cron.Parser
	c      *cron.Cron
	loc    *time.Location
	defs   []*scheduleDef

	queue     chan job
	stopCh    chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log,
		bus: bus,
		// SecondOptional allows both 5-field and 6-field cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Add registers a named job. Registering an existing name replaces its
// schedule, which keeps hot-reloads idempotent. The job starts firing once
// Start has run.
func (s *Service) Add(name, rawSpec string, run func(ctx context.Context) error) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("job name required")
	}
	spec, err := ParseSchedule(rawSpec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	d := &scheduleDef{name: name, spec: spec, raw: rawSpec, run: run}
	s.defs = append(s.defs, d)
	if s.c != nil {
		if err := s.registerLocked(d); err != nil {
			return err
		}
	}
	s.log.Debug("schedule registered",
		logx.String("job", name), logx.String("spec", rawSpec))
	return nil
}

// Remove drops a named job.
func (s *Service) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
}

func (s *Service) removeLocked(name string) {
	for i, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			s.defs = append(s.defs[:i], s.defs[i+1:]...)
			return
		}
	}
}

func (s *Service) registerLocked(d *scheduleDef) error {
	spec := d.spec.Cron
	if d.spec.Kind == SpecInterval {
		spec = fmt.Sprintf("@every %s", d.spec.Every)
	}
	id, err := s.c.AddFunc(spec, func() { s.fire(d) })
	if err != nil {
		return fmt.Errorf("register %s: %w", d.name, err)
	}
	d.entryID = id
	return nil
}

// fire enqueues one run of a schedule, skipping when the previous run is
// still in flight.
func (s *Service) fire(d *scheduleDef) {
	s.mu.Lock()
	q := s.queue
	if q == nil || d.running {
		busy := d.running
		s.mu.Unlock()
		if busy {
			s.log.Debug("job still running; tick skipped", logx.String("job", d.name))
		}
		return
	}
	d.running = true
	s.mu.Unlock()

	j := job{name: d.name, run: func(ctx context.Context) error {
		defer func() {
			s.mu.Lock()
			d.running = false
			s.mu.Unlock()
		}()
		return d.run(ctx)
	}}
	select {
	case q <- j:
	default:
		s.mu.Lock()
		d.running = false
		s.mu.Unlock()
		s.log.Warn("scheduler queue full; tick dropped", logx.String("job", d.name))
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	loc := time.UTC
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		} else {
			s.log.Warn("unknown scheduler timezone; using UTC", logx.String("tz", tz))
		}
	}
	s.loc = loc

	s.stopCh = make(chan struct{})
	s.queue = make(chan job, 64)
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for _, d := range s.defs {
		if err := s.registerLocked(d); err != nil {
			s.log.Error("schedule register failed", logx.String("job", d.name), logx.Err(err))
		}
	}

	runCtx := s.runCtx
	stopCh := s.stopCh
	queue := s.queue
	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in scheduler worker",
						logx.Int("worker", idx),
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
				}
			}()
			s.worker(runCtx, stopCh, queue)
		}()
	}
	s.c.Start()
	s.log.Info("scheduler started",
		logx.Int("workers", workers),
		logx.String("tz", loc.String()),
		logx.Int("schedules", len(s.defs)))
}

// Stop halts the cron triggers, signals workers and waits for them until ctx
// expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	cancel := s.runCancel
	c := s.c
	s.c = nil
	s.stopCh = nil
	s.queue = nil
	s.runCancel = nil
	s.runCtx = nil
	for _, d := range s.defs {
		d.entryID = 0
	}
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; workers finishing in background")
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case j := <-queue:
			s.execOne(ctx, j)
		}
	}
}

func (s *Service) execOne(ctx context.Context, j job) {
	start := time.Now()
	s.publish("job.started", JobEvent{Name: j.name, Started: start})

	err := j.run(ctx)
	took := time.Since(start)

	item := HistoryItem{Name: j.name, Started: start, Duration: took}
	ev := JobEvent{Name: j.name, Started: start, Took: took}
	if err != nil {
		item.Error = err.Error()
		ev.Error = err.Error()
		s.log.Warn("job failed",
			logx.String("job", j.name),
			logx.Duration("took", took),
			logx.Err(err))
	} else {
		s.log.Debug("job finished",
			logx.String("job", j.name),
			logx.Duration("took", took))
	}
	s.appendHistory(item)
	s.publish("job.finished", ev)
}

func (s *Service) publish(typ string, data JobEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

func (s *Service) appendHistory(item HistoryItem) {
	max := s.cfg.HistorySize
	if max <= 0 {
		max = 100
	}
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
	s.hmu.Unlock()
}

// History returns a copy of recent job runs, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

// NextRun reports when the named job fires next. Zero when the scheduler is
// stopped or the job is unknown.
func (s *Service) NextRun(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}
	}
	for _, d := range s.defs {
		if d.name == name && d.entryID != 0 {
			return s.c.Entry(d.entryID).Next
		}
	}
	return time.Time{}
}
