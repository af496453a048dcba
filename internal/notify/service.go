package notify

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"todobot/internal/eventbus"
	"todobot/internal/transport"
	"todobot/pkg/logx"
)

// Config tunes the outbound pipeline. Zero values fall back to defaults
// sized for Discord's per-bot rate limits.
type Config struct {
	RatePerSec    int
	Burst         int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	AttemptBound  time.Duration
	HistorySize   int
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.Burst <= 0 {
		c.Burst = c.RatePerSec
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.AttemptBound <= 0 {
		c.AttemptBound = 10 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	return c
}

// HistoryItem is one delivered send, kept in a bounded ring for the status
// command.
type HistoryItem struct {
	At   time.Time
	Kind string
	Dest string
}

// Service wraps the platform adapter with rate limiting and bounded
// in-flight retry. It implements transport.Notifier itself, so callers see
// one synchronous send whose result reflects the final attempt.
//
// Retries happen only within the call: the reminder engine marks reminders
// fired before sending, so a send that exhausts its attempts is reported
// failed and never re-sent on later passes.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	next transport.Notifier
	log  logx.Logger
	bus  eventbus.Bus

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, next transport.Notifier, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{next: next, log: log, bus: bus}
	s.applyLocked(cfg)
	return s
}

// Apply swaps the tuning at runtime. In-flight sends keep the snapshot they
// started with.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	cfg = cfg.withDefaults()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
}

func (s *Service) SendReminders(ctx context.Context, d transport.Delivery) error {
	return s.send(ctx, "reminders", d.Dest.Key(), func(ctx context.Context) error {
		return s.next.SendReminders(ctx, d)
	})
}

func (s *Service) SendWeeklySummary(ctx context.Context, dest transport.Destination, sum transport.WeeklySummary) error {
	return s.send(ctx, "weekly", dest.Key(), func(ctx context.Context) error {
		return s.next.SendWeeklySummary(ctx, dest, sum)
	})
}

func (s *Service) send(ctx context.Context, kind, dest string, call func(context.Context) error) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	attempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.AttemptBound)
		err := call(callCtx)
		cancel()
		if err == nil {
			s.appendHistory(HistoryItem{At: time.Now(), Kind: kind, Dest: dest})
			s.publish("notify.sent", SendEvent{Kind: kind, Dest: dest, Attempt: attempt})
			return nil
		}
		lastErr = err
		s.log.Debug("notify: send failed",
			logx.String("kind", kind),
			logx.String("dest", dest),
			logx.Int("attempt", attempt),
			logx.Int("max", attempts),
			logx.Err(err))

		if attempt >= attempts {
			break
		}
		delay := retryDelay(cfg, attempt)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return ctx.Err()
		}
	}

	s.publish("notify.failed", SendEvent{Kind: kind, Dest: dest, Attempt: attempts, Error: lastErr.Error()})
	return lastErr
}

// SendEvent is the bus payload for notify.sent / notify.failed.
type SendEvent struct {
	Kind    string `json:"kind"`
	Dest    string `json:"dest"`
	Attempt int    `json:"attempt"`
	Error   string `json:"error,omitempty"`
}

func (s *Service) publish(typ string, data SendEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// Snapshot returns a copy of the recent delivery history, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(item HistoryItem) {
	s.mu.Lock()
	max := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
	s.hmu.Unlock()
}

// retryDelay computes the exponential backoff before the next attempt, with
// 0.7..1.3 jitter so parallel retries don't synchronize.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	if d < 0 {
		return 0
	}
	return d
}
