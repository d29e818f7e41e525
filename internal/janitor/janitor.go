package janitor

import (
	"context"
	"log/slog"
	"time"

	"telehealth-signaling/internal/events"
	"telehealth-signaling/internal/signaling"

	"github.com/robfig/cron/v3"
)

// Config controls the background maintenance sweep.
type Config struct {
	// Schedule is a cron spec; defaults to "@every 1m".
	Schedule string

	// RingTimeout bounds how long a call may stay ringing before the
	// sweep force-ends it.
	RingTimeout time.Duration

	// Retention bounds signal-event and terminal-session lifetime.
	Retention time.Duration
}

// Janitor runs periodic maintenance: expiring stale ringing calls and
// purging events and terminal sessions past retention. Sweeps are
// best-effort; a failed pass is logged and retried on the next tick.
type Janitor struct {
	cfg      Config
	svc      *signaling.Service
	store    events.Store
	registry signaling.Registry
	log      *slog.Logger

	cron  *cron.Cron
	clock func() time.Time
}

func New(cfg Config, svc *signaling.Service, store events.Store, registry signaling.Registry, log *slog.Logger) *Janitor {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	return &Janitor{
		cfg:      cfg,
		svc:      svc,
		store:    store,
		registry: registry,
		log:      log,
		clock:    time.Now,
	}
}

// Start schedules the sweep. Returns an error only for a bad schedule.
func (j *Janitor) Start() error {
	j.cron = cron.New()
	if _, err := j.cron.AddFunc(j.cfg.Schedule, func() {
		j.Sweep(context.Background())
	}); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}

// Sweep runs one maintenance pass immediately.
func (j *Janitor) Sweep(ctx context.Context) {
	now := j.clock().UTC()

	if j.cfg.RingTimeout > 0 {
		expired, err := j.svc.ExpireRinging(ctx, now.Add(-j.cfg.RingTimeout))
		if err != nil {
			j.log.Warn("ring-timeout sweep failed", "err", err)
		} else if expired > 0 {
			j.log.Info("expired ringing calls", "count", expired)
		}
	}

	if j.cfg.Retention > 0 {
		cutoff := now.Add(-j.cfg.Retention)
		if n, err := j.store.PurgeBefore(ctx, cutoff); err != nil {
			j.log.Warn("event retention sweep failed", "err", err)
		} else if n > 0 {
			j.log.Info("purged expired events", "count", n)
		}
		if j.registry != nil {
			if n, err := j.registry.PurgeTerminalBefore(ctx, cutoff); err != nil {
				j.log.Warn("session retention sweep failed", "err", err)
			} else if n > 0 {
				j.log.Info("purged terminal sessions", "count", n)
			}
		}
	}
}
