// Package poller implements the client-side presence loop: it repeatedly
// asks the event store "anything for me?" and hands new events to a
// handler. The server never pushes; delivery is poll-only.
package poller

import (
	"context"
	"errors"
	"time"

	"telehealth-signaling/internal/events"
)

// ErrTransportUnavailable wraps poll failures reported through OnStalled.
var ErrTransportUnavailable = errors.New("poller: transport unavailable")

// PollFunc fetches events newer than the cursor. Usually a thin wrapper
// around events.Store.Poll or the HTTP poll endpoint.
type PollFunc func(ctx context.Context, since int64) ([]events.SignalEvent, error)

// Handler consumes a batch of events. Delivery is at-least-once: handlers
// must tolerate replays (de-duplicate by call id and event type).
type Handler func(batch []events.SignalEvent)

type Config struct {
	// Interval between polls. Defaults to 2 seconds.
	Interval time.Duration

	// Since resumes from a previously persisted cursor. Zero replays the
	// retained stream, which idempotent handlers absorb.
	Since int64

	// FailureThreshold is how many consecutive poll failures are swallowed
	// before OnStalled fires. Defaults to 3.
	FailureThreshold int

	// OnStalled is invoked once each time the failure threshold is
	// crossed. Optional.
	OnStalled func(err error)
}

// Poller runs one recipient's polling loop.
//
// Not safe for concurrent Run calls; one Poller per consumer.
type Poller struct {
	poll    PollFunc
	handler Handler
	cfg     Config

	cursor   int64
	failures int
}

func New(poll PollFunc, handler Handler, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	return &Poller{
		poll:    poll,
		handler: handler,
		cfg:     cfg,
		cursor:  cfg.Since,
	}
}

// Cursor returns the highest sequence observed so far. Persist it to
// resume after a restart.
func (p *Poller) Cursor() int64 { return p.cursor }

// Run polls until ctx is cancelled. The ticker is always stopped on exit;
// cancelling the context is how a component unmount or logout shuts the
// loop down without leaking a timer.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// First poll immediately; an incoming call should not wait a full tick.
	p.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	batch, err := p.poll(ctx, p.cursor)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// Transient failure: retry on the next tick. Only persistent
		// failure is surfaced.
		p.failures++
		if p.failures == p.cfg.FailureThreshold && p.cfg.OnStalled != nil {
			p.cfg.OnStalled(errors.Join(ErrTransportUnavailable, err))
		}
		return
	}
	p.failures = 0

	if len(batch) == 0 {
		return
	}
	for _, e := range batch {
		if e.Sequence > p.cursor {
			p.cursor = e.Sequence
		}
	}
	if p.handler != nil {
		p.handler(batch)
	}
}
