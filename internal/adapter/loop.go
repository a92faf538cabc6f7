package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/bpriyal/s2sGeoAdapter/internal/monitoring"
	"github.com/bpriyal/s2sGeoAdapter/internal/shm"
	"github.com/bpriyal/s2sGeoAdapter/internal/timeutil"
)

// DefaultPollInterval targets 2 Hz consumption.
const DefaultPollInterval = 500 * time.Millisecond

// DefaultGraceWindow is how long WaitForProducer polls before declaring the
// location service down.
const DefaultGraceWindow = 3 * time.Second

// graceProbeInterval paces liveness probes inside the grace window.
const graceProbeInterval = 100 * time.Millisecond

// Loop polls the transport and forwards context deltas into the session.
type Loop struct {
	reader   *shm.Reader
	session  Session
	clock    timeutil.Clock
	interval time.Duration
	grace    time.Duration

	lastHash  uint64
	forwarded uint64
}

// LoopOptions tune a Loop. Zero values select production defaults.
type LoopOptions struct {
	PollInterval time.Duration
	GraceWindow  time.Duration
	Clock        timeutil.Clock
}

// NewLoop wires a loop over an open reader and session.
func NewLoop(reader *shm.Reader, session Session, opts LoopOptions) *Loop {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.GraceWindow <= 0 {
		opts.GraceWindow = DefaultGraceWindow
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Loop{
		reader:   reader,
		session:  session,
		clock:    opts.Clock,
		interval: opts.PollInterval,
		grace:    opts.GraceWindow,
	}
}

// WaitForProducer polls the liveness flag for up to the grace window.
func (l *Loop) WaitForProducer(ctx context.Context) error {
	deadline := l.clock.Now().Add(l.grace)
	for {
		if l.reader.ProducerAlive() {
			return nil
		}
		if l.clock.Now().After(deadline) {
			return fmt.Errorf("location service not running")
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		l.clock.Sleep(graceProbeInterval)
	}
}

// Run polls until the context is cancelled or the producer goes away.
func (l *Loop) Run(ctx context.Context) error {
	monitoring.Logf("adapter: context loop started")
	ticker := l.clock.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("adapter: context loop stopped")
			return ctx.Err()
		case <-ticker.C():
			if !l.reader.ProducerAlive() {
				monitoring.Logf("adapter: producer gone, exiting loop")
				return fmt.Errorf("location service not running")
			}
			l.Tick()
		}
	}
}

// Tick performs one poll cycle and reports whether a context update was
// forwarded. Transient snapshot unavailability is silently re-polled next
// tick.
func (l *Loop) Tick() bool {
	ws, cf, err := l.reader.Snapshot()
	if err != nil {
		return false
	}

	h := ContextHash(&cf)
	if h == l.lastHash {
		return false
	}

	instruction := BuildSystemInstruction(&ws, &cf)
	if err := l.session.SendContext(instruction); err != nil {
		// Leave the hash untouched so the next tick retries the forward.
		monitoring.Logf("adapter: forward failed: %v", err)
		return false
	}
	l.lastHash = h
	l.forwarded++
	monitoring.Logf("adapter: context updated at %.6f, %.6f", ws.SmoothedLat, ws.SmoothedLon)
	return true
}

// Forwarded returns how many context updates have been sent.
func (l *Loop) Forwarded() uint64 { return l.forwarded }
