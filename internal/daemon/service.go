// Package daemon runs the producer side of the pipeline: it pulls raw
// samples, fuses them, detects cell transitions, refreshes context through
// the active provider and publishes the result to shared memory.
package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/bpriyal/s2sGeoAdapter/internal/fusion"
	"github.com/bpriyal/s2sGeoAdapter/internal/geo"
	"github.com/bpriyal/s2sGeoAdapter/internal/monitoring"
	"github.com/bpriyal/s2sGeoAdapter/internal/provider"
	"github.com/bpriyal/s2sGeoAdapter/internal/sensor"
	"github.com/bpriyal/s2sGeoAdapter/internal/shm"
	"github.com/bpriyal/s2sGeoAdapter/internal/timeutil"
)

// DefaultTickInterval targets 10 Hz production.
const DefaultTickInterval = 100 * time.Millisecond

// prefetchDistanceM is how far ahead along the heading the provider is asked
// to prefetch on each transition.
const prefetchDistanceM = 100.0

// logEvery throttles the progress log to one line per this many iterations.
const logEvery = 10

// Recorder persists fixes and context events for later analysis. The
// pipeline never reads them back; persistence is diagnostic only.
type Recorder interface {
	RecordFix(ws shm.WorldState) error
	RecordContext(ws shm.WorldState, cf shm.ContextFrame) error
}

// Options tune a Service. Zero values select production defaults.
type Options struct {
	TickInterval time.Duration
	CellLevel    int
	EnablePDR    bool
	Clock        timeutil.Clock
	Recorder     Recorder
	Resolver     geo.CellResolver
}

// Service owns the daemon tick. It is driven by Run on a single goroutine;
// Latest may be called from other goroutines (the HTTP API).
type Service struct {
	source   sensor.Source
	writer   *shm.Writer
	registry *provider.Registry
	filter   *fusion.Filter
	detector *geo.TransitionDetector
	recorder Recorder
	clock    timeutil.Clock
	interval time.Duration

	mu          sync.Mutex
	lastState   shm.WorldState
	lastContext shm.ContextFrame
	iterations  uint64
}

// NewService wires a service over its collaborators.
func NewService(source sensor.Source, writer *shm.Writer, registry *provider.Registry, opts Options) *Service {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Resolver == nil {
		opts.Resolver = geo.Index{}
	}
	filter := fusion.NewFilter()
	filter.EnablePDR(opts.EnablePDR)
	return &Service{
		source:   source,
		writer:   writer,
		registry: registry,
		filter:   filter,
		detector: geo.NewTransitionDetector(opts.Resolver, opts.CellLevel),
		recorder: opts.Recorder,
		clock:    opts.Clock,
		interval: opts.TickInterval,
	}
}

// Run ticks the service until the context is cancelled. The current tick
// completes before Run returns.
func (s *Service) Run(ctx context.Context) error {
	monitoring.Logf("daemon: service loop started")
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("daemon: service loop stopped")
			return ctx.Err()
		case <-ticker.C():
			s.Tick(ctx)
		}
	}
}

// Tick runs one full producer iteration: sample, fuse, resolve, enrich,
// publish.
func (s *Service) Tick(ctx context.Context) {
	sample, err := s.source.Next(ctx)
	if err != nil {
		if ctx.Err() == nil {
			monitoring.Logf("daemon: sensor read: %v", err)
		}
		return
	}
	s.step(sample)
}

func (s *Service) step(sample sensor.Sample) {
	// A rejected sample leaves the filter untouched; the smoothed state
	// below is then the last valid one, which is what gets republished.
	s.filter.Update(sample)

	ws := s.filter.SmoothedState()
	cell, changed := s.detector.Observe(ws.SmoothedLat, ws.SmoothedLon)
	ws.CellID = cell
	ws.CellLevel = int32(s.detector.Level())

	var cf shm.ContextFrame
	if changed {
		if active, name := s.registry.Active(); active != nil {
			cf = active.GetContext(ws.SmoothedLat, ws.SmoothedLon)
			active.PrefetchContext(ws.SmoothedLat, ws.SmoothedLon, sample.Heading, prefetchDistanceM)
			monitoring.Logf("daemon: cell boundary crossed: %#x (provider %s)", cell, name)
		}
	}

	s.writer.Publish(&ws, &cf)
	s.writer.SignalAlive()

	if s.recorder != nil {
		if err := s.recorder.RecordFix(ws); err != nil {
			monitoring.Logf("daemon: record fix: %v", err)
		}
		if changed && !cf.IsZero() {
			if err := s.recorder.RecordContext(ws, cf); err != nil {
				monitoring.Logf("daemon: record context: %v", err)
			}
		}
	}

	s.mu.Lock()
	s.lastState = ws
	s.lastContext = cf
	s.iterations++
	n := s.iterations
	s.mu.Unlock()

	if n%logEvery == 0 {
		monitoring.Logf("daemon: iteration %d lat=%.6f lon=%.6f cell=%#x",
			n, ws.SmoothedLat, ws.SmoothedLon, cell)
	}
}

// Latest returns the most recently published state and context.
func (s *Service) Latest() (shm.WorldState, shm.ContextFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastState, s.lastContext
}

// Iterations returns how many ticks have published.
func (s *Service) Iterations() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.iterations
}

// ResetFilter clears the fusion filter, for example after a long GPS
// outage.
func (s *Service) ResetFilter() {
	s.filter.Reset()
}
