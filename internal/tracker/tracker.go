// Package tracker runs the 1 Hz polling loop that watches the simulator's
// pit phases and turns pit-outs into persisted stints. One tracker process
// is one registered agent; several agents may watch the same session and
// converge through the store's dedup key.
package tracker

import (
	"context"
	"errors"
	"io"
	"time"

	"goa.design/clue/log"

	"github.com/stintworks/stintflow/internal/clock"
	"github.com/stintworks/stintflow/internal/logging"
	"github.com/stintworks/stintflow/internal/store"
	"github.com/stintworks/stintflow/internal/telemetry"
	"github.com/stintworks/stintflow/internal/tires"
)

const (
	defaultPollInterval = time.Second
	cleanupEvery        = 5 * time.Second
)

// Store is the slice of the document store the tracker drives.
// *store.Client implements it; --dry-run substitutes a no-op.
type Store interface {
	UpsertStint(ctx context.Context, st store.Stint) (store.UpsertResult, error)
	LatestBucket(ctx context.Context, sessionID string) (string, error)
	RegisterAgent(ctx context.Context, name string, now time.Time) error
	Heartbeat(ctx context.Context, name string, now time.Time) error
	CleanupAgents(ctx context.Context, now time.Time) (int64, error)
	UnregisterAgent(ctx context.Context, name string) error
}

// CompoundSource fills tire compounds on a captured snapshot. Usually a
// *tires.Extractor; nil skips the lookup and leaves compounds Unknown.
type CompoundSource interface {
	Annotate(ctx context.Context, s *tires.Snapshot)
}

// Options configures a Tracker.
type Options struct {
	SessionID string
	Drivers   []string
	Practice  bool
	AgentName string
	// RaceLength seeds the practice baseline when the session has no
	// persisted stints yet.
	RaceLength string
	Reader     telemetry.Reader
	Compounds  CompoundSource
	Store      Store
	// Events receives the structured protocol lines the UI subscribes to.
	Events       io.Writer
	PollInterval time.Duration
}

// Tracker is the pit state machine plus its housekeeping. All fields are
// owned by the polling goroutine; there is no shared mutable state.
type Tracker struct {
	opts Options

	state             PitState
	trackingEnabled   bool
	pitStopInProgress bool
	sawComingIn       bool
	inStall           bool

	incoming       tires.Snapshot
	incomingDriver string

	garageSnapshot   int
	practiceBaseline int

	penaltyBaseline int
	penaltySeeded   bool

	lastCleanup time.Time
}

// New builds a Tracker. Race mode tracks from the first tick; practice mode
// stays disarmed until the player establishes a garage baseline.
func New(opts Options) *Tracker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Tracker{
		opts:            opts,
		state:           PitOnTrack,
		trackingEnabled: !opts.Practice,
	}
}

// Run registers the agent and polls until the context is cancelled. A name
// conflict is fatal: the tracker surfaces it and refuses to track.
func (t *Tracker) Run(ctx context.Context) error {
	now := time.Now().UTC()
	if err := t.opts.Store.RegisterAgent(ctx, t.opts.AgentName, now); err != nil {
		if errors.Is(err, store.ErrNameConflict) {
			logging.EmitLine(t.opts.Events, logging.KindError, logging.EventRegistrationConflict)
		}
		return err
	}
	t.lastCleanup = now
	log.Printf(ctx, "agent %s registered, tracking session %s", t.opts.AgentName, t.opts.SessionID)
	defer func() {
		// Best-effort: stale-agent cleanup removes the record if this fails.
		if err := t.opts.Store.UnregisterAgent(context.Background(), t.opts.AgentName); err != nil {
			log.Errorf(ctx, err, "unregister agent %s", t.opts.AgentName)
		}
	}()

	if t.opts.Practice {
		t.seedPracticeBaseline(ctx)
	}

	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case tick := <-ticker.C:
			t.Tick(ctx, tick.UTC())
		}
	}
}

// seedPracticeBaseline resumes from the latest persisted stint, falling
// back to the configured race length for a fresh session.
func (t *Tracker) seedPracticeBaseline(ctx context.Context) {
	bucket, err := t.opts.Store.LatestBucket(ctx, t.opts.SessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Errorf(ctx, err, "loading latest stint for baseline")
		}
		bucket = t.opts.RaceLength
	}
	secs, ok := clock.ParseHMSOrZero(bucket)
	if !ok {
		log.Printf(ctx, "malformed baseline time %q, starting from 00:00:00", bucket)
	}
	t.practiceBaseline = secs
	log.Printf(ctx, "practice baseline %s", clock.FormatHMS(secs))
}

// Tick runs one iteration of the loop: heartbeat, periodic stale-agent
// cleanup, then a telemetry read and state transition. Every failure is
// local to the tick.
func (t *Tracker) Tick(ctx context.Context, now time.Time) {
	if err := t.opts.Store.Heartbeat(ctx, t.opts.AgentName, now); err != nil {
		log.Errorf(ctx, err, "heartbeat")
	}
	if now.Sub(t.lastCleanup) >= cleanupEvery {
		t.lastCleanup = now
		if n, err := t.opts.Store.CleanupAgents(ctx, now); err != nil {
			log.Errorf(ctx, err, "agent cleanup")
		} else if n > 0 {
			log.Printf(ctx, "removed %d stale agent registrations", n)
		}
	}

	snap, err := t.opts.Reader.Snapshot(ctx)
	if err != nil {
		if errors.Is(err, telemetry.ErrUnavailable) {
			log.Debugf(ctx, "telemetry unavailable, skipping tick")
		} else {
			log.Errorf(ctx, err, "telemetry read")
		}
		return
	}
	t.observe(ctx, snap)
}

func (t *Tracker) observe(ctx context.Context, s *telemetry.Snapshot) {
	if !t.penaltySeeded {
		t.penaltyBaseline = s.Penalties
		t.penaltySeeded = true
	}
	if !knownPitState(s.PitState) {
		log.Debugf(ctx, "unknown pit state code %d, keeping %s", s.PitState, t.state)
		return
	}
	next := PitState(s.PitState)

	if s.InGarageStall && !t.inStall {
		logging.EmitLine(t.opts.Events, logging.KindInfo, logging.EventReturnToGarage)
	}
	t.inStall = s.InGarageStall

	switch next {
	case PitComingIn:
		if !t.sawComingIn {
			t.sawComingIn = true
			t.incoming = t.captureTires(ctx, s)
			t.incomingDriver = t.driverName(s)
			log.Debugf(ctx, "pit entry, incoming snapshot captured for %s", t.incomingDriver)
		}

	case PitInGarage:
		if t.state != PitInGarage {
			if t.opts.Practice && !t.trackingEnabled {
				t.trackingEnabled = true
				log.Printf(ctx, "garage baseline established, tracking enabled")
			}
			logging.EmitLine(t.opts.Events, logging.KindInfo, logging.EventPlayerInGarage)
		}
		t.pitStopInProgress = true
		t.garageSnapshot = clock.RemainingSeconds(s.EndET, s.CurrentET)

	case PitLeaving:
		if !t.pitStopInProgress && t.trackingEnabled {
			t.handlePitOut(ctx, s)
			t.pitStopInProgress = true
		}

	case PitOnTrack:
		if t.pitStopInProgress {
			t.pitStopInProgress = false
			t.penaltyBaseline = s.Penalties
		}
		t.sawComingIn = false
	}
	t.state = next
}

// handlePitOut records the stint that just ended. Penalty service uses the
// same pit mechanics as a real stop and is filtered out here.
func (t *Tracker) handlePitOut(ctx context.Context, s *telemetry.Snapshot) {
	if s.Penalties > t.penaltyBaseline {
		log.Printf(ctx, "pit cycle served a penalty (%d > %d), not recording", s.Penalties, t.penaltyBaseline)
		return
	}

	outgoing := t.captureTires(ctx, s)
	base := clock.RemainingSeconds(s.EndET, s.CurrentET)
	var remaining int
	if t.opts.Practice {
		remaining = clock.AdjustRemaining(base, t.garageSnapshot, t.practiceBaseline)
	} else {
		remaining = clock.AdjustRemaining(base, 0, 0)
	}
	driver := t.incomingDriver
	if driver == "" {
		driver = t.driverName(s)
	}

	res, err := t.opts.Store.UpsertStint(ctx, store.Stint{
		SessionID:  t.opts.SessionID,
		Driver:     driver,
		PitEndTime: clock.FormatHMS(remaining),
		Incoming:   t.incoming,
		Outgoing:   outgoing,
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidSession) {
			log.Errorf(ctx, err, "skipping stint write")
		} else {
			log.Errorf(ctx, err, "stint write failed, next pit cycle will retry")
		}
		return
	}
	if res.Inserted {
		log.Printf(ctx, "stint recorded at %s (id %s)", clock.FormatHMS(remaining), res.ID)
	} else {
		log.Printf(ctx, "stint already recorded by another agent (id %s)", res.ID)
	}
	log.Debugf(ctx, "outgoing changes: %d wheels", outgoing.ChangedCount())
	logging.EmitLine(t.opts.Events, logging.KindEvent, logging.EventStintCreated)
	if t.opts.Practice {
		t.practiceBaseline = remaining
	}
}

func (t *Tracker) captureTires(ctx context.Context, s *telemetry.Snapshot) tires.Snapshot {
	var wears [4]float64
	var flats, detached [4]bool
	for i, w := range s.Wheels {
		wears[i] = w.Wear
		flats[i] = w.Flat
		detached[i] = w.Detached
	}
	snap := tires.FromWears(wears, flats, detached)
	if t.opts.Compounds != nil {
		t.opts.Compounds.Annotate(ctx, &snap)
	}
	return snap
}

// driverName resolves who just drove: the telemetry name when present,
// otherwise the first configured roster entry.
func (t *Tracker) driverName(s *telemetry.Snapshot) string {
	if s.Driver != "" {
		return s.Driver
	}
	if len(t.opts.Drivers) > 0 {
		return t.opts.Drivers[0]
	}
	return ""
}
