// Package loader performs the blocking document-store reads a UI must not
// run on its main thread. Load returns immediately; the result arrives as a
// single immutable value on the returned channel, either a fully built
// projection or the error that should route the user to settings.
package loader

import (
	"context"

	"goa.design/clue/log"

	"github.com/stintworks/stintflow/internal/store"
	"github.com/stintworks/stintflow/internal/strategy"
	"github.com/stintworks/stintflow/internal/tires"
)

// Source is the read side of the document store the loader needs.
// *store.Client implements it.
type Source interface {
	ListCompleted(ctx context.Context, sessionID string) ([]strategy.CompletedStint, error)
	GetSession(ctx context.Context, id string) (store.Session, error)
	GetRace(ctx context.Context, id string) (store.Race, error)
	ListRaces(ctx context.Context) ([]store.Race, error)
	ListSessions(ctx context.Context, raceID string) ([]store.Session, error)
}

// Result is the loader's single delivery. When Err is set the other fields
// are zero and the consumer shows the connection-failure path.
type Result struct {
	Rows        []strategy.TableRow
	Tires       []tires.Snapshot
	Meta        []strategy.RowMeta
	MeanSeconds int
	Races       []store.Race
	Sessions    []store.Session
	Err         error
}

// Load kicks off the background read for one session and returns the
// channel its Result will arrive on. The channel is buffered so the worker
// never blocks on a consumer that went away.
func Load(ctx context.Context, src Source, sessionID string) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		out <- load(ctx, src, sessionID)
	}()
	return out
}

func load(ctx context.Context, src Source, sessionID string) Result {
	sess, err := src.GetSession(ctx, sessionID)
	if err != nil {
		log.Errorf(ctx, err, "loading session %s", sessionID)
		return Result{Err: err}
	}
	race, err := src.GetRace(ctx, sess.RaceID)
	if err != nil {
		log.Errorf(ctx, err, "loading race %s", sess.RaceID)
		return Result{Err: err}
	}
	completed, err := src.ListCompleted(ctx, sessionID)
	if err != nil {
		log.Errorf(ctx, err, "loading stints for session %s", sessionID)
		return Result{Err: err}
	}
	races, err := src.ListRaces(ctx)
	if err != nil {
		return Result{Err: err}
	}
	sessions, err := src.ListSessions(ctx, sess.RaceID)
	if err != nil {
		return Result{Err: err}
	}

	proj := strategy.Project(strategy.Inputs{
		Completed:  completed,
		TotalTires: race.Tires,
		RaceLength: race.Length,
	})
	return Result{
		Rows:        proj.Rows,
		Tires:       proj.Tires,
		Meta:        proj.Meta,
		MeanSeconds: proj.MeanSeconds,
		Races:       races,
		Sessions:    sessions,
	}
}
