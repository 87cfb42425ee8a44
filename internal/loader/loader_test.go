package loader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stintworks/stintflow/internal/store"
	"github.com/stintworks/stintflow/internal/strategy"
	"github.com/stintworks/stintflow/internal/tires"
)

type fakeSource struct {
	completed []strategy.CompletedStint
	failWith  error
}

func (f *fakeSource) ListCompleted(ctx context.Context, sessionID string) ([]strategy.CompletedStint, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.completed, nil
}

func (f *fakeSource) GetSession(ctx context.Context, id string) (store.Session, error) {
	if f.failWith != nil {
		return store.Session{}, f.failWith
	}
	return store.Session{ID: id, RaceID: "race-1", Name: "night session"}, nil
}

func (f *fakeSource) GetRace(ctx context.Context, id string) (store.Race, error) {
	if f.failWith != nil {
		return store.Race{}, f.failWith
	}
	return store.Race{ID: id, Name: "24h", Tires: 32, Length: "24:00:00"}, nil
}

func (f *fakeSource) ListRaces(ctx context.Context) ([]store.Race, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return []store.Race{{ID: "race-1"}}, nil
}

func (f *fakeSource) ListSessions(ctx context.Context, raceID string) ([]store.Session, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return []store.Session{{ID: "sess-1", RaceID: raceID}}, nil
}

func completedStint(pit string) strategy.CompletedStint {
	var s tires.Snapshot
	for _, p := range tires.Positions {
		s.Set(p, tires.WheelRecord{Compound: tires.Medium, Wear: 1, Changed: true})
	}
	return strategy.CompletedStint{ID: pit, PitEndTime: pit, Bucket: pit, Outgoing: s}
}

func TestLoadDeliversProjection(t *testing.T) {
	src := &fakeSource{completed: []strategy.CompletedStint{
		completedStint("23:00:00"),
		completedStint("22:00:00"),
	}}
	select {
	case res := <-Load(context.Background(), src, "sess-1"):
		if res.Err != nil {
			t.Fatalf("Err = %v", res.Err)
		}
		if res.MeanSeconds != 3600 {
			t.Fatalf("mean = %d", res.MeanSeconds)
		}
		if len(res.Rows) == 0 || res.Rows[0].Status != strategy.StatusCompleted {
			t.Fatalf("rows: %+v", res.Rows)
		}
		if len(res.Races) != 1 || len(res.Sessions) != 1 {
			t.Fatalf("catalog: %d races, %d sessions", len(res.Races), len(res.Sessions))
		}
		if len(res.Tires) != len(res.Rows) || len(res.Meta) != len(res.Rows) {
			t.Fatal("parallel sequences must stay aligned")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("loader never delivered")
	}
}

func TestLoadReportsConnectionFailure(t *testing.T) {
	boom := errors.New("server selection timeout")
	src := &fakeSource{failWith: boom}
	res := <-Load(context.Background(), src, "sess-1")
	if !errors.Is(res.Err, boom) {
		t.Fatalf("Err = %v, want %v", res.Err, boom)
	}
	if res.Rows != nil {
		t.Fatal("failed load must not carry partial rows")
	}
}
