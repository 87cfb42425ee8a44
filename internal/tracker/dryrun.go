package tracker

import (
	"context"
	"time"

	"goa.design/clue/log"

	"github.com/stintworks/stintflow/internal/store"
)

// DryRunStore satisfies Store without touching the document store. Writes
// are logged and reported as successful inserts so the rest of the loop
// behaves normally.
type DryRunStore struct{}

func (DryRunStore) UpsertStint(ctx context.Context, st store.Stint) (store.UpsertResult, error) {
	log.Printf(ctx, "dry-run: would record stint session=%s driver=%s pit_end=%s changes=%d",
		st.SessionID, st.Driver, st.PitEndTime, st.Outgoing.ChangedCount())
	return store.UpsertResult{ID: "dry-run", Inserted: true}, nil
}

func (DryRunStore) LatestBucket(ctx context.Context, sessionID string) (string, error) {
	return "", store.ErrNotFound
}

func (DryRunStore) RegisterAgent(ctx context.Context, name string, now time.Time) error {
	log.Printf(ctx, "dry-run: would register agent %s", name)
	return nil
}

func (DryRunStore) Heartbeat(ctx context.Context, name string, now time.Time) error {
	return nil
}

func (DryRunStore) CleanupAgents(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (DryRunStore) UnregisterAgent(ctx context.Context, name string) error {
	log.Printf(ctx, "dry-run: would unregister agent %s", name)
	return nil
}
