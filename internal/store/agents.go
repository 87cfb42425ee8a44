package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
)

// agentGrace is how long an agent may miss heartbeats before any tracker's
// cleanup pass removes it.
const agentGrace = 60 * time.Second

// RegisterAgent claims a tracker name. A collision means another live
// tracker holds it; the caller must surface the conflict and stop rather
// than pollute the registry.
func (c *Client) RegisterAgent(ctx context.Context, name string, now time.Time) error {
	if name == "" {
		return errors.New("agent name is required")
	}
	doc := agentDocument{
		ID:            ulid.Make().String(),
		Name:          name,
		ConnectedAt:   now.UTC(),
		LastHeartbeat: now.UTC(),
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if _, err := c.agents.InsertOne(ctx, doc); err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrNameConflict, name)
		}
		return err
	}
	return nil
}

// Heartbeat refreshes the agent's liveness timestamp. Called every tick.
func (c *Client) Heartbeat(ctx context.Context, name string, now time.Time) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.agents.UpdateOne(ctx,
		bson.M{"name": name},
		bson.M{"$set": bson.M{"last_heartbeat": now.UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// CleanupAgents removes registrations whose heartbeat lapsed past the
// grace window. Any tracker may run it; the single delete query makes the
// pass idempotent under races.
func (c *Client) CleanupAgents(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	cutoff := now.UTC().Add(-agentGrace)
	res, err := c.agents.DeleteMany(ctx, bson.M{"last_heartbeat": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// UnregisterAgent removes the agent's own document on clean shutdown.
func (c *Client) UnregisterAgent(ctx context.Context, name string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	_, err := c.agents.DeleteOne(ctx, bson.M{"name": name})
	return err
}

// ListAgents returns the currently registered trackers.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	cur, err := c.agents.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	var out []Agent
	for cur.Next(ctx) {
		var doc agentDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toAgent())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
