package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/stintworks/stintflow/internal/clock"
	"github.com/stintworks/stintflow/internal/strategy"
	"github.com/stintworks/stintflow/internal/tires"
)

// UpsertResult reports the outcome of a stint write. On a dedup hit ID is
// the already-existing document's id.
type UpsertResult struct {
	ID       string
	Inserted bool
}

// UpsertStint records an observed pit-out. The first agent to insert a
// given stint key wins; later agents enrich the existing document's unknown
// incoming compounds and otherwise no-op. Outgoing values are never
// overwritten on a dedup hit.
func (c *Client) UpsertStint(ctx context.Context, st Stint) (UpsertResult, error) {
	if st.SessionID == "" {
		return UpsertResult{}, ErrInvalidSession
	}
	secs, ok := clock.ParseHMSOrZero(st.PitEndTime)
	if !ok {
		st.PitEndTime = clock.FormatHMS(0)
	}
	bucket := clock.FormatHMS(clock.BucketSeconds(secs, c.bucketWindow))
	key := st.SessionID + ":" + bucket

	doc := stintDocument{
		ID:          ulid.Make().String(),
		SessionID:   st.SessionID,
		Driver:      st.Driver,
		PitEndTime:  st.PitEndTime,
		Bucket:      bucket,
		StintKey:    key,
		Official:    true,
		TireData:    tireDataToDocument(st.Incoming, st.Outgoing),
		Fingerprint: stintFingerprint(st.SessionID, bucket, st.Driver),
		CreatedAt:   time.Now().UTC(),
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	_, err := c.stints.InsertOne(ctx, doc)
	if err == nil {
		return UpsertResult{ID: doc.ID, Inserted: true}, nil
	}
	if !mongodriver.IsDuplicateKeyError(err) {
		return UpsertResult{}, fmt.Errorf("insert stint %s: %w", key, err)
	}
	return c.enrichStint(ctx, key, st.Incoming)
}

// enrichStint fills unknown incoming compounds on the document that won the
// insert race. Each position touches its own path so concurrent enrichers
// commute.
func (c *Client) enrichStint(ctx context.Context, key string, incoming tires.Snapshot) (UpsertResult, error) {
	filter := bson.M{"stint_key": key, "official": true}
	var existing stintDocument
	if err := c.stints.FindOne(ctx, filter).Decode(&existing); err != nil {
		return UpsertResult{}, fmt.Errorf("load stint %s after dedup hit: %w", key, err)
	}
	set := bson.M{}
	for _, pos := range tires.Positions {
		if w := incoming.At(pos); w.Compound.Known() {
			set["tire_data."+positionKeys[pos]+".incoming.compound"] = string(w.Compound)
		}
	}
	if len(set) > 0 {
		if _, err := c.stints.UpdateOne(ctx, filter, bson.M{"$set": set}); err != nil {
			return UpsertResult{}, fmt.Errorf("enrich stint %s: %w", key, err)
		}
	}
	return UpsertResult{ID: existing.ID, Inserted: false}, nil
}

// LatestBucket returns the most recent pit-end-time bucket recorded for a
// session. The practice baseline seeds from it on startup.
func (c *Client) LatestBucket(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrInvalidSession
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"session_id": sessionID, "official": true}
	opts := options.FindOne().SetSort(bson.D{{Key: "pit_end_time_bucket", Value: -1}})
	var doc stintDocument
	if err := c.stints.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return "", ErrNotFound
		}
		return "", err
	}
	return doc.Bucket, nil
}

// ListCompleted loads a session's official stints in descending bucket
// order, ready for projection.
func (c *Client) ListCompleted(ctx context.Context, sessionID string) ([]strategy.CompletedStint, error) {
	if sessionID == "" {
		return nil, ErrInvalidSession
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"session_id": sessionID, "official": true}
	opts := options.Find().SetSort(bson.D{{Key: "pit_end_time_bucket", Value: -1}})
	cur, err := c.stints.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	var out []strategy.CompletedStint
	for cur.Next(ctx) {
		var doc stintDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toCompleted())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SetStintExcluded persists the exclusion flag toggled from the table.
func (c *Client) SetStintExcluded(ctx context.Context, id string, excluded bool) error {
	if id == "" {
		return ErrNotFound
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.stints.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"excluded": excluded}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteStint removes a stint document on explicit user action.
func (c *Client) DeleteStint(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.stints.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
