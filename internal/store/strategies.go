package store

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SaveStrategy writes a user-owned projection. A strategy without an ID is
// assigned one; saves are full-document upserts keyed by id.
func (c *Client) SaveStrategy(ctx context.Context, s Strategy) (string, error) {
	if s.SessionID == "" {
		return "", ErrInvalidSession
	}
	if s.ID == "" {
		s.ID = ulid.Make().String()
	}
	doc := fromStrategy(s)
	doc.UpdatedAt = time.Now().UTC()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	update := bson.M{"$set": bson.M{
		"session_id":              doc.SessionID,
		"name":                    doc.Name,
		"model_data":              doc.ModelData,
		"mean_stint_time_seconds": doc.MeanStintTime,
		"lock_completed_stints":   doc.LockCompletedStints,
		"updated_at":              doc.UpdatedAt,
	}}
	_, err := c.strategies.UpdateOne(ctx, bson.M{"_id": doc.ID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return "", err
	}
	return doc.ID, nil
}

// LoadStrategy reads one saved projection.
func (c *Client) LoadStrategy(ctx context.Context, id string) (Strategy, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var doc strategyDocument
	if err := c.strategies.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return Strategy{}, ErrNotFound
		}
		return Strategy{}, err
	}
	return doc.toStrategy(), nil
}

// ListStrategies returns the saved projections for a session.
func (c *Client) ListStrategies(ctx context.Context, sessionID string) ([]Strategy, error) {
	if sessionID == "" {
		return nil, ErrInvalidSession
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	cur, err := c.strategies.Find(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	var out []Strategy
	for cur.Next(ctx) {
		var doc strategyDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toStrategy())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteStrategy removes a saved projection.
func (c *Client) DeleteStrategy(ctx context.Context, id string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.strategies.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
